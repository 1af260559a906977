package matching

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// CandidateIndex кэш товаров с вторичными индексами для быстрых
// путей поиска. Чтения могут выполняться конкурентно, записи должен
// сериализовать вызывающий код (дисциплина одного писателя)
type CandidateIndex struct {
	mu         sync.RWMutex
	normalizer *Normalizer

	// Первичный индекс: id -> запись
	entries map[string]*ProductCacheEntry

	// Нормализованное название (без терминов упаковки) -> ids
	byNormalizedName map[string]map[string]bool

	// Нормализованный бренд -> ids
	byBrand map[string]map[string]bool

	// Ключ название|бренд -> ids
	byNameBrand map[string]map[string]bool

	// Ключ название|бренд|размер -> id
	// Одно значение на ключ: при коллизии побеждает последняя запись
	exactKey map[string]string

	// Вложенный индекс бренд -> название -> ids
	brandNames map[string]map[string]map[string]bool

	// Токен -> ids
	byToken map[string]map[string]bool

	lastRebuild time.Time
}

// IndexStats статистика индекса
type IndexStats struct {
	TotalProducts   int       `json:"total_products"`
	NormalizedNames int       `json:"normalized_names"`
	Brands          int       `json:"brands"`
	NameBrandKeys   int       `json:"name_brand_keys"`
	ExactKeys       int       `json:"exact_keys"`
	Tokens          int       `json:"tokens"`
	LastRebuild     time.Time `json:"last_rebuild"`
}

// NewCandidateIndex создает новый пустой индекс
func NewCandidateIndex(normalizer *Normalizer) *CandidateIndex {
	ci := &CandidateIndex{normalizer: normalizer}
	ci.resetLocked()
	return ci
}

// resetLocked создает свежие структуры индексов
// Вызывающий должен держать блокировку записи
func (ci *CandidateIndex) resetLocked() {
	ci.entries = make(map[string]*ProductCacheEntry)
	ci.byNormalizedName = make(map[string]map[string]bool)
	ci.byBrand = make(map[string]map[string]bool)
	ci.byNameBrand = make(map[string]map[string]bool)
	ci.exactKey = make(map[string]string)
	ci.brandNames = make(map[string]map[string]map[string]bool)
	ci.byToken = make(map[string]map[string]bool)
}

// entryKeys ключи записи во всех вторичных индексах
type entryKeys struct {
	normalizedName string // с удалением терминов упаковки
	brand          string
	nameBrand      string
	exact          string
	nameForBrand   string // полное нормализованное название для вложенного индекса
	tokens         TokenSet
}

// buildEntry вычисляет производные поля и ключи индексов для записи
func (ci *CandidateIndex) buildEntry(rec ProductRecord) (*ProductCacheEntry, entryKeys, error) {
	if strings.TrimSpace(rec.ID) == "" {
		return nil, entryKeys{}, fmt.Errorf("запись без идентификатора")
	}
	if strings.TrimSpace(rec.Name) == "" {
		return nil, entryKeys{}, fmt.Errorf("запись %s без названия", rec.ID)
	}

	normName := ci.normalizer.Normalize(rec.Name, rec.BrandName, false)
	if normName == "" {
		return nil, entryKeys{}, fmt.Errorf("запись %s: пустое нормализованное название", rec.ID)
	}

	entry := &ProductCacheEntry{
		ProductRecord:  rec,
		NormalizedName: normName,
		SearchTokens:   ci.normalizer.Tokens(rec.Name, rec.BrandName, rec.Variety),
		LastUpdated:    time.Now(),
	}

	keys := ci.keysFor(entry)
	return entry, keys, nil
}

// keysFor вычисляет ключи вторичных индексов для записи
// Детерминировано по полям записи, что позволяет при удалении
// восстановить все корзины без обратного индекса
func (ci *CandidateIndex) keysFor(entry *ProductCacheEntry) entryKeys {
	normBrand := ci.normalizer.Normalize(entry.BrandName, "", false)
	normSize := ci.normalizer.NormalizeSize(entry.Size)

	return entryKeys{
		normalizedName: ci.normalizer.Normalize(entry.Name, entry.BrandName, true),
		brand:          normBrand,
		nameBrand:      entry.NormalizedName + "|" + normBrand,
		exact:          ExactKey(entry.NormalizedName, normBrand, normSize),
		nameForBrand:   entry.NormalizedName,
		tokens:         entry.SearchTokens,
	}
}

// ExactKey строит ключ точного совпадения название|бренд|размер
func ExactKey(normName, normBrand, normSize string) string {
	return normName + "|" + normBrand + "|" + normSize
}

// Add добавляет товар в первичный и все вторичные индексы
func (ci *CandidateIndex) Add(rec ProductRecord) error {
	entry, keys, err := ci.buildEntry(rec)
	if err != nil {
		return err
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()

	// Повторное добавление того же id: сначала снимаем старые ключи
	if old, exists := ci.entries[rec.ID]; exists {
		ci.removeLocked(rec.ID, old)
	}

	ci.insertLocked(entry, keys)
	return nil
}

// insertLocked вставляет запись во все индексы
// Вызывающий должен держать блокировку записи
func (ci *CandidateIndex) insertLocked(entry *ProductCacheEntry, keys entryKeys) {
	id := entry.ID
	ci.entries[id] = entry

	if keys.normalizedName != "" {
		addToBucket(ci.byNormalizedName, keys.normalizedName, id)
	}
	if keys.brand != "" {
		addToBucket(ci.byBrand, keys.brand, id)

		names := ci.brandNames[keys.brand]
		if names == nil {
			names = make(map[string]map[string]bool)
			ci.brandNames[keys.brand] = names
		}
		addToBucket(names, keys.nameForBrand, id)
	}
	addToBucket(ci.byNameBrand, keys.nameBrand, id)

	// Последняя запись побеждает при коллизии ключа
	ci.exactKey[keys.exact] = id

	for token := range keys.tokens {
		addToBucket(ci.byToken, token, id)
	}
}

// Remove удаляет товар из первичного и всех вторичных индексов
// Пустые корзины вычищаются
func (ci *CandidateIndex) Remove(id string) error {
	ci.mu.Lock()
	defer ci.mu.Unlock()

	entry, exists := ci.entries[id]
	if !exists {
		return fmt.Errorf("товар %s не найден в индексе", id)
	}

	ci.removeLocked(id, entry)
	return nil
}

// removeLocked снимает запись со всех индексов
// Вызывающий должен держать блокировку записи
func (ci *CandidateIndex) removeLocked(id string, entry *ProductCacheEntry) {
	keys := ci.keysFor(entry)

	delete(ci.entries, id)

	removeFromBucket(ci.byNormalizedName, keys.normalizedName, id)
	removeFromBucket(ci.byBrand, keys.brand, id)
	removeFromBucket(ci.byNameBrand, keys.nameBrand, id)

	if names, ok := ci.brandNames[keys.brand]; ok {
		removeFromBucket(names, keys.nameForBrand, id)
		if len(names) == 0 {
			delete(ci.brandNames, keys.brand)
		}
	}

	// Ключ точного совпадения снимаем только если он указывает на
	// удаляемую запись: после коллизии он принадлежит другой
	if ci.exactKey[keys.exact] == id {
		delete(ci.exactKey, keys.exact)
	}

	for token := range keys.tokens {
		removeFromBucket(ci.byToken, token, id)
	}
}

// Update заменяет запись, поддерживая смену идентификатора
// (например, когда ключ товара пересчитан после смены названия)
func (ci *CandidateIndex) Update(oldID string, rec ProductRecord) error {
	entry, keys, err := ci.buildEntry(rec)
	if err != nil {
		return err
	}

	ci.mu.Lock()
	defer ci.mu.Unlock()

	if old, exists := ci.entries[oldID]; exists {
		ci.removeLocked(oldID, old)
	}
	if rec.ID != oldID {
		if old, exists := ci.entries[rec.ID]; exists {
			ci.removeLocked(rec.ID, old)
		}
	}

	ci.insertLocked(entry, keys)
	return nil
}

// Rebuild перестраивает все индексы из полного набора записей
// Строит во временные структуры и подменяет их атомарно, поэтому
// читатели не видят частично построенного состояния. Ошибки отдельных
// записей подсчитываются и не прерывают перестроение
func (ci *CandidateIndex) Rebuild(records []ProductRecord) (indexed, failed int) {
	fresh := NewCandidateIndex(ci.normalizer)

	for _, rec := range records {
		entry, keys, err := fresh.buildEntry(rec)
		if err != nil {
			failed++
			continue
		}
		fresh.insertLocked(entry, keys)
		indexed++
	}

	ci.mu.Lock()
	ci.entries = fresh.entries
	ci.byNormalizedName = fresh.byNormalizedName
	ci.byBrand = fresh.byBrand
	ci.byNameBrand = fresh.byNameBrand
	ci.exactKey = fresh.exactKey
	ci.brandNames = fresh.brandNames
	ci.byToken = fresh.byToken
	ci.lastRebuild = time.Now()
	ci.mu.Unlock()

	return indexed, failed
}

// Get возвращает запись по идентификатору
func (ci *CandidateIndex) Get(id string) (*ProductCacheEntry, bool) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	entry, ok := ci.entries[id]
	return entry, ok
}

// TotalProducts возвращает размер первичного индекса
func (ci *CandidateIndex) TotalProducts() int {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return len(ci.entries)
}

// Entries возвращает срез всех записей для полного перебора
func (ci *CandidateIndex) Entries() []*ProductCacheEntry {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	entries := make([]*ProductCacheEntry, 0, len(ci.entries))
	for _, entry := range ci.entries {
		entries = append(entries, entry)
	}
	return entries
}

// ByExactKey ищет товар по ключу название|бренд|размер
func (ci *CandidateIndex) ByExactKey(key string) (*ProductCacheEntry, bool) {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	id, ok := ci.exactKey[key]
	if !ok {
		return nil, false
	}
	entry, ok := ci.entries[id]
	return entry, ok
}

// ByBrandName ищет товары по вложенному индексу бренд -> название
func (ci *CandidateIndex) ByBrandName(normBrand, normName string) []*ProductCacheEntry {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	names, ok := ci.brandNames[normBrand]
	if !ok {
		return nil
	}
	return ci.collectLocked(names[normName])
}

// ByNormalizedName ищет товары по нормализованному названию
// (термины упаковки удалены)
func (ci *CandidateIndex) ByNormalizedName(normName string) []*ProductCacheEntry {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return ci.collectLocked(ci.byNormalizedName[normName])
}

// ByBrand возвращает все товары бренда
func (ci *CandidateIndex) ByBrand(normBrand string) []*ProductCacheEntry {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return ci.collectLocked(ci.byBrand[normBrand])
}

// TokenCandidates возвращает товары, разделяющие хотя бы один токен
// с запросом, отсортированные по убыванию пересечения, не более limit
func (ci *CandidateIndex) TokenCandidates(tokens TokenSet, limit int) []*ProductCacheEntry {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	overlap := make(map[string]int)
	for token := range tokens {
		for id := range ci.byToken[token] {
			overlap[id]++
		}
	}
	if len(overlap) == 0 {
		return nil
	}

	ids := make([]string, 0, len(overlap))
	for id := range overlap {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if overlap[ids[i]] != overlap[ids[j]] {
			return overlap[ids[i]] > overlap[ids[j]]
		}
		return ids[i] < ids[j]
	})

	if limit > 0 && len(ids) > limit {
		ids = ids[:limit]
	}

	result := make([]*ProductCacheEntry, 0, len(ids))
	for _, id := range ids {
		if entry, ok := ci.entries[id]; ok {
			result = append(result, entry)
		}
	}
	return result
}

// HasInSecondaryIndexes проверяет присутствие id хотя бы в одном
// вторичном индексе (инвариант согласованности для тестов и диагностики)
func (ci *CandidateIndex) HasInSecondaryIndexes(id string) bool {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	for _, bucket := range ci.byNormalizedName {
		if bucket[id] {
			return true
		}
	}
	for _, bucket := range ci.byBrand {
		if bucket[id] {
			return true
		}
	}
	for _, bucket := range ci.byNameBrand {
		if bucket[id] {
			return true
		}
	}
	for _, indexed := range ci.exactKey {
		if indexed == id {
			return true
		}
	}
	for _, names := range ci.brandNames {
		for _, bucket := range names {
			if bucket[id] {
				return true
			}
		}
	}
	for _, bucket := range ci.byToken {
		if bucket[id] {
			return true
		}
	}
	return false
}

// Stats возвращает статистику индекса
func (ci *CandidateIndex) Stats() IndexStats {
	ci.mu.RLock()
	defer ci.mu.RUnlock()

	return IndexStats{
		TotalProducts:   len(ci.entries),
		NormalizedNames: len(ci.byNormalizedName),
		Brands:          len(ci.byBrand),
		NameBrandKeys:   len(ci.byNameBrand),
		ExactKeys:       len(ci.exactKey),
		Tokens:          len(ci.byToken),
		LastRebuild:     ci.lastRebuild,
	}
}

// collectLocked материализует корзину идентификаторов в записи
// Вызывающий должен держать блокировку чтения
func (ci *CandidateIndex) collectLocked(bucket map[string]bool) []*ProductCacheEntry {
	if len(bucket) == 0 {
		return nil
	}

	result := make([]*ProductCacheEntry, 0, len(bucket))
	for id := range bucket {
		if entry, ok := ci.entries[id]; ok {
			result = append(result, entry)
		}
	}
	return result
}

// addToBucket добавляет id в корзину, создавая ее при необходимости
func addToBucket(index map[string]map[string]bool, key, id string) {
	bucket := index[key]
	if bucket == nil {
		bucket = make(map[string]bool)
		index[key] = bucket
	}
	bucket[id] = true
}

// removeFromBucket удаляет id из корзины и вычищает пустую корзину
func removeFromBucket(index map[string]map[string]bool, key, id string) {
	bucket, ok := index[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(index, key)
	}
}
