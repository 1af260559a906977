package matching

import (
	"context"
	"fmt"
	"log"
	"sort"
	"strings"
)

// Минимальная оценка, при которой кандидат попадает в выдачу
const minKeepScore = 0.5

// Причины срабатывания быстрых путей точного совпадения
const (
	ReasonTierExactKey   = "полное совпадение ключа название+бренд+размер"
	ReasonTierNameBrand  = "точное совпадение названия и бренда"
	ReasonTierNormName   = "совпадение нормализованного названия"
	ReasonTierBrandGroup = "совпадение названия внутри группы бренда"
)

// ScalableIndex внешний инвертированный индекс для каталогов,
// переросших полный перебор
type ScalableIndex interface {
	IndexProduct(ctx context.Context, rec ProductRecord) error
	RemoveProduct(ctx context.Context, id string) error
	FindCandidates(ctx context.Context, cand ProductCandidate, limit int) ([]string, error)
	FetchRecords(ctx context.Context, ids []string) ([]ProductRecord, error)
	TotalProducts(ctx context.Context) (int64, error)
	Available(ctx context.Context) bool
}

// RecordSource источник записей для массового перестроения индексов
// (авторитетное хранилище каталога)
type RecordSource interface {
	ListPage(ctx context.Context, offset, limit int) ([]ProductRecord, error)
	Count(ctx context.Context) (int, error)
}

// Options настройки движка сопоставления
type Options struct {
	// Порог, начиная с которого нечеткое совпадение считается дубликатом
	SimilarityThreshold float64 `json:"similarity_threshold"`
	// Порог, начиная с которого совпадение классифицируется как точное
	ExactMatchThreshold float64 `json:"exact_match_threshold"`
	// Размер каталога, при котором включается масштабируемый режим
	ScalableThreshold int `json:"scalable_threshold"`
	// Максимум кандидатов на один индексный поиск
	MaxCandidates int `json:"max_candidates"`
	// Размер символьной N-граммы
	NGramSize int `json:"ngram_size"`
	// Минимум совпавших N-грамм для отбора кандидата
	MinNGramMatches int `json:"min_ngram_matches"`
}

// DefaultOptions возвращает настройки по умолчанию
func DefaultOptions() Options {
	return Options{
		SimilarityThreshold: 0.75,
		ExactMatchThreshold: 0.95,
		ScalableThreshold:   10000,
		MaxCandidates:       500,
		NGramSize:           3,
		MinNGramMatches:     2,
	}
}

// Validate проверяет корректность настроек
func (o Options) Validate() error {
	if o.SimilarityThreshold <= 0 || o.SimilarityThreshold > 1 {
		return fmt.Errorf("недопустимый порог схожести: %f", o.SimilarityThreshold)
	}
	if o.ExactMatchThreshold <= 0 || o.ExactMatchThreshold > 1 {
		return fmt.Errorf("недопустимый порог точного совпадения: %f", o.ExactMatchThreshold)
	}
	if o.ExactMatchThreshold < o.SimilarityThreshold {
		return fmt.Errorf("порог точного совпадения %f ниже порога схожести %f", o.ExactMatchThreshold, o.SimilarityThreshold)
	}
	if o.MaxCandidates <= 0 {
		return fmt.Errorf("недопустимый максимум кандидатов: %d", o.MaxCandidates)
	}
	if o.NGramSize < 2 {
		return fmt.Errorf("недопустимый размер N-граммы: %d", o.NGramSize)
	}
	return nil
}

// MatcherEngine движок поиска дубликатов: быстрые пути точного
// совпадения, полный перебор для малых каталогов и кандидатный поиск
// через внешний индекс для больших
type MatcherEngine struct {
	opts       Options
	normalizer *Normalizer
	calculator *SimilarityCalculator
	index      *CandidateIndex
	scalable   ScalableIndex // nil, если внешний индекс не настроен
}

// NewMatcherEngine создает движок сопоставления
// Недопустимые настройки - ошибка программиста, а не рабочая ситуация
func NewMatcherEngine(normalizer *Normalizer, index *CandidateIndex, scalable ScalableIndex, opts Options) (*MatcherEngine, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	return &MatcherEngine{
		opts:       opts,
		normalizer: normalizer,
		calculator: NewSimilarityCalculator(normalizer),
		index:      index,
		scalable:   scalable,
	}, nil
}

// Options возвращает действующие настройки движка
func (me *MatcherEngine) Options() Options {
	return me.opts
}

// Index возвращает кэш кандидатов движка
func (me *MatcherEngine) Index() *CandidateIndex {
	return me.index
}

// FindSimilarProducts возвращает ранжированный список товаров,
// похожих на кандидата, не более limit
func (me *MatcherEngine) FindSimilarProducts(ctx context.Context, cand ProductCandidate, limit int) []ProductMatch {
	if limit <= 0 {
		limit = 10
	}

	if me.scalableMode(ctx) {
		return me.findScalable(ctx, cand, limit)
	}
	return me.findExhaustive(cand, limit)
}

// IsDuplicate проверяет, есть ли в каталоге дубликат кандидата
// Возвращает лучший найденный матч
func (me *MatcherEngine) IsDuplicate(ctx context.Context, cand ProductCandidate) (bool, *ProductMatch) {
	matches := me.FindSimilarProducts(ctx, cand, 1)
	if len(matches) == 0 {
		return false, nil
	}

	best := matches[0]
	return best.IsDuplicate, &best
}

// scalableMode решает, использовать ли внешний индекс:
// каталог достиг порога и индекс доступен
func (me *MatcherEngine) scalableMode(ctx context.Context) bool {
	if me.scalable == nil {
		return false
	}
	if me.index.TotalProducts() < me.opts.ScalableThreshold {
		return false
	}
	return me.scalable.Available(ctx)
}

// queryKeys предвычисленные нормализованные ключи кандидата
type queryKeys struct {
	normName   string
	normBrand  string
	normSize   string
	nameNoPack string
}

func (me *MatcherEngine) keysForQuery(cand ProductCandidate) queryKeys {
	return queryKeys{
		normName:   me.normalizer.Normalize(cand.Name, cand.BrandName, false),
		normBrand:  me.normalizer.Normalize(cand.BrandName, "", false),
		normSize:   me.normalizer.NormalizeSize(cand.Size),
		nameNoPack: me.normalizer.Normalize(cand.Name, cand.BrandName, true),
	}
}

// findExhaustive режим полного перебора: четыре быстрых пути точного
// совпадения, затем сравнение со всеми записями кэша
func (me *MatcherEngine) findExhaustive(cand ProductCandidate, limit int) []ProductMatch {
	keys := me.keysForQuery(cand)

	// Уровень 1: полное совпадение ключа название+бренд+размер
	if match := me.tierExactKey(keys); match != nil {
		return []ProductMatch{*match}
	}

	// Уровень 2: точное совпадение название+бренд
	if match := me.tierNameBrand(cand, keys); match != nil {
		return []ProductMatch{*match}
	}

	// Уровень 3: совпадение нормализованного названия без упаковки
	if match := me.tierNormalizedName(cand, keys); match != nil {
		return []ProductMatch{*match}
	}

	// Уровень 4: нечеткое сравнение с кандидатами по токенам
	if matches := me.tierFuzzy(cand); len(matches) > 0 {
		return capMatches(matches, limit)
	}

	// Полный перебор
	var matches []ProductMatch
	for _, entry := range me.index.Entries() {
		score, reasons := me.calculator.Score(cand, entry.Candidate())
		if score < minKeepScore {
			continue
		}
		matches = append(matches, ProductMatch{
			ProductID:       entry.ID,
			SimilarityScore: score,
			MatchedProduct:  entry.ProductRecord,
			MatchReasons:    reasons,
			IsDuplicate:     score >= me.opts.SimilarityThreshold,
		})
	}

	sortMatches(matches)
	return capMatches(matches, limit)
}

// tierExactKey уровень 1: O(1) поиск по ключу точного совпадения
// Совпадение считается достоверным дубликатом безусловно
func (me *MatcherEngine) tierExactKey(keys queryKeys) *ProductMatch {
	entry, ok := me.index.ByExactKey(ExactKey(keys.normName, keys.normBrand, keys.normSize))
	if !ok {
		return nil
	}

	return &ProductMatch{
		ProductID:       entry.ID,
		SimilarityScore: 1.0,
		MatchedProduct:  entry.ProductRecord,
		MatchReasons:    []string{ReasonTierExactKey},
		IsDuplicate:     true,
	}
}

// tierNameBrand уровень 2: точное совпадение название+бренд через
// вложенный индекс бренд -> название. Оценка 0.98, повышается до 1.0
// при точном совпадении размера; при нескольких кандидатах
// предпочитается точный размер
func (me *MatcherEngine) tierNameBrand(cand ProductCandidate, keys queryKeys) *ProductMatch {
	if keys.normBrand == "" {
		return nil
	}

	entries := me.index.ByBrandName(keys.normBrand, keys.normName)
	if len(entries) == 0 {
		return nil
	}

	best := me.preferExactSize(entries, keys.normSize)
	score := 0.98
	reasons := []string{ReasonTierNameBrand}
	if keys.normSize != "" && me.normalizer.NormalizeSize(best.Size) == keys.normSize {
		score = 1.0
		reasons = append(reasons, ReasonSizeExact)
	}

	return &ProductMatch{
		ProductID:       best.ID,
		SimilarityScore: score,
		MatchedProduct:  best.ProductRecord,
		MatchReasons:    reasons,
		IsDuplicate:     true,
	}
}

// tierNormalizedName уровень 3: совпадение нормализованного названия
// после удаления терминов упаковки - напрямую либо по подстроке внутри
// группы бренда (ловит варианты товаров, названных по бренду)
func (me *MatcherEngine) tierNormalizedName(cand ProductCandidate, keys queryKeys) *ProductMatch {
	var candidates []*ProductCacheEntry
	floor := 0.90
	tierReason := ReasonTierNormName

	if keys.nameNoPack != "" {
		candidates = me.index.ByNormalizedName(keys.nameNoPack)
	}

	if len(candidates) == 0 && keys.normBrand != "" {
		floor = 0.85
		tierReason = ReasonTierBrandGroup
		for _, entry := range me.index.ByBrand(keys.normBrand) {
			entryNoPack := me.normalizer.Normalize(entry.Name, entry.BrandName, true)
			if keys.nameNoPack == "" {
				// Название кандидата целиком состоит из бренда и
				// упаковки - сопоставляем с такими же записями
				if entryNoPack == "" {
					candidates = append(candidates, entry)
				}
				continue
			}
			if entryNoPack != "" &&
				(strings.Contains(entryNoPack, keys.nameNoPack) || strings.Contains(keys.nameNoPack, entryNoPack)) {
				candidates = append(candidates, entry)
			}
		}
	}

	if len(candidates) == 0 {
		return nil
	}

	best := me.preferExactSize(candidates, keys.normSize)
	score, reasons := me.calculator.Score(cand, best.Candidate())
	if score < floor {
		score = floor
	}

	return &ProductMatch{
		ProductID:       best.ID,
		SimilarityScore: score,
		MatchedProduct:  best.ProductRecord,
		MatchReasons:    append([]string{tierReason}, reasons...),
		IsDuplicate:     true,
	}
}

// tierFuzzy уровень 4: нечеткое сравнение с кандидатами, разделяющими
// хотя бы один токен с запросом (не более 50, ранжированных по
// пересечению). Остаются только оценки не ниже порога схожести
func (me *MatcherEngine) tierFuzzy(cand ProductCandidate) []ProductMatch {
	tokens := me.normalizer.Tokens(cand.Name, cand.BrandName, cand.Variety)
	if len(tokens) == 0 {
		return nil
	}

	var matches []ProductMatch
	for _, entry := range me.index.TokenCandidates(tokens, 50) {
		score, reasons := me.calculator.Score(cand, entry.Candidate())
		if score < me.opts.SimilarityThreshold {
			continue
		}
		matches = append(matches, ProductMatch{
			ProductID:       entry.ID,
			SimilarityScore: score,
			MatchedProduct:  entry.ProductRecord,
			MatchReasons:    reasons,
			IsDuplicate:     true,
		})
	}

	sortMatches(matches)
	return matches
}

// findScalable масштабируемый режим: кандидаты приходят из внешнего
// инвертированного индекса, стоимость ограничена их количеством,
// а не размером каталога. Отказ индекса деградирует до пустой выдачи
func (me *MatcherEngine) findScalable(ctx context.Context, cand ProductCandidate, limit int) []ProductMatch {
	ids, err := me.scalable.FindCandidates(ctx, cand, me.opts.MaxCandidates)
	if err != nil {
		log.Printf("ПРЕДУПРЕЖДЕНИЕ: внешний индекс недоступен при поиске кандидатов: %v", err)
		return nil
	}
	if len(ids) == 0 {
		return nil
	}

	records, err := me.scalable.FetchRecords(ctx, ids)
	if err != nil {
		log.Printf("ПРЕДУПРЕЖДЕНИЕ: внешний индекс недоступен при загрузке записей: %v", err)
		return nil
	}

	var matches []ProductMatch
	for _, rec := range records {
		score, reasons := me.calculator.Score(cand, rec.Candidate())
		if score < minKeepScore {
			continue
		}
		matches = append(matches, ProductMatch{
			ProductID:       rec.ID,
			SimilarityScore: score,
			MatchedProduct:  rec,
			MatchReasons:    reasons,
			IsDuplicate:     score >= me.opts.SimilarityThreshold,
		})
	}

	sortMatches(matches)
	return capMatches(matches, limit)
}

// AddProduct добавляет товар в кэш и, при наличии, во внешний индекс
func (me *MatcherEngine) AddProduct(ctx context.Context, rec ProductRecord) error {
	if err := me.index.Add(rec); err != nil {
		return err
	}

	if me.scalable != nil {
		if err := me.scalable.IndexProduct(ctx, rec); err != nil {
			log.Printf("ПРЕДУПРЕЖДЕНИЕ: товар %s не проиндексирован во внешнем индексе: %v", rec.ID, err)
		}
	}
	return nil
}

// RemoveProduct удаляет товар из кэша и внешнего индекса
func (me *MatcherEngine) RemoveProduct(ctx context.Context, id string) error {
	if err := me.index.Remove(id); err != nil {
		return err
	}

	if me.scalable != nil {
		if err := me.scalable.RemoveProduct(ctx, id); err != nil {
			log.Printf("ПРЕДУПРЕЖДЕНИЕ: товар %s не удален из внешнего индекса: %v", id, err)
		}
	}
	return nil
}

// UpdateProduct заменяет запись, поддерживая смену идентификатора
func (me *MatcherEngine) UpdateProduct(ctx context.Context, oldID string, rec ProductRecord) error {
	if err := me.index.Update(oldID, rec); err != nil {
		return err
	}

	if me.scalable != nil {
		if oldID != rec.ID {
			if err := me.scalable.RemoveProduct(ctx, oldID); err != nil {
				log.Printf("ПРЕДУПРЕЖДЕНИЕ: товар %s не удален из внешнего индекса: %v", oldID, err)
			}
		}
		if err := me.scalable.IndexProduct(ctx, rec); err != nil {
			log.Printf("ПРЕДУПРЕЖДЕНИЕ: товар %s не проиндексирован во внешнем индексе: %v", rec.ID, err)
		}
	}
	return nil
}

// RefreshFromSource перестраивает кэш из авторитетного хранилища
// Страницы вычитываются целиком, затем индексы подменяются атомарно
func (me *MatcherEngine) RefreshFromSource(ctx context.Context, source RecordSource, pageSize int) (indexed, failed int, err error) {
	if pageSize <= 0 {
		pageSize = 500
	}

	var records []ProductRecord
	offset := 0
	for {
		page, err := source.ListPage(ctx, offset, pageSize)
		if err != nil {
			return 0, 0, fmt.Errorf("чтение страницы каталога (offset=%d): %w", offset, err)
		}
		if len(page) == 0 {
			break
		}
		records = append(records, page...)
		offset += len(page)
	}

	indexed, failed = me.index.Rebuild(records)
	log.Printf("Кэш перестроен: %d записей проиндексировано, %d пропущено", indexed, failed)
	return indexed, failed, nil
}

// preferExactSize выбирает запись с точным совпадением размера,
// иначе первую по детерминированному порядку
func (me *MatcherEngine) preferExactSize(entries []*ProductCacheEntry, normSize string) *ProductCacheEntry {
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })

	if normSize != "" {
		for _, entry := range entries {
			if me.normalizer.NormalizeSize(entry.Size) == normSize {
				return entry
			}
		}
	}
	return entries[0]
}

// sortMatches сортирует матчи по убыванию оценки
// Идентификатор служит детерминированным разрешением ничьих
func sortMatches(matches []ProductMatch) {
	sort.SliceStable(matches, func(i, j int) bool {
		if matches[i].SimilarityScore != matches[j].SimilarityScore {
			return matches[i].SimilarityScore > matches[j].SimilarityScore
		}
		return matches[i].ProductID < matches[j].ProductID
	})
}

func capMatches(matches []ProductMatch, limit int) []ProductMatch {
	if limit > 0 && len(matches) > limit {
		return matches[:limit]
	}
	return matches
}
