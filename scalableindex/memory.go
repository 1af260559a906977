package scalableindex

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"productmatcher/matching"
	"productmatcher/matching/algorithms"
)

// MemoryIndex деградированная реализация внешнего индекса в памяти
// Используется, когда Redis недоступен: тот же контракт на
// множествах map, но без горизонтального масштаба
type MemoryIndex struct {
	mu              sync.RWMutex
	normalizer      *matching.Normalizer
	ngramSize       int
	minNGramMatches int

	products map[string]matching.ProductRecord
	byBrand  map[string]map[string]bool
	byToken  map[string]map[string]bool
	byNGram  map[string]map[string]bool
	bySize   map[string]map[string]bool
	exact    map[string]string
}

// NewMemoryIndex создает индекс в памяти
func NewMemoryIndex(normalizer *matching.Normalizer, ngramSize, minNGramMatches int) *MemoryIndex {
	if ngramSize < 2 {
		ngramSize = 3
	}
	if minNGramMatches < 1 {
		minNGramMatches = 2
	}

	return &MemoryIndex{
		normalizer:      normalizer,
		ngramSize:       ngramSize,
		minNGramMatches: minNGramMatches,
		products:        make(map[string]matching.ProductRecord),
		byBrand:         make(map[string]map[string]bool),
		byToken:         make(map[string]map[string]bool),
		byNGram:         make(map[string]map[string]bool),
		bySize:          make(map[string]map[string]bool),
		exact:           make(map[string]string),
	}
}

// Available индекс в памяти доступен всегда
func (mi *MemoryIndex) Available(ctx context.Context) bool {
	return true
}

func (mi *MemoryIndex) keysFor(rec matching.ProductRecord) indexKeys {
	normName := mi.normalizer.Normalize(rec.Name, rec.BrandName, false)
	normBrand := mi.normalizer.Normalize(rec.BrandName, "", false)
	normSize := mi.normalizer.NormalizeSize(rec.Size)

	return indexKeys{
		normName:  normName,
		normBrand: normBrand,
		normSize:  normSize,
		exact:     matching.ExactKey(normName, normBrand, normSize),
		tokens:    mi.normalizer.Tokens(rec.Name, rec.BrandName, rec.Variety),
		ngrams:    algorithms.NGrams(normName, mi.ngramSize),
	}
}

// IndexProduct записывает товар во все множества
// Повторная индексация того же идентификатора сначала снимает
// старые ключи: членства не должны переживать смену полей
func (mi *MemoryIndex) IndexProduct(ctx context.Context, rec matching.ProductRecord) error {
	if rec.ID == "" || rec.Name == "" {
		return fmt.Errorf("запись без идентификатора или названия")
	}

	keys := mi.keysFor(rec)

	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.removeLocked(rec.ID)

	mi.products[rec.ID] = rec
	if keys.normBrand != "" {
		addMember(mi.byBrand, keys.normBrand, rec.ID)
	}
	for token := range keys.tokens {
		addMember(mi.byToken, token, rec.ID)
	}
	for _, gram := range keys.ngrams {
		addMember(mi.byNGram, gram, rec.ID)
	}
	if keys.normSize != "" {
		addMember(mi.bySize, keys.normSize, rec.ID)
	}
	mi.exact[keys.exact] = rec.ID

	return nil
}

// RemoveProduct снимает товар со всех множеств
func (mi *MemoryIndex) RemoveProduct(ctx context.Context, id string) error {
	mi.mu.Lock()
	defer mi.mu.Unlock()

	mi.removeLocked(id)
	return nil
}

// removeLocked снимает старые ключи товара; вызывается под mi.mu
func (mi *MemoryIndex) removeLocked(id string) {
	rec, exists := mi.products[id]
	if !exists {
		return
	}
	keys := mi.keysFor(rec)

	delete(mi.products, id)
	removeMember(mi.byBrand, keys.normBrand, id)
	for token := range keys.tokens {
		removeMember(mi.byToken, token, id)
	}
	for _, gram := range keys.ngrams {
		removeMember(mi.byNGram, gram, id)
	}
	removeMember(mi.bySize, keys.normSize, id)
	if mi.exact[keys.exact] == id {
		delete(mi.exact, keys.exact)
	}
}

// FindCandidates четыре стратегии поиска, зеркально Redis-реализации
func (mi *MemoryIndex) FindCandidates(ctx context.Context, cand matching.ProductCandidate, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}

	normName := mi.normalizer.Normalize(cand.Name, cand.BrandName, false)
	normBrand := mi.normalizer.Normalize(cand.BrandName, "", false)
	normSize := mi.normalizer.NormalizeSize(cand.Size)

	mi.mu.RLock()
	defer mi.mu.RUnlock()

	// Стратегия 1: точный ключ
	if id, ok := mi.exact[matching.ExactKey(normName, normBrand, normSize)]; ok {
		return []string{id}, nil
	}

	seen := make(map[string]bool)
	var candidates []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			candidates = append(candidates, id)
		}
	}
	addSorted := func(bucket map[string]bool) {
		ids := make([]string, 0, len(bucket))
		for id := range bucket {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			add(id)
		}
	}

	// Стратегия 2: группа бренда
	if normBrand != "" {
		addSorted(mi.byBrand[normBrand])
	}

	// Стратегия 3: токены названия
	tokens := sortedTokens(mi.normalizer.Tokens(cand.Name, cand.BrandName, cand.Variety))
	checked := 0
	for _, token := range tokens {
		if len(candidates) >= 2*limit || checked >= maxTokensChecked {
			break
		}
		addSorted(mi.byToken[token])
		checked++
	}

	// Стратегия 4: N-граммы при нехватке кандидатов
	if len(candidates) < ngramFallbackBelow {
		counts := make(map[string]int)
		for _, gram := range algorithms.NGrams(normName, mi.ngramSize) {
			for id := range mi.byNGram[gram] {
				counts[id]++
			}
		}
		ngramIDs := make([]string, 0, len(counts))
		for id, count := range counts {
			if count >= mi.minNGramMatches {
				ngramIDs = append(ngramIDs, id)
			}
		}
		sort.Strings(ngramIDs)
		for _, id := range ngramIDs {
			add(id)
		}
	}

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// FetchRecords загружает записи по идентификаторам
func (mi *MemoryIndex) FetchRecords(ctx context.Context, ids []string) ([]matching.ProductRecord, error) {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	records := make([]matching.ProductRecord, 0, len(ids))
	for _, id := range ids {
		if rec, ok := mi.products[id]; ok {
			records = append(records, rec)
		}
	}
	return records, nil
}

// TotalProducts возвращает размер индекса
func (mi *MemoryIndex) TotalProducts(ctx context.Context) (int64, error) {
	mi.mu.RLock()
	defer mi.mu.RUnlock()

	return int64(len(mi.products)), nil
}

func addMember(index map[string]map[string]bool, key, id string) {
	bucket := index[key]
	if bucket == nil {
		bucket = make(map[string]bool)
		index[key] = bucket
	}
	bucket[id] = true
}

func removeMember(index map[string]map[string]bool, key, id string) {
	bucket, ok := index[key]
	if !ok {
		return
	}
	delete(bucket, id)
	if len(bucket) == 0 {
		delete(index, key)
	}
}
