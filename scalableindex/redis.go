// Package scalableindex реализует внешний инвертированный индекс
// товаров поверх Redis с деградацией до индекса в памяти.
// Стоимость поиска кандидатов ограничена количеством проверяемых
// токенов и N-грамм, а не размером каталога.
package scalableindex

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"productmatcher/matching"
	"productmatcher/matching/algorithms"
)

// Ключи хранилища
const (
	keyProduct       = "product:" // hash с полями товара
	keyBrand         = "brand:"   // set идентификаторов
	keyToken         = "token:"   // set идентификаторов
	keyNGram         = "ngram:"   // set идентификаторов
	keySize          = "size:"    // set идентификаторов
	keyExact         = "exact:"   // строка название|бренд|размер -> id
	keyTotalProducts = "stats:total_products"
	keyLastSync      = "stats:last_sync"
)

// Ограничения стратегий поиска кандидатов
const (
	maxTokensChecked   = 5  // не более 5 токенов на запрос
	ngramFallbackBelow = 50 // N-граммы подключаются при нехватке кандидатов
)

// RedisIndex инвертированный индекс товаров в Redis
type RedisIndex struct {
	rdb             *redis.Client
	normalizer      *matching.Normalizer
	ngramSize       int
	minNGramMatches int
}

// NewRedisIndex создает индекс и проверяет соединение
// Недоступный Redis - ошибка: вызывающий код переключается на
// индекс в памяти
func NewRedisIndex(addr, password string, db int, normalizer *matching.Normalizer, ngramSize, minNGramMatches int) (*RedisIndex, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("соединение с Redis %s: %w", addr, err)
	}

	if ngramSize < 2 {
		ngramSize = 3
	}
	if minNGramMatches < 1 {
		minNGramMatches = 2
	}

	return &RedisIndex{
		rdb:             rdb,
		normalizer:      normalizer,
		ngramSize:       ngramSize,
		minNGramMatches: minNGramMatches,
	}, nil
}

// Close закрывает соединение с Redis
func (ri *RedisIndex) Close() error {
	return ri.rdb.Close()
}

// Available проверяет доступность хранилища
func (ri *RedisIndex) Available(ctx context.Context) bool {
	return ri.rdb.Ping(ctx).Err() == nil
}

// indexKeys ключи товара во всех инвертированных множествах
type indexKeys struct {
	normName  string
	normBrand string
	normSize  string
	exact     string
	tokens    matching.TokenSet
	ngrams    []string
}

func (ri *RedisIndex) keysFor(rec matching.ProductRecord) indexKeys {
	normName := ri.normalizer.Normalize(rec.Name, rec.BrandName, false)
	normBrand := ri.normalizer.Normalize(rec.BrandName, "", false)
	normSize := ri.normalizer.NormalizeSize(rec.Size)

	return indexKeys{
		normName:  normName,
		normBrand: normBrand,
		normSize:  normSize,
		exact:     matching.ExactKey(normName, normBrand, normSize),
		tokens:    ri.normalizer.Tokens(rec.Name, rec.BrandName, rec.Variety),
		ngrams:    algorithms.NGrams(normName, ri.ngramSize),
	}
}

// IndexProduct записывает товар и все его инвертированные ключи
// Повторная индексация того же идентификатора сначала снимает
// ключи прежней версии записи, иначе смена полей оставляет товар
// в чужих корзинах и за устаревшим точным ключом
func (ri *RedisIndex) IndexProduct(ctx context.Context, rec matching.ProductRecord) error {
	if rec.ID == "" || rec.Name == "" {
		return fmt.Errorf("запись без идентификатора или названия")
	}

	keys := ri.keysFor(rec)
	productKey := keyProduct + rec.ID

	oldFields, err := ri.rdb.HGetAll(ctx, productKey).Result()
	if err != nil {
		return fmt.Errorf("проверка товара %s: %w", rec.ID, err)
	}
	exists := len(oldFields) > 0

	pipe := ri.rdb.Pipeline()
	if exists {
		oldKeys := ri.keysFor(recordFromHash(rec.ID, oldFields))
		if oldKeys.normBrand != "" {
			pipe.SRem(ctx, keyBrand+oldKeys.normBrand, rec.ID)
		}
		for token := range oldKeys.tokens {
			pipe.SRem(ctx, keyToken+token, rec.ID)
		}
		for _, gram := range oldKeys.ngrams {
			pipe.SRem(ctx, keyNGram+gram, rec.ID)
		}
		if oldKeys.normSize != "" {
			pipe.SRem(ctx, keySize+oldKeys.normSize, rec.ID)
		}
		// Старый точный ключ снимаем только если он все еще наш
		if oldKeys.exact != keys.exact {
			owner, err := ri.rdb.Get(ctx, keyExact+oldKeys.exact).Result()
			if err != nil && err != redis.Nil {
				return fmt.Errorf("чтение ключа точного совпадения: %w", err)
			}
			if owner == rec.ID {
				pipe.Del(ctx, keyExact+oldKeys.exact)
			}
		}
	}
	pipe.HSet(ctx, productKey, map[string]interface{}{
		"name":             rec.Name,
		"brand_name":       rec.BrandName,
		"category":         rec.Category,
		"variety":          rec.Variety,
		"size":             rec.Size,
		"image_url":        rec.ImageURL,
		"normalized_name":  keys.normName,
		"normalized_brand": keys.normBrand,
	})
	if keys.normBrand != "" {
		pipe.SAdd(ctx, keyBrand+keys.normBrand, rec.ID)
	}
	for token := range keys.tokens {
		pipe.SAdd(ctx, keyToken+token, rec.ID)
	}
	for _, gram := range keys.ngrams {
		pipe.SAdd(ctx, keyNGram+gram, rec.ID)
	}
	if keys.normSize != "" {
		pipe.SAdd(ctx, keySize+keys.normSize, rec.ID)
	}
	pipe.Set(ctx, keyExact+keys.exact, rec.ID, 0)
	if !exists {
		pipe.Incr(ctx, keyTotalProducts)
	}
	pipe.Set(ctx, keyLastSync, time.Now().Unix(), 0)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("индексация товара %s: %w", rec.ID, err)
	}
	return nil
}

// RemoveProduct снимает товар со всех инвертированных ключей
// Корзины восстанавливаются из сохраненных полей записи
func (ri *RedisIndex) RemoveProduct(ctx context.Context, id string) error {
	productKey := keyProduct + id

	fields, err := ri.rdb.HGetAll(ctx, productKey).Result()
	if err != nil {
		return fmt.Errorf("чтение товара %s: %w", id, err)
	}
	if len(fields) == 0 {
		return nil
	}

	rec := recordFromHash(id, fields)
	keys := ri.keysFor(rec)

	// Ключ точного совпадения снимаем только если он наш: после
	// коллизии он принадлежит другой записи
	owner, err := ri.rdb.Get(ctx, keyExact+keys.exact).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("чтение ключа точного совпадения: %w", err)
	}

	pipe := ri.rdb.Pipeline()
	if keys.normBrand != "" {
		pipe.SRem(ctx, keyBrand+keys.normBrand, id)
	}
	for token := range keys.tokens {
		pipe.SRem(ctx, keyToken+token, id)
	}
	for _, gram := range keys.ngrams {
		pipe.SRem(ctx, keyNGram+gram, id)
	}
	if keys.normSize != "" {
		pipe.SRem(ctx, keySize+keys.normSize, id)
	}
	if owner == id {
		pipe.Del(ctx, keyExact+keys.exact)
	}
	pipe.Del(ctx, productKey)
	pipe.Decr(ctx, keyTotalProducts)

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("удаление товара %s: %w", id, err)
	}
	return nil
}

// FindCandidates возвращает до limit идентификаторов кандидатов
// Четыре стратегии по возрастанию стоимости: точный ключ, бренд,
// токены названия, N-граммы
func (ri *RedisIndex) FindCandidates(ctx context.Context, cand matching.ProductCandidate, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 500
	}

	normName := ri.normalizer.Normalize(cand.Name, cand.BrandName, false)
	normBrand := ri.normalizer.Normalize(cand.BrandName, "", false)
	normSize := ri.normalizer.NormalizeSize(cand.Size)

	// Стратегия 1: точный ключ - единственный достоверный кандидат
	exactID, err := ri.rdb.Get(ctx, keyExact+matching.ExactKey(normName, normBrand, normSize)).Result()
	if err != nil && err != redis.Nil {
		return nil, fmt.Errorf("поиск по точному ключу: %w", err)
	}
	if exactID != "" {
		return []string{exactID}, nil
	}

	seen := make(map[string]bool)
	var candidates []string
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			candidates = append(candidates, id)
		}
	}

	// Стратегия 2: товары того же бренда
	if normBrand != "" {
		members, err := ri.rdb.SMembers(ctx, keyBrand+normBrand).Result()
		if err != nil {
			return nil, fmt.Errorf("поиск по бренду: %w", err)
		}
		for _, id := range members {
			add(id)
		}
	}

	// Стратегия 3: токены названия, пока кандидатов меньше двойного
	// лимита и проверено не более 5 токенов
	tokens := sortedTokens(ri.normalizer.Tokens(cand.Name, cand.BrandName, cand.Variety))
	checked := 0
	for _, token := range tokens {
		if len(candidates) >= 2*limit || checked >= maxTokensChecked {
			break
		}
		members, err := ri.rdb.SMembers(ctx, keyToken+token).Result()
		if err != nil {
			return nil, fmt.Errorf("поиск по токену: %w", err)
		}
		for _, id := range members {
			add(id)
		}
		checked++
	}

	// Стратегия 4: N-граммы - только при нехватке кандидатов
	if len(candidates) < ngramFallbackBelow {
		counts := make(map[string]int)
		for _, gram := range algorithms.NGrams(normName, ri.ngramSize) {
			members, err := ri.rdb.SMembers(ctx, keyNGram+gram).Result()
			if err != nil {
				return nil, fmt.Errorf("поиск по N-граммам: %w", err)
			}
			for _, id := range members {
				counts[id]++
			}
		}
		ngramIDs := make([]string, 0, len(counts))
		for id, count := range counts {
			if count >= ri.minNGramMatches {
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

// FetchRecords загружает записи товаров пакетом
func (ri *RedisIndex) FetchRecords(ctx context.Context, ids []string) ([]matching.ProductRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pipe := ri.rdb.Pipeline()
	commands := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		commands[i] = pipe.HGetAll(ctx, keyProduct+id)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("загрузка записей: %w", err)
	}

	records := make([]matching.ProductRecord, 0, len(ids))
	for i, cmd := range commands {
		fields, err := cmd.Result()
		if err != nil || len(fields) == 0 {
			continue
		}
		records = append(records, recordFromHash(ids[i], fields))
	}
	return records, nil
}

// TotalProducts возвращает счетчик товаров в индексе
func (ri *RedisIndex) TotalProducts(ctx context.Context) (int64, error) {
	value, err := ri.rdb.Get(ctx, keyTotalProducts).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("чтение счетчика товаров: %w", err)
	}
	return strconv.ParseInt(value, 10, 64)
}

// LastSync возвращает время последней синхронизации индекса
func (ri *RedisIndex) LastSync(ctx context.Context) (time.Time, error) {
	value, err := ri.rdb.Get(ctx, keyLastSync).Result()
	if err == redis.Nil {
		return time.Time{}, nil
	}
	if err != nil {
		return time.Time{}, err
	}
	unix, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(unix, 0), nil
}

// recordFromHash восстанавливает запись товара из полей hash
func recordFromHash(id string, fields map[string]string) matching.ProductRecord {
	return matching.ProductRecord{
		ID:        id,
		Name:      fields["name"],
		BrandName: fields["brand_name"],
		Category:  fields["category"],
		Variety:   fields["variety"],
		Size:      fields["size"],
		ImageURL:  fields["image_url"],
	}
}

// sortedTokens возвращает токены в детерминированном порядке
func sortedTokens(tokens matching.TokenSet) []string {
	result := make([]string, 0, len(tokens))
	for token := range tokens {
		result = append(result, token)
	}
	sort.Strings(result)
	return result
}
