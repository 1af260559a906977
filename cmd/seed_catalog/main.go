// Утилита наполнения каталога тестовыми товарами.
// Генерирует записи с управляемой долей дубликатов и при необходимости
// прогоняет массовую индексацию во внешний индекс.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"math/rand"
	"time"

	"productmatcher/database"
	"productmatcher/matching"
	"productmatcher/scalableindex"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
)

var sizes = []string{"0.5l", "1l", "1.5l", "2l", "100g", "250g", "500g", "1kg", "6x330ml"}

func main() {
	dbPath := flag.String("db", "products.db", "путь к базе товаров")
	count := flag.Int("count", 1000, "количество генерируемых товаров")
	duplicateRate := flag.Float64("duplicates", 0.1, "доля почти-дубликатов (0..1)")
	redisAddr := flag.String("redis", "", "адрес Redis для массовой индексации (пусто - пропустить)")
	seed := flag.Int64("seed", 0, "зерно генератора (0 - от времени)")
	flag.Parse()

	if *seed == 0 {
		*seed = time.Now().UnixNano()
	}
	gofakeit.Seed(*seed)
	rng := rand.New(rand.NewSource(*seed))

	productsDB, err := database.NewProductsDB(*dbPath)
	if err != nil {
		log.Fatalf("Ошибка открытия базы товаров: %v", err)
	}
	defer productsDB.Close()

	ctx := context.Background()
	inserted := 0
	var previous []matching.ProductRecord

	for i := 0; i < *count; i++ {
		var rec matching.ProductRecord
		if len(previous) > 0 && rng.Float64() < *duplicateRate {
			// Почти-дубликат: та же позиция с шумом в имени
			base := previous[rng.Intn(len(previous))]
			rec = base
			rec.ID = uuid.NewString()
			rec.Name = mutateName(base.Name, rng)
		} else {
			rec = matching.ProductRecord{
				ID:        uuid.NewString(),
				Name:      fmt.Sprintf("%s %s %s", gofakeit.Company(), gofakeit.ProductName(), sizes[rng.Intn(len(sizes))]),
				BrandName: gofakeit.Company(),
				Category:  gofakeit.ProductCategory(),
				Variety:   gofakeit.AdjectiveDescriptive(),
				Size:      sizes[rng.Intn(len(sizes))],
			}
		}

		if err := productsDB.Upsert(ctx, &rec); err != nil {
			log.Printf("Ошибка вставки товара %s: %v", rec.ID, err)
			continue
		}
		previous = append(previous, rec)
		inserted++
	}

	log.Printf("Вставлено %d товаров в %s (зерно %d)", inserted, *dbPath, *seed)

	if *redisAddr == "" {
		return
	}

	// Массовая индексация во внешний индекс
	normalizer := matching.NewNormalizer()
	opts := matching.DefaultOptions()
	redisIndex, err := scalableindex.NewRedisIndex(*redisAddr, "", 0, normalizer, opts.NGramSize, opts.MinNGramMatches)
	if err != nil {
		log.Fatalf("Redis недоступен: %v", err)
	}
	defer redisIndex.Close()

	stats, err := scalableindex.BulkIndexFromSource(ctx, redisIndex, productsDB, scalableindex.BulkOptions{})
	if err != nil {
		log.Fatalf("Ошибка массовой индексации: %v", err)
	}
	log.Printf("Проиндексировано %d записей за %s (%d ошибок)", stats.TotalIndexed, stats.Duration, stats.Errors)
}

// mutateName вносит типовой шум источника данных: регистр, упаковка, пробелы
func mutateName(name string, rng *rand.Rand) string {
	switch rng.Intn(3) {
	case 0:
		return name + " bottle"
	case 1:
		return "  " + name + "  "
	default:
		return gofakeit.RandomString([]string{name, name + " pack"})
	}
}
