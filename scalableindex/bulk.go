package scalableindex

import (
	"context"
	"fmt"
	"log"
	"time"

	"golang.org/x/time/rate"

	"productmatcher/matching"
)

// Предельное число записей за одну массовую индексацию
const maxBulkRecords = 2_000_000

// Период прогресс-отчета в страницах
const progressEveryPages = 10

// BulkOptions настройки массовой индексации
type BulkOptions struct {
	// Размер страницы авторитетного хранилища
	PageSize int
	// Минимальный интервал между страницами (защита хранилища)
	PageInterval time.Duration
}

// BulkStats итоги массовой индексации
type BulkStats struct {
	TotalIndexed int           `json:"total_indexed"`
	Errors       int           `json:"errors"`
	Pages        int           `json:"pages"`
	Duration     time.Duration `json:"duration"`
}

// BulkIndexFromSource постранично индексирует авторитетное хранилище
// во внешний индекс. Ошибки отдельных записей подсчитываются и не
// прерывают процесс; жесткий предел в 2 млн записей защищает от
// зацикленной пагинации
func BulkIndexFromSource(ctx context.Context, index matching.ScalableIndex, source matching.RecordSource, opts BulkOptions) (BulkStats, error) {
	if opts.PageSize <= 0 {
		opts.PageSize = 500
	}
	if opts.PageInterval <= 0 {
		opts.PageInterval = 50 * time.Millisecond
	}

	limiter := rate.NewLimiter(rate.Every(opts.PageInterval), 1)
	stats := BulkStats{}
	started := time.Now()

	offset := 0
	for stats.TotalIndexed+stats.Errors < maxBulkRecords {
		if err := limiter.Wait(ctx); err != nil {
			return stats, fmt.Errorf("массовая индексация прервана: %w", err)
		}

		page, err := source.ListPage(ctx, offset, opts.PageSize)
		if err != nil {
			return stats, fmt.Errorf("чтение страницы каталога (offset=%d): %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		for _, rec := range page {
			if err := index.IndexProduct(ctx, rec); err != nil {
				stats.Errors++
				continue
			}
			stats.TotalIndexed++
		}

		offset += len(page)
		stats.Pages++
		if stats.Pages%progressEveryPages == 0 {
			log.Printf("Массовая индексация: %d записей, %d ошибок (%d страниц)",
				stats.TotalIndexed, stats.Errors, stats.Pages)
		}
	}

	stats.Duration = time.Since(started)
	log.Printf("Массовая индексация завершена: %d записей, %d ошибок за %s",
		stats.TotalIndexed, stats.Errors, stats.Duration)
	return stats, nil
}
