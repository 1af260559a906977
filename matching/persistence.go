package matching

import (
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"
)

// Версия формата снапшота кэша
const snapshotVersion = 2

// DefaultCacheTTL срок жизни записи кэша по умолчанию (168 часов)
const DefaultCacheTTL = 168 * time.Hour

// cacheSnapshot сериализованное состояние кэша товаров
// Вторичные индексы не сохраняются: они детерминированно
// восстанавливаются из записей при загрузке
type cacheSnapshot struct {
	Version int                  `json:"version"`
	SavedAt time.Time            `json:"saved_at"`
	Entries []*ProductCacheEntry `json:"entries"`
}

// SaveSnapshot сериализует кэш в файл под фиксированным ключом
// Запись идет во временный файл с последующим переименованием,
// чтобы сбой не оставил усеченный снапшот
func (ci *CandidateIndex) SaveSnapshot(path string) error {
	snapshot := cacheSnapshot{
		Version: snapshotVersion,
		SavedAt: time.Now(),
		Entries: ci.Entries(),
	}

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("сериализация снапшота: %w", err)
	}

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("создание каталога снапшота: %w", err)
		}
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("запись снапшота: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("замена снапшота: %w", err)
	}

	return nil
}

// LoadSnapshot загружает кэш из файла
// Записи старше ttl вычищаются. Поврежденный снапшот не фатален:
// кэш сбрасывается в пустое состояние с предупреждением в логе
func (ci *CandidateIndex) LoadSnapshot(path string, ttl time.Duration) (loaded, purged int) {
	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			log.Printf("ПРЕДУПРЕЖДЕНИЕ: снапшот кэша %s недоступен: %v, начинаем с пустого кэша", path, err)
		}
		return 0, 0
	}

	var snapshot cacheSnapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		log.Printf("ПРЕДУПРЕЖДЕНИЕ: снапшот кэша %s поврежден: %v, сбрасываем в пустой кэш", path, err)
		ci.mu.Lock()
		ci.resetLocked()
		ci.mu.Unlock()
		return 0, 0
	}

	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	cutoff := time.Now().Add(-ttl)

	ci.mu.Lock()
	defer ci.mu.Unlock()

	ci.resetLocked()
	for _, entry := range snapshot.Entries {
		if entry == nil || entry.ID == "" {
			continue
		}
		if entry.LastUpdated.Before(cutoff) {
			purged++
			continue
		}

		// Толерантность к старым схемам: отсутствующие производные
		// поля пересчитываются из канонических
		if entry.NormalizedName == "" {
			entry.NormalizedName = ci.normalizer.Normalize(entry.Name, entry.BrandName, false)
		}
		if len(entry.SearchTokens) == 0 {
			entry.SearchTokens = ci.normalizer.Tokens(entry.Name, entry.BrandName, entry.Variety)
		}

		ci.insertLocked(entry, ci.keysFor(entry))
		loaded++
	}

	return loaded, purged
}

// StartAutoSave запускает периодическую сериализацию кэша
// Возвращает функцию остановки
func (ci *CandidateIndex) StartAutoSave(path string, interval time.Duration) func() {
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	stop := make(chan struct{})
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if err := ci.SaveSnapshot(path); err != nil {
					log.Printf("ОШИБКА: сохранение снапшота кэша: %v", err)
				}
			case <-stop:
				return
			}
		}
	}()

	return func() { close(stop) }
}
