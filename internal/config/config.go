// Package config загружает конфигурацию сервиса сопоставления из
// переменных окружения со значениями по умолчанию.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"productmatcher/matching"
)

// Config конфигурация сервера сопоставления
type Config struct {
	// Сервер
	Port string `json:"port"`

	// Хранилища
	ProductsDBPath string `json:"products_db_path"`
	SnapshotPath   string `json:"snapshot_path"`

	// Внешний индекс (Redis). Пустой адрес - индекс в памяти
	RedisAddr     string `json:"redis_addr"`
	RedisPassword string `json:"redis_password"`
	RedisDB       int    `json:"redis_db"`

	// Параметры сопоставления
	Matching matching.Options `json:"matching"`

	// Кэш сопоставления
	CacheTTL         time.Duration `json:"cache_ttl"`
	AutoSaveInterval time.Duration `json:"auto_save_interval"`

	// Массовая индексация
	BulkPageSize     int           `json:"bulk_page_size"`
	BulkPageInterval time.Duration `json:"bulk_page_interval"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	config := &Config{
		// Сервер
		Port: getEnv("SERVER_PORT", "8080"),

		// Хранилища
		ProductsDBPath: getEnv("PRODUCTS_DB_PATH", "products.db"),
		SnapshotPath:   getEnv("MATCH_SNAPSHOT_PATH", "match_cache.json"),

		// Redis
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		// Сопоставление
		Matching: matching.Options{
			SimilarityThreshold: getEnvFloat("SIMILARITY_THRESHOLD", 0.75),
			ExactMatchThreshold: getEnvFloat("EXACT_MATCH_THRESHOLD", 0.95),
			ScalableThreshold:   getEnvInt("SCALABLE_THRESHOLD", 10000),
			MaxCandidates:       getEnvInt("MAX_CANDIDATES", 500),
			NGramSize:           getEnvInt("NGRAM_SIZE", 3),
			MinNGramMatches:     getEnvInt("MIN_NGRAM_MATCHES", 2),
		},

		// Кэш
		CacheTTL:         getEnvDuration("CACHE_TTL", 168*time.Hour),
		AutoSaveInterval: getEnvDuration("AUTO_SAVE_INTERVAL", 10*time.Minute),

		// Массовая индексация
		BulkPageSize:     getEnvInt("BULK_PAGE_SIZE", 500),
		BulkPageInterval: getEnvDuration("BULK_PAGE_INTERVAL", 50*time.Millisecond),
	}

	// Валидация
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return config, nil
}

// getEnv получает переменную окружения или возвращает значение по умолчанию
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt получает переменную окружения как int или возвращает значение по умолчанию
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// getEnvFloat получает переменную окружения как float64 или возвращает значение по умолчанию
func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

// getEnvDuration получает переменную окружения как Duration или возвращает значение по умолчанию
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
