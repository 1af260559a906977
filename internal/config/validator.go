package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"productmatcher/matching"
)

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	var errors []string

	// Валидация порта
	if c.Port == "" {
		errors = append(errors, "port is required")
	} else {
		port, err := strconv.Atoi(c.Port)
		if err != nil {
			errors = append(errors, fmt.Sprintf("invalid port: %s", c.Port))
		} else if port < 1 || port > 65535 {
			errors = append(errors, fmt.Sprintf("port must be between 1 and 65535, got %d", port))
		}
	}

	// Валидация путей к хранилищам
	if c.ProductsDBPath == "" {
		errors = append(errors, "products database path is required")
	}
	if c.SnapshotPath == "" {
		errors = append(errors, "snapshot path is required")
	}

	// Валидация параметров сопоставления
	if err := c.Matching.Validate(); err != nil {
		errors = append(errors, err.Error())
	}

	// Валидация кэша
	if c.CacheTTL <= 0 {
		errors = append(errors, fmt.Sprintf("cache TTL must be positive, got %s", c.CacheTTL))
	}
	if c.AutoSaveInterval <= 0 {
		errors = append(errors, fmt.Sprintf("auto save interval must be positive, got %s", c.AutoSaveInterval))
	}

	// Валидация массовой индексации
	if c.BulkPageSize < 1 {
		errors = append(errors, fmt.Sprintf("bulk page size must be at least 1, got %d", c.BulkPageSize))
	}
	if c.BulkPageInterval < 0 {
		errors = append(errors, fmt.Sprintf("bulk page interval must not be negative, got %s", c.BulkPageInterval))
	}

	if len(errors) > 0 {
		return fmt.Errorf("validation errors: %s", strings.Join(errors, "; "))
	}

	return nil
}

// GetDefaults возвращает конфигурацию со значениями по умолчанию
func GetDefaults() *Config {
	return &Config{
		Port:             "8080",
		ProductsDBPath:   "products.db",
		SnapshotPath:     "match_cache.json",
		Matching:         matching.DefaultOptions(),
		CacheTTL:         168 * time.Hour,
		AutoSaveInterval: 10 * time.Minute,
		BulkPageSize:     500,
		BulkPageInterval: 50 * time.Millisecond,
	}
}
