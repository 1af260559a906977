package database

import (
	"database/sql"
	"fmt"
	"log"
	"time"
)

const migrationsTableName = "schema_migrations"

// ensureMigrationTable создает таблицу schema_migrations при необходимости.
func ensureMigrationTable(db *sql.DB) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			name TEXT PRIMARY KEY,
			applied_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)
	`, migrationsTableName)

	_, err := db.Exec(query)
	if err != nil {
		return fmt.Errorf("создание таблицы schema_migrations: %w", err)
	}
	return nil
}

// isMigrationApplied проверяет, была ли уже применена миграция.
func isMigrationApplied(db *sql.DB, name string) (bool, error) {
	if err := ensureMigrationTable(db); err != nil {
		return false, err
	}

	var appliedAt sql.NullTime
	query := fmt.Sprintf(`SELECT applied_at FROM %s WHERE name = ?`, migrationsTableName)
	err := db.QueryRow(query, name).Scan(&appliedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("проверка миграции %s: %w", name, err)
	}

	return appliedAt.Valid, nil
}

// markMigrationApplied сохраняет информацию о примененной миграции.
func markMigrationApplied(db *sql.DB, name string) error {
	if err := ensureMigrationTable(db); err != nil {
		return err
	}

	query := fmt.Sprintf(`INSERT OR REPLACE INTO %s(name, applied_at) VALUES(?, ?)`, migrationsTableName)
	_, err := db.Exec(query, name, time.Now())
	if err != nil {
		return fmt.Errorf("отметка миграции %s: %w", name, err)
	}
	return nil
}

// ensureMigrationApplied выполняет миграцию только один раз.
func ensureMigrationApplied(db *sql.DB, name string, migration func(*sql.DB) error) error {
	applied, err := isMigrationApplied(db, name)
	if err != nil {
		return err
	}
	if applied {
		return nil
	}

	if err := migration(db); err != nil {
		return err
	}

	if err := markMigrationApplied(db, name); err != nil {
		return err
	}

	log.Printf("Миграция %s применена", name)
	return nil
}

// createProductsTable базовая схема каталога товаров.
func createProductsTable(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS products (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		brand_name TEXT NOT NULL DEFAULT '',
		category TEXT NOT NULL DEFAULT '',
		variety TEXT NOT NULL DEFAULT '',
		size TEXT NOT NULL DEFAULT '',
		image_url TEXT NOT NULL DEFAULT '',
		created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	)`

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("создание схемы товаров: %w", err)
	}
	return nil
}

// createProductsIndexes индексы для выборок по бренду и категории.
func createProductsIndexes(db *sql.DB) error {
	indexes := []string{
		`CREATE INDEX IF NOT EXISTS idx_products_brand ON products(brand_name)`,
		`CREATE INDEX IF NOT EXISTS idx_products_category ON products(category)`,
	}
	for _, stmt := range indexes {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("создание индекса товаров: %w", err)
		}
	}
	return nil
}

// runProductMigrations применяет миграции каталога в фиксированном порядке.
func runProductMigrations(db *sql.DB) error {
	migrations := []struct {
		name string
		fn   func(*sql.DB) error
	}{
		{"001_create_products_table", createProductsTable},
		{"002_create_products_indexes", createProductsIndexes},
	}

	for _, m := range migrations {
		if err := ensureMigrationApplied(db, m.name, m.fn); err != nil {
			return fmt.Errorf("миграция %s: %w", m.name, err)
		}
	}
	return nil
}
