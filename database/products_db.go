// Package database реализует авторитетное хранилище каталога товаров
// на SQLite. Хранилище служит источником массового перестроения
// индексов и резолвером полных записей.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"productmatcher/matching"
)

// ProductsDB авторитетное хранилище товаров
type ProductsDB struct {
	db *sql.DB
}

// NewProductsDB открывает базу и применяет схему
func NewProductsDB(path string) (*ProductsDB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("открытие базы товаров %s: %w", path, err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("проверка базы товаров: %w", err)
	}

	if err := runProductMigrations(db); err != nil {
		db.Close()
		return nil, err
	}

	return &ProductsDB{db: db}, nil
}

// Close закрывает базу
func (pdb *ProductsDB) Close() error {
	return pdb.db.Close()
}

// Upsert сохраняет запись; пустой идентификатор генерируется
func (pdb *ProductsDB) Upsert(ctx context.Context, rec *matching.ProductRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}

	query := `
	INSERT INTO products (id, name, brand_name, category, variety, size, image_url, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		brand_name = excluded.brand_name,
		category = excluded.category,
		variety = excluded.variety,
		size = excluded.size,
		image_url = excluded.image_url,
		updated_at = CURRENT_TIMESTAMP
	`

	if _, err := pdb.db.ExecContext(ctx, query,
		rec.ID, rec.Name, rec.BrandName, rec.Category, rec.Variety, rec.Size, rec.ImageURL); err != nil {
		return fmt.Errorf("сохранение товара %s: %w", rec.ID, err)
	}
	return nil
}

// Delete удаляет запись
func (pdb *ProductsDB) Delete(ctx context.Context, id string) error {
	result, err := pdb.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("удаление товара %s: %w", id, err)
	}

	affected, err := result.RowsAffected()
	if err == nil && affected == 0 {
		return fmt.Errorf("товар %s не найден", id)
	}
	return nil
}

// GetByID возвращает запись по идентификатору
func (pdb *ProductsDB) GetByID(ctx context.Context, id string) (matching.ProductRecord, error) {
	row := pdb.db.QueryRowContext(ctx, `
		SELECT id, name, brand_name, category, variety, size, image_url
		FROM products WHERE id = ?`, id)

	var rec matching.ProductRecord
	err := row.Scan(&rec.ID, &rec.Name, &rec.BrandName, &rec.Category, &rec.Variety, &rec.Size, &rec.ImageURL)
	if err == sql.ErrNoRows {
		return rec, fmt.Errorf("товар %s не найден", id)
	}
	if err != nil {
		return rec, fmt.Errorf("чтение товара %s: %w", id, err)
	}
	return rec, nil
}

// GetByIDs возвращает записи пакетом для гидратации кандидатов
func (pdb *ProductsDB) GetByIDs(ctx context.Context, ids []string) ([]matching.ProductRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	rows, err := pdb.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT id, name, brand_name, category, variety, size, image_url
		FROM products WHERE id IN (%s)`, placeholders), args...)
	if err != nil {
		return nil, fmt.Errorf("пакетное чтение товаров: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// ListPage возвращает страницу записей в стабильном порядке
// Реализует источник для массового перестроения индексов
func (pdb *ProductsDB) ListPage(ctx context.Context, offset, limit int) ([]matching.ProductRecord, error) {
	rows, err := pdb.db.QueryContext(ctx, `
		SELECT id, name, brand_name, category, variety, size, image_url
		FROM products ORDER BY id LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("чтение страницы товаров: %w", err)
	}
	defer rows.Close()

	return scanRecords(rows)
}

// Count возвращает общее число записей
func (pdb *ProductsDB) Count(ctx context.Context) (int, error) {
	var count int
	if err := pdb.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM products`).Scan(&count); err != nil {
		return 0, fmt.Errorf("подсчет товаров: %w", err)
	}
	return count, nil
}

func scanRecords(rows *sql.Rows) ([]matching.ProductRecord, error) {
	var records []matching.ProductRecord
	for rows.Next() {
		var rec matching.ProductRecord
		if err := rows.Scan(&rec.ID, &rec.Name, &rec.BrandName, &rec.Category, &rec.Variety, &rec.Size, &rec.ImageURL); err != nil {
			return nil, fmt.Errorf("чтение строки товара: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}
