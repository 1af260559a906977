package scalableindex

import (
	"context"
	"fmt"
	"testing"

	"productmatcher/matching"
)

func newTestIndex() *MemoryIndex {
	return NewMemoryIndex(matching.NewNormalizer(), 3, 2)
}

func record(id, name, brand, size string) matching.ProductRecord {
	return matching.ProductRecord{ID: id, Name: name, BrandName: brand, Size: size}
}

func TestMemoryIndexRoundTrip(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	rec := record("p1", "Coca-Cola Classic", "Coca-Cola", "1.5L")
	if err := mi.IndexProduct(ctx, rec); err != nil {
		t.Fatalf("IndexProduct() error = %v", err)
	}

	records, err := mi.FetchRecords(ctx, []string{"p1"})
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Name != rec.Name {
		t.Errorf("FetchRecords() = %v", records)
	}

	total, err := mi.TotalProducts(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if total != 1 {
		t.Errorf("TotalProducts() = %d, want 1", total)
	}
}

func TestMemoryIndexValidation(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	if err := mi.IndexProduct(ctx, record("", "Cola", "", "")); err == nil {
		t.Error("ожидалась ошибка для записи без идентификатора")
	}
	if err := mi.IndexProduct(ctx, record("p1", "", "", "")); err == nil {
		t.Error("ожидалась ошибка для записи без названия")
	}
}

func TestMemoryIndexRemove(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	if err := mi.IndexProduct(ctx, record("p1", "Coca-Cola Classic", "Coca-Cola", "1.5L")); err != nil {
		t.Fatal(err)
	}
	if err := mi.RemoveProduct(ctx, "p1"); err != nil {
		t.Fatalf("RemoveProduct() error = %v", err)
	}

	total, _ := mi.TotalProducts(ctx)
	if total != 0 {
		t.Errorf("TotalProducts() = %d, want 0", total)
	}

	ids, err := mi.FindCandidates(ctx, matching.ProductCandidate{Name: "Coca-Cola Classic", BrandName: "Coca-Cola", Size: "1.5L"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("удаленная запись осталась в кандидатах: %v", ids)
	}

	// Повторное удаление не ошибка
	if err := mi.RemoveProduct(ctx, "p1"); err != nil {
		t.Errorf("повторное удаление: %v", err)
	}
}

// Повторная индексация идентификатора снимает ключи прежней версии:
// товар не должен находиться по старому названию, бренду и точному ключу
func TestMemoryIndexReindexStripsOldKeys(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	if err := mi.IndexProduct(ctx, record("p1", "Apple Juice", "Fresh Farm", "1L")); err != nil {
		t.Fatal(err)
	}
	if err := mi.IndexProduct(ctx, record("p1", "Orange Soda", "Golden Grove", "0.5L")); err != nil {
		t.Fatal(err)
	}

	total, _ := mi.TotalProducts(ctx)
	if total != 1 {
		t.Errorf("TotalProducts() = %d, want 1", total)
	}

	// Старый точный ключ не должен перехватывать поиск
	ids, err := mi.FindCandidates(ctx, matching.ProductCandidate{Name: "Apple Juice", BrandName: "Fresh Farm", Size: "1L"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 0 {
		t.Errorf("запрос по прежним полям вернул кандидатов: %v", ids)
	}

	if mi.byBrand["fresh farm"]["p1"] {
		t.Error("p1 остался в группе прежнего бренда")
	}
	if mi.byToken["apple"]["p1"] {
		t.Error("p1 остался в корзине прежнего токена")
	}

	// Новые ключи действуют
	ids, err = mi.FindCandidates(ctx, matching.ProductCandidate{Name: "Orange Soda", BrandName: "Golden Grove", Size: "0.5L"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "p1" {
		t.Errorf("запрос по новым полям = %v, want [p1]", ids)
	}
}

// Стратегия 1: точный ключ возвращает единственного кандидата
func TestMemoryIndexFindExact(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	if err := mi.IndexProduct(ctx, record("p1", "Coca-Cola Classic", "Coca-Cola", "1.5L")); err != nil {
		t.Fatal(err)
	}
	if err := mi.IndexProduct(ctx, record("p2", "Coca-Cola Zero", "Coca-Cola", "1.5L")); err != nil {
		t.Fatal(err)
	}

	ids, err := mi.FindCandidates(ctx, matching.ProductCandidate{Name: "COCA-COLA CLASSIC", BrandName: "Coca-Cola", Size: "1,5 l"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) != 1 || ids[0] != "p1" {
		t.Errorf("точный ключ должен возвращать единственного кандидата: %v", ids)
	}
}

// Стратегия 2: кандидаты из группы бренда
func TestMemoryIndexFindByBrand(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		rec := record(fmt.Sprintf("p%d", i), fmt.Sprintf("Cola Flavor %d", i), "Coca-Cola", "1L")
		if err := mi.IndexProduct(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}
	if err := mi.IndexProduct(ctx, record("other", "Mineral Water", "Aqua", "1L")); err != nil {
		t.Fatal(err)
	}

	ids, err := mi.FindCandidates(ctx, matching.ProductCandidate{Name: "Cola New Flavor", BrandName: "Coca-Cola", Size: "2L"}, 10)
	if err != nil {
		t.Fatal(err)
	}

	found := make(map[string]bool)
	for _, id := range ids {
		found[id] = true
	}
	for i := 0; i < 3; i++ {
		if !found[fmt.Sprintf("p%d", i)] {
			t.Errorf("кандидат p%d из группы бренда не найден: %v", i, ids)
		}
	}
}

// Стратегия 4: N-граммы ловят опечатки без общих токенов
func TestMemoryIndexFindByNGrams(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	if err := mi.IndexProduct(ctx, record("p1", "Pasteurized", "", "")); err != nil {
		t.Fatal(err)
	}

	// Опечатка: токены не совпадают, N-граммы пересекаются
	ids, err := mi.FindCandidates(ctx, matching.ProductCandidate{Name: "Pasteurizzed"}, 10)
	if err != nil {
		t.Fatal(err)
	}

	found := false
	for _, id := range ids {
		if id == "p1" {
			found = true
		}
	}
	if !found {
		t.Errorf("кандидат по N-граммам не найден: %v", ids)
	}
}

func TestMemoryIndexCandidateLimit(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	for i := 0; i < 30; i++ {
		rec := record(fmt.Sprintf("p%02d", i), fmt.Sprintf("Orange Juice %d", i), "Fresh", "1L")
		if err := mi.IndexProduct(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	ids, err := mi.FindCandidates(ctx, matching.ProductCandidate{Name: "Orange Juice", BrandName: "Fresh", Size: "2L"}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(ids) > 10 {
		t.Errorf("лимит кандидатов не соблюден: %d", len(ids))
	}
}

func TestMemoryIndexDeterministicOrder(t *testing.T) {
	mi := newTestIndex()
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		rec := record(fmt.Sprintf("p%02d", i), fmt.Sprintf("Orange Juice %d", i), "Fresh", "1L")
		if err := mi.IndexProduct(ctx, rec); err != nil {
			t.Fatal(err)
		}
	}

	cand := matching.ProductCandidate{Name: "Orange Juice", BrandName: "Fresh", Size: "2L"}
	first, err := mi.FindCandidates(ctx, cand, 20)
	if err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 5; i++ {
		again, err := mi.FindCandidates(ctx, cand, 20)
		if err != nil {
			t.Fatal(err)
		}
		if len(again) != len(first) {
			t.Fatalf("число кандидатов меняется между вызовами: %d != %d", len(again), len(first))
		}
		for j := range first {
			if first[j] != again[j] {
				t.Fatalf("порядок кандидатов недетерминирован: %v != %v", first, again)
			}
		}
	}
}

func TestMemoryIndexAvailable(t *testing.T) {
	if !newTestIndex().Available(context.Background()) {
		t.Error("индекс в памяти должен быть всегда доступен")
	}
}
