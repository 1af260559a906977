package matching

import (
	"strings"

	"github.com/kljensen/snowball"
)

// Заглушки, которые AI-классификация подставляет вместо
// отсутствующих значений
var placeholderValues = map[string]bool{
	"unknown": true, "n/a": true, "na": true, "none": true,
	"null": true, "-": true, "unbranded": true, "no brand": true,
}

// Corrector выполняет пост-обработку полей, полученных от
// AI-классификации: вычищает заглушки, убирает дубли между полями
// и приводит категории к каноническому виду
type Corrector struct {
	normalizer *Normalizer
	// Стеммированное ключевое слово -> каноническая категория
	categoryKeywords map[string]string
	// Синоним категории -> каноническая категория
	categorySynonyms map[string]string
}

// NewCorrector создает корректор с правилами по умолчанию
func NewCorrector(normalizer *Normalizer) *Corrector {
	c := &Corrector{
		normalizer:       normalizer,
		categoryKeywords: make(map[string]string),
		categorySynonyms: defaultCategorySynonyms(),
	}

	// Ключевые слова стеммируются один раз при построении, поэтому
	// "juice" и "juices" попадают в одну корзину
	for category, keywords := range defaultCategoryKeywords() {
		for _, keyword := range keywords {
			c.categoryKeywords[stemToken(keyword)] = category
		}
	}

	return c
}

// Apply применяет все правила коррекции к записи
// Исходная запись не изменяется
func (c *Corrector) Apply(rec ProductRecord) ProductRecord {
	rec.Name = cleanField(rec.Name)
	rec.BrandName = scrubPlaceholder(cleanField(rec.BrandName))
	rec.Category = scrubPlaceholder(cleanField(rec.Category))
	rec.Variety = scrubPlaceholder(cleanField(rec.Variety))

	// Вид, повторяющий название или бренд, не несет информации
	if rec.Variety != "" {
		normVariety := c.normalizer.Normalize(rec.Variety, "", false)
		if normVariety == c.normalizer.Normalize(rec.Name, "", false) ||
			normVariety == c.normalizer.Normalize(rec.BrandName, "", false) {
			rec.Variety = ""
		}
	}

	// Канонизация категории и вывод отсутствующей из названия
	if rec.Category != "" {
		if canonical, ok := c.categorySynonyms[strings.ToLower(rec.Category)]; ok {
			rec.Category = canonical
		}
	} else {
		rec.Category = c.inferCategory(rec.Name)
	}

	return rec
}

// inferCategory выводит категорию из стеммированных токенов названия
func (c *Corrector) inferCategory(name string) string {
	normalized := c.normalizer.Normalize(name, "", false)
	for _, token := range strings.Fields(normalized) {
		if category, ok := c.categoryKeywords[stemToken(token)]; ok {
			return category
		}
	}
	return ""
}

// cleanField убирает кавычки, хвостовую пунктуацию и лишние пробелы
// Обрезка повторяется до неподвижной точки: после снятия пунктуации
// может открыться кавычка и наоборот (`"..." .`)
func cleanField(value string) string {
	value = strings.TrimSpace(value)
	for {
		trimmed := strings.Trim(value, `"'`)
		trimmed = strings.TrimRight(trimmed, ".,;:")
		trimmed = strings.TrimSpace(trimmed)
		if trimmed == value {
			break
		}
		value = trimmed
	}
	return strings.Join(strings.Fields(value), " ")
}

// scrubPlaceholder превращает заглушки AI в пустую строку
func scrubPlaceholder(value string) string {
	if placeholderValues[strings.ToLower(value)] {
		return ""
	}
	return value
}

// stemToken стеммирует токен; при ошибке возвращает его без изменений
func stemToken(token string) string {
	stemmed, err := snowball.Stem(token, "english", false)
	if err != nil {
		return token
	}
	return stemmed
}

// defaultCategoryKeywords возвращает ключевые слова категорий
func defaultCategoryKeywords() map[string][]string {
	return map[string][]string{
		"drinks":    {"juice", "water", "soda", "cola", "lemonade", "tea", "coffee", "drink"},
		"dairy":     {"milk", "yogurt", "cheese", "butter", "cream", "kefir"},
		"bakery":    {"bread", "roll", "baguette", "croissant", "bun"},
		"snacks":    {"chips", "crackers", "popcorn", "pretzel", "snack"},
		"sweets":    {"chocolate", "candy", "cookie", "biscuit", "wafer"},
		"grocery":   {"flour", "sugar", "rice", "pasta", "oil", "salt"},
		"household": {"detergent", "soap", "shampoo", "cleaner", "towel"},
	}
}

// defaultCategorySynonyms возвращает таблицу синонимов категорий
func defaultCategorySynonyms() map[string]string {
	return map[string]string{
		"beverages":     "drinks",
		"beverage":      "drinks",
		"drink":         "drinks",
		"milk products": "dairy",
		"confectionery": "sweets",
		"baked goods":   "bakery",
		"groceries":     "grocery",
	}
}
