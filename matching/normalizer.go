package matching

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Формат множителя: "3 x 200" -> "3x200"
var multiplierRe = regexp.MustCompile(`(\d+)\s*[x×*хX]\s*(\d+(?:\.\d+)?)`)

// Размер: число с необязательной единицей измерения
var sizeRe = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*([a-zа-я]+)?$`)

// accentStripper удаляет диакритические знаки: NFD-декомпозиция,
// удаление комбинирующих знаков, NFC-сборка
var accentStripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalizer канонизирует названия, бренды и размеры товаров
// Все методы детерминированы и не имеют скрытого состояния
type Normalizer struct {
	stopWords      map[string]bool
	packagingTerms map[string]bool
	unitAliases    map[string]string
}

// NewNormalizer создает новый нормализатор с наборами правил по умолчанию
func NewNormalizer() *Normalizer {
	return &Normalizer{
		stopWords:      defaultStopWords(),
		packagingTerms: defaultPackagingTerms(),
		unitAliases:    defaultUnitAliases(),
	}
}

// Normalize выполняет полную нормализацию названия товара
// Если бренд является префиксом или суффиксом названия, он удаляется,
// но только когда остаток достаточно информативен (> 3 символов) -
// иначе товар, названный по своему бренду, остался бы без названия
func (n *Normalizer) Normalize(name, brand string, removePackaging bool) string {
	// 1. Нижний регистр и удаление диакритики
	text := n.stripAccents(strings.ToLower(strings.TrimSpace(name)))

	// 2. Удаление бренда из начала или конца названия
	if brand != "" {
		normalizedBrand := n.stripAccents(strings.ToLower(strings.TrimSpace(brand)))
		text = stripBrand(text, normalizedBrand)
	}

	// 3. Пунктуация и разделители -> пробелы
	text = replacePunctuation(text)

	// 4. Стандартизация формата множителя
	text = multiplierRe.ReplaceAllString(text, "${1}x${2}")

	// 5. Фильтрация токенов: стоп-слова, термины упаковки, единицы измерения
	words := strings.Fields(text)
	result := make([]string, 0, len(words))
	for _, word := range words {
		if n.stopWords[word] {
			continue
		}
		if removePackaging && n.packagingTerms[word] {
			continue
		}
		if alias, ok := n.unitAliases[word]; ok {
			word = alias
		}
		result = append(result, word)
	}

	return strings.Join(result, " ")
}

// NormalizeSize канонизирует строку размера: "1,5 L" -> "1.5l",
// "3 x 200ml" -> "3x200ml"
func (n *Normalizer) NormalizeSize(size string) string {
	s := n.stripAccents(strings.ToLower(strings.TrimSpace(size)))
	if s == "" {
		return ""
	}

	s = strings.ReplaceAll(s, ",", ".")
	s = multiplierRe.ReplaceAllString(s, "${1}x${2}")

	// Число с единицей измерения
	if m := sizeRe.FindStringSubmatch(s); m != nil {
		unit := m[2]
		if alias, ok := n.unitAliases[unit]; ok {
			unit = alias
		}
		return m[1] + unit
	}

	// Составные размеры склеиваем без пробелов
	words := strings.Fields(s)
	for i, word := range words {
		if alias, ok := n.unitAliases[word]; ok {
			words[i] = alias
		}
	}
	return strings.Join(words, "")
}

// Tokens строит множество поисковых токенов из нормализованного названия,
// бренда, вида и исходного (ненормализованного) названия
// Токены короче 2 символов отбрасываются
func (n *Normalizer) Tokens(name, brand, variety string) TokenSet {
	tokens := make(TokenSet)

	addTokens := func(text string) {
		for _, token := range strings.Fields(text) {
			if utf8.RuneCountInString(token) >= 2 {
				tokens[token] = true
			}
		}
	}

	addTokens(n.Normalize(name, brand, false))
	addTokens(n.Normalize(brand, "", false))
	addTokens(n.Normalize(variety, "", false))

	// Токены исходного названия: без удаления бренда и стоп-слов,
	// чтобы не потерять слова, совпадающие с брендом
	raw := replacePunctuation(n.stripAccents(strings.ToLower(name)))
	addTokens(raw)

	return tokens
}

// stripAccents удаляет диакритические знаки
func (n *Normalizer) stripAccents(text string) string {
	stripped, _, err := transform.String(accentStripper, text)
	if err != nil {
		return text
	}
	return stripped
}

// stripBrand удаляет бренд из начала или конца названия
// Возвращает исходное название, если остаток короче 4 символов
func stripBrand(name, brand string) string {
	if brand == "" || name == brand {
		return name
	}

	var remainder string
	switch {
	case strings.HasPrefix(name, brand):
		remainder = strings.TrimSpace(name[len(brand):])
	case strings.HasSuffix(name, brand):
		remainder = strings.TrimSpace(name[:len(name)-len(brand)])
	default:
		return name
	}

	// Защита от товаров, названных по бренду: "Coca Cola" минус
	// бренд "Coca Cola" оставил бы пустую строку
	cleaned := strings.TrimSpace(replacePunctuation(remainder))
	if utf8.RuneCountInString(strings.Join(strings.Fields(cleaned), "")) <= 3 {
		return name
	}

	return remainder
}

// replacePunctuation заменяет пунктуацию и разделители пробелами
// Точка и запятая между цифрами сохраняются как десятичный разделитель
func replacePunctuation(text string) string {
	runes := []rune(text)
	var builder strings.Builder
	builder.Grow(len(text))

	for i, r := range runes {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			builder.WriteRune(r)
			continue
		}
		if (r == '.' || r == ',') && i > 0 && i < len(runes)-1 &&
			unicode.IsDigit(runes[i-1]) && unicode.IsDigit(runes[i+1]) {
			builder.WriteRune('.')
			continue
		}
		builder.WriteRune(' ')
	}

	return strings.Join(strings.Fields(builder.String()), " ")
}

// defaultStopWords возвращает список стоп-слов
func defaultStopWords() map[string]bool {
	return map[string]bool{
		"the": true, "a": true, "an": true, "and": true, "or": true,
		"of": true, "with": true, "in": true, "on": true, "at": true,
		"to": true, "for": true, "by": true, "from": true,
	}
}

// defaultPackagingTerms возвращает список терминов упаковки
// Их удаление группирует соседние SKU: "500g Bottle" и "500g Packet"
// нормализуются одинаково
func defaultPackagingTerms() map[string]bool {
	return map[string]bool{
		"bottle": true, "bottles": true, "pet": true, "glass": true,
		"can": true, "cans": true, "tin": true, "jar": true, "jars": true,
		"pack": true, "packet": true, "packets": true, "packs": true,
		"box": true, "boxes": true, "bag": true, "bags": true,
		"pouch": true, "carton": true, "tray": true, "sachet": true,
		"tub": true, "cup": true, "roll": true, "stick": true,
	}
}

// defaultUnitAliases возвращает таблицу стандартизации единиц измерения
func defaultUnitAliases() map[string]string {
	return map[string]string{
		"kilogram": "kg", "kilograms": "kg", "kilogramme": "kg", "kgs": "kg",
		"gram": "g", "grams": "g", "gramme": "g", "gr": "g",
		"milligram": "mg", "milligrams": "mg",
		"liter": "l", "litre": "l", "liters": "l", "litres": "l", "lt": "l",
		"milliliter": "ml", "millilitre": "ml", "milliliters": "ml", "millilitres": "ml",
		"centiliter": "cl", "centilitre": "cl",
		"ounce": "oz", "ounces": "oz",
		"pound": "lb", "pounds": "lb", "lbs": "lb",
		"piece": "pcs", "pieces": "pcs", "pc": "pcs",
	}
}
