package matching

import "testing"

func TestNormalize(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		name            string
		productName     string
		brand           string
		removePackaging bool
		want            string
	}{
		{
			name:            "Нижний регистр и пробелы",
			productName:     "  Coca-Cola Classic  ",
			brand:           "",
			removePackaging: false,
			want:            "coca cola classic",
		},
		{
			name:            "Удаление бренда-префикса",
			productName:     "Coca-Cola Classic Lemon",
			brand:           "Coca-Cola",
			removePackaging: false,
			want:            "classic lemon",
		},
		{
			name:            "Бренд не удаляется при коротком остатке",
			productName:     "Coca-Cola 1L",
			brand:           "Coca-Cola",
			removePackaging: false,
			want:            "coca cola 1l",
		},
		{
			name:            "Товар назван по бренду",
			productName:     "Coca-Cola",
			brand:           "Coca-Cola",
			removePackaging: false,
			want:            "coca cola",
		},
		{
			name:            "Термины упаковки удаляются",
			productName:     "Orange Juice 500ml Bottle",
			brand:           "",
			removePackaging: true,
			want:            "orange juice 500ml",
		},
		{
			name:            "Термины упаковки сохраняются без флага",
			productName:     "Orange Juice Bottle",
			brand:           "",
			removePackaging: false,
			want:            "orange juice bottle",
		},
		{
			name:            "Десятичный разделитель сохраняется",
			productName:     "Milk 1.5 L",
			brand:           "",
			removePackaging: false,
			want:            "milk 1.5 l",
		},
		{
			name:            "Множитель стандартизируется",
			productName:     "Juice 3 x 200",
			brand:           "",
			removePackaging: false,
			want:            "juice 3x200",
		},
		{
			name:            "Стоп-слова удаляются",
			productName:     "Tea with Lemon and Honey",
			brand:           "",
			removePackaging: false,
			want:            "tea lemon honey",
		},
		{
			name:            "Единицы измерения стандартизируются",
			productName:     "Sugar 1 kilogram",
			brand:           "",
			removePackaging: false,
			want:            "sugar 1 kg",
		},
		{
			name:            "Диакритика удаляется",
			productName:     "Café Crème",
			brand:           "",
			removePackaging: false,
			want:            "cafe creme",
		},
		{
			name:            "Пустое название",
			productName:     "",
			brand:           "",
			removePackaging: false,
			want:            "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := n.Normalize(tt.productName, tt.brand, tt.removePackaging)
			if got != tt.want {
				t.Errorf("Normalize(%q, %q, %v) = %q, want %q",
					tt.productName, tt.brand, tt.removePackaging, got, tt.want)
			}
		})
	}
}

// Повторная нормализация не должна менять результат
func TestNormalizeIdempotent(t *testing.T) {
	n := NewNormalizer()
	inputs := []string{
		"Coca-Cola Classic 1.5L Bottle",
		"Молоко пастеризованное 3,2%",
		"Juice 3 x 200ml",
	}

	for _, input := range inputs {
		once := n.Normalize(input, "", true)
		twice := n.Normalize(once, "", true)
		if once != twice {
			t.Errorf("нормализация не идемпотентна для %q: %q -> %q", input, once, twice)
		}
	}
}

// Удаление упаковки группирует соседние SKU
func TestNormalizePackagingGroupsVariants(t *testing.T) {
	n := NewNormalizer()
	a := n.Normalize("Sunflower Oil 1L Bottle", "", true)
	b := n.Normalize("Sunflower Oil 1L PET", "", true)
	if a != b {
		t.Errorf("варианты упаковки должны нормализоваться одинаково: %q != %q", a, b)
	}
}

func TestNormalizeSize(t *testing.T) {
	n := NewNormalizer()

	tests := []struct {
		input string
		want  string
	}{
		{"1,5 L", "1.5l"},
		{"1.5L", "1.5l"},
		{"500 grams", "500g"},
		{"3 x 200ml", "3x200ml"},
		{"1 kilogram", "1kg"},
		{"", ""},
		{"  2 litres  ", "2l"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := n.NormalizeSize(tt.input); got != tt.want {
				t.Errorf("NormalizeSize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestTokens(t *testing.T) {
	n := NewNormalizer()

	tokens := n.Tokens("Coca-Cola Classic", "Coca-Cola", "Lemon")

	for _, want := range []string{"classic", "coca", "cola", "lemon"} {
		if !tokens.Contains(want) {
			t.Errorf("ожидался токен %q в %v", want, tokens)
		}
	}
}

func TestTokensMinLength(t *testing.T) {
	n := NewNormalizer()
	tokens := n.Tokens("Vitamin C 5", "", "")
	for token := range tokens {
		if len([]rune(token)) < 2 {
			t.Errorf("токен короче 2 символов: %q", token)
		}
	}
}

func TestTokensDeterministic(t *testing.T) {
	n := NewNormalizer()
	first := n.Tokens("Orange Juice 1L", "Fresh Farm", "Premium")
	for i := 0; i < 5; i++ {
		again := n.Tokens("Orange Juice 1L", "Fresh Farm", "Premium")
		if len(first) != len(again) {
			t.Fatalf("число токенов меняется между вызовами: %d != %d", len(first), len(again))
		}
		for token := range first {
			if !again.Contains(token) {
				t.Fatalf("токен %q пропал при повторном вызове", token)
			}
		}
	}
}
