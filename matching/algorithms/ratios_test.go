package algorithms

import (
	"math"
	"testing"
)

func TestTokenSortRatio(t *testing.T) {
	tests := []struct {
		name string
		s1   string
		s2   string
		want float64
	}{
		{"Переставленные слова", "яблочный сок", "сок яблочный", 1.0},
		{"Одинаковый порядок", "coca cola", "coca cola", 1.0},
		{"Обе пустые", "", "", 1.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TokenSortRatio(tt.s1, tt.s2); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("TokenSortRatio(%q, %q) = %f, want %f", tt.s1, tt.s2, got, tt.want)
			}
		})
	}
}

func TestTokenSortRatioBeatsPlainRatio(t *testing.T) {
	s1 := "sok apple 1l"
	s2 := "apple sok 1l"
	if plain, sorted := Ratio(s1, s2), TokenSortRatio(s1, s2); sorted <= plain {
		t.Errorf("сортировка токенов должна улучшать оценку: plain=%f sorted=%f", plain, sorted)
	}
}

func TestPartialRatio(t *testing.T) {
	tests := []struct {
		name string
		s1   string
		s2   string
		want float64
	}{
		{"Подстрока", "cola", "coca cola classic", 1.0},
		{"Равная длина", "cola", "colo", 0.75},
		{"Обе пустые", "", "", 1.0},
		{"Пустая и непустая", "", "cola", 0.0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PartialRatio(tt.s1, tt.s2); math.Abs(got-tt.want) > 1e-9 {
				t.Errorf("PartialRatio(%q, %q) = %f, want %f", tt.s1, tt.s2, got, tt.want)
			}
		})
	}
}

func TestPartialRatioSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"cola", "coca cola classic"},
		{"молоко", "молоко пастеризованное"},
	}
	for _, p := range pairs {
		if r1, r2 := PartialRatio(p[0], p[1]), PartialRatio(p[1], p[0]); r1 != r2 {
			t.Errorf("PartialRatio не симметричен для %q/%q: %f != %f", p[0], p[1], r1, r2)
		}
	}
}
