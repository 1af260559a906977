package algorithms

import (
	"sort"
	"strings"
)

// TokenSortRatio вычисляет схожесть строк без учета порядка слов
// Слова сортируются перед сравнением, поэтому "сок яблочный" и
// "яблочный сок" дают 1.0
func TokenSortRatio(s1, s2 string) float64 {
	return Ratio(sortTokens(s1), sortTokens(s2))
}

// PartialRatio вычисляет схожесть короткой строки с наилучшим
// фрагментом длинной строки той же длины
// Симметрична: порядок аргументов не влияет на результат
func PartialRatio(s1, s2 string) float64 {
	shorter := []rune(s1)
	longer := []rune(s2)
	if len(shorter) > len(longer) {
		shorter, longer = longer, shorter
	}

	if len(shorter) == 0 {
		if len(longer) == 0 {
			return 1.0
		}
		return 0.0
	}
	if len(shorter) == len(longer) {
		return Ratio(string(shorter), string(longer))
	}

	// Скользящее окно по длинной строке
	best := 0.0
	window := len(shorter)
	for i := 0; i+window <= len(longer); i++ {
		score := Ratio(string(shorter), string(longer[i:i+window]))
		if score > best {
			best = score
		}
		if best == 1.0 {
			break
		}
	}

	return best
}

// sortTokens сортирует слова строки в лексикографическом порядке
func sortTokens(s string) string {
	tokens := strings.Fields(s)
	sort.Strings(tokens)
	return strings.Join(tokens, " ")
}
