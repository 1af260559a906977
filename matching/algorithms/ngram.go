package algorithms

import "strings"

// NGrams создает уникальные символьные N-граммы из текста
// Пробельные символы не участвуют в граммах, чтобы граница слов
// не порождала шумовых совпадений
func NGrams(text string, n int) []string {
	if n < 1 {
		n = 3
	}

	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return nil
	}

	seen := make(map[string]bool)
	var ngrams []string

	for _, word := range strings.Fields(normalized) {
		runes := []rune(word)
		if len(runes) < n {
			// Короткие слова индексируем целиком
			if !seen[word] {
				seen[word] = true
				ngrams = append(ngrams, word)
			}
			continue
		}
		for i := 0; i+n <= len(runes); i++ {
			gram := string(runes[i : i+n])
			if !seen[gram] {
				seen[gram] = true
				ngrams = append(ngrams, gram)
			}
		}
	}

	return ngrams
}

// NGramSimilarity вычисляет схожесть текстов по пересечению N-грамм
func NGramSimilarity(text1, text2 string, n int) float64 {
	grams1 := NGrams(text1, n)
	grams2 := NGrams(text2, n)

	if len(grams1) == 0 && len(grams2) == 0 {
		return 1.0
	}
	if len(grams1) == 0 || len(grams2) == 0 {
		return 0.0
	}

	set1 := make(map[string]bool, len(grams1))
	for _, gram := range grams1 {
		set1[gram] = true
	}
	set2 := make(map[string]bool, len(grams2))
	for _, gram := range grams2 {
		set2[gram] = true
	}

	return Jaccard(set1, set2)
}
