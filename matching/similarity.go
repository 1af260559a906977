package matching

import (
	"fmt"

	"productmatcher/matching/algorithms"
)

// Причины совпадений для объяснимости результата
const (
	ReasonNameExact    = "точное совпадение нормализованного названия"
	ReasonNameFuzzy    = "схожесть названия"
	ReasonBrandExact   = "точное совпадение бренда"
	ReasonBrandFuzzy   = "частичное совпадение бренда"
	ReasonVarietyExact = "точное совпадение вида"
	ReasonSizeExact    = "точное совпадение размера"
	ReasonTokenOverlap = "высокое пересечение токенов"
	ReasonBrandNamed   = "товар назван по бренду"
)

// Веса компонентов для обычных товаров: название доминирует
var defaultWeights = componentWeights{
	name:    0.55,
	size:    0.20,
	brand:   0.15,
	token:   0.07,
	variety: 0.03,
}

// Веса для товаров, названных по бренду ("Coca Cola"): название
// неинформативно, решают бренд и размер
var brandNamedWeights = componentWeights{
	name:    0.20,
	brand:   0.40,
	size:    0.30,
	token:   0.08,
	variety: 0.02,
}

type componentWeights struct {
	name    float64
	brand   float64
	size    float64
	token   float64
	variety float64
}

// SimilarityCalculator вычисляет попарную схожесть записей товаров
type SimilarityCalculator struct {
	normalizer *Normalizer
}

// NewSimilarityCalculator создает новый калькулятор схожести
func NewSimilarityCalculator(normalizer *Normalizer) *SimilarityCalculator {
	return &SimilarityCalculator{normalizer: normalizer}
}

// Score вычисляет схожесть двух товаров и список причин
// Результат всегда в диапазоне [0,1] и симметричен относительно
// порядка аргументов
func (sc *SimilarityCalculator) Score(a, b ProductCandidate) (float64, []string) {
	var reasons []string

	nameScore, nameReason := sc.nameScore(a, b)
	if nameReason != "" {
		reasons = append(reasons, nameReason)
	}

	brandScore, brandReason := sc.brandScore(a, b)
	if brandReason != "" {
		reasons = append(reasons, brandReason)
	}

	varietyScore := sc.varietyScore(a, b)
	if varietyScore == 1.0 && a.Variety != "" {
		reasons = append(reasons, ReasonVarietyExact)
	}

	sizeScore := sc.sizeScore(a, b)
	if sizeScore == 1.0 && a.Size != "" {
		reasons = append(reasons, ReasonSizeExact)
	}

	tokenScore := sc.tokenScore(a, b)
	if tokenScore >= 0.7 {
		reasons = append(reasons, fmt.Sprintf("%s (%.2f)", ReasonTokenOverlap, tokenScore))
	}

	// Выбор профиля весов: для товара, названного по бренду, название
	// не различает записи - подтверждением служат бренд и размер
	weights := defaultWeights
	if (sc.isBrandNamed(a) || sc.isBrandNamed(b)) && brandScore >= 0.8 && sizeScore >= 0.8 {
		weights = brandNamedWeights
		reasons = append(reasons, ReasonBrandNamed)
	}

	score := nameScore*weights.name +
		brandScore*weights.brand +
		sizeScore*weights.size +
		tokenScore*weights.token +
		varietyScore*weights.variety

	return clamp01(score), reasons
}

// nameScore сравнивает нормализованные названия
// При неточном совпадении берется лучшая из трех метрик: обычная,
// без учета порядка слов и по наилучшему фрагменту
func (sc *SimilarityCalculator) nameScore(a, b ProductCandidate) (float64, string) {
	na := sc.normalizer.Normalize(a.Name, a.BrandName, false)
	nb := sc.normalizer.Normalize(b.Name, b.BrandName, false)

	if na == "" && nb == "" {
		// Оба названия пусты - компонент не различает записи
		return 1.0, ""
	}
	if na == nb {
		return 1.0, ReasonNameExact
	}

	best := algorithms.Ratio(na, nb)
	if tokenSort := algorithms.TokenSortRatio(na, nb); tokenSort > best {
		best = tokenSort
	}
	if partial := algorithms.PartialRatio(na, nb); partial > best {
		best = partial
	}

	if best > 0 {
		return best, fmt.Sprintf("%s (%.2f)", ReasonNameFuzzy, best)
	}
	return 0.0, ""
}

// brandScore сравнивает бренды: точное совпадение дает 1.0, нечеткое
// засчитывается частично при схожести не ниже 0.8
func (sc *SimilarityCalculator) brandScore(a, b ProductCandidate) (float64, string) {
	ba := sc.normalizer.Normalize(a.BrandName, "", false)
	bb := sc.normalizer.Normalize(b.BrandName, "", false)

	if ba == "" && bb == "" {
		return 1.0, ""
	}
	if ba == "" || bb == "" {
		return 0.0, ""
	}
	if ba == bb {
		return 1.0, ReasonBrandExact
	}

	fuzzy := algorithms.Ratio(ba, bb)
	if fuzzy >= 0.8 {
		return fuzzy, fmt.Sprintf("%s (%.2f)", ReasonBrandFuzzy, fuzzy)
	}
	return 0.0, ""
}

// varietyScore сравнивает вид товара: только точное совпадение
func (sc *SimilarityCalculator) varietyScore(a, b ProductCandidate) float64 {
	va := sc.normalizer.Normalize(a.Variety, "", false)
	vb := sc.normalizer.Normalize(b.Variety, "", false)

	if va == "" && vb == "" {
		return 1.0
	}
	if va != "" && va == vb {
		return 1.0
	}
	return 0.0
}

// sizeScore сравнивает нормализованные размеры: только точное совпадение
func (sc *SimilarityCalculator) sizeScore(a, b ProductCandidate) float64 {
	sa := sc.normalizer.NormalizeSize(a.Size)
	sb := sc.normalizer.NormalizeSize(b.Size)

	if sa == "" && sb == "" {
		return 1.0
	}
	if sa != "" && sa == sb {
		return 1.0
	}
	return 0.0
}

// tokenScore вычисляет индекс Жаккара множеств поисковых токенов
func (sc *SimilarityCalculator) tokenScore(a, b ProductCandidate) float64 {
	ta := sc.normalizer.Tokens(a.Name, a.BrandName, a.Variety)
	tb := sc.normalizer.Tokens(b.Name, b.BrandName, b.Variety)

	return algorithms.Jaccard(map[string]bool(ta), map[string]bool(tb))
}

// isBrandNamed проверяет, совпадает ли название товара с его брендом
func (sc *SimilarityCalculator) isBrandNamed(c ProductCandidate) bool {
	if c.Name == "" || c.BrandName == "" {
		return false
	}
	name := sc.normalizer.Normalize(c.Name, "", false)
	brand := sc.normalizer.Normalize(c.BrandName, "", false)
	return name != "" && name == brand
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
