package matching

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
)

// ProductRecord запись товара из авторитетного хранилища
type ProductRecord struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	BrandName string `json:"brand_name,omitempty"`
	Category  string `json:"category,omitempty"`
	Variety   string `json:"variety,omitempty"`
	Size      string `json:"size,omitempty"`
	ImageURL  string `json:"image_url,omitempty"`
}

// Candidate возвращает представление записи для сравнения
func (pr ProductRecord) Candidate() ProductCandidate {
	return ProductCandidate{
		Name:      pr.Name,
		BrandName: pr.BrandName,
		Variety:   pr.Variety,
		Size:      pr.Size,
	}
}

// ProductCandidate входной кандидат для поиска дубликатов
type ProductCandidate struct {
	Name      string `json:"name"`
	BrandName string `json:"brand_name,omitempty"`
	Variety   string `json:"variety,omitempty"`
	Size      string `json:"size,omitempty"`
}

// TokenSet множество поисковых токенов
// При десериализации принимает как множество/список, так и строку
// из старых снапшотов (токены через пробел)
type TokenSet map[string]bool

// MarshalJSON сериализует множество как отсортированный список
func (ts TokenSet) MarshalJSON() ([]byte, error) {
	tokens := make([]string, 0, len(ts))
	for token := range ts {
		tokens = append(tokens, token)
	}
	sort.Strings(tokens)
	return json.Marshal(tokens)
}

// UnmarshalJSON десериализует список, множество или строку старого формата
func (ts *TokenSet) UnmarshalJSON(data []byte) error {
	result := make(TokenSet)

	// Новый формат: список токенов
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		for _, token := range list {
			result[token] = true
		}
		*ts = result
		return nil
	}

	// Промежуточный формат: map[token]bool
	var set map[string]bool
	if err := json.Unmarshal(data, &set); err == nil {
		for token, ok := range set {
			if ok {
				result[token] = true
			}
		}
		*ts = result
		return nil
	}

	// Старый формат: строка с токенами через пробел
	var scalar string
	if err := json.Unmarshal(data, &scalar); err != nil {
		return err
	}
	for _, token := range strings.Fields(scalar) {
		result[token] = true
	}
	*ts = result
	return nil
}

// Contains проверяет наличие токена
func (ts TokenSet) Contains(token string) bool {
	return ts[token]
}

// Overlap возвращает количество общих токенов с другим множеством
func (ts TokenSet) Overlap(other TokenSet) int {
	small, large := ts, other
	if len(large) < len(small) {
		small, large = large, small
	}
	overlap := 0
	for token := range small {
		if large[token] {
			overlap++
		}
	}
	return overlap
}

// ProductCacheEntry кэшированная запись товара с производными полями
type ProductCacheEntry struct {
	ProductRecord
	NormalizedName string    `json:"normalized_name"`
	SearchTokens   TokenSet  `json:"search_tokens"`
	LastUpdated    time.Time `json:"last_updated"`
}

// ProductMatch результат сравнения кандидата с известным товаром
type ProductMatch struct {
	ProductID       string        `json:"product_id"`
	SimilarityScore float64       `json:"similarity_score"`
	MatchedProduct  ProductRecord `json:"matched_product"`
	MatchReasons    []string      `json:"match_reasons"`
	IsDuplicate     bool          `json:"is_duplicate"`
}

// Типы совпадений для вызывающей бизнес-логики (skip/merge/create)
const (
	MatchTypeExact        = "exact"
	MatchTypeBrandVariety = "brand_variety"
	MatchTypeFuzzy        = "fuzzy"
)

// DeriveMatchType определяет тип совпадения по оценке и причинам
func DeriveMatchType(match ProductMatch, exactThreshold float64) string {
	if match.SimilarityScore >= exactThreshold {
		return MatchTypeExact
	}

	hasBrand := false
	hasVariety := false
	for _, reason := range match.MatchReasons {
		if strings.Contains(reason, ReasonBrandExact) || strings.Contains(reason, ReasonBrandFuzzy) {
			hasBrand = true
		}
		if strings.Contains(reason, ReasonVarietyExact) {
			hasVariety = true
		}
	}
	if hasBrand && hasVariety {
		return MatchTypeBrandVariety
	}

	return MatchTypeFuzzy
}
