package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"productmatcher/database"
	"productmatcher/internal/config"
	"productmatcher/matching"
)

func newTestServer(t *testing.T) (*Server, *gin.Engine) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	cfg := config.GetDefaults()

	pdb, err := database.NewProductsDB(filepath.Join(t.TempDir(), "products.db"))
	require.NoError(t, err)
	t.Cleanup(func() { pdb.Close() })

	normalizer := matching.NewNormalizer()
	index := matching.NewCandidateIndex(normalizer)
	engine, err := matching.NewMatcherEngine(normalizer, index, nil, cfg.Matching)
	require.NoError(t, err)

	srv := NewServer(cfg, engine, matching.NewCorrector(normalizer), pdb)
	return srv, srv.setupRoutes()
}

func doJSON(t *testing.T, router *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestHandleHealth(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
}

func TestHandleUpsertAndFindSimilar(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/products", matching.ProductRecord{
		Name:      "Coca-Cola Classic",
		BrandName: "Coca-Cola",
		Size:      "1.5L",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved matching.ProductRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	require.NotEmpty(t, saved.ID, "идентификатор не сгенерирован")

	rec = doJSON(t, router, http.MethodPost, "/api/match/similar", map[string]interface{}{
		"name":       "COCA-COLA CLASSIC",
		"brand_name": "Coca-Cola",
		"size":       "1,5 l",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response struct {
		Total   int `json:"total"`
		Matches []struct {
			ProductID       string  `json:"product_id"`
			SimilarityScore float64 `json:"similarity_score"`
			IsDuplicate     bool    `json:"is_duplicate"`
			MatchType       string  `json:"match_type"`
		} `json:"matches"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	require.Equal(t, 1, response.Total, rec.Body.String())

	match := response.Matches[0]
	assert.Equal(t, saved.ID, match.ProductID)
	assert.True(t, match.IsDuplicate)
	assert.Equal(t, matching.MatchTypeExact, match.MatchType)
}

func TestHandleCheckDuplicate(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/products", matching.ProductRecord{
		Name: "Orange Juice Premium", BrandName: "Fresh Farm", Size: "1L",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/match/duplicate", map[string]interface{}{
		"name":       "Orange Juice Premium",
		"brand_name": "Fresh Farm",
		"size":       "1L",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response struct {
		IsDuplicate bool `json:"is_duplicate"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.True(t, response.IsDuplicate, "дубликат не распознан: %s", rec.Body.String())

	rec = doJSON(t, router, http.MethodPost, "/api/match/duplicate", map[string]interface{}{
		"name": "Pasta Spaghetti",
	})
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.False(t, response.IsDuplicate, "непохожий товар распознан как дубликат")
}

func TestHandleValidation(t *testing.T) {
	_, router := newTestServer(t)

	// Отсутствующее обязательное поле name
	rec := doJSON(t, router, http.MethodPost, "/api/match/similar", map[string]interface{}{"brand_name": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doJSON(t, router, http.MethodPost, "/api/products", map[string]interface{}{"brand_name": "X"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// Поля от AI-классификации проходят коррекцию при сохранении
func TestHandleUpsertAppliesCorrections(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/products", map[string]interface{}{
		"name":       "Orange Juice",
		"brand_name": "unknown",
		"category":   "Beverages",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved matching.ProductRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))
	assert.Empty(t, saved.BrandName, "заглушка бренда не вычищена")
	assert.Equal(t, "drinks", saved.Category, "категория не канонизирована")
}

func TestHandleGetAndDeleteProduct(t *testing.T) {
	srv, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/products", matching.ProductRecord{Name: "Cola", Size: "1L"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var saved matching.ProductRecord
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &saved))

	rec = doJSON(t, router, http.MethodGet, "/api/products/"+saved.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/products/"+saved.ID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 0, srv.engine.Index().TotalProducts(), "товар остался в индексе после удаления")

	rec = doJSON(t, router, http.MethodGet, "/api/products/"+saved.ID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doJSON(t, router, http.MethodDelete, "/api/products/ghost", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleReindex(t *testing.T) {
	srv, router := newTestServer(t)

	// Записи кладутся напрямую в хранилище, минуя индексы
	ctx := context.Background()
	for i := 0; i < 15; i++ {
		rec := matching.ProductRecord{ID: fmt.Sprintf("p%02d", i), Name: fmt.Sprintf("Product %d", i)}
		require.NoError(t, srv.productsDB.Upsert(ctx, &rec))
	}

	rec := doJSON(t, router, http.MethodPost, "/api/match/reindex", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response struct {
		Indexed int `json:"indexed"`
		Failed  int `json:"failed"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 15, response.Indexed)
	assert.Equal(t, 15, srv.engine.Index().TotalProducts())
}

func TestHandleStats(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodGet, "/api/match/stats", nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response struct {
		Index   matching.IndexStats `json:"index"`
		Options matching.Options    `json:"options"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 0.75, response.Options.SimilarityThreshold)
}

func TestHandleExportMatches(t *testing.T) {
	_, router := newTestServer(t)

	rec := doJSON(t, router, http.MethodPost, "/api/products", matching.ProductRecord{
		Name: "Coca-Cola Classic", BrandName: "Coca-Cola", Size: "1.5L",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	filename := filepath.Join(t.TempDir(), "report.json")
	rec = doJSON(t, router, http.MethodPost, "/api/match/export", map[string]interface{}{
		"name":       "Coca-Cola Classic",
		"brand_name": "Coca-Cola",
		"size":       "1.5L",
		"format":     "json",
		"filename":   filename,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var response struct {
		Rows int `json:"rows"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &response))
	assert.Equal(t, 1, response.Rows)
}
