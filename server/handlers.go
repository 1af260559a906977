package server

import (
	"log"
	"net/http"
	"strconv"
	"time"

	"productmatcher/matching"

	"github.com/gin-gonic/gin"
)

// matchRequest тело запроса поиска похожих товаров
type matchRequest struct {
	Name      string `json:"name" binding:"required"`
	BrandName string `json:"brand_name"`
	Variety   string `json:"variety"`
	Size      string `json:"size"`
	Limit     int    `json:"limit"`
}

// candidate преобразует запрос во входной кандидат сопоставления
func (r matchRequest) candidate() matching.ProductCandidate {
	return matching.ProductCandidate{
		Name:      r.Name,
		BrandName: r.BrandName,
		Variety:   r.Variety,
		Size:      r.Size,
	}
}

// matchResult совпадение с производным типом для бизнес-логики
type matchResult struct {
	matching.ProductMatch
	MatchType string `json:"match_type"`
}

// handleHealth проверка живости сервиса
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":         "ok",
		"total_products": s.engine.Index().TotalProducts(),
		"time":           time.Now().Format(time.RFC3339),
	})
}

// handleFindSimilar возвращает похожие товары, отсортированные по убыванию оценки
func (s *Server) handleFindSimilar(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendJSONError(c, http.StatusBadRequest, "неверный формат тела запроса: "+err.Error())
		return
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	matches := s.engine.FindSimilarProducts(c.Request.Context(), req.candidate(), limit)

	results := make([]matchResult, 0, len(matches))
	for _, m := range matches {
		results = append(results, matchResult{
			ProductMatch: m,
			MatchType:    matching.DeriveMatchType(m, s.config.Matching.ExactMatchThreshold),
		})
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   req.candidate(),
		"total":   len(results),
		"matches": results,
	})
}

// handleCheckDuplicate проверяет, является ли кандидат дубликатом известного товара
func (s *Server) handleCheckDuplicate(c *gin.Context) {
	var req matchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendJSONError(c, http.StatusBadRequest, "неверный формат тела запроса: "+err.Error())
		return
	}

	isDuplicate, best := s.engine.IsDuplicate(c.Request.Context(), req.candidate())

	response := gin.H{"is_duplicate": isDuplicate}
	if best != nil {
		response["best_match"] = matchResult{
			ProductMatch: *best,
			MatchType:    matching.DeriveMatchType(*best, s.config.Matching.ExactMatchThreshold),
		}
	}

	c.JSON(http.StatusOK, response)
}

// handleReindex перестраивает индекс кандидатов из авторитетного хранилища
func (s *Server) handleReindex(c *gin.Context) {
	start := time.Now()
	indexed, failed, err := s.engine.RefreshFromSource(c.Request.Context(), s.productsDB, s.config.BulkPageSize)
	if err != nil {
		sendJSONError(c, http.StatusInternalServerError, "ошибка переиндексации: "+err.Error())
		return
	}

	log.Printf("Переиндексация завершена: %d записей, %d пропущено, %s", indexed, failed, time.Since(start))
	c.JSON(http.StatusOK, gin.H{
		"indexed":     indexed,
		"failed":      failed,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

// handleStats возвращает статистику индекса и параметры сопоставления
func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"index":   s.engine.Index().Stats(),
		"options": s.engine.Options(),
	})
}

// exportRequest запрос выгрузки отчета совпадений
type exportRequest struct {
	matchRequest
	Format   string `json:"format"`
	Filename string `json:"filename" binding:"required"`
}

// handleExportMatches формирует отчет совпадений в файл (json/csv/excel)
func (s *Server) handleExportMatches(c *gin.Context) {
	var req exportRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendJSONError(c, http.StatusBadRequest, "неверный формат тела запроса: "+err.Error())
		return
	}

	format := matching.ExportFormat(req.Format)
	if format == "" {
		format = matching.FormatJSON
	}

	limit := req.Limit
	if limit <= 0 {
		limit = 50
	}

	cand := req.candidate()
	matches := s.engine.FindSimilarProducts(c.Request.Context(), cand, limit)

	if err := s.exporter.Export(req.Filename, format, cand, matches); err != nil {
		sendJSONError(c, http.StatusInternalServerError, "ошибка выгрузки отчета: "+err.Error())
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"filename": req.Filename,
		"format":   string(format),
		"rows":     len(matches),
	})
}

// handleUpsertProduct сохраняет товар и обновляет индексы
// Поля, заполненные внешними распознавателями, проходят через корректор
func (s *Server) handleUpsertProduct(c *gin.Context) {
	var rec matching.ProductRecord
	if err := c.ShouldBindJSON(&rec); err != nil {
		sendJSONError(c, http.StatusBadRequest, "неверный формат тела запроса: "+err.Error())
		return
	}
	if rec.Name == "" {
		sendJSONError(c, http.StatusBadRequest, "name is required")
		return
	}

	rec = s.corrector.Apply(rec)
	ctx := c.Request.Context()

	existed := rec.ID != ""
	if existed {
		if _, err := s.productsDB.GetByID(ctx, rec.ID); err != nil {
			existed = false
		}
	}

	if err := s.productsDB.Upsert(ctx, &rec); err != nil {
		sendJSONError(c, http.StatusInternalServerError, "ошибка сохранения товара: "+err.Error())
		return
	}

	var err error
	if existed {
		err = s.engine.UpdateProduct(ctx, rec.ID, rec)
	} else {
		err = s.engine.AddProduct(ctx, rec)
	}
	if err != nil {
		sendJSONError(c, http.StatusInternalServerError, "ошибка индексации товара: "+err.Error())
		return
	}

	status := http.StatusOK
	if !existed {
		status = http.StatusCreated
	}
	c.JSON(status, rec)
}

// handleGetProduct возвращает товар по идентификатору
func (s *Server) handleGetProduct(c *gin.Context) {
	id := c.Param("id")
	rec, err := s.productsDB.GetByID(c.Request.Context(), id)
	if err != nil {
		sendJSONError(c, http.StatusNotFound, "товар не найден: "+strconv.Quote(id))
		return
	}
	c.JSON(http.StatusOK, rec)
}

// handleDeleteProduct удаляет товар из хранилища и индексов
func (s *Server) handleDeleteProduct(c *gin.Context) {
	id := c.Param("id")
	if err := s.productsDB.Delete(c.Request.Context(), id); err != nil {
		sendJSONError(c, http.StatusNotFound, "товар не найден: "+strconv.Quote(id))
		return
	}
	if err := s.engine.RemoveProduct(c.Request.Context(), id); err != nil {
		log.Printf("Товар %s удален из хранилища, но не из индекса: %v", id, err)
	}
	c.JSON(http.StatusOK, gin.H{"deleted": id})
}

// sendJSONError отправляет ошибку в едином формате
func sendJSONError(c *gin.Context, status int, message string) {
	c.JSON(status, gin.H{"error": message})
}
