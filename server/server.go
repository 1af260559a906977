// Package server HTTP API сервиса сопоставления товаров.
package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"productmatcher/database"
	"productmatcher/internal/config"
	"productmatcher/matching"

	"github.com/gin-gonic/gin"
)

// Server HTTP сервер для поиска похожих товаров и проверки дубликатов
type Server struct {
	config     *config.Config
	engine     *matching.MatcherEngine
	corrector  *matching.Corrector
	exporter   *matching.Exporter
	productsDB *database.ProductsDB
	httpServer *http.Server
}

// NewServer создает новый сервер с уже собранным движком сопоставления
func NewServer(cfg *config.Config, engine *matching.MatcherEngine, corrector *matching.Corrector, productsDB *database.ProductsDB) *Server {
	return &Server{
		config:     cfg,
		engine:     engine,
		corrector:  corrector,
		exporter:   matching.NewExporter(cfg.Matching.ExactMatchThreshold),
		productsDB: productsDB,
	}
}

// setupRoutes регистрирует маршруты API
func (s *Server) setupRoutes() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger())

	router.GET("/health", s.handleHealth)

	api := router.Group("/api")
	{
		match := api.Group("/match")
		{
			match.POST("/similar", s.handleFindSimilar)
			match.POST("/duplicate", s.handleCheckDuplicate)
			match.POST("/reindex", s.handleReindex)
			match.POST("/export", s.handleExportMatches)
			match.GET("/stats", s.handleStats)
		}

		products := api.Group("/products")
		{
			products.POST("", s.handleUpsertProduct)
			products.GET("/:id", s.handleGetProduct)
			products.DELETE("/:id", s.handleDeleteProduct)
		}
	}

	return router
}

// Start запускает HTTP сервер и блокируется до его остановки
func (s *Server) Start() error {
	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         ":" + s.config.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	log.Printf("Сервер сопоставления запущен на порту %s", s.config.Port)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("ошибка HTTP сервера: %w", err)
	}
	return nil
}

// Shutdown останавливает сервер с ожиданием активных запросов
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	log.Println("Остановка сервера сопоставления...")
	return s.httpServer.Shutdown(ctx)
}

// requestLogger логирует запросы в стандартный журнал
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Printf("%s %s -> %d (%s)", c.Request.Method, c.Request.URL.Path, c.Writer.Status(), time.Since(start))
	}
}
