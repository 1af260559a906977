package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"productmatcher/database"
	"productmatcher/internal/config"
	"productmatcher/matching"
	"productmatcher/scalableindex"
	"productmatcher/server"
)

func main() {
	log.Println("Запуск сервиса сопоставления товаров...")

	// Загружаем конфигурацию из переменных окружения
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Ошибка загрузки конфигурации: %v", err)
	}

	// Авторитетное хранилище каталога
	productsDB, err := database.NewProductsDB(cfg.ProductsDBPath)
	if err != nil {
		log.Fatalf("Ошибка открытия базы товаров: %v", err)
	}
	defer productsDB.Close()
	log.Printf("Используется база товаров: %s", cfg.ProductsDBPath)

	normalizer := matching.NewNormalizer()

	// Внешний индекс: Redis, если задан адрес, иначе индекс в памяти
	var scalable matching.ScalableIndex
	if cfg.RedisAddr != "" {
		redisIndex, err := scalableindex.NewRedisIndex(
			cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB,
			normalizer, cfg.Matching.NGramSize, cfg.Matching.MinNGramMatches,
		)
		if err != nil {
			log.Printf("Redis недоступен (%v), используется индекс в памяти", err)
			scalable = scalableindex.NewMemoryIndex(normalizer, cfg.Matching.NGramSize, cfg.Matching.MinNGramMatches)
		} else {
			defer redisIndex.Close()
			scalable = redisIndex
			log.Printf("Используется внешний индекс: %s", cfg.RedisAddr)
		}
	} else {
		scalable = scalableindex.NewMemoryIndex(normalizer, cfg.Matching.NGramSize, cfg.Matching.MinNGramMatches)
		log.Println("Адрес Redis не задан, используется индекс в памяти")
	}

	// Индекс кандидатов с восстановлением из снимка
	index := matching.NewCandidateIndex(normalizer)
	loaded, purged := index.LoadSnapshot(cfg.SnapshotPath, cfg.CacheTTL)
	if loaded > 0 || purged > 0 {
		log.Printf("Снимок кэша загружен: %d записей, %d устаревших отброшено", loaded, purged)
	}

	engine, err := matching.NewMatcherEngine(normalizer, index, scalable, cfg.Matching)
	if err != nil {
		log.Fatalf("Ошибка создания движка сопоставления: %v", err)
	}

	// Если снимка не было, перестраиваем кэш из хранилища
	if index.TotalProducts() == 0 {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		indexed, failed, err := engine.RefreshFromSource(ctx, productsDB, cfg.BulkPageSize)
		cancel()
		if err != nil {
			log.Printf("Предупреждение: не удалось перестроить кэш: %v", err)
		} else if indexed > 0 {
			log.Printf("Кэш построен из хранилища: %d записей, %d пропущено", indexed, failed)
		}
	}

	// Периодическое сохранение снимка
	stopAutoSave := index.StartAutoSave(cfg.SnapshotPath, cfg.AutoSaveInterval)
	defer stopAutoSave()

	corrector := matching.NewCorrector(normalizer)
	srv := server.NewServer(cfg, engine, corrector, productsDB)

	// Запускаем сервер в отдельной горутине
	go func() {
		if err := srv.Start(); err != nil {
			log.Fatalf("Ошибка запуска сервера: %v", err)
		}
	}()

	// Ожидаем сигнал остановки
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка остановки сервера: %v", err)
	}

	// Финальный снимок кэша перед выходом
	if err := index.SaveSnapshot(cfg.SnapshotPath); err != nil {
		log.Printf("Ошибка сохранения снимка кэша: %v", err)
	}
	log.Println("Сервис остановлен")
}
