package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Bagi4-source/Mirotok/internal/api"
	"github.com/Bagi4-source/Mirotok/internal/config"
	"github.com/Bagi4-source/Mirotok/internal/logging"
	"github.com/Bagi4-source/Mirotok/internal/store"
)

func main() {
	logging.Init("logs", "api", "MIROTOK ")
	defer logging.Close()

	path := os.Getenv("MIROTOK_CONFIG")
	if path == "" {
		path = "configs/config.json"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("❌ Критическая ошибка: %s: %v", path, err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	repo, closeRepo, err := store.Open(ctx, store.Options{
		Driver:   cfg.Storage.Driver,
		DSN:      cfg.Storage.DSN,
		Database: cfg.Storage.Database,
	})
	if err != nil {
		log.Fatalf("❌ Не удалось открыть хранилище (%s): %v", cfg.Storage.Driver, err)
	}
	log.Printf("✅ Хранилище: %s", cfg.Storage.Driver)

	if err := api.Run(ctx, cfg.API.Addr, api.NewHandler(repo).Router()); err != nil {
		log.Printf("❌ API остановлен с ошибкой: %v", err)
	}

	closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := closeRepo(closeCtx); err != nil {
		log.Printf("⚠️ Ошибка закрытия хранилища: %v", err)
	}
	log.Println("⏹ API остановлен")
}
