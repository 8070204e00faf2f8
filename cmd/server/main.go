package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/app"
	"github.com/loveworld-europe/donations/internal/config"
	"github.com/loveworld-europe/donations/pkg/logger"
)

func main() {
	envPath := flag.String("env", ".env", "path to .env file (ignored in production)")
	flag.Parse()

	// Загрузка конфигурации
	cfg, err := config.LoadConfig(*envPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Инициализация логгера
	level := logger.ParseLevel(cfg.App.LogLevel)
	var log *logger.Logger
	if cfg.IsDevelopment() {
		log = logger.NewDevelopment(level)
	} else {
		log = logger.New(level)
		gin.SetMode(gin.ReleaseMode)
	}
	defer func() { _ = log.Sync() }()

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Fatalw("Failed to initialize application", "error", err)
	}
	defer application.Close()

	log.Infow("Donations service starting",
		"env", cfg.App.Env,
		"port", cfg.App.Port,
		"storage", cfg.Database.Driver,
		"kafka", cfg.Kafka.Enabled,
		"expiryScheduler", cfg.Expiry.Enabled,
	)

	if err := application.Run(ctx); err != nil {
		log.Errorw("Server stopped with error", "error", err)
		return
	}
	log.Infow("Server stopped gracefully")
}
