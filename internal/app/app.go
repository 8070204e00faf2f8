package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/config"
	"github.com/loveworld-europe/donations/internal/db"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/http/handlers"
	"github.com/loveworld-europe/donations/internal/http/routes"
	"github.com/loveworld-europe/donations/internal/kafka"
	"github.com/loveworld-europe/donations/internal/kafka/producer"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/middleware"
	"github.com/loveworld-europe/donations/internal/repository"
	"github.com/loveworld-europe/donations/internal/repository/memory"
	"github.com/loveworld-europe/donations/internal/repository/postgres"
	"github.com/loveworld-europe/donations/internal/scheduler"
	"github.com/loveworld-europe/donations/internal/services"
	"github.com/loveworld-europe/donations/internal/stripe"
	"github.com/loveworld-europe/donations/pkg/logger"
)

const postgresMaxConns = 10

// App представляет собой контейнер для всех компонентов приложения
type App struct {
	Config     *config.Config
	Router     *gin.Engine
	Server     *routes.Server
	Scheduler  *scheduler.ExpiryScheduler
	Background *services.Background
	Logger     *logger.Logger

	closers []func() error
}

// NewApp создает и связывает все компоненты. При ошибке уже открытые ресурсы закрываются.
func NewApp(ctx context.Context, cfg *config.Config, log *logger.Logger) (_ *App, err error) {
	a := &App{Config: cfg, Logger: log}
	defer func() {
		if err != nil {
			a.Close()
		}
	}()

	clk := clock.System()
	registry := metrics.NewRegistry()
	donationMetrics := metrics.NewDonationMetrics(registry, log)
	systemMetrics := metrics.NewSystemMetrics(registry, log)
	checks := map[string]handlers.PingFunc{}

	// Хранилище
	var (
		store     repository.Store
		dashboard services.DashboardSource
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		mem := memory.NewStore(log.Named("memory"))
		mem.Seed(memory.Fixtures{Languages: devLanguages(clk.Now())})
		store = mem.Repositories()
		dashboard = mem
		log.Warnw("Using in-memory storage, data is lost on restart")
	default:
		pool, err := postgres.NewConnection(ctx, cfg.Database.DSN, postgresMaxConns, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() error { pool.Close(); return nil })

		dbClient, err := db.NewDBClient(cfg.Database.DSN, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, dbClient.Close)

		if cfg.Database.Migrate {
			if err := db.RunMigrations(dbClient.DB().DB); err != nil {
				return nil, fmt.Errorf("run migrations: %w", err)
			}
			log.Infow("Database migrations applied")
		}

		store = postgres.NewStore(pool, log)
		dashboard = dbClient
		checks["postgres"] = pool.Ping
	}

	// Кеш каталога и блокировка планировщика
	var locker scheduler.Locker
	if cfg.Redis.Enabled {
		cache, err := repository.NewRedisCacheRepository(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.CacheTTL, log)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, cache.Close)
		store = store.WithCache(cache, log.Named("cache"))
		locker = cache
		checks["redis"] = cache.Ping
	}

	// События
	publisher, err := newPublisher(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, publisher.Close)

	// Stripe
	stripeClient := stripe.NewRetryingClient(
		stripe.NewStripeClient(cfg.Stripe.APIKey, log.Named("stripe")),
		cfg.Stripe.RetryMaxTime,
		log.Named("stripe"),
	)

	// Почта
	smtpCfg := email.SMTPConfig{
		Host:     cfg.SMTP.Host,
		Port:     cfg.SMTP.Port,
		Username: cfg.SMTP.User,
		Password: cfg.SMTP.Key,
		From:     cfg.SMTP.From,
		FromName: cfg.SMTP.FromName,
	}
	var sender email.Sender
	if smtpCfg.Configured() {
		sender = email.NewSMTPSender(smtpCfg, log.Named("smtp"))
	} else {
		log.Warnw("SMTP is not configured, emails are only logged")
		sender = email.NewLogSender(log.Named("smtp"))
	}
	emailService := email.NewService(sender, store.Communications, donationMetrics, clk, cfg.App.PublicURL, log.Named("email"))

	// Сервисы
	a.Background = services.NewBackground(log.Named("background"))
	settingsService := services.NewCheckoutSettingsService(store.CheckoutSettings, clk, log.Named("settings"))
	checkoutService := services.NewCheckoutService(
		services.CheckoutConfig{
			ProductIDs: map[domain.CampaignType]string{
				domain.CampaignTypeAdoptLanguage:      cfg.Stripe.ProductIDs.AdoptLanguage,
				domain.CampaignTypeSponsorTranslation: cfg.Stripe.ProductIDs.SponsorTranslation,
				domain.CampaignTypeGeneralDonation:    cfg.Stripe.ProductIDs.GeneralDonation,
			},
			OneTimePeriod: time.Duration(cfg.Expiry.OneTimePeriodDays) * 24 * time.Hour,
		},
		store, settingsService, stripeClient, emailService, publisher, donationMetrics, clk, a.Background, log.Named("checkout"),
	)
	webhookService := services.NewWebhookService(store, emailService, publisher, donationMetrics, clk, a.Background, log.Named("webhooks"))
	expiryService := services.NewExpiryService(store.Campaigns, publisher, donationMetrics, clk, a.Background, log.Named("expiry"))
	campaignService := services.NewCampaignService(store, stripeClient, emailService, publisher, clk, a.Background, log.Named("campaigns"))
	dashboardService := services.NewDashboardService(dashboard, clk, log.Named("dashboard"))

	if cfg.Expiry.Enabled {
		a.Scheduler = scheduler.NewExpiryScheduler(
			scheduler.Config{Interval: cfg.Expiry.Interval, LockTTL: cfg.Expiry.LockTTL},
			expiryService, locker, systemMetrics, clk, log.Named("scheduler"),
		)
	}

	// HTTP
	webhookSecret := cfg.Stripe.WebhookSecret
	if webhookSecret == "" {
		// Только в development: без секрета любая подпись отклоняется
		log.Warnw("Stripe webhook secret is not configured, all webhooks will be rejected")
		webhookSecret = "whsec_unset_" + uuid.NewString()
	}
	webhookHandler, err := handlers.NewWebhookHandler(webhookSecret, webhookService, log)
	if err != nil {
		return nil, err
	}
	auth := middleware.NewAuthMiddleware(&middleware.HMACTokenValidator{Secret: []byte(cfg.Auth.JWTSecret)}, log.Named("auth"))

	a.Router = routes.NewRouter(routes.Handlers{
		Payments:  handlers.NewPaymentHandler(checkoutService, log),
		Webhooks:  webhookHandler,
		Admin:     handlers.NewAdminHandler(expiryService, campaignService, dashboardService, log),
		Settings:  handlers.NewSettingsHandler(settingsService, log),
		Languages: handlers.NewLanguageHandler(campaignService, log),
		Health:    handlers.NewHealthHandler(checks, systemMetrics, clk, log),
	}, auth, registry, log)
	a.Server = routes.NewServer(a.Router, cfg.App.Port, log)

	return a, nil
}

// newPublisher выбирает реализацию публикации событий по конфигурации
func newPublisher(ctx context.Context, cfg *config.Config, log *logger.Logger) (kafka.Publisher, error) {
	if !cfg.Kafka.Enabled {
		log.Infow("Kafka is disabled, events are not published")
		return kafka.NopPublisher{}, nil
	}

	if cfg.Kafka.EnsureTopics {
		if err := kafka.EnsureTopics(ctx, cfg.Kafka.Brokers, log.Named("kafka")); err != nil {
			return nil, fmt.Errorf("ensure kafka topics: %w", err)
		}
	}

	switch cfg.Kafka.Driver {
	case kafka.DriverKafkaGo:
		return kafka.NewWriterPublisher(cfg.Kafka.Brokers, log.Named("kafka"))
	case kafka.DriverSarama, "":
		kafkaConfig := kafka.NewConfig(cfg.Kafka.Brokers)
		p, err := producer.Dial(kafkaConfig, log.Named("kafka"))
		if err != nil {
			return nil, err
		}
		return p, nil
	}
	return nil, fmt.Errorf("unsupported kafka driver %q", cfg.Kafka.Driver)
}

// Run запускает планировщик и HTTP-сервер и блокируется до отмены ctx
func (a *App) Run(ctx context.Context) error {
	schedulerCtx, stopScheduler := context.WithCancel(ctx)
	defer stopScheduler()
	schedulerDone := make(chan struct{})
	if a.Scheduler != nil {
		go func() {
			defer close(schedulerDone)
			a.Scheduler.RunForever(schedulerCtx)
		}()
	} else {
		close(schedulerDone)
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- a.Server.Start()
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-serverErr:
	}

	stopScheduler()
	<-schedulerDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.Config.App.ShutdownTimeout)
	defer cancel()
	if err := a.Server.Shutdown(shutdownCtx); err != nil {
		runErr = errors.Join(runErr, fmt.Errorf("shutdown http server: %w", err))
	}

	// Письма и события, запущенные обработчиками, досылаются до закрытия зависимостей
	a.Background.Wait()
	return runErr
}

// Close освобождает ресурсы в обратном порядке
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.Logger.Warnw("Failed to close resource", "error", err)
		}
	}
	a.closers = nil
}

// devLanguages каталог для запуска без базы данных
func devLanguages(now time.Time) []domain.Language {
	lang := func(id, name, native, code, region string, countries []string, speakers int64, priority int) domain.Language {
		return domain.Language{
			ID:                          id,
			Name:                        name,
			NativeName:                  native,
			ISO639Code:                  code,
			Region:                      region,
			Countries:                   countries,
			SpeakerCount:                speakers,
			AdoptionStatus:              domain.AdoptionStatusAvailable,
			TranslationNeedsSponsorship: true,
			Priority:                    priority,
			CreatedAt:                   now,
			UpdatedAt:                   now,
		}
	}
	return []domain.Language{
		lang("lang_pl", "Polish", "Polski", "pl", "Central Europe", []string{"PL"}, 40000000, 90),
		lang("lang_ro", "Romanian", "Română", "ro", "Eastern Europe", []string{"RO", "MD"}, 24000000, 85),
		lang("lang_hu", "Hungarian", "Magyar", "hu", "Central Europe", []string{"HU"}, 13000000, 75),
		lang("lang_cy", "Welsh", "Cymraeg", "cy", "Western Europe", []string{"GB"}, 880000, 35),
	}
}
