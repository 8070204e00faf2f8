package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Окружения приложения
const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Драйверы хранилища
const (
	DriverPostgres = "postgres"
	DriverMemory   = "memory"
)

// Config представляет структуру конфигурации для приложения.
type Config struct {
	App struct {
		Port            string        `mapstructure:"port"`
		Env             string        `mapstructure:"env"`
		PublicURL       string        `mapstructure:"publicUrl"`
		LogLevel        string        `mapstructure:"logLevel"`
		ShutdownTimeout time.Duration `mapstructure:"shutdownTimeout"`
	} `mapstructure:"app"`
	Database struct {
		DSN     string `mapstructure:"dsn"`
		Driver  string `mapstructure:"driver"`
		Migrate bool   `mapstructure:"migrate"`
	} `mapstructure:"database"`
	Redis struct {
		Enabled  bool          `mapstructure:"enabled"`
		Addr     string        `mapstructure:"addr"`
		Password string        `mapstructure:"password"`
		DB       int           `mapstructure:"db"`
		CacheTTL time.Duration `mapstructure:"cacheTTL"`
	} `mapstructure:"redis"`
	Kafka struct {
		Enabled      bool     `mapstructure:"enabled"`
		Brokers      []string `mapstructure:"brokers"`
		Driver       string   `mapstructure:"driver"`
		EnsureTopics bool     `mapstructure:"ensureTopics"`
	} `mapstructure:"kafka"`
	Stripe struct {
		APIKey        string        `mapstructure:"apiKey"`
		WebhookSecret string        `mapstructure:"webhookSecret"`
		RetryMaxTime  time.Duration `mapstructure:"retryMaxTime"`
		ProductIDs    struct {
			AdoptLanguage      string `mapstructure:"adoptLanguage"`
			SponsorTranslation string `mapstructure:"sponsorTranslation"`
			GeneralDonation    string `mapstructure:"generalDonation"`
		} `mapstructure:"productIds"`
	} `mapstructure:"stripe"`
	Auth struct {
		JWTSecret string `mapstructure:"jwtSecret"`
	} `mapstructure:"auth"`
	SMTP struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Key      string `mapstructure:"key"`
		From     string `mapstructure:"from"`
		FromName string `mapstructure:"fromName"`
	} `mapstructure:"smtp"`
	Expiry struct {
		Enabled           bool          `mapstructure:"enabled"`
		Interval          time.Duration `mapstructure:"interval"`
		LockTTL           time.Duration `mapstructure:"lockTTL"`
		OneTimePeriodDays int           `mapstructure:"oneTimePeriodDays"`
	} `mapstructure:"expiry"`
}

// envBindings явные имена переменных окружения для секретов и адресов
var envBindings = map[string]string{
	"app.port":             "PORT",
	"app.env":              "APP_ENV",
	"app.publicUrl":        "PUBLIC_URL",
	"app.logLevel":         "LOG_LEVEL",
	"database.dsn":         "DATABASE_URL",
	"redis.addr":           "REDIS_ADDR",
	"redis.password":       "REDIS_PASSWORD",
	"kafka.brokers":        "KAFKA_BROKERS",
	"stripe.apiKey":        "STRIPE_SECRET_KEY",
	"stripe.webhookSecret": "STRIPE_WEBHOOK_SECRET",
	"auth.jwtSecret":       "JWT_SECRET",
	"smtp.host":            "BREVO_SMTP_HOST",
	"smtp.port":            "BREVO_SMTP_PORT",
	"smtp.user":            "BREVO_SMTP_USER",
	"smtp.key":             "BREVO_SMTP_KEY",
	"smtp.from":            "EMAIL_FROM",

	"stripe.productIds.adoptLanguage":      "STRIPE_PRODUCT_ADOPT_LANGUAGE",
	"stripe.productIds.sponsorTranslation": "STRIPE_PRODUCT_SPONSOR_TRANSLATION",
	"stripe.productIds.generalDonation":    "STRIPE_PRODUCT_GENERAL_DONATION",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.port", "8080")
	v.SetDefault("app.env", EnvDevelopment)
	v.SetDefault("app.publicUrl", "http://localhost:3000")
	v.SetDefault("app.logLevel", "info")
	v.SetDefault("app.shutdownTimeout", 15*time.Second)

	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.migrate", true)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.cacheTTL", 5*time.Minute)

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.driver", "sarama")
	v.SetDefault("kafka.ensureTopics", true)

	v.SetDefault("stripe.retryMaxTime", 30*time.Second)

	v.SetDefault("smtp.port", 587)
	v.SetDefault("smtp.from", "partners@loveworldeurope.org")
	v.SetDefault("smtp.fromName", "Loveworld Europe")

	v.SetDefault("expiry.enabled", true)
	v.SetDefault("expiry.interval", time.Hour)
	v.SetDefault("expiry.lockTTL", 5*time.Minute)
	v.SetDefault("expiry.oneTimePeriodDays", 30)
}

// LoadConfig загружает конфигурацию из config.yml (если есть) и переменных окружения.
// Вне production сначала подгружается envPath (.env), если файл существует.
func LoadConfig(envPath string) (*Config, error) {
	if os.Getenv("APP_ENV") != EnvProduction && envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", envPath, err)
		}
	}

	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv() // Чтение переменных окружения
	for key, env := range envBindings {
		if err := v.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", env, err)
		}
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	config.Kafka.Brokers = splitList(config.Kafka.Brokers)

	return &config, config.Validate()
}

// splitList разбирает KAFKA_BROKERS="a:9092,b:9092"
func splitList(items []string) []string {
	var out []string
	for _, item := range items {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

// IsDevelopment - локальный запуск
func (c *Config) IsDevelopment() bool {
	return c.App.Env == EnvDevelopment
}

// Validate проверяет обязательные параметры
func (c *Config) Validate() error {
	var problems []string

	switch c.Database.Driver {
	case DriverPostgres:
		if c.Database.DSN == "" {
			problems = append(problems, "database.dsn (DATABASE_URL) is required for the postgres driver")
		}
	case DriverMemory:
	default:
		problems = append(problems, fmt.Sprintf("database.driver %q is not supported", c.Database.Driver))
	}

	if !c.IsDevelopment() {
		if c.Stripe.APIKey == "" {
			problems = append(problems, "stripe.apiKey (STRIPE_SECRET_KEY) is required")
		}
		if c.Stripe.WebhookSecret == "" {
			problems = append(problems, "stripe.webhookSecret (STRIPE_WEBHOOK_SECRET) is required")
		}
		if c.Auth.JWTSecret == "" {
			problems = append(problems, "auth.jwtSecret (JWT_SECRET) is required")
		}
	}

	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		problems = append(problems, "kafka.brokers is required when kafka is enabled")
	}
	if c.Expiry.OneTimePeriodDays <= 0 {
		problems = append(problems, "expiry.oneTimePeriodDays must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
