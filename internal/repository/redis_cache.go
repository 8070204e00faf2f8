package repository

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/redis/go-redis/v9"
)

const (
	// Префиксы ключей для различных типов данных
	languageKeyPrefix      = "donations:language:"
	languageListKeyPrefix  = "donations:languages:"
	checkoutSettingsKey    = "donations:checkout_settings"
	lockKeyPrefix          = "donations:lock:"
	languageInvalidateScan = "donations:language*"

	// TTL для кэша
	defaultCacheTTL = 15 * time.Minute
)

// releaseLockScript удаляет ключ блокировки, только если он все еще наш
var releaseLockScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// CatalogueCache кеш каталога языков и настроек оформления
type CatalogueCache interface {
	CacheLanguage(ctx context.Context, lang *domain.Language) error
	GetCachedLanguage(ctx context.Context, id string) (*domain.Language, error)
	CacheLanguages(ctx context.Context, filter domain.LanguageFilter, langs []domain.Language) error
	GetCachedLanguages(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error)
	InvalidateLanguages(ctx context.Context) error

	CacheCheckoutSettings(ctx context.Context, settings *domain.CheckoutSettings) error
	GetCachedCheckoutSettings(ctx context.Context) (*domain.CheckoutSettings, error)
	InvalidateCheckoutSettings(ctx context.Context) error
}

// RedisCacheRepository реализует кеширование для репозиториев с использованием Redis
type RedisCacheRepository struct {
	client *redis.Client
	ttl    time.Duration
	log    *logger.Logger
}

// NewRedisCacheRepository создает новый экземпляр Redis репозитория
func NewRedisCacheRepository(redisAddr, redisPassword string, redisDB int, ttl time.Duration, log *logger.Logger) (*RedisCacheRepository, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: redisPassword,
		DB:       redisDB,
	})

	// Проверяем соединение с Redis
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		log.Errorw("Failed to connect to Redis", "error", err)
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.Infow("Connected to Redis successfully", "addr", redisAddr)
	return NewRedisCacheFromClient(client, ttl, log), nil
}

// NewRedisCacheFromClient оборачивает готовый клиент
func NewRedisCacheFromClient(client *redis.Client, ttl time.Duration, log *logger.Logger) *RedisCacheRepository {
	if ttl <= 0 {
		ttl = defaultCacheTTL
	}
	return &RedisCacheRepository{client: client, ttl: ttl, log: log}
}

// Close закрывает соединение с Redis
func (r *RedisCacheRepository) Close() error {
	return r.client.Close()
}

// Ping проверяет доступность Redis (для /health)
func (r *RedisCacheRepository) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCacheRepository) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", key, err)
	}
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		return fmt.Errorf("failed to cache %s: %w", key, err)
	}
	return nil
}

// getJSON возвращает false без ошибки, если ключа нет
func (r *RedisCacheRepository) getJSON(ctx context.Context, key string, v any) (bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil
		}
		return false, fmt.Errorf("failed to get %s from cache: %w", key, err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("failed to unmarshal cached %s: %w", key, err)
	}
	return true, nil
}

// CacheLanguage кеширует язык
func (r *RedisCacheRepository) CacheLanguage(ctx context.Context, lang *domain.Language) error {
	if err := r.setJSON(ctx, languageKeyPrefix+lang.ID, lang); err != nil {
		r.log.Errorw("Failed to cache language", "error", err, "languageID", lang.ID)
		return err
	}
	r.log.Debugw("Language cached successfully", "languageID", lang.ID)
	return nil
}

// GetCachedLanguage получает язык из кеша; nil, nil если в кеше его нет
func (r *RedisCacheRepository) GetCachedLanguage(ctx context.Context, id string) (*domain.Language, error) {
	var lang domain.Language
	found, err := r.getJSON(ctx, languageKeyPrefix+id, &lang)
	if err != nil {
		r.log.Errorw("Error getting language from Redis", "error", err, "languageID", id)
		return nil, err
	}
	if !found {
		r.log.Debugw("Language not found in cache", "languageID", id)
		return nil, nil
	}
	return &lang, nil
}

func languageListKey(filter domain.LanguageFilter) string {
	return fmt.Sprintf("%sstatus=%s:region=%s", languageListKeyPrefix, filter.Status, filter.Region)
}

// CacheLanguages кеширует страницу каталога для фильтра
func (r *RedisCacheRepository) CacheLanguages(ctx context.Context, filter domain.LanguageFilter, langs []domain.Language) error {
	if err := r.setJSON(ctx, languageListKey(filter), langs); err != nil {
		r.log.Errorw("Failed to cache language list", "error", err)
		return err
	}
	r.log.Debugw("Language list cached successfully", "count", len(langs))
	return nil
}

// GetCachedLanguages получает каталог из кеша; nil, nil если в кеше его нет
func (r *RedisCacheRepository) GetCachedLanguages(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error) {
	var langs []domain.Language
	found, err := r.getJSON(ctx, languageListKey(filter), &langs)
	if err != nil {
		r.log.Errorw("Error getting language list from Redis", "error", err)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if langs == nil {
		langs = []domain.Language{}
	}
	return langs, nil
}

// InvalidateLanguages удаляет все закешированные языки и страницы каталога
func (r *RedisCacheRepository) InvalidateLanguages(ctx context.Context) error {
	var keys []string
	iter := r.client.Scan(ctx, 0, languageInvalidateScan, 100).Iterator()
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
	}
	if err := iter.Err(); err != nil {
		r.log.Errorw("Failed to scan language cache keys", "error", err)
		return fmt.Errorf("failed to scan language cache: %w", err)
	}
	if len(keys) == 0 {
		return nil
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		r.log.Errorw("Failed to invalidate language cache", "error", err)
		return fmt.Errorf("failed to invalidate language cache: %w", err)
	}
	r.log.Debugw("Language cache invalidated", "keys", len(keys))
	return nil
}

// CacheCheckoutSettings кеширует настройки оформления
func (r *RedisCacheRepository) CacheCheckoutSettings(ctx context.Context, settings *domain.CheckoutSettings) error {
	if err := r.setJSON(ctx, checkoutSettingsKey, settings); err != nil {
		r.log.Errorw("Failed to cache checkout settings", "error", err)
		return err
	}
	return nil
}

// GetCachedCheckoutSettings получает настройки из кеша; nil, nil если в кеше их нет
func (r *RedisCacheRepository) GetCachedCheckoutSettings(ctx context.Context) (*domain.CheckoutSettings, error) {
	var s domain.CheckoutSettings
	found, err := r.getJSON(ctx, checkoutSettingsKey, &s)
	if err != nil {
		r.log.Errorw("Error getting checkout settings from Redis", "error", err)
		return nil, err
	}
	if !found {
		return nil, nil
	}
	return &s, nil
}

// InvalidateCheckoutSettings удаляет настройки из кеша
func (r *RedisCacheRepository) InvalidateCheckoutSettings(ctx context.Context) error {
	if err := r.client.Del(ctx, checkoutSettingsKey).Err(); err != nil {
		r.log.Errorw("Failed to invalidate checkout settings cache", "error", err)
		return fmt.Errorf("failed to invalidate checkout settings cache: %w", err)
	}
	return nil
}

// AcquireLock пытается захватить именованную блокировку на ttl.
// Возвращает токен владельца, который нужен для ReleaseLock.
func (r *RedisCacheRepository) AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", false, fmt.Errorf("failed to generate lock token: %w", err)
	}
	token := hex.EncodeToString(buf)

	ok, err := r.client.SetNX(ctx, lockKeyPrefix+name, token, ttl).Result()
	if err != nil {
		r.log.Errorw("Failed to acquire lock", "error", err, "lock", name)
		return "", false, fmt.Errorf("failed to acquire lock %s: %w", name, err)
	}
	if !ok {
		r.log.Debugw("Lock is held by another instance", "lock", name)
		return "", false, nil
	}
	return token, true, nil
}

// ReleaseLock освобождает блокировку, если она все еще принадлежит token
func (r *RedisCacheRepository) ReleaseLock(ctx context.Context, name, token string) error {
	if err := releaseLockScript.Run(ctx, r.client, []string{lockKeyPrefix + name}, token).Err(); err != nil {
		r.log.Warnw("Failed to release lock", "error", err, "lock", name)
		return fmt.Errorf("failed to release lock %s: %w", name, err)
	}
	return nil
}
