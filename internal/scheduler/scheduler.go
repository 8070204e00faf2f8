package scheduler

import (
	"context"
	"time"

	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/internal/services"
	"github.com/loveworld-europe/donations/pkg/logger"
)

const expiryJob = "expire-adoptions"

// Locker распределенная блокировка, чтобы очистку запускала одна реплика
type Locker interface {
	AcquireLock(ctx context.Context, name string, ttl time.Duration) (string, bool, error)
	ReleaseLock(ctx context.Context, name, token string) error
}

// ExpiryRunner запускает очистку истекших кампаний
type ExpiryRunner interface {
	Run(ctx context.Context) (*services.ExpiryReport, error)
}

// Config параметры планировщика
type Config struct {
	Interval time.Duration
	LockTTL  time.Duration
}

// ExpiryScheduler периодически запускает очистку под блокировкой
type ExpiryScheduler struct {
	cfg     Config
	runner  ExpiryRunner
	locker  Locker
	metrics metrics.SystemMetrics
	clock   clock.Clock
	log     *logger.Logger
}

// NewExpiryScheduler создает планировщик. locker == nil означает запуск без блокировки.
func NewExpiryScheduler(cfg Config, runner ExpiryRunner, locker Locker, m metrics.SystemMetrics, clk clock.Clock, log *logger.Logger) *ExpiryScheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 5 * time.Minute
	}
	return &ExpiryScheduler{
		cfg:     cfg,
		runner:  runner,
		locker:  locker,
		metrics: m,
		clock:   clk,
		log:     log,
	}
}

// RunOnce выполняет один запуск. Возвращает false, если блокировка занята.
func (s *ExpiryScheduler) RunOnce(ctx context.Context) (bool, error) {
	if s.locker != nil {
		token, ok, err := s.locker.AcquireLock(ctx, expiryJob, s.cfg.LockTTL)
		if err != nil {
			s.log.Errorw("Failed to acquire scheduler lock", "job", expiryJob, "error", err)
			return false, err
		}
		if !ok {
			s.log.Debugw("Scheduler lock is held by another replica", "job", expiryJob)
			return false, nil
		}
		defer func() {
			// блокировку освобождаем даже при отмене основного контекста
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.locker.ReleaseLock(releaseCtx, expiryJob, token); err != nil {
				s.log.Warnw("Failed to release scheduler lock", "job", expiryJob, "error", err)
			}
		}()
	}

	report, err := s.runner.Run(ctx)
	s.metrics.SchedulerTick(expiryJob, s.clock.Now())
	if err != nil {
		s.log.Errorw("Scheduled expiry sweep failed", "error", err)
		return true, err
	}
	s.log.Infow("Scheduled expiry sweep done", "expired", report.ExpiredCampaigns, "results", len(report.Results))
	return true, nil
}

// RunForever запускает очистку сразу и затем с интервалом, пока ctx не отменен
func (s *ExpiryScheduler) RunForever(ctx context.Context) {
	s.log.Infow("Expiry scheduler started", "interval", s.cfg.Interval)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		_, _ = s.RunOnce(ctx)

		select {
		case <-ctx.Done():
			s.log.Infow("Expiry scheduler stopped")
			return
		case <-ticker.C:
		}
	}
}
