package handlers

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/clock"
	"github.com/loveworld-europe/donations/internal/metrics"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/res"
)

const healthCheckTimeout = 2 * time.Second

// PingFunc проверяет доступность зависимости
type PingFunc func(ctx context.Context) error

// HealthHandler обработчик для проверки работоспособности сервиса
type HealthHandler struct {
	checks  map[string]PingFunc
	metrics metrics.SystemMetrics
	clock   clock.Clock
	log     *logger.Logger
}

// NewHealthHandler создает обработчик /health; checks может быть пустым
func NewHealthHandler(checks map[string]PingFunc, m metrics.SystemMetrics, clk clock.Clock, log *logger.Logger) *HealthHandler {
	return &HealthHandler{checks: checks, metrics: m, clock: clk, log: log.Named("health")}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Time         string            `json:"time"`
	Dependencies map[string]string `json:"dependencies,omitempty"`
}

// HealthCheck GET /health
func (h *HealthHandler) HealthCheck(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()

	names := make([]string, 0, len(h.checks))
	for name := range h.checks {
		names = append(names, name)
	}
	sort.Strings(names)

	resp := healthResponse{Status: "OK", Time: h.clock.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK
	for _, name := range names {
		if resp.Dependencies == nil {
			resp.Dependencies = make(map[string]string, len(names))
		}
		err := h.checks[name](ctx)
		h.metrics.SetDependencyUp(name, err == nil)
		if err != nil {
			h.log.Warnw("Dependency check failed", "dependency", name, "error", err)
			resp.Dependencies[name] = "DOWN"
			resp.Status = "DEGRADED"
			status = http.StatusServiceUnavailable
			continue
		}
		resp.Dependencies[name] = "UP"
	}
	res.JsonResponse(c.Writer, resp, status)
}
