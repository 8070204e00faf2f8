package routes

import (
	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/http/handlers"
	"github.com/loveworld-europe/donations/internal/middleware"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Наборы ролей для административных маршрутов
var (
	anyAdmin      = []middleware.Role{middleware.RoleSuperAdmin, middleware.RoleCampaignManager, middleware.RoleViewer}
	campaignAdmin = []middleware.Role{middleware.RoleSuperAdmin, middleware.RoleCampaignManager}
	superAdmin    = []middleware.Role{middleware.RoleSuperAdmin}
)

// Handlers обработчики, которые подключаются к роутеру
type Handlers struct {
	Payments  *handlers.PaymentHandler
	Webhooks  *handlers.WebhookHandler
	Admin     *handlers.AdminHandler
	Settings  *handlers.SettingsHandler
	Languages *handlers.LanguageHandler
	Health    *handlers.HealthHandler
}

// NewRouter создает gin.Engine с middleware и всеми маршрутами
func NewRouter(h Handlers, auth *middleware.AuthMiddleware, registry *prometheus.Registry, log *logger.Logger) *gin.Engine {
	router := gin.New()
	SetupRoutes(router, h, auth, registry, log)
	return router
}

// SetupRoutes настраивает все маршруты API для Gin роутера
func SetupRoutes(router *gin.Engine, h Handlers, auth *middleware.AuthMiddleware, registry *prometheus.Registry, log *logger.Logger) {
	// Промежуточное ПО для всех запросов
	router.Use(middleware.RequestLogger(log))
	router.Use(gin.Recovery())

	router.GET("/health", h.Health.HealthCheck)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	api := router.Group("/api")
	{
		// Публичные маршруты
		api.POST("/webhooks/stripe", h.Webhooks.HandleStripeWebhook)
		api.POST("/payments/create-intent", h.Payments.CreateIntent)
		api.GET("/checkout-settings", h.Settings.Get)
		api.GET("/languages", h.Languages.List)
		api.GET("/languages/:id", h.Languages.Get)

		admin := api.Group("/admin")
		{
			admin.GET("/campaigns/expire-adoptions", auth.RequireRole(anyAdmin...), h.Admin.PreviewExpiry)
			admin.POST("/campaigns/expire-adoptions", auth.RequireRole(campaignAdmin...), h.Admin.RunExpiry)

			admin.GET("/campaigns", auth.RequireRole(anyAdmin...), h.Admin.ListCampaigns)
			admin.POST("/campaigns/:id/cancel", auth.RequireRole(campaignAdmin...), h.Admin.CancelCampaign)
			admin.GET("/dashboard", auth.RequireRole(anyAdmin...), h.Admin.Dashboard)
			admin.POST("/partners/:id/impact-report", auth.RequireRole(campaignAdmin...), h.Admin.SendImpactReport)

			admin.GET("/checkout-settings", auth.RequireRole(anyAdmin...), h.Settings.Get)
			admin.POST("/checkout-settings", auth.RequireRole(superAdmin...), h.Settings.Upsert)
		}
	}

	log.Infow("API routes successfully configured")
}
