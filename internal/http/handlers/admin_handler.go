package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/internal/email"
	"github.com/loveworld-europe/donations/internal/middleware"
	"github.com/loveworld-europe/donations/internal/services"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/req"
	"github.com/loveworld-europe/donations/pkg/res"
)

// ExpiryRunner просмотр и запуск очистки истекших усыновлений
type ExpiryRunner interface {
	Preview(ctx context.Context) (*services.ExpiryPreview, error)
	Run(ctx context.Context) (*services.ExpiryReport, error)
}

// CampaignManager административные операции над кампаниями
type CampaignManager interface {
	List(ctx context.Context, filter domain.CampaignFilter) ([]domain.CampaignDetails, error)
	Cancel(ctx context.Context, id, cancelledBy string) (*domain.Campaign, error)
	SendImpactReport(ctx context.Context, partnerID string) (email.Result, error)
}

// StatsProvider сводка для панели администратора
type StatsProvider interface {
	Stats(ctx context.Context) (*domain.DashboardStats, error)
}

// AdminHandler обрабатывает маршруты /api/admin
type AdminHandler struct {
	expiry    ExpiryRunner
	campaigns CampaignManager
	stats     StatsProvider
	log       *logger.Logger
}

// NewAdminHandler создает новый экземпляр AdminHandler.
func NewAdminHandler(expiry ExpiryRunner, campaigns CampaignManager, stats StatsProvider, log *logger.Logger) *AdminHandler {
	return &AdminHandler{
		expiry:    expiry,
		campaigns: campaigns,
		stats:     stats,
		log:       log.Named("admin"),
	}
}

type expiryPreviewResponse struct {
	Success bool `json:"success"`
	*services.ExpiryPreview
}

type expiryRunResponse struct {
	Success bool `json:"success"`
	*services.ExpiryReport
}

type campaignListQuery struct {
	Status     string `form:"status" json:"status" validate:"omitempty,oneof=ACTIVE PAUSED CANCELLED COMPLETED"`
	Type       string `form:"type" json:"type" validate:"omitempty,oneof=ADOPT_LANGUAGE SPONSOR_TRANSLATION GENERAL_DONATION"`
	LanguageID string `form:"languageId" json:"languageId" validate:"omitempty,max=64"`
}

// PreviewExpiry GET /api/admin/campaigns/expire-adoptions
func (h *AdminHandler) PreviewExpiry(c *gin.Context) {
	preview, err := h.expiry.Preview(c.Request.Context())
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, expiryPreviewResponse{Success: true, ExpiryPreview: preview}, http.StatusOK)
}

// RunExpiry POST /api/admin/campaigns/expire-adoptions
func (h *AdminHandler) RunExpiry(c *gin.Context) {
	admin, _ := middleware.AdminFromContext(c)
	h.log.Infow("Expiry sweep requested", "admin", admin.Email, "role", admin.Role)

	report, err := h.expiry.Run(c.Request.Context())
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, expiryRunResponse{Success: true, ExpiryReport: report}, http.StatusOK)
}

// ListCampaigns GET /api/admin/campaigns?status=&type=&languageId=
func (h *AdminHandler) ListCampaigns(c *gin.Context) {
	var query campaignListQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		writeError(c, domain.ValidationErrors{{Field: "query", Message: err.Error()}}, h.log)
		return
	}
	query.Status = strings.ToUpper(query.Status)
	query.Type = strings.ToUpper(query.Type)
	if err := req.IsValid(query); err != nil {
		var errs domain.ValidationErrors
		for _, fe := range req.Details(err) {
			errs.Add(fe.Field, fe.Message)
		}
		writeError(c, errs, h.log)
		return
	}

	campaigns, err := h.campaigns.List(c.Request.Context(), domain.CampaignFilter{
		Status:     domain.CampaignStatus(query.Status),
		Type:       domain.CampaignType(query.Type),
		LanguageID: query.LanguageID,
	})
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, gin.H{"campaigns": campaigns}, http.StatusOK)
}

// CancelCampaign POST /api/admin/campaigns/:id/cancel
func (h *AdminHandler) CancelCampaign(c *gin.Context) {
	campaign, err := h.campaigns.Cancel(c.Request.Context(), c.Param("id"), actor(c))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, gin.H{"success": true, "campaign": campaign}, http.StatusOK)
}

// Dashboard GET /api/admin/dashboard
func (h *AdminHandler) Dashboard(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, stats, http.StatusOK)
}

// SendImpactReport POST /api/admin/partners/:id/impact-report
func (h *AdminHandler) SendImpactReport(c *gin.Context) {
	result, err := h.campaigns.SendImpactReport(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, result, http.StatusOK)
}

// actor идентификатор администратора для журналов изменений
func actor(c *gin.Context) string {
	admin, ok := middleware.AdminFromContext(c)
	if !ok {
		return ""
	}
	if admin.Email != "" {
		return admin.Email
	}
	return admin.ID
}
