package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/res"
)

// Catalogue каталог языковых каналов
type Catalogue interface {
	ListLanguages(ctx context.Context, filter domain.LanguageFilter) ([]domain.Language, error)
	GetLanguage(ctx context.Context, id string) (*domain.Language, error)
}

// LanguageHandler отдает каталог языков для страницы оплаты
type LanguageHandler struct {
	catalogue Catalogue
	log       *logger.Logger
}

// NewLanguageHandler создает новый экземпляр LanguageHandler.
func NewLanguageHandler(catalogue Catalogue, log *logger.Logger) *LanguageHandler {
	return &LanguageHandler{catalogue: catalogue, log: log.Named("languages")}
}

// List GET /api/languages?status=&region=
func (h *LanguageHandler) List(c *gin.Context) {
	filter := domain.LanguageFilter{
		Status: domain.AdoptionStatus(strings.ToUpper(c.Query("status"))),
		Region: c.Query("region"),
	}
	if filter.Status != "" && !filter.Status.Valid() {
		writeError(c, domain.ValidationErrors{{Field: "status", Message: "must be one of [AVAILABLE ADOPTED PENDING WAITLIST]"}}, h.log)
		return
	}

	languages, err := h.catalogue.ListLanguages(c.Request.Context(), filter)
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, gin.H{"languages": languages}, http.StatusOK)
}

// Get GET /api/languages/:id
func (h *LanguageHandler) Get(c *gin.Context) {
	language, err := h.catalogue.GetLanguage(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err, h.log)
		return
	}
	res.JsonResponse(c.Writer, language, http.StatusOK)
}
