package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/loveworld-europe/donations/internal/domain"
	"github.com/loveworld-europe/donations/pkg/logger"
	"github.com/loveworld-europe/donations/pkg/req"
	"github.com/loveworld-europe/donations/pkg/res"
)

const internalErrorMessage = "Internal server error"

// writeError переводит ошибку сервиса в HTTP-ответ и прерывает цепочку gin.
// Подробности внутренних ошибок клиенту не отдаются, только в лог.
func writeError(c *gin.Context, err error, log *logger.Logger) {
	status, body := mapError(err)
	if status >= http.StatusInternalServerError {
		log.Errorw("Request failed", "path", c.FullPath(), "error", err)
	} else {
		log.Warnw("Request rejected", "path", c.FullPath(), "status", status, "error", err)
	}
	res.JsonResponse(c.Writer, body, status)
	c.Abort()
}

func mapError(err error) (int, res.ErrorResponse) {
	var verrs domain.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		return http.StatusBadRequest, res.ErrorResponse{Error: req.InvalidRequestMessage, Details: verrs}
	case errors.Is(err, domain.ErrLanguageNotFound):
		return http.StatusNotFound, res.ErrorResponse{Error: "Language not found"}
	case errors.Is(err, domain.ErrLanguageAlreadyAdopted):
		return http.StatusBadRequest, res.ErrorResponse{Error: "Language already adopted"}
	case errors.Is(err, domain.ErrCampaignNotFound):
		return http.StatusNotFound, res.ErrorResponse{Error: "Campaign not found"}
	case errors.Is(err, domain.ErrPartnerNotFound):
		return http.StatusNotFound, res.ErrorResponse{Error: "Partner not found"}
	case errors.Is(err, domain.ErrIdempotencyKeyReused):
		return http.StatusConflict, res.ErrorResponse{Error: "Idempotency key already used"}
	}
	return http.StatusInternalServerError, res.ErrorResponse{Error: internalErrorMessage}
}

// decodeBody читает JSON-тело без валидации тегов: правила проверяет сервис
func decodeBody[T any](c *gin.Context, log *logger.Logger) (T, bool) {
	body, err := req.Decode[T](c.Request.Body)
	if err != nil {
		log.Warnw("Failed to decode request body", "path", c.FullPath(), "error", err)
		res.JsonResponse(c.Writer, res.ErrorResponse{
			Error:   req.InvalidRequestMessage,
			Details: []req.FieldError{{Field: "body", Message: "must be valid JSON"}},
		}, http.StatusBadRequest)
		c.Abort()
		return body, false
	}
	return body, true
}
