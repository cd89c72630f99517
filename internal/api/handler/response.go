package handler

import (
	"errors"
	"net/http"

	"chatline/backend/internal/apperr"
	"chatline/backend/internal/localization"
	"chatline/backend/internal/logger"

	"github.com/gin-gonic/gin"
)

// Response is the envelope every JSON endpoint answers with.
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *ErrorInfo  `json:"error,omitempty"`
}

type ErrorInfo struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func success(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

// statusOf maps a failure kind to its HTTP status.
func statusOf(k apperr.Kind) int {
	switch k {
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindAuthentication:
		return http.StatusUnauthorized
	case apperr.KindAuthorization:
		return http.StatusForbidden
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindDependency:
		return http.StatusServiceUnavailable
	case apperr.KindRateLimit:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// fail renders err in the caller's language. Causes of dependency and
// internal failures go to the log only.
func (h *Handler) fail(c *gin.Context, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		err = apperr.Validation(apperr.CodeBadRequest, "request body too large")
	}
	e := apperr.From(err)
	status := statusOf(e.Kind)

	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		l := logger.Ctx(c.Request.Context())
		l.Error().Err(err).Str("kind", e.Kind.String()).Msg("request failed")
	}

	c.AbortWithStatusJSON(status, Response{
		Success: false,
		Error:   &ErrorInfo{Code: e.Code, Message: h.localize(c, e)},
	})
}

func (h *Handler) localize(c *gin.Context, e *apperr.Error) string {
	if h.locales == nil {
		return e.Message
	}
	lang := h.locales.Match(c.GetHeader("Accept-Language"))
	if lang == localization.DefaultLanguage && e.Kind != apperr.KindInternal {
		return e.Message
	}
	if msg, found := h.locales.Lookup(lang, e.Code); found {
		return msg
	}
	return e.Message
}

func badRequest(msg string) error {
	return apperr.Validation(apperr.CodeBadRequest, msg)
}
