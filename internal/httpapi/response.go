package httpapi

import (
	"errors"
	"net/http"

	"outbound-crm/internal/apperr"
	"outbound-crm/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
)

// Response is the envelope for every /v1 reply.
type Response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Kind    string `json:"kind,omitempty"`
	Details any    `json:"details,omitempty"`
}

type fieldError struct {
	Field string `json:"field"`
	Rule  string `json:"rule"`
	Param string `json:"param,omitempty"`
}

func ok(c *gin.Context, status int, data any) {
	c.JSON(status, Response{Success: true, Data: data})
}

// StatusOf maps an error kind to an HTTP status. Foreign errors are 500.
func StatusOf(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindValidation:
		return http.StatusBadRequest
	case apperr.KindValidationConflict, apperr.KindTransientConflict:
		return http.StatusConflict
	case apperr.KindPermissionDenied:
		return http.StatusForbidden
	case apperr.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func fail(c *gin.Context, err error) {
	failWith(c, err, nil)
}

func failWith(c *gin.Context, err error, details any) {
	status := StatusOf(err)
	res := Response{Error: apperr.ReasonOf(err), Kind: string(apperr.KindOf(err)), Details: details}
	if status >= http.StatusInternalServerError {
		logger.FromGin(c).Error("request failed", "err", err)
		if apperr.KindOf(err) == "" {
			res.Error = "internal error"
		}
	}
	c.AbortWithStatusJSON(status, res)
}

// badRequest reports a bind failure, listing validator rule violations when present.
func badRequest(c *gin.Context, err error) {
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		details := make([]fieldError, 0, len(verrs))
		for _, fe := range verrs {
			details = append(details, fieldError{Field: fe.Field(), Rule: fe.Tag(), Param: fe.Param()})
		}
		failWith(c, apperr.Invalid("invalid request"), details)
		return
	}
	failWith(c, apperr.Invalid("invalid request: %v", err), nil)
}
