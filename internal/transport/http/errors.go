package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"skillyhead-service/internal/domain"
	"skillyhead-service/internal/observability"
)

type errorBody struct {
	Error  string              `json:"error"`
	Kind   string              `json:"kind,omitempty"`
	Fields []domain.FieldError `json:"fields,omitempty"`
}

// statusOf maps the error taxonomy to HTTP status codes.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, domain.ErrValidation):
		return http.StatusBadRequest, "validation"
	case errors.Is(err, domain.ErrRole):
		return http.StatusForbidden, "role"
	case errors.Is(err, domain.ErrAuth):
		return http.StatusForbidden, "auth"
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrCapacity):
		return http.StatusUnprocessableEntity, "capacity"
	case errors.Is(err, domain.ErrState):
		return http.StatusConflict, "state"
	case errors.Is(err, domain.ErrImmutable):
		return http.StatusConflict, "immutable"
	case errors.Is(err, domain.ErrIncomplete):
		return http.StatusConflict, "incomplete"
	case errors.Is(err, domain.ErrVersionConflict), errors.Is(err, domain.ErrAlreadyExists):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, ""
}

func (s *Server) writeError(c *gin.Context, err error) {
	status, kind := statusOf(err)
	if status == http.StatusInternalServerError {
		s.log.Error("request failed", zap.String("route", c.FullPath()), zap.Error(err))
		observability.CaptureWithTags(err, map[string]string{"route": c.FullPath()})
		c.JSON(status, errorBody{Error: "internal error"})
		return
	}
	c.JSON(status, errorBody{Error: err.Error(), Kind: kind, Fields: domain.Fields(err)})
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, errorBody{Error: msg, Kind: "validation"})
}
