package httpapi

import (
	"errors"
	"net/http"

	"event-access/internal/access"
	"event-access/internal/i18n"
	"event-access/pkg/logger"

	"github.com/gin-gonic/gin"
)

const (
	codeInternal           = "internal_error"
	codeInvalidBody        = "invalid_body"
	codeInvalidCredentials = "invalid_credentials"
	codeLiveUnavailable    = "live_unavailable"
	codeOverrideForbidden  = "override_forbidden"
)

// ErrorResponse is the body of every failed request. Kiosks show Message
// verbatim; machine clients branch on Error.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`

	// Status echoes the approval status on 403.
	Status string `json:"status,omitempty"`
	// LastAccess is the conflicting record on 409 state conflicts.
	LastAccess *accessLogJSON `json:"lastAccess,omitempty"`
	// Participant is set when it was resolved before the failure.
	Participant *participantJSON `json:"participant,omitempty"`
}

// statusFor maps a domain error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, access.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, access.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, access.ErrNotApproved):
		return http.StatusForbidden
	case errors.Is(err, access.ErrStateConflict),
		errors.Is(err, access.ErrAmbiguous),
		errors.Is(err, access.ErrDuplicateScan):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// fail writes err as an ErrorResponse. Anything that is not a domain error
// is logged and reported as a generic internal error.
func fail(c *gin.Context, err error) {
	z := i18n.From(c)

	de, ok := access.AsError(err)
	if !ok {
		logger.FromGin(c).Error("request failed", "err", err)
		_ = c.Error(err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, ErrorResponse{
			Error:   codeInternal,
			Message: z.Message("error."+codeInternal, nil),
		})
		return
	}

	resp := ErrorResponse{
		Error:   de.Code,
		Message: z.Message(de.MessageID(), de.Data),
	}
	if de.ApprovalStatus != "" {
		resp.Status = string(de.ApprovalStatus)
	}
	if de.LastAccess != nil {
		v := toAccessLog(*de.LastAccess)
		resp.LastAccess = &v
	}
	if de.Participant != nil {
		v := toParticipant(*de.Participant)
		resp.Participant = &v
	}
	c.AbortWithStatusJSON(statusFor(err), resp)
}

func failCode(c *gin.Context, status int, code string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:   code,
		Message: i18n.From(c).Message("error."+code, nil),
	})
}
