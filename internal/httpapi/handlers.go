package httpapi

import (
	"net/http"
	"strings"
	"time"

	"event-access/internal/access"
	"event-access/internal/audit"
	"event-access/internal/auth"
	"event-access/internal/occupancy"
	"event-access/pkg/logger"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Access   *access.Service
	Auth     *auth.Manager
	Accounts *auth.Accounts
	Audit    *audit.Service
	// Feed is nil when Redis is not configured; the live endpoint then answers 503.
	Feed *occupancy.Feed

	// Location formats CSV timestamps and interprets date-only filters.
	Location *time.Location
	Clock    func() time.Time
}

func (h Handlers) now() time.Time {
	if h.Clock != nil {
		return h.Clock()
	}
	return time.Now()
}

func (h Handlers) loc() *time.Location {
	if h.Location != nil {
		return h.Location
	}
	return time.UTC
}

// --- Auth ---

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type userJSON struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role"`
}

type tokenResponse struct {
	Success bool `json:"success"`
	auth.TokenPair
	User userJSON `json:"user"`
}

// Login exchanges configured credentials for a token pair.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil || h.Accounts == nil {
		failCode(c, http.StatusInternalServerError, codeInternal)
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Username) == "" || req.Password == "" {
		failCode(c, http.StatusBadRequest, codeInvalidBody)
		return
	}
	acc, err := h.Accounts.Authenticate(req.Username, req.Password)
	if err != nil {
		logger.FromGin(c).Info("login rejected", "username", req.Username)
		failCode(c, http.StatusUnauthorized, codeInvalidCredentials)
		return
	}
	h.issue(c, acc)
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

// Refresh trades a refresh token for a new pair. The role is read from the
// account again so a demoted operator does not keep old privileges.
func (h Handlers) Refresh(c *gin.Context) {
	if h.Auth == nil || h.Accounts == nil {
		failCode(c, http.StatusInternalServerError, codeInternal)
		return
	}
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.RefreshToken) == "" {
		failCode(c, http.StatusBadRequest, codeInvalidBody)
		return
	}
	claims, err := h.Auth.Verify(strings.TrimSpace(req.RefreshToken), auth.TokenTypeRefresh, h.now())
	if err != nil {
		failCode(c, http.StatusUnauthorized, codeInvalidCredentials)
		return
	}
	acc, ok := h.Accounts.Lookup(claims.UserID)
	if !ok {
		failCode(c, http.StatusUnauthorized, codeInvalidCredentials)
		return
	}
	h.issue(c, acc)
}

func (h Handlers) issue(c *gin.Context, acc auth.Account) {
	pair, err := h.Auth.IssuePair(h.now(), acc.ID, acc.Name, acc.Role)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, tokenResponse{
		Success:   true,
		TokenPair: pair,
		User:      userJSON{ID: acc.ID, Name: acc.Name, Role: acc.Role},
	})
}
