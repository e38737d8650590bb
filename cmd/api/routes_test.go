package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"event-access/internal/access"
	"event-access/internal/auth"
	"event-access/internal/config"
	"event-access/internal/httpapi"
	"event-access/internal/rbac"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRouter(t *testing.T) (*gin.Engine, *auth.Manager) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	m, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	require.NoError(t, err)

	store := access.NewMemoryStore()
	store.PutEvent(access.Event{ID: "ev-1", Name: "Expo", Status: access.EventStatusActive})

	r := gin.New()
	r.HandleMethodNotAllowed = true
	registerRoutes(r, httpapi.Handlers{Access: access.NewService(store, access.Options{}), Auth: m}, auth.RequireAccessToken(m))
	return r, m
}

func get(r *gin.Engine, path, token string) int {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w.Code
}

func TestRoutesRequireToken(t *testing.T) {
	r, _ := testRouter(t)
	assert.Equal(t, http.StatusOK, get(r, "/healthz", ""))
	assert.Equal(t, http.StatusUnauthorized, get(r, "/v1/access/stats/ev-1", ""))
}

func TestRoutesRoleGates(t *testing.T) {
	r, m := testRouter(t)
	now := time.Now()

	operator, err := m.IssueAccess(now, "op-1", "Rita", rbac.RoleOperator, 0)
	require.NoError(t, err)
	admin, err := m.IssueAccess(now, "adm", "Admin", rbac.RoleAdmin, 0)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, get(r, "/v1/access/stats/ev-1", operator))
	assert.Equal(t, http.StatusForbidden, get(r, "/v1/access/logs", operator))
	assert.Equal(t, http.StatusOK, get(r, "/v1/access/logs", admin))
	assert.Equal(t, http.StatusMethodNotAllowed, get(r, "/v1/access/fast-check-in", admin))
}
