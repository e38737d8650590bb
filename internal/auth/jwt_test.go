package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"event-access/internal/config"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testManager(t *testing.T) *Manager {
	t.Helper()
	m, err := NewManager(config.AuthConfig{
		JWTSecret:       "secret",
		JWTIssuer:       "issuer",
		JWTAudience:     "aud",
		AccessTokenTTL:  15 * time.Minute,
		RefreshTokenTTL: 24 * time.Hour,
	})
	require.NoError(t, err)
	return m
}

func TestIssueAndVerifyAccessToken(t *testing.T) {
	m := testManager(t)

	now := time.Unix(1700000000, 0).UTC()
	pair, err := m.IssuePair(now, "user-1", "Rita", "operator")
	require.NoError(t, err)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	assert.Equal(t, now.Add(15*time.Minute), pair.ExpiresAt)

	claims, err := m.Verify(pair.AccessToken, TokenTypeAccess, now.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, "Rita", claims.Name)
	assert.Equal(t, "operator", claims.Role)

	refresh, err := m.Verify(pair.RefreshToken, TokenTypeRefresh, now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, refresh.Role)
}

func TestVerifyRejectsWrongTokenType(t *testing.T) {
	m, _ := NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Minute, RefreshTokenTTL: time.Hour})
	p, err := m.IssuePair(time.Now(), "u", "", "operator")
	require.NoError(t, err)
	_, err = m.Verify(p.RefreshToken, TokenTypeAccess, time.Now())
	require.Error(t, err)
}

func TestVerifyRejectsExpiredAndForeignTokens(t *testing.T) {
	m := testManager(t)
	now := time.Unix(1700000000, 0).UTC()
	p, err := m.IssuePair(now, "u", "", "operator")
	require.NoError(t, err)

	_, err = m.Verify(p.AccessToken, TokenTypeAccess, now.Add(time.Hour))
	require.Error(t, err)

	other, err := NewManager(config.AuthConfig{JWTSecret: "other", JWTIssuer: "issuer", JWTAudience: "aud", AccessTokenTTL: time.Minute})
	require.NoError(t, err)
	_, err = other.Verify(p.AccessToken, TokenTypeAccess, now)
	require.Error(t, err)
}

func TestNewManagerRequiresSecret(t *testing.T) {
	_, err := NewManager(config.AuthConfig{})
	require.Error(t, err)
}

func TestAccounts_Authenticate(t *testing.T) {
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	accts := NewAccounts(
		Account{Username: "Admin", Name: "Administrador", Role: "admin", PasswordHash: hash},
		Account{Username: "nohash"},
	)

	acc, err := accts.Authenticate(" admin ", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, "Admin", acc.ID)
	assert.Equal(t, "admin", acc.Role)

	_, err = accts.Authenticate("admin", "wrong")
	require.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = accts.Authenticate("nohash", "")
	require.ErrorIs(t, err, ErrInvalidCredentials)

	got, ok := accts.Lookup("Admin")
	require.True(t, ok)
	assert.Equal(t, "Administrador", got.Name)

	_, err = HashPassword("")
	require.Error(t, err)
}

func TestRequireAccessToken(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := testManager(t)

	r := gin.New()
	r.GET("/x", RequireAccessToken(m), func(c *gin.Context) {
		uid, _ := UserID(c.Request.Context())
		role, _ := Role(c.Request.Context())
		c.JSON(http.StatusOK, gin.H{"user": uid, "name": Name(c.Request.Context()), "role": role})
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	pair, err := m.IssuePair(time.Now(), "op-1", "Rita", "operator")
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+pair.RefreshToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Authorization", "Bearer "+pair.AccessToken)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user":"op-1","name":"Rita","role":"operator"}`, w.Body.String())
}
