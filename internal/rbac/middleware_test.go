package rbac

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"event-access/internal/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func serveAs(role string, allowed ...string) int {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.GET("/x", func(c *gin.Context) {
		if role != "" {
			ctx := auth.WithIdentity(c.Request.Context(), "u", "", role)
			c.Request = c.Request.WithContext(ctx)
		}
		c.Next()
	}, RequireAnyRole(allowed...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	return w.Code
}

func TestRequireAnyRole_AdminBypasses(t *testing.T) {
	assert.Equal(t, http.StatusOK, serveAs(RoleAdmin, RoleSupervisor))
}

func TestRequireAnyRole_OperatorDeniedSupervisorRoute(t *testing.T) {
	assert.Equal(t, http.StatusForbidden, serveAs(RoleOperator, RoleSupervisor))
	assert.Equal(t, http.StatusOK, serveAs(RoleSupervisor, RoleSupervisor))
	assert.Equal(t, http.StatusOK, serveAs(RoleOperator, RoleOperator, RoleSupervisor))
}

func TestRequireAnyRole_RoleRequired(t *testing.T) {
	assert.Equal(t, http.StatusUnauthorized, serveAs("", RoleOperator))
}

func TestValid(t *testing.T) {
	assert.True(t, Valid(RoleSupervisor))
	assert.False(t, Valid("super_admin"))
}
