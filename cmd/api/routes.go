package main

import (
	"event-access/internal/httpapi"
	"event-access/internal/rbac"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")
	{
		authGroup := v1.Group("/auth")
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)

		// Badge kiosks scan without an operator token.
		v1.GET("/verify/:id", h.Verify)
	}

	// protected API group
	acc := v1.Group("/access")
	acc.Use(authMW)
	{
		terminal := acc.Group("")
		terminal.Use(rbac.RequireAnyRole(rbac.RoleOperator, rbac.RoleSupervisor))
		{
			terminal.POST("/check-in", h.CheckIn)
			terminal.POST("/check-out", h.CheckOut)
			terminal.GET("/status/:id", h.Status)
			terminal.GET("/stats/:eventId", h.Stats)
			terminal.GET("/stats/:eventId/live", h.Live)
		}

		supervised := acc.Group("")
		supervised.Use(rbac.RequireAnyRole(rbac.RoleSupervisor))
		{
			supervised.POST("/fast-check-in", h.FastCheckIn)
		}

		// Only admin can read the full log or rewrite aggregates.
		admin := acc.Group("")
		admin.Use(rbac.RequireAnyRole(rbac.RoleAdmin))
		{
			admin.GET("/logs", h.Logs)
			admin.POST("/stats/:eventId/reconcile", h.Reconcile)
		}
	}
}
