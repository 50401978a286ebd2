package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Headers set by the upstream auth collaborator.
const (
	HeaderOperatorID   = "X-Operator-ID"
	HeaderOperatorRole = "X-Operator-Role"
)

type Role string

const (
	RoleAdmin Role = "admin"
	RoleSales Role = "sales"
)

const (
	operatorIDKey   = "operator_id"
	operatorRoleKey = "operator_role"
)

// Authenticate rejects requests without a recognized operator.
func Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderOperatorID))
		role := Role(strings.ToLower(strings.TrimSpace(c.GetHeader(HeaderOperatorRole))))
		if id == "" || (role != RoleAdmin && role != RoleSales) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "operator not authenticated"})
			return
		}
		c.Set(operatorIDKey, id)
		c.Set(operatorRoleKey, role)
		c.Next()
	}
}

// RequireAdmin must run after Authenticate.
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if role, _ := c.Get(operatorRoleKey); role != RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin role required"})
			return
		}
		c.Next()
	}
}

func operatorID(c *gin.Context) string {
	return c.GetString(operatorIDKey)
}
