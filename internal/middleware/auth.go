package middleware

import (
	"net/http"
	"strings"

	"backend/internal/auth"

	"github.com/gin-gonic/gin"
)

// Gin 上下文键
const (
	PrincipalIDKey = "principal_id"
	RoleKey        = "role"
)

// AuthMiddleware 认证中间件，解析 Bearer 令牌并注入调用主体
func AuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if !strings.HasPrefix(header, "Bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "缺少认证令牌",
			})
			return
		}

		claims, err := jwtService.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "认证令牌无效",
			})
			return
		}

		c.Set(PrincipalIDKey, claims.UserID)
		c.Set(RoleKey, claims.Role)
		c.Next()
	}
}

// AdminRequired 管理员门槛，必须在 AuthMiddleware 之后挂载
func AdminRequired() gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.GetString(RoleKey) != auth.RoleAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"success": false,
				"error":   "需要管理员权限",
			})
			return
		}
		c.Next()
	}
}

// PrincipalID 读取当前调用主体
func PrincipalID(c *gin.Context) string {
	return c.GetString(PrincipalIDKey)
}
