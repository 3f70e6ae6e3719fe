package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"cvstudio/internal/auth"
	"cvstudio/internal/gateway"
)

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware 校验访问令牌并将请求主体注入上下文。
func AuthMiddleware(authService *auth.AuthService) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			abortUnauthorized(c)
			return
		}

		parts := strings.Fields(header)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		rawToken := parts[1]
		if strings.TrimSpace(rawToken) == "" {
			abortUnauthorized(c)
			return
		}

		claims, err := authService.ValidateToken(rawToken)
		if err != nil || claims.TokenType != "access" {
			abortUnauthorized(c)
			return
		}

		c.Set("userID", claims.UserID)
		c.Set("principal", gateway.Principal{
			UserID:    claims.UserID,
			IsPremium: claims.IsPremium,
			IsAdmin:   claims.IsAdmin,
		})
		c.Next()
	}
}

// PrincipalFromContext 返回鉴权中间件写入的请求主体。
func PrincipalFromContext(c *gin.Context) (gateway.Principal, bool) {
	value, ok := c.Get("principal")
	if !ok {
		return gateway.Principal{}, false
	}
	principal, ok := value.(gateway.Principal)
	return principal, ok
}

// RequireAdminMiddleware 拦截非管理员访问模板管理接口。
func RequireAdminMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFromContext(c)
		if !ok {
			abortUnauthorized(c)
			return
		}
		if !principal.IsAdmin {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin only"})
			return
		}
		c.Next()
	}
}
