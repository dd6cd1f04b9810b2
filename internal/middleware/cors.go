package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// CORS 返回处理跨域请求头的中间件，前端控制台运行在独立的域名上。
func CORS(allowedOrigins []string) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		allowed, explicit := false, false
		for _, o := range allowedOrigins {
			if o == origin {
				allowed, explicit = true, true
				break
			}
			if o == "*" {
				allowed = true
			}
		}

		if allowed && origin != "" {
			h := c.Writer.Header()
			h.Set("Access-Control-Allow-Origin", origin)
			h.Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Content-Type")
			// 通配符匹配时不允许携带凭据
			if explicit {
				h.Set("Access-Control-Allow-Credentials", "true")
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}
