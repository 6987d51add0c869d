package middleware

import (
	"net"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
)

// LocalOnly 中间件：只允许本地访问（127.0.0.1 或 ::1），
// 另可通过 app.admin_allow 配置一组 CIDR 放行内网运维地址。
func LocalOnly() gin.HandlerFunc {
	var allowed []*net.IPNet
	for _, cidr := range viper.GetStringSlice("app.admin_allow") {
		if _, ipNet, err := net.ParseCIDR(cidr); err == nil {
			allowed = append(allowed, ipNet)
		}
	}

	return func(c *gin.Context) {
		clientIP := c.ClientIP()

		ip := net.ParseIP(clientIP)
		if ip == nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			c.Abort()
			return
		}

		if ip.IsLoopback() {
			c.Next()
			return
		}
		for _, ipNet := range allowed {
			if ipNet.Contains(ip) {
				c.Next()
				return
			}
		}

		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden: local access only"})
		c.Abort()
	}
}
