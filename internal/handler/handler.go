package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Arikia/ctrl-x/internal/middleware"
)

func RegisterRoutes(r *gin.Engine) {
	// 已注册路径上的其他方法统一返回 405
	r.HandleMethodNotAllowed = true
	r.NoMethod(func(c *gin.Context) {
		c.JSON(http.StatusMethodNotAllowed, gin.H{"error": "Method not allowed"})
	})

	r.POST("/api/mint-nft", MintNFTHandler)

	r.GET("/healthz", HealthzHandler)
	r.GET("/readyz", ReadinessHandler)

	// 运维查询接口只允许本地访问
	admin := r.Group("/", middleware.LocalOnly())
	admin.GET("/signer", GetPayerAddressHandler)
	admin.GET("/records", ListMintRecordsHandler)
	admin.GET("/records/:asset", GetMintRecordHandler)
}
