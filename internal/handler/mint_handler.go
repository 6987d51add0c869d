package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Arikia/ctrl-x/internal/models"
	"github.com/Arikia/ctrl-x/internal/services"
)

// MintNFTHandler 文章铸造接口。
// 校验六个必填字段后按顺序执行：压缩加密正文 → 上传元数据 → 提交铸造
// 交易 → 尽力创建用户接收账户。上游失败只回报笼统的 "Mint failed"，
// 具体原因只进服务端日志。
func MintNFTHandler(c *gin.Context) {
	var req models.MintRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	// 只做非空校验，不校验格式
	if req.Author == "" || req.Title == "" || req.Text == "" ||
		req.PublishedAt == "" || req.PublishedWhere == "" || req.UserWallet == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Missing required fields"})
		return
	}

	// 配置错误与请求错误、上游错误区分开，给出针对性提示
	if !services.SignerReady() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Wallet secret key is not defined in the environment variables",
		})
		return
	}
	if !services.CollectionReady() {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Collection public key is not defined in the environment variables",
		})
		return
	}

	result, err := services.MintArticle(c.Request.Context(), &req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrCollectionNotConfigured):
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Collection public key is not defined in the environment variables",
			})
		default:
			// 上游失败的细节不向调用方披露
			log.Printf("[ERROR] 铸造失败: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Mint failed"})
		}
		return
	}

	c.JSON(http.StatusOK, models.MintResponse{
		Message:            "Asset Created: " + result.ExplorerURL,
		Asset:              result.AssetAddress,
		MetadataURI:        result.MetadataURI,
		TokenAccount:       result.TokenAccount,
		TokenAccountStatus: result.TokenAccountStatus,
	})
}
