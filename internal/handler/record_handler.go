package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/Arikia/ctrl-x/internal/db"
	"github.com/Arikia/ctrl-x/internal/services"
)

// GetPayerAddressHandler 返回铸造签名账户地址
func GetPayerAddressHandler(c *gin.Context) {
	address := services.GetPayerAddress()
	if address == "" {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "签名账户未初始化"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"address": address,
	})
}

// GetMintRecordHandler 根据资产地址查询铸造审计记录
func GetMintRecordHandler(c *gin.Context) {
	asset := c.Param("asset")

	if db.DB == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "审计数据库未配置"})
		return
	}

	rec, err := db.GetMintRecordByAsset(db.DB, asset)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			c.JSON(http.StatusNotFound, gin.H{"error": "记录未找到"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"request_id":           rec.RequestID,
		"asset":                rec.AssetAddress,
		"collection":           rec.Collection,
		"name":                 rec.Name,
		"metadata_uri":         rec.MetadataURI,
		"user_wallet":          rec.UserWallet,
		"tx_signature":         rec.TXSignature,
		"token_account":        rec.TokenAccount,
		"token_account_status": rec.TokenAccountStatus,
		"status":               rec.Status,
		"created_at":           rec.CreatedAt,
	})
}

// ListMintRecordsHandler 按时间倒序列出最近的铸造记录，limit 默认 50
func ListMintRecordsHandler(c *gin.Context) {
	if db.DB == nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "审计数据库未配置"})
		return
	}

	limit := 50
	if v := c.Query("limit"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 500 {
			limit = n
		}
	}

	recs, err := db.ListMintRecords(db.DB, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "查询失败"})
		return
	}

	out := make([]gin.H, 0, len(recs))
	for _, rec := range recs {
		out = append(out, gin.H{
			"asset":        rec.AssetAddress,
			"name":         rec.Name,
			"user_wallet":  rec.UserWallet,
			"tx_signature": rec.TXSignature,
			"status":       rec.Status,
			"created_at":   rec.CreatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"records": out, "count": len(out)})
}
