package handler

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/Arikia/ctrl-x/internal/db"
	"github.com/Arikia/ctrl-x/internal/services"
)

var (
	// startTime 记录服务启动时间
	startTime     time.Time
	startTimeOnce sync.Once
)

// InitStartTime 初始化服务启动时间（只执行一次）
func InitStartTime() {
	startTimeOnce.Do(func() {
		startTime = time.Now()
	})
}

// HealthzHandler 存活探针（liveness probe）
// 检查服务是否正在运行，总是返回 200（除非服务完全崩溃）
func HealthzHandler(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"type":   "liveness",
	})
}

// ReadinessHandler 就绪探针（readiness probe）
// 检查铸造所需的进程级状态是否已初始化；审计数据库是可选依赖，
// 只有在配置了 MySQL 时才纳入检查。
func ReadinessHandler(c *gin.Context) {
	if startTime.IsZero() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "服务启动时间未初始化",
		})
		return
	}

	// 签名账户在启动时加载，缺失说明初始化未完成
	if !services.SignerReady() {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status":  "not ready",
			"type":    "readiness",
			"message": "签名账户未初始化",
		})
		return
	}

	// 审计数据库（可选）：配置了才检查连接
	if db.DB != nil {
		sqlDB, err := db.DB.DB()
		if err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"type":    "readiness",
				"message": "无法获取数据库连接",
				"error":   err.Error(),
			})
			return
		}
		if err := sqlDB.Ping(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":  "not ready",
				"type":    "readiness",
				"message": "数据库连接失败",
				"error":   err.Error(),
			})
			return
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "ready",
		"type":    "readiness",
		"uptime":  time.Since(startTime).String(),
		"auditDb": db.DB != nil,
	})
}
