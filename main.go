package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/viper"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/Arikia/ctrl-x/internal/db"
	"github.com/Arikia/ctrl-x/internal/handler"
	"github.com/Arikia/ctrl-x/internal/models"
	"github.com/Arikia/ctrl-x/internal/services"
	"github.com/Arikia/ctrl-x/internal/watcher"
)

type Config struct {
	MySQL struct {
		Host     string `mapstructure:"host"`
		Port     int    `mapstructure:"port"`
		User     string `mapstructure:"user"`
		Password string `mapstructure:"password"`
		DBName   string `mapstructure:"dbname"`
	} `mapstructure:"mysql"`
	Solana struct {
		RPCURL     string `mapstructure:"rpc_url"`
		WSURL      string `mapstructure:"ws_url"` // WebSocket URL，留空则观察者退化为轮询
		Collection string `mapstructure:"collection_pubkey"`
	} `mapstructure:"solana"`
	App struct {
		PollInterval int `mapstructure:"poll_interval"` // 观察者轮询间隔（秒）
		Port         int `mapstructure:"port"`
	} `mapstructure:"app"`
}

func main() {
	// 读取配置（环境变量可覆盖文件中的敏感项，如 CTRLX_SOLANA_WALLET_SECRET）
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.SetEnvPrefix("CTRLX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
	if err := viper.ReadInConfig(); err != nil {
		log.Fatal("读取配置失败:", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatal("解析配置失败:", err)
	}

	// 初始化内容处理（压缩编解码器 + 加密密钥），失败属于部署错误，直接退出
	if err := services.InitContent(); err != nil {
		log.Fatal("内容处理初始化失败:", err)
	}

	// 初始化去中心化存储上传器
	if err := services.InitStorage(); err != nil {
		log.Fatal("存储上传器初始化失败:", err)
	}

	// 初始化 Solana：签名私钥只在进程启动时解析一次，而不是每个请求解析
	if err := services.InitSolana(); err != nil {
		log.Fatal("Solana 初始化失败:", err)
	}
	log.Printf("铸造签名账户: %s", services.GetPayerAddress())

	// 连接 MySQL（可选）：审计库缺失不阻塞铸造，链上才是事实来源
	if cfg.MySQL.Host != "" {
		dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
			cfg.MySQL.User, cfg.MySQL.Password, cfg.MySQL.Host, cfg.MySQL.Port, cfg.MySQL.DBName)
		dbConn, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
		if err != nil {
			log.Fatal("MySQL 连接失败:", err)
		}
		if err := dbConn.AutoMigrate(&models.MintRecord{}); err != nil {
			log.Fatal("表迁移失败:", err)
		}
		db.DB = dbConn
		fmt.Println("审计数据库初始化完成")

		// 启动确认观察者（后台 goroutine），把 pending 记录推进到 confirmed/failed
		if !services.Collection.IsZero() {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()
			go watcher.Start(ctx, dbConn, cfg.Solana.RPCURL, cfg.Solana.WSURL,
				services.Collection, time.Duration(cfg.App.PollInterval)*time.Second)
		}
	} else {
		log.Println("未配置 MySQL，跳过铸造审计记录")
	}

	if cfg.App.Port == 0 {
		cfg.App.Port = 8080
	}

	// 初始化 Gin
	handler.InitStartTime()
	r := gin.Default()
	handler.RegisterRoutes(r)

	// 启动服务器
	port := fmt.Sprintf(":%d", cfg.App.Port)
	fmt.Printf("服务器启动于端口 %s\n", port)
	if err := r.Run(port); err != nil {
		log.Fatal("Gin 服务器启动失败:", err)
	}
}
