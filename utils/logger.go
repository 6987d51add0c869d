package utils

import (
	"log"
	"os"
)

// Logger 简单日志封装
type Logger struct {
	debug bool
}

// Debug 调试日志（设置 CTRLX_DEBUG 后启用）
func (l *Logger) Debug(msg string, args ...interface{}) {
	if l.debug {
		log.Printf("[DEBUG] "+msg, args...)
	}
}

// Info 信息日志
func (l *Logger) Info(msg string, args ...interface{}) {
	log.Printf("[INFO] "+msg, args...)
}

// Warn 警告日志
func (l *Logger) Warn(msg string, args ...interface{}) {
	log.Printf("[WARN] "+msg, args...)
}

// Error 错误日志
func (l *Logger) Error(msg string, args ...interface{}) {
	log.Printf("[ERROR] "+msg, args...)
}

var DefaultLogger = &Logger{debug: os.Getenv("CTRLX_DEBUG") != ""}
