package logger

import (
	"log"

	"clubexpense/internal/config"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// New 创建 zap 日志，生产环境输出 JSON
func New(cfg *config.LogConfig) *zap.Logger {
	zapCfg := zap.NewProductionConfig()
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
	}

	if cfg.Level != "" {
		level, err := zapcore.ParseLevel(cfg.Level)
		if err != nil {
			log.Printf("日志级别无效，使用 info: %s", cfg.Level)
			level = zapcore.InfoLevel
		}
		zapCfg.Level = zap.NewAtomicLevelAt(level)
	}

	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("初始化日志失败: %v", err)
	}
	return logger
}
