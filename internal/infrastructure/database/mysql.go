package database

import (
	"fmt"
	"log/slog"
	"time"

	"marketplace/internal/config"
	"marketplace/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Models 需要自动迁移的表
var Models = []interface{}{
	&model.Product{},
	&model.Order{},
	&model.OrderItem{},
	&model.AffiliateLink{},
	&model.Profile{},
	&model.Transaction{},
	&model.Withdrawal{},
	&model.OutboxMessage{},
}

// InitMySQL 初始化 MySQL 连接并迁移表结构
func InitMySQL(cfg *config.MySQLConfig) (*gorm.DB, error) {
	db, err := Open(mysql.Open(cfg.DSN()), cfg.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("连接 MySQL 失败: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	// 连接池配置
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	if err := db.AutoMigrate(Models...); err != nil {
		return nil, fmt.Errorf("自动迁移表结构失败: %w", err)
	}

	slog.Info("MySQL 连接成功", "host", cfg.Host, "database", cfg.Database)
	return db, nil
}

// Open 使用统一的 gorm 配置打开连接
// TranslateError 让唯一键冲突返回 gorm.ErrDuplicatedKey，仓储层依赖这一点识别重复下单
func Open(dialector gorm.Dialector, level string) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logLevel(level)),
		TranslateError: true,
	})
}

func logLevel(level string) logger.LogLevel {
	switch level {
	case "silent":
		return logger.Silent
	case "error":
		return logger.Error
	case "info":
		return logger.Info
	default:
		return logger.Warn
	}
}
