package mysql

import (
	"context"
	"fmt"
	"sync"
	"time"

	"brandbook/backend/go/internal/config"
	"brandbook/backend/go/pkg/logger"

	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var (
	dbInstance *gorm.DB
	once       sync.Once
	initErr    error
)

// DSN 根据配置拼出 go-sql-driver 格式的连接串，时间字段按 UTC 解析。
func DSN(cfg *config.MySQLConfig) string {
	return fmt.Sprintf("%s:%s@tcp(%s)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		cfg.Username, cfg.Password, cfg.Address, cfg.Database)
}

// GetDB 返回进程内共享的 GORM 实例，首次调用时建立连接并配置连接池。
// 之后的调用忽略 cfg，直接返回第一次的结果（包括错误）。
func GetDB(ctx context.Context, cfg *config.MySQLConfig) (*gorm.DB, error) {
	once.Do(func() {
		db, err := gorm.Open(mysql.Open(DSN(cfg)), &gorm.Config{
			Logger: gormlogger.Default.LogMode(gormlogger.Warn),
		})
		if err != nil {
			initErr = fmt.Errorf("无法连接到 MySQL: %w", err)
			return
		}
		sqlDB, err := db.DB()
		if err != nil {
			initErr = fmt.Errorf("无法获取底层 SQL DB 实例: %w", err)
			return
		}
		if cfg.MaxOpenConns > 0 {
			sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			sqlDB.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			initErr = fmt.Errorf("MySQL 连通性检查失败: %w", err)
			return
		}
		logger.New("mysql", "", "").WithField("address", cfg.Address).Info("已连接 MySQL")
		dbInstance = db
	})
	return dbInstance, initErr
}

// Close 关闭共享连接池。
func Close() error {
	if dbInstance == nil {
		return nil
	}
	sqlDB, err := dbInstance.DB()
	if err != nil {
		return fmt.Errorf("获取底层 SQL DB 实例失败: %w", err)
	}
	return sqlDB.Close()
}

// HealthCheck 对共享连接执行一次 Ping。
func HealthCheck(ctx context.Context) error {
	if dbInstance == nil {
		return fmt.Errorf("MySQL 连接未初始化")
	}
	sqlDB, err := dbInstance.DB()
	if err != nil {
		return fmt.Errorf("无法获取底层 SQL DB 实例: %w", err)
	}
	return sqlDB.PingContext(ctx)
}
