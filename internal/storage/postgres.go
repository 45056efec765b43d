package storage

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Gopher0727/GlobalChat/config"
	"github.com/Gopher0727/GlobalChat/internal/models"
	logger "github.com/Gopher0727/GlobalChat/middleware/log"
)

// InitPostgres 初始化 PostgreSQL 连接
func InitPostgres(cfg *config.PostgresConfig, log *logger.Logger) (*gorm.DB, error) {
	dsn := BuildDSN(cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName)
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		log.Error("连接数据库失败", zap.Error(err))
		return nil, err
	}

	// 获取底层 sql.DB 对象以设置连接池
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("获取 sql.DB 失败", zap.Error(err))
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetConnMaxLifetime(time.Hour)

	log.Info("postgres connected", zap.String("host", cfg.Host), zap.String("db", cfg.DBName))
	return db, nil
}

// Migrate 创建或更新代理成员、代理设置与全局频道三张表
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&models.ProxyMember{},
		&models.ProxySettings{},
		&models.GlobalChatChannel{},
	); err != nil {
		return fmt.Errorf("模型迁移失败: %w", err)
	}
	return nil
}

// BuildDSN 构建PostgreSQL DSN
func BuildDSN(host, port, user, password, dbname string) string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable", host, port, user, password, dbname)
}
