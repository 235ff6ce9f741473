package database

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"clubexpense/internal/config"
	"clubexpense/internal/model"

	"gorm.io/driver/mysql"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// Models 需要自动迁移的表
var Models = []interface{}{
	&model.Club{},
	&model.User{},
	&model.Request{},
	&model.RequestItem{},
	&model.OutboxMessage{},
}

// Init 按配置选择 MySQL 或 SQLite
func Init(cfg *config.Config) *gorm.DB {
	gormLogger := logger.Default.LogMode(logger.Silent)
	if cfg.Database.LogMode {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Database.Driver {
	case "sqlite":
		db, err = openSQLite(&cfg.SQLite, gormLogger)
	default:
		db, err = openMySQL(&cfg.MySQL, gormLogger)
	}
	if err != nil {
		log.Fatalf("连接数据库失败: %v", err)
	}

	if err := Migrate(db); err != nil {
		log.Fatalf("自动迁移表结构失败: %v", err)
	}

	DB = db
	log.Printf("数据库连接成功: driver=%s", cfg.Database.Driver)
	return db
}

// Migrate 自动迁移表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(Models...)
}

func openMySQL(cfg *config.MySQLConfig, gormLogger logger.Interface) (*gorm.DB, error) {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)

	db, err := gorm.Open(mysql.Open(dsn), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("获取底层 DB 失败: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(time.Hour)
	return db, nil
}

func openSQLite(cfg *config.SQLiteConfig, gormLogger logger.Interface) (*gorm.DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}

	db, err := gorm.Open(sqlite.Open(cfg.Path), &gorm.Config{Logger: gormLogger})
	if err != nil {
		return nil, err
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}

	// SQLite 单写者，串行化连接避免 database is locked
	sqlDB.SetMaxOpenConns(1)
	_, _ = sqlDB.Exec("PRAGMA journal_mode = WAL;")
	_, _ = sqlDB.Exec("PRAGMA foreign_keys = ON;")
	return db, nil
}
