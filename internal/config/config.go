package config

import (
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config 全局配置结构
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	MySQL    MySQLConfig    `mapstructure:"mysql"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Log      LogConfig      `mapstructure:"log"`
	Business BusinessConfig `mapstructure:"business"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// DatabaseConfig 选择记录存储驱动：mysql（生产）或 sqlite（本地开发）
type DatabaseConfig struct {
	Driver  string `mapstructure:"driver"`
	LogMode bool   `mapstructure:"log_mode"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
}

type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type KafkaConfig struct {
	Enabled bool             `mapstructure:"enabled"`
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	RequestEvents string `mapstructure:"request_events"`
}

// StorageConfig 领收书存储（MinIO / S3 兼容）
type StorageConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
	Issuer    string `mapstructure:"issuer"`
}

type LogConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

type BusinessConfig struct {
	MaxRetryCount        int   `mapstructure:"max_retry_count"`
	ApprovalRetry        int   `mapstructure:"approval_retry"`
	ReceiptURLTTLSeconds int   `mapstructure:"receipt_url_ttl_seconds"`
	HistoryLimit         int   `mapstructure:"history_limit"`
	SearchLimit          int   `mapstructure:"search_limit"`
	EnforceApproverRoles bool  `mapstructure:"enforce_approver_roles"`
	MaxReceiptBytes      int64 `mapstructure:"max_receipt_bytes"`
}

var GlobalConfig *Config

// Default 返回未读取配置文件时使用的默认值
func Default() *Config {
	return &Config{
		Server:   ServerConfig{Port: 8080, Mode: "release"},
		Database: DatabaseConfig{Driver: "mysql"},
		SQLite:   SQLiteConfig{Path: "data/clubexpense.db"},
		Redis:    RedisConfig{PoolSize: 10},
		Kafka:    KafkaConfig{Topic: KafkaTopicConfig{RequestEvents: "clubexpense.request.events"}},
		Storage:  StorageConfig{Bucket: "ks-receipts"},
		Auth:     AuthConfig{Issuer: "clubexpense"},
		Log:      LogConfig{Level: "info"},
		Business: BusinessConfig{
			MaxRetryCount:        5,
			ApprovalRetry:        10,
			ReceiptURLTTLSeconds: 3600,
			HistoryLimit:         50,
			SearchLimit:          500,
			MaxReceiptBytes:      10 << 20,
		},
	}
}

// LoadConfig 加载配置文件，环境变量 CLUBEXPENSE_* 可覆盖同名配置项
func LoadConfig(configPath string) *Config {
	// .env 不存在时忽略
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("CLUBEXPENSE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("读取配置文件失败: %v", err)
	}

	config := Default()
	if err := v.Unmarshal(config); err != nil {
		log.Fatalf("解析配置文件失败: %v", err)
	}

	GlobalConfig = config
	return config
}
