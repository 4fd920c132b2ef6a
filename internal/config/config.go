package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	// EnvConfigPath 覆盖配置文件路径的环境变量
	EnvConfigPath = "MARKETPLACE_CONFIG"
	envPrefix     = "MARKETPLACE"

	DefaultConfigPath = "config/config.yaml"
)

// Config 全局配置结构
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	MySQL      MySQLConfig      `mapstructure:"mysql"`
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	Cart       CartConfig       `mapstructure:"cart"`
	Affiliate  AffiliateConfig  `mapstructure:"affiliate"`
	Withdrawal WithdrawalConfig `mapstructure:"withdrawal"`
	Business   BusinessConfig   `mapstructure:"business"`
	Log        LogConfig        `mapstructure:"log"`
}

type ServerConfig struct {
	Port     int    `mapstructure:"port"`
	Mode     string `mapstructure:"mode"` // gin 运行模式：debug / release / test
	WorkerID int64  `mapstructure:"worker_id"`
}

type MySQLConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	Database     string `mapstructure:"database"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	LogLevel     string `mapstructure:"log_level"` // silent / error / warn / info
}

func (c MySQLConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

type KafkaConfig struct {
	Brokers []string         `mapstructure:"brokers"`
	Topic   KafkaTopicConfig `mapstructure:"topic"`
}

type KafkaTopicConfig struct {
	OrderSettled string `mapstructure:"order_settled"`
	Withdrawal   string `mapstructure:"withdrawal"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

type CartConfig struct {
	TTLHours int `mapstructure:"ttl_hours"`
}

func (c CartConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

type AffiliateConfig struct {
	CodeLength      int `mapstructure:"code_length"`
	CodeMaxAttempts int `mapstructure:"code_max_attempts"`
}

type WithdrawalConfig struct {
	LockSeconds    int `mapstructure:"lock_seconds"`
	LockRetries    int `mapstructure:"lock_retries"`
	LockRetryMilli int `mapstructure:"lock_retry_ms"`
}

func (c WithdrawalConfig) LockTTL() time.Duration {
	return time.Duration(c.LockSeconds) * time.Second
}

func (c WithdrawalConfig) LockRetryInterval() time.Duration {
	return time.Duration(c.LockRetryMilli) * time.Millisecond
}

type BusinessConfig struct {
	MaxRetryCount            int `mapstructure:"max_retry_count"`
	OutboxBatchSize          int `mapstructure:"outbox_batch_size"`
	OutboxIntervalMilli      int `mapstructure:"outbox_interval_ms"`
	ReconcileIntervalSeconds int `mapstructure:"reconcile_interval_seconds"`
	ReconcileAfterMinutes    int `mapstructure:"reconcile_after_minutes"`
	ReconcileBatchSize       int `mapstructure:"reconcile_batch_size"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("server.worker_id", 1)

	v.SetDefault("mysql.host", "127.0.0.1")
	v.SetDefault("mysql.port", 3306)
	v.SetDefault("mysql.max_open_conns", 50)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.log_level", "warn")

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)

	v.SetDefault("kafka.brokers", []string{"127.0.0.1:9092"})
	v.SetDefault("kafka.topic.order_settled", "marketplace.order.settled")
	v.SetDefault("kafka.topic.withdrawal", "marketplace.withdrawal")

	v.SetDefault("jwt.issuer", "marketplace")

	v.SetDefault("cart.ttl_hours", 72)

	v.SetDefault("affiliate.code_length", 10)
	v.SetDefault("affiliate.code_max_attempts", 5)

	v.SetDefault("withdrawal.lock_seconds", 30)
	v.SetDefault("withdrawal.lock_retries", 20)
	v.SetDefault("withdrawal.lock_retry_ms", 100)

	v.SetDefault("business.max_retry_count", 5)
	v.SetDefault("business.outbox_batch_size", 100)
	v.SetDefault("business.outbox_interval_ms", 100)
	v.SetDefault("business.reconcile_interval_seconds", 30)
	v.SetDefault("business.reconcile_after_minutes", 2)
	v.SetDefault("business.reconcile_batch_size", 50)

	v.SetDefault("log.level", "info")
}

// LoadConfig 加载配置文件
// 路径优先级：参数 > MARKETPLACE_CONFIG > config/config.yaml；
// MARKETPLACE_MYSQL_PASSWORD 这类环境变量会覆盖文件中的同名配置
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = os.Getenv(EnvConfigPath)
	}
	if configPath == "" {
		configPath = DefaultConfigPath
	}

	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate 启动前检查必填项
func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("配置缺失: jwt.secret")
	}
	if c.MySQL.Database == "" {
		return fmt.Errorf("配置缺失: mysql.database")
	}
	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("配置缺失: kafka.brokers")
	}
	if c.Affiliate.CodeLength < 6 {
		return fmt.Errorf("affiliate.code_length 不能小于 6")
	}
	return nil
}
