package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
	Store      StoreConfig      `mapstructure:"store"`
	Postgres   PostgresConfig   `mapstructure:"postgres"`
	Redis      RedisConfig      `mapstructure:"redis"`
	JWT        JWTConfig        `mapstructure:"jwt"`
	WorkerPool WorkerPoolConfig `mapstructure:"worker_pool"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Discord    DiscordConfig    `mapstructure:"discord"`
	Relay      RelayConfig      `mapstructure:"relay"`
	Snowflake  SnowflakeConfig  `mapstructure:"snowflake"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Mode string `mapstructure:"mode"`
}

// LoggingConfig 日志配置
type LoggingConfig struct {
	Level    string `mapstructure:"level"`  // debug, info, warn, error, fatal
	Format   string `mapstructure:"format"` // json, text
	Output   string `mapstructure:"output"` // stdout, file
	FilePath string `mapstructure:"file_path"`
}

// StoreConfig 选择持久化后端：postgres 或 memory（本地调试）
type StoreConfig struct {
	Driver   string        `mapstructure:"driver"`
	CacheTTL time.Duration `mapstructure:"cache_ttl"`
}

type PostgresConfig struct {
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	DBName       string `mapstructure:"dbname"`
	MaxIdleConns int    `mapstructure:"max_idle_conns"`
	MaxOpenConns int    `mapstructure:"max_open_conns"`
}

type RedisConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Host         string `mapstructure:"host"`
	Port         string `mapstructure:"port"`
	Password     string `mapstructure:"password"`
	DB           int    `mapstructure:"db"`
	PoolSize     int    `mapstructure:"pool_size"`
	MinIdleConns int    `mapstructure:"min_idle_conns"`
}

type JWTConfig struct {
	Secret       string `mapstructure:"secret"`
	ExpireHours  int    `mapstructure:"expire_hours"`
	RefreshHours int    `mapstructure:"refresh_hours"`
}

type WorkerPoolConfig struct {
	Size      int `mapstructure:"size"`
	QueueSize int `mapstructure:"queue_size"`
}

// KafkaConfig 入站事件队列；处理失败且重试耗尽的消息写入 DLQTopic
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	Topic        string        `mapstructure:"topic"`
	DLQTopic     string        `mapstructure:"dlq_topic"`
	GroupID      string        `mapstructure:"group_id"`
	MaxRetries   int           `mapstructure:"max_retries"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type DiscordConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Token       string `mapstructure:"token"`
	WebhookName string `mapstructure:"webhook_name"`
}

// RelayConfig 控制跨服务器转发
type RelayConfig struct {
	DefaultPrefix string `mapstructure:"default_prefix"`
	FanoutLimit   int    `mapstructure:"fanout_limit"`
}

type SnowflakeConfig struct {
	WorkerID int64 `mapstructure:"worker_id"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "release")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.cache_ttl", time.Hour)
	v.SetDefault("jwt.expire_hours", 24)
	v.SetDefault("jwt.refresh_hours", 168)
	v.SetDefault("worker_pool.size", 32)
	v.SetDefault("worker_pool.queue_size", 4096)
	v.SetDefault("kafka.topic", "globalchat.inbound")
	v.SetDefault("kafka.dlq_topic", "globalchat.inbound.dlq")
	v.SetDefault("kafka.group_id", "globalchat")
	v.SetDefault("kafka.max_retries", 3)
	v.SetDefault("kafka.retry_backoff", 100*time.Millisecond)
	v.SetDefault("discord.webhook_name", "GlobalChat")
	v.SetDefault("relay.default_prefix", "[GC]")
	v.SetDefault("relay.fanout_limit", 8)
}

// LoadConfig 读取配置文件，环境变量 GLOBALCHAT_<SECTION>_<KEY> 可覆盖文件中的值
func LoadConfig(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigFile(path)
	v.SetEnvPrefix("globalchat")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if config.WorkerPool.Size <= 0 {
		return nil, fmt.Errorf("worker_pool.size must be positive, got %d", config.WorkerPool.Size)
	}
	switch config.Store.Driver {
	case "postgres", "memory":
	default:
		return nil, fmt.Errorf("unknown store driver %q", config.Store.Driver)
	}
	return &config, nil
}
