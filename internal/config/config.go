package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// DatabaseConfig 数据库配置
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
	MaxIdle  int    `yaml:"max_idle"`

	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// DSN 获取数据库连接字符串
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode)
}

// RedisConfig Redis 配置
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// ServerConfig callguard-server（HTTP API + realtime gateway）配置
type ServerConfig struct {
	HTTP struct {
		Addr string `yaml:"addr"`
	} `yaml:"http"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Log      struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Privacy struct {
		HashSecret   string `yaml:"hash_secret"`
		MasterSecret string `yaml:"master_secret"`
	} `yaml:"privacy"`
	Auth struct {
		TokenSecret string        `yaml:"token_secret"`
		TokenTTL    time.Duration `yaml:"token_ttl"`
	} `yaml:"auth"`
	Realtime struct {
		HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
		WriteTimeout      time.Duration `yaml:"write_timeout"`
	} `yaml:"realtime"`
	Retention struct {
		Interval      time.Duration `yaml:"interval"`
		ActivityDays  int           `yaml:"activity_days"`
		AlertDays     int           `yaml:"alert_days"`
	} `yaml:"retention"`
}

// AgentConfig callguard-agent（采集设备端）配置
type AgentConfig struct {
	ServerURL   string        `yaml:"server_url"`
	DeviceToken string        `yaml:"device_token"`
	OwnerID     string        `yaml:"owner_id"`
	DBPath      string        `yaml:"db_path"`
	Log         struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
	Privacy struct {
		HashSecret   string `yaml:"hash_secret"`
		MasterSecret string `yaml:"master_secret"`
	} `yaml:"privacy"`
	Sync struct {
		Interval      time.Duration `yaml:"interval"`
		BatchSize     int           `yaml:"batch_size"`
		UploadTimeout time.Duration `yaml:"upload_timeout"`
	} `yaml:"sync"`
	ContactCacheSize int           `yaml:"contact_cache_size"`
	ContactCacheTTL  time.Duration `yaml:"contact_cache_ttl"`
}

// LoadServer 加载 server 配置：环境变量优先，可选 CONFIG_FILE 提供 YAML 基础值
func LoadServer() *ServerConfig {
	cfg := &ServerConfig{}
	loadYAML(cfg)

	cfg.HTTP.Addr = getEnv("HTTP_ADDR", defaultStr(cfg.HTTP.Addr, ":8080"))

	cfg.Database.Host = getEnv("DB_HOST", defaultStr(cfg.Database.Host, "localhost"))
	cfg.Database.Port = parseInt(getEnv("DB_PORT", ""), defaultInt(cfg.Database.Port, 5432))
	cfg.Database.User = getEnv("DB_USER", defaultStr(cfg.Database.User, "postgres"))
	cfg.Database.Password = getEnv("DB_PASSWORD", defaultStr(cfg.Database.Password, "postgres"))
	cfg.Database.Database = getEnv("DB_NAME", defaultStr(cfg.Database.Database, "callguard"))
	cfg.Database.SSLMode = getEnv("DB_SSLMODE", defaultStr(cfg.Database.SSLMode, "disable"))
	cfg.Database.MaxConns = parseInt(getEnv("DB_MAX_CONNS", ""), defaultInt(cfg.Database.MaxConns, 20))
	cfg.Database.MaxIdle = parseInt(getEnv("DB_MAX_IDLE", ""), defaultInt(cfg.Database.MaxIdle, 5))
	cfg.Database.ConnMaxLifetime = parseDuration(getEnv("DB_CONN_MAX_LIFETIME", ""), defaultDur(cfg.Database.ConnMaxLifetime, 30*time.Minute))

	cfg.Redis.Addr = getEnv("REDIS_ADDR", defaultStr(cfg.Redis.Addr, "localhost:6379"))
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	cfg.Redis.DB = parseInt(getEnv("REDIS_DB", ""), cfg.Redis.DB)

	cfg.Log.Level = getEnv("LOG_LEVEL", defaultStr(cfg.Log.Level, "info"))
	cfg.Log.Format = getEnv("LOG_FORMAT", defaultStr(cfg.Log.Format, "json"))

	cfg.Privacy.HashSecret = getEnv("PRIVACY_HASH_SECRET", cfg.Privacy.HashSecret)
	cfg.Privacy.MasterSecret = getEnv("PRIVACY_MASTER_SECRET", cfg.Privacy.MasterSecret)

	cfg.Auth.TokenSecret = getEnv("AUTH_TOKEN_SECRET", cfg.Auth.TokenSecret)
	cfg.Auth.TokenTTL = parseDuration(getEnv("AUTH_TOKEN_TTL", ""), defaultDur(cfg.Auth.TokenTTL, 24*time.Hour))

	cfg.Realtime.HeartbeatInterval = parseDuration(getEnv("REALTIME_HEARTBEAT_INTERVAL", ""), defaultDur(cfg.Realtime.HeartbeatInterval, 30*time.Second))
	cfg.Realtime.WriteTimeout = parseDuration(getEnv("REALTIME_WRITE_TIMEOUT", ""), defaultDur(cfg.Realtime.WriteTimeout, 10*time.Second))

	cfg.Retention.Interval = parseDuration(getEnv("RETENTION_INTERVAL", ""), defaultDur(cfg.Retention.Interval, time.Hour))
	cfg.Retention.ActivityDays = parseInt(getEnv("RETENTION_ACTIVITY_DAYS", ""), defaultInt(cfg.Retention.ActivityDays, 30))
	cfg.Retention.AlertDays = parseInt(getEnv("RETENTION_ALERT_DAYS", ""), defaultInt(cfg.Retention.AlertDays, 90))

	return cfg
}

// LoadAgent 加载 agent 配置
func LoadAgent() *AgentConfig {
	cfg := &AgentConfig{}
	loadYAML(cfg)

	cfg.ServerURL = getEnv("SERVER_URL", defaultStr(cfg.ServerURL, "http://localhost:8080"))
	cfg.DeviceToken = getEnv("DEVICE_TOKEN", cfg.DeviceToken)
	cfg.OwnerID = getEnv("OWNER_ID", cfg.OwnerID)
	cfg.DBPath = getEnv("AGENT_DB_PATH", defaultStr(cfg.DBPath, "callguard-agent.db"))

	cfg.Log.Level = getEnv("LOG_LEVEL", defaultStr(cfg.Log.Level, "info"))
	cfg.Log.Format = getEnv("LOG_FORMAT", defaultStr(cfg.Log.Format, "json"))

	cfg.Privacy.HashSecret = getEnv("PRIVACY_HASH_SECRET", cfg.Privacy.HashSecret)
	cfg.Privacy.MasterSecret = getEnv("PRIVACY_MASTER_SECRET", cfg.Privacy.MasterSecret)

	cfg.Sync.Interval = parseDuration(getEnv("SYNC_INTERVAL", ""), defaultDur(cfg.Sync.Interval, 5*time.Minute))
	cfg.Sync.BatchSize = parseInt(getEnv("SYNC_BATCH_SIZE", ""), defaultInt(cfg.Sync.BatchSize, 100))
	cfg.Sync.UploadTimeout = parseDuration(getEnv("SYNC_UPLOAD_TIMEOUT", ""), defaultDur(cfg.Sync.UploadTimeout, 30*time.Second))

	cfg.ContactCacheSize = parseInt(getEnv("CONTACT_CACHE_SIZE", ""), defaultInt(cfg.ContactCacheSize, 500))
	cfg.ContactCacheTTL = parseDuration(getEnv("CONTACT_CACHE_TTL", ""), defaultDur(cfg.ContactCacheTTL, 10*time.Minute))

	return cfg
}

// loadYAML 当 CONFIG_FILE 指向可读文件时，用其内容作为基础值
func loadYAML(out interface{}) {
	path := os.Getenv("CONFIG_FILE")
	if path == "" {
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return
	}
	_ = yaml.Unmarshal(data, out)
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return i
}

func parseDuration(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return def
	}
	return d
}

func defaultStr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func defaultInt(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

func defaultDur(v, def time.Duration) time.Duration {
	if v == 0 {
		return def
	}
	return v
}
