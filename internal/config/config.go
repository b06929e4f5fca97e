package config

import (
	"fmt"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketPhotos string
	UseSSL       bool
	Region       string
}

type SecurityConfig struct {
	JWTSecret       string
	JWTAccessTTL    time.Duration
	JWTRefreshTTL   time.Duration
	SessionTTL      time.Duration
	SignatureSecret string
}

type RateLimitConfig struct {
	GeneralMax     int
	GeneralWindow  time.Duration
	AuthMax        int
	AuthWindow     time.Duration
	UploadMax      int
	UploadWindow   time.Duration
	LocationMax    int
	LocationWindow time.Duration
}

type RetentionConfig struct {
	AuditLogs       time.Duration
	ExpiredSessions time.Duration
}

type UploadConfig struct {
	MaxFileSize int64
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Storage          StorageConfig
	Security         SecurityConfig
	RateLimit        RateLimitConfig
	Retention        RetentionConfig
	Upload           UploadConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("FOTOREG")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 3000)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "30s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("storage.bucketphotos", "fotoreg-photos")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("security.jwtaccessttl", "24h")
	v.SetDefault("security.jwtrefreshttl", "168h") // 7 days
	v.SetDefault("security.sessionttl", "24h")

	v.SetDefault("ratelimit.generalmax", 100)
	v.SetDefault("ratelimit.generalwindow", "15m")
	v.SetDefault("ratelimit.authmax", 5)
	v.SetDefault("ratelimit.authwindow", "15m")
	v.SetDefault("ratelimit.uploadmax", 10)
	v.SetDefault("ratelimit.uploadwindow", "1h")
	v.SetDefault("ratelimit.locationmax", 60)
	v.SetDefault("ratelimit.locationwindow", "1m")

	v.SetDefault("retention.auditlogs", "4320h")       // ~6 months
	v.SetDefault("retention.expiredsessions", "720h") // 30 days

	v.SetDefault("upload.maxfilesize", 10<<20) // 10 MB
}
