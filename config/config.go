package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Database   DatabaseConfig   `mapstructure:"database"`
	Redis      RedisConfig      `mapstructure:"redis"`
	PubNub     PubNubConfig     `mapstructure:"pubnub"`
	Gateway    GatewayConfig    `mapstructure:"gateway"`
	Mailer     MailerConfig     `mapstructure:"mailer"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Queue      QueueConfig      `mapstructure:"queue"`
	Settlement SettlementConfig `mapstructure:"settlement"`
}

type ServerConfig struct {
	Port        string `mapstructure:"port"`
	Environment string `mapstructure:"environment"`
}

type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

type RedisConfig struct {
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type PubNubConfig struct {
	PublishKey   string `mapstructure:"publish_key"`
	SubscribeKey string `mapstructure:"subscribe_key"`
	SecretKey    string `mapstructure:"secret_key"`
}

type GatewayConfig struct {
	BaseURL       string `mapstructure:"base_url"`
	SecretKey     string `mapstructure:"secret_key"`
	WebhookSecret string `mapstructure:"webhook_secret"`
}

type MailerConfig struct {
	APIKey     string `mapstructure:"api_key"`
	FromName   string `mapstructure:"from_name"`
	FromEmail  string `mapstructure:"from_email"`
	AdminEmail string `mapstructure:"admin_email"`
}

type NotifyConfig struct {
	ExternalWebhookURL string `mapstructure:"external_webhook_url"`
	AdminChannel       string `mapstructure:"admin_channel"`
}

type QueueConfig struct {
	MainQueue       string        `mapstructure:"main_queue"`
	ProcessingQueue string        `mapstructure:"processing_queue"`
	DLQ             string        `mapstructure:"dlq"`
	MaxRetries      int           `mapstructure:"max_retries"`
	BaseDelay       time.Duration `mapstructure:"base_delay"`
	PopTimeout      time.Duration `mapstructure:"pop_timeout"`
	Workers         int           `mapstructure:"workers"`
}

type SettlementConfig struct {
	LockPaidTTL       time.Duration `mapstructure:"lock_paid_ttl"`
	TrendingWindow    time.Duration `mapstructure:"trending_window"`
	RetryKeyTTL       time.Duration `mapstructure:"retry_key_ttl"`
	FailedArchiveTTL  time.Duration `mapstructure:"failed_archive_ttl"`
	SchedulerInterval time.Duration `mapstructure:"scheduler_interval"`
}

// LoadConfig reads settings from the environment with sane defaults, e.g.
// SETTLEMENT_REDIS_URL overrides redis.url.
func LoadConfig() (*Config, error) {
	v := viper.New()
	v.SetEnvPrefix("settlement")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8090")
	v.SetDefault("server.environment", "development")

	v.SetDefault("database.dsn", "postgres://localhost:5432/ticketing?sslmode=disable")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)

	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	v.SetDefault("pubnub.publish_key", "")
	v.SetDefault("pubnub.subscribe_key", "")
	v.SetDefault("pubnub.secret_key", "")

	v.SetDefault("gateway.base_url", "https://api.paystack.co")
	v.SetDefault("gateway.secret_key", "")
	v.SetDefault("gateway.webhook_secret", "")

	v.SetDefault("mailer.api_key", "")
	v.SetDefault("mailer.from_name", "Ticketing")
	v.SetDefault("mailer.from_email", "noreply@ticketing.local")
	v.SetDefault("mailer.admin_email", "ops@ticketing.local")

	v.SetDefault("notify.external_webhook_url", "")
	v.SetDefault("notify.admin_channel", "admin-escalations")

	v.SetDefault("queue.main_queue", "settlement:jobs")
	v.SetDefault("queue.processing_queue", "settlement:jobs:processing")
	v.SetDefault("queue.dlq", "settlement:dlq")
	v.SetDefault("queue.max_retries", 3)
	v.SetDefault("queue.base_delay", 5*time.Second)
	v.SetDefault("queue.pop_timeout", 5*time.Second)
	v.SetDefault("queue.workers", 4)

	v.SetDefault("settlement.lock_paid_ttl", 60*time.Second)
	v.SetDefault("settlement.trending_window", 72*time.Hour)
	v.SetDefault("settlement.retry_key_ttl", 24*time.Hour)
	v.SetDefault("settlement.failed_archive_ttl", 30*24*time.Hour)
	v.SetDefault("settlement.scheduler_interval", time.Minute)
}
