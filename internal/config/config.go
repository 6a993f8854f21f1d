// Package config предоставляет структуры и функцию для парсинга и загрузки конфига
package config

import (
	"log"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config общая структура для хранения настроек сервиса
type Config struct {
	Env                     string `yaml:"env" env-default:"local"`
	StorageConnectionString string `yaml:"storage_connection_string"`
	MigrationsPath          string `yaml:"migrations_path" env-default:"./migrations"`
	RedisConnection         `yaml:"redis_connection"`
	HTTPServer              `yaml:"http_server"`
	RabbitMQ                `yaml:"rabbitmq"`
	Telegram                `yaml:"telegram"`
	Billing                 `yaml:"billing"`
	Jobs                    `yaml:"jobs"`
	JWTToken                `yaml:"jwttoken"`
}

// HTTPServer структура для настройки сервера
type HTTPServer struct {
	AddressHTTP string        `yaml:"addresshttp" env-default:":8080"`
	TimeoutHTTP time.Duration `yaml:"timeouthttp" env-default:"10s"`
	IdleTimeout time.Duration `yaml:"idle_timeout" env-default:"60s"`
}

// RedisConnection структура для настройки подключения к redis
type RedisConnection struct {
	AddressRedis string        `yaml:"addressredis"`
	Password     string        `yaml:"password"`
	User         string        `yaml:"user"`
	DB           int           `yaml:"db"`
	MaxRetries   int           `yaml:"max_retries" env-default:"3"`
	DialTimeout  time.Duration `yaml:"dial_timeout" env-default:"5s"`
	TimeoutRedis time.Duration `yaml:"timeoutredis" env-default:"3s"`
}

// RabbitMQ структура для настройки подключения к брокеру уведомлений
type RabbitMQ struct {
	RabbitMQURL        string        `yaml:"url"`
	RabbitMQMaxRetries int           `yaml:"max_retries" env-default:"10"`
	RabbitMQRetryDelay time.Duration `yaml:"retry_delay" env-default:"3s"`
}

// Telegram структура для настройки бота и VIP-группы
type Telegram struct {
	BotToken                   string  `yaml:"bot_token" env:"TELEGRAM_BOT_TOKEN"`
	VIPGroupID                 int64   `yaml:"vip_group_id"`
	VIPGroupCheckEnabled       bool    `yaml:"vip_group_check_enabled" env-default:"true"`
	RemovalNotificationEnabled bool    `yaml:"removal_notification_enabled" env-default:"true"`
	MessagesPerSecond          float64 `yaml:"messages_per_second" env-default:"20"`
}

// Billing структура с параметрами обработки платежей
type Billing struct {
	WebhookSecret       string `yaml:"webhook_secret" env:"BILLING_WEBHOOK_SECRET"`
	RenewalPeriodDays   int    `yaml:"renewal_period_days" env-default:"30"`
	ReferralBonusPoints int    `yaml:"referral_bonus_points" env-default:"100"`
}

// Jobs структура с расписанием фоновых задач
type Jobs struct {
	SweepInterval      time.Duration `yaml:"sweep_interval" env-default:"24h"`
	ReconcileInterval  time.Duration `yaml:"reconcile_interval" env-default:"1h"`
	OutboxInterval     time.Duration `yaml:"outbox_interval" env-default:"30s"`
	OutboxBatchSize    int           `yaml:"outbox_batch_size" env-default:"100"`
	RemovalGracePeriod time.Duration `yaml:"removal_grace_period" env-default:"1h"`
}

// JWTToken структура для проверки токенов read-only API
type JWTToken struct {
	JWTSecretKey string        `yaml:"jwt_secret_key" env:"JWT_SECRET_KEY"`
	TokenTTL     time.Duration `yaml:"token_ttl" env-default:"24h"`
}

// MustLoad функция для загрузки конфига, путь берется из переменной CONFIG_PATH
func MustLoad() *Config {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		log.Fatal("CONFIG_PATH is not set")
	}
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		log.Fatalf("file: %s - does not exist", configPath)
	}
	var cfg Config

	if err := cleanenv.ReadConfig(configPath, &cfg); err != nil {
		log.Fatalf("cannot read config: %s", err)
	}
	return &cfg
}
