package config

import (
	"log"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Database struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	SSLMode  string `mapstructure:"ssl-mode"`
}

type Redis struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaWriter struct {
	BatchSize      int `mapstructure:"batch-size"`
	BatchTimeoutMs int `mapstructure:"batch-timeout-ms"`
}

type KafkaBroker struct {
	URL string `mapstructure:"url"`
}

type KafkaTopic struct {
	PaymentEvents string `mapstructure:"payment-events"`
}

type Kafka struct {
	Writer KafkaWriter `mapstructure:"writer"`
	Broker KafkaBroker `mapstructure:"broker"`
	Topic  KafkaTopic  `mapstructure:"topic"`
}

type Duitku struct {
	MerchantCode  string `mapstructure:"merchant-code"`
	APIKey        string `mapstructure:"api-key"`
	BaseURL       string `mapstructure:"base-url"`
	CallbackURL   string `mapstructure:"callback-url"`
	ReturnURL     string `mapstructure:"return-url"`
	ExpiryMinutes int    `mapstructure:"expiry-minutes"`
	TimeoutMs     int    `mapstructure:"timeout-ms"`
}

type Thinkific struct {
	Subdomain     string `mapstructure:"subdomain"`
	APIKey        string `mapstructure:"api-key"`
	WebhookSecret string `mapstructure:"webhook-secret"`
	TimeoutMs     int    `mapstructure:"timeout-ms"`
}

type Webhook struct {
	ContextTTLSeconds int `mapstructure:"context-ttl-seconds"`
	LedgerTTLHours    int `mapstructure:"ledger-ttl-hours"`
}

type Retry struct {
	PollingIntervalMs int `mapstructure:"polling-interval-ms"`
	MaxAttempts       int `mapstructure:"max-attempts"`
	BackoffMs         int `mapstructure:"backoff-ms"`
}

type Server struct {
	Port string `mapstructure:"port"`
}

type Metrics struct {
	URL          string `mapstructure:"url"`
	IntervalMs   int    `mapstructure:"interval-ms"`
	CommonLabels string `mapstructure:"common-labels"`
}

type Logs struct {
	URL string `mapstructure:"url"`
}

type Config struct {
	Database  Database  `mapstructure:"database"`
	Redis     Redis     `mapstructure:"redis"`
	Kafka     Kafka     `mapstructure:"kafka"`
	Duitku    Duitku    `mapstructure:"duitku"`
	Thinkific Thinkific `mapstructure:"thinkific"`
	Webhook   Webhook   `mapstructure:"webhook"`
	Retry     Retry     `mapstructure:"retry"`
	Server    Server    `mapstructure:"server"`
	Metrics   Metrics   `mapstructure:"metrics"`
	Logs      Logs      `mapstructure:"logs"`
}

func LoadConfig(path string) (*Config, error) {
	// .env is optional, used for local overrides
	_ = godotenv.Load()

	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func MustLoadConfig(path string) *Config {
	config, err := LoadConfig(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	return config
}
