package config

import (
	"fmt"
	"os"

	"go.yaml.in/yaml/v4"
)

type Config struct {
	Database   DatabaseConfig   `yaml:"database"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Redis      RedisConfig      `yaml:"redis"`
	OrderPulse OrderPulseConfig `yaml:"orderpulse"`
}

type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	DBName   string `yaml:"name"`
	SSLMode  string `yaml:"ssl_mode"`
}

type KafkaConfig struct {
	Host                   string `yaml:"host"`
	Port                   int    `yaml:"port"`
	CheckpointsTopicName   string `yaml:"checkpoints_topic_name"`
	StatusChangedTopicName string `yaml:"status_changed_topic_name"`
}

type RedisConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type OrderPulseConfig struct {
	HTTPAddr                string `yaml:"http_addr"`
	KafkaConsumerGroup      string `yaml:"kafka_consumer_group"`
	CurrentStatusTTLSeconds int    `yaml:"current_status_ttl_seconds"`
	SwaggerPath             string `yaml:"swagger_path"`

	WatcherPollIntervalSeconds         int `yaml:"watcher_poll_interval_seconds"`
	WatcherBatchSize                   int `yaml:"watcher_batch_size"`
	WatcherConcurrency                 int `yaml:"watcher_concurrency"`
	WatcherLeaseSeconds                int `yaml:"watcher_lease_seconds"`
	WatcherRateLimitPerRecipientMinute int `yaml:"watcher_rate_limit_per_recipient_minute"`

	WatcherHTTPAddr string `yaml:"watcher_http_addr"`

	// Watcher scheduling (optional). If not set, defaults are "prod-like":
	// warn window 7 days, near checks 30..120 minutes, far checks 12 hours.
	WatcherWarnBeforeHours     int `yaml:"watcher_warn_before_hours"`
	WatcherNearCheckMinSeconds int `yaml:"watcher_near_check_min_seconds"`
	WatcherNearCheckMaxSeconds int `yaml:"watcher_near_check_max_seconds"`
	WatcherFarCheckSeconds     int `yaml:"watcher_far_check_seconds"`
	WatcherExpiredCheckSeconds int `yaml:"watcher_expired_check_seconds"`
	WatcherRetrySeconds        int `yaml:"watcher_retry_seconds"`
}

func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	err = yaml.Unmarshal(data, &config)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal YAML: %w", err)
	}

	return &config, nil
}

func (c DatabaseConfig) ConnString() string {
	ssl := c.SSLMode
	if ssl == "" {
		ssl = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Username, c.Password, c.Host, c.Port, c.DBName, ssl)
}

func (c KafkaConfig) Broker() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
