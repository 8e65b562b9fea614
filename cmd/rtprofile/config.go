package main

import (
	"fmt"

	"github.com/ilyakaznacheev/cleanenv"
)

type ServiceConfig struct {
	Environment string `yaml:"environment" env:"RTPROFILE_ENVIRONMENT" env-default:"development"`
	LogLevel    string `yaml:"log_level" env:"RTPROFILE_LOG_LEVEL" env-default:"info"`

	SentryDSN string `yaml:"sentry_dsn" env:"SENTRY_DSN"`
	Port      string `yaml:"port" env:"PORT" env-default:"8080"`

	BucketURL     string `yaml:"bucket_url" env:"RTPROFILE_BUCKET_URL" env-default:"mem://"`
	RetentionDays int    `yaml:"retention_days" env:"RTPROFILE_RETENTION_DAYS" env-default:"30"`

	KafkaBrokers        []string `yaml:"kafka_brokers" env:"RTPROFILE_KAFKA_BROKERS" env-separator:","`
	FunctionsKafkaTopic string   `yaml:"functions_topic" env:"RTPROFILE_FUNCTIONS_TOPIC" env-default:"profiles-functions"`

	Editor   string `yaml:"editor" env:"RTPROFILE_EDITOR"`
	MaxDepth int    `yaml:"max_depth" env:"RTPROFILE_MAX_DEPTH" env-default:"0"`

	// MaxEventLogBytes bounds the decompressed size of an uploaded event log.
	MaxEventLogBytes int64 `yaml:"max_event_log_bytes" env:"RTPROFILE_MAX_EVENT_LOG_BYTES" env-default:"67108864"`
}

// loadConfig reads the environment, over the YAML file at path if any.
func loadConfig(path string) (ServiceConfig, error) {
	var cfg ServiceConfig
	var err error
	if path != "" {
		err = cleanenv.ReadConfig(path, &cfg)
	} else {
		err = cleanenv.ReadEnv(&cfg)
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if cfg.MaxDepth < 0 {
		return cfg, fmt.Errorf("read config: max depth %d is negative", cfg.MaxDepth)
	}
	if cfg.MaxEventLogBytes <= 0 {
		return cfg, fmt.Errorf("read config: max event log size %d is not positive", cfg.MaxEventLogBytes)
	}
	return cfg, nil
}
