package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type WorkerConfig struct {
	PollInterval       time.Duration `mapstructure:"poll_interval"`
	CheckpointInterval int           `mapstructure:"checkpoint_interval"`
	AnalysisVersion    int           `mapstructure:"analysis_version"`
	WriteRetryBase     time.Duration `mapstructure:"write_retry_base"`
	WriteRetryJitter   time.Duration `mapstructure:"write_retry_jitter"`
	WriteMaxRetries    uint64        `mapstructure:"write_max_retries"`
}

type EventsConfig struct {
	AMQPURL    string `mapstructure:"amqp_url"`
	Exchange   string `mapstructure:"exchange"`
	Queue      string `mapstructure:"queue"`
	RoutingKey string `mapstructure:"routing_key"`
}

type Config struct {
	DatabaseURL   string       `mapstructure:"database_url"`
	ServerPort    string       `mapstructure:"server_port"`
	JWTSecret     string       `mapstructure:"jwt_secret"`
	AllowedOrigin string       `mapstructure:"allowed_origin"`
	Worker        WorkerConfig `mapstructure:"worker"`
	Events        EventsConfig `mapstructure:"events"`
}

// Load reads the configuration from a YAML file and returns a Config instance.
func Load() *Config {
	v := viper.New()

	// Look for config in the current directory and ./config
	v.AddConfigPath(".")
	v.SetConfigName("config")
	v.AddConfigPath("./config")
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("Error reading config file: %v", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		log.Fatalf("Error unmarshalling config: %v", err)
	}

	// Fallback defaults
	if config.ServerPort == "" {
		config.ServerPort = "8080"
	}
	if config.AllowedOrigin == "" {
		config.AllowedOrigin = "http://localhost:3000"
	}
	if config.Worker.PollInterval == 0 {
		config.Worker.PollInterval = 5 * time.Second
	}
	if config.Worker.CheckpointInterval <= 0 {
		config.Worker.CheckpointInterval = 100
	}
	if config.Worker.AnalysisVersion <= 0 {
		config.Worker.AnalysisVersion = 1
	}
	if config.Worker.WriteRetryBase == 0 {
		config.Worker.WriteRetryBase = 100 * time.Millisecond
	}
	if config.Worker.WriteRetryJitter == 0 {
		config.Worker.WriteRetryJitter = 50 * time.Millisecond
	}
	if config.Worker.WriteMaxRetries == 0 {
		config.Worker.WriteMaxRetries = 5
	}
	if config.Events.Exchange == "" {
		config.Events.Exchange = "tool-registry"
	}
	if config.Events.Queue == "" {
		config.Events.Queue = "reanalysis-triggers"
	}
	if config.Events.RoutingKey == "" {
		config.Events.RoutingKey = "tool.*"
	}

	return &config
}
