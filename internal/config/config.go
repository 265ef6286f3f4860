package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	OpenAI struct {
		APIKey           string `mapstructure:"api_key"`
		BaseURL          string `mapstructure:"base_url"`
		Model            string `mapstructure:"model"`
		Endpoint         string `mapstructure:"endpoint"`
		CompletionWindow string `mapstructure:"completion_window"`
	} `mapstructure:"openai"`

	Encoder struct {
		ImageColumn  string `mapstructure:"image_column"`
		BatchSize    int    `mapstructure:"batch_size"`
		OutputDir    string `mapstructure:"output_dir"`
		MaxImageSize int    `mapstructure:"max_image_size"`
		Prompt       string `mapstructure:"prompt"` // Path to a prompt file; empty uses the built-in prompt
	} `mapstructure:"encoder"`

	Coordinator struct {
		PollInterval time.Duration `mapstructure:"poll_interval"`
		Concurrency  int           `mapstructure:"concurrency"`
		MaxWait      time.Duration `mapstructure:"max_wait"` // 0 waits until every batch stops
	} `mapstructure:"coordinator"`

	Fetcher struct {
		OutputDir string `mapstructure:"output_dir"`
	} `mapstructure:"fetcher"`

	Merger struct {
		OutputColumn string `mapstructure:"output_column"`
	} `mapstructure:"merger"`

	Store struct {
		Driver string `mapstructure:"driver"` // "sqlite" or "postgres"
		DSN    string `mapstructure:"dsn"`
	} `mapstructure:"store"`

	Redis struct {
		Address  string `mapstructure:"address"`
		Password string `mapstructure:"password"`
		DB       int    `mapstructure:"db"`
	} `mapstructure:"redis"`

	Worker struct {
		Concurrency int            `mapstructure:"concurrency"`
		Queues      map[string]int `mapstructure:"queues"`
		MaxRetry    int            `mapstructure:"max_retry"`
	} `mapstructure:"worker"`

	NATS struct {
		URL     string `mapstructure:"url"` // empty disables status events
		Subject string `mapstructure:"subject"`
	} `mapstructure:"nats"`

	Server struct {
		Addr string `mapstructure:"addr"`
	} `mapstructure:"server"`

	Logging struct {
		Level  string `mapstructure:"level"`
		Format string `mapstructure:"format"` // "text" or "json"
	} `mapstructure:"logging"`
}

// SetDefaults registers the default value of every setting on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("openai.model", "gpt-4.1-nano")
	v.SetDefault("openai.endpoint", "/v1/chat/completions")
	v.SetDefault("openai.completion_window", "24h")

	v.SetDefault("encoder.image_column", "image")
	v.SetDefault("encoder.batch_size", 2000)
	v.SetDefault("encoder.output_dir", "./batches")
	v.SetDefault("encoder.max_image_size", 0)

	v.SetDefault("coordinator.poll_interval", 60*time.Second)
	v.SetDefault("coordinator.concurrency", 4)
	v.SetDefault("coordinator.max_wait", 0)

	v.SetDefault("fetcher.output_dir", "./results")
	v.SetDefault("merger.output_column", "alt_text")

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.dsn", "alttext.db")

	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.queues", map[string]int{"batches": 1})
	v.SetDefault("worker.max_retry", 3)

	v.SetDefault("nats.subject", "alttext.batch.status")
	v.SetDefault("server.addr", "localhost:8080")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
}

func LoadConfig() (*Config, error) {
	return Load(viper.GetViper(), ".")
}

// Load reads config.yaml from dir (if present) into v and decodes it.
// Environment variables override file values, e.g. STORE_DSN for store.dsn.
func Load(v *viper.Viper, dir string) (*Config, error) {
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(dir)
	SetDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	// The API key keeps its conventional name.
	if err := v.BindEnv("openai.api_key", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}

	if err := v.ReadInConfig(); err != nil {
		// It's okay if the config file doesn't exist, Viper might rely solely on env vars
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	return &config, nil
}
