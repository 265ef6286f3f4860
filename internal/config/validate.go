package config

import (
	"errors"
	"fmt"
	"strings"
)

func (c *Config) Validate() error {
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("store.driver must be 'sqlite' or 'postgres', got '%s'", c.Store.Driver)
	}
	if c.Store.DSN == "" {
		return errors.New("store.dsn is required")
	}

	if c.Encoder.BatchSize <= 0 {
		return errors.New("encoder.batch_size must be a positive integer")
	}
	if c.Encoder.MaxImageSize < 0 {
		return errors.New("encoder.max_image_size must not be negative")
	}
	if c.Encoder.ImageColumn == "" {
		return errors.New("encoder.image_column is required")
	}
	if c.Merger.OutputColumn == "" {
		return errors.New("merger.output_column is required")
	}

	if c.Coordinator.PollInterval <= 0 {
		return errors.New("coordinator.poll_interval must be positive")
	}
	if c.Coordinator.Concurrency <= 0 {
		return errors.New("coordinator.concurrency must be a positive integer")
	}
	if c.Coordinator.MaxWait < 0 {
		return errors.New("coordinator.max_wait must not be negative")
	}
	if !strings.HasPrefix(c.OpenAI.Endpoint, "/v1/") {
		return fmt.Errorf("openai.endpoint '%s' must start with /v1/", c.OpenAI.Endpoint)
	}

	// Redis config
	if c.Redis.Address == "" {
		return errors.New("redis.address is required")
	}

	// Worker config
	if c.Worker.Concurrency <= 0 {
		return errors.New("worker.concurrency must be a positive integer")
	}
	if len(c.Worker.Queues) == 0 {
		return errors.New("worker.queues must define at least one queue")
	}
	for name, priority := range c.Worker.Queues {
		if name == "" {
			return errors.New("worker.queues contains an empty queue name")
		}
		if priority <= 0 {
			return fmt.Errorf("worker.queues priority for queue '%s' must be positive", name)
		}
	}
	if c.Worker.MaxRetry < 0 {
		return errors.New("worker.max_retry must not be negative")
	}

	switch c.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format must be 'text' or 'json', got '%s'", c.Logging.Format)
	}
	return nil
}
