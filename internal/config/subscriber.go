// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// SubscriberConfig is the file-based configuration for an embedding
// application's subscriber instance.
type SubscriberConfig struct {
	Subscriber SubscriberInfo `yaml:"subscriber"`
	Logging    LoggingInfo    `yaml:"logging"`
}

// SubscriberInfo identifies and tunes the subscriber.
type SubscriberInfo struct {
	Name          string `yaml:"name"`
	Host          string `yaml:"host"`
	Port          int    `yaml:"port"`
	BufferSize    int    `yaml:"buffer_size"`
	ConnectWaitMs int    `yaml:"connect_wait_ms"`
}

// ConnectWait returns the configured reconnect cadence as a time.Duration.
func (s SubscriberInfo) ConnectWait() time.Duration {
	return time.Duration(s.ConnectWaitMs) * time.Millisecond
}

// LoggingInfo configures the ambient logger shared by both config kinds,
// matching internal/logging.NewLogger's (level, format, filePath) signature.
type LoggingInfo struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	File   string `yaml:"file"`
}

func (l LoggingInfo) validate() error {
	switch l.Format {
	case "", "json", "text":
	default:
		return fmt.Errorf("logging.format must be \"json\" or \"text\", got %q", l.Format)
	}
	return nil
}

// LoadSubscriberConfig reads and validates a SubscriberConfig from path.
func LoadSubscriberConfig(path string) (*SubscriberConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading subscriber config %s: %w", path, err)
	}

	var cfg SubscriberConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing subscriber config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid subscriber config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *SubscriberConfig) validate() error {
	if c.Subscriber.Name == "" {
		return fmt.Errorf("subscriber.name is required")
	}
	if len(c.Subscriber.Name) > 15 {
		return fmt.Errorf("subscriber.name exceeds 15 bytes")
	}
	if c.Subscriber.Host == "" {
		c.Subscriber.Host = "127.0.0.1"
	}
	if c.Subscriber.Port <= 0 || c.Subscriber.Port > 65535 {
		return fmt.Errorf("subscriber.port must be between 1 and 65535, got %d", c.Subscriber.Port)
	}
	if c.Subscriber.BufferSize < 0 {
		return fmt.Errorf("subscriber.buffer_size must not be negative")
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	return nil
}
