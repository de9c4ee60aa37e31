// Copyright (c) 2026 Nishisan. All rights reserved.
// Use of this source code is governed by the Fanoutd License (Non-Commercial Evaluation)
// that can be found in the LICENSE file.

// Package config provides optional YAML-loaded configuration for
// applications that embed the publisher/subscriber library and want
// file-based defaults instead of wiring constructor arguments by hand.
// The library packages (internal/pubsub/publisher, internal/pubsub/subscriber)
// never read a file or environment variable themselves — only
// cmd/fanoutd-demo consumes this package. Grounded on the teacher's
// internal/config/agent.go and server.go: a yaml-tagged struct, a
// Load*Config(path) function, and a validate() method returning a wrapped
// error on the first invalid field.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// PublisherConfig is the file-based configuration for an embedding
// application's publisher instance.
type PublisherConfig struct {
	Publisher PublisherInfo `yaml:"publisher"`
	Logging   LoggingInfo   `yaml:"logging"`
}

// PublisherInfo identifies and tunes the publisher.
type PublisherInfo struct {
	Name         string  `yaml:"name"`
	Port         int     `yaml:"port"`
	MaxReceivers int     `yaml:"max_receivers"`
	TimeoutACKMs int     `yaml:"timeout_ack_ms"`
	RateHz       float64 `yaml:"rate_hz"`
}

// TimeoutACK returns the configured ACK timeout as a time.Duration. A
// non-positive TimeoutACKMs selects the "no ACK wait" mode spec.md §4.2
// describes for timeoutACK == nil.
func (p PublisherInfo) TimeoutACK() time.Duration {
	if p.TimeoutACKMs <= 0 {
		return 0
	}
	return time.Duration(p.TimeoutACKMs) * time.Millisecond
}

// LoadPublisherConfig reads and validates a PublisherConfig from path.
func LoadPublisherConfig(path string) (*PublisherConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: reading publisher config %s: %w", path, err)
	}

	var cfg PublisherConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parsing publisher config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("config: invalid publisher config %s: %w", path, err)
	}
	return &cfg, nil
}

func (c *PublisherConfig) validate() error {
	if c.Publisher.Name == "" {
		return fmt.Errorf("publisher.name is required")
	}
	if c.Publisher.Port <= 0 || c.Publisher.Port > 65535 {
		return fmt.Errorf("publisher.port must be between 1 and 65535, got %d", c.Publisher.Port)
	}
	if c.Publisher.MaxReceivers < 0 {
		return fmt.Errorf("publisher.max_receivers must not be negative")
	}
	if c.Publisher.RateHz < 0 {
		return fmt.Errorf("publisher.rate_hz must not be negative")
	}
	if err := c.Logging.validate(); err != nil {
		return err
	}
	return nil
}
