// Package config holds process configuration, loaded from the environment
// with CHATRELAY_-prefixed variables.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config is the full runtime configuration with production defaults.
type Config struct {
	HTTP      HTTPConfig      `envconfig:"HTTP"`
	Database  DatabaseConfig  `envconfig:"DATABASE"`
	WebSocket WebSocketConfig `envconfig:"WEBSOCKET"`
	Greeting  GreetingConfig  `envconfig:"GREETING"`
	Log       LogConfig       `envconfig:"LOG"`
}

type HTTPConfig struct {
	Host         string        `envconfig:"HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"30s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"30s"`
}

type DatabaseConfig struct {
	Path string `envconfig:"PATH" default:"./chatrelay.db"`

	// Timeout bounds every store call issued from a connection's event
	// loop so a slow database cannot stall the connection.
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

type WebSocketConfig struct {
	PingInterval time.Duration `envconfig:"PING_INTERVAL" default:"30s"`
	ReadTimeout  time.Duration `envconfig:"READ_TIMEOUT" default:"60s"`
	WriteTimeout time.Duration `envconfig:"WRITE_TIMEOUT" default:"10s"`
	BufferSize   int           `envconfig:"BUFFER_SIZE" default:"100"`
}

// GreetingConfig carries the printf-style greeting texts sent to a joining
// connection; %s is the display name. Defaults preserve the historical
// wording.
type GreetingConfig struct {
	FirstJoin string `envconfig:"FIRST_JOIN" default:"Hey my love %s"`
	Rejoin    string `envconfig:"REJOIN" default:"%s, here you go again"`
}

type LogConfig struct {
	Level  string `envconfig:"LEVEL" default:"info"`
	Pretty bool   `envconfig:"PRETTY" default:"false"`
}

// Load reads configuration from the environment on top of defaults.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("chatrelay", &cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration with every default applied and no
// environment lookups. Used by tests and as a fallback.
func Default() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Path:    "./chatrelay.db",
			Timeout: 5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			PingInterval: 30 * time.Second,
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
			BufferSize:   100,
		},
		Greeting: GreetingConfig{
			FirstJoin: "Hey my love %s",
			Rejoin:    "%s, here you go again",
		},
		Log: LogConfig{Level: "info"},
	}
}

// Validate rejects configurations that would fail at runtime.
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("http port must be between 1 and 65535, got %d", c.HTTP.Port)
	}
	if c.HTTP.Host == "" {
		return fmt.Errorf("http host cannot be empty")
	}
	if c.HTTP.ReadTimeout <= 0 || c.HTTP.WriteTimeout <= 0 {
		return fmt.Errorf("http timeouts must be positive")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database path cannot be empty")
	}
	if c.Database.Timeout <= 0 {
		return fmt.Errorf("database timeout must be positive")
	}
	if c.WebSocket.PingInterval <= 0 || c.WebSocket.ReadTimeout <= 0 || c.WebSocket.WriteTimeout <= 0 {
		return fmt.Errorf("websocket timeouts must be positive")
	}
	if c.WebSocket.ReadTimeout <= c.WebSocket.PingInterval {
		return fmt.Errorf("websocket read timeout must exceed ping interval")
	}
	if c.WebSocket.BufferSize <= 0 {
		return fmt.Errorf("websocket buffer size must be positive")
	}
	if c.Greeting.FirstJoin == "" || c.Greeting.Rejoin == "" {
		return fmt.Errorf("greeting texts cannot be empty")
	}
	return nil
}

// Addr returns the HTTP listen address.
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.HTTP.Host, c.HTTP.Port)
}
