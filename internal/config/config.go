// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package config loads Parley's configuration.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: built-in values from defaultConfig()
//  2. Config File: optional YAML file (config.yaml or CONFIG_PATH)
//  3. Environment Variables: explicit names such as WS_PORT or DATABASE_URL
//
// Config is immutable after Load() and safe for concurrent reads.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `koanf:"server"`
	Auth       AuthConfig       `koanf:"auth"`
	Database   DatabaseConfig   `koanf:"database"`
	Fanout     FanoutConfig     `koanf:"fanout"`
	Assistant  AssistantConfig  `koanf:"assistant"`
	WebSocket  WebSocketConfig  `koanf:"websocket"`
	Logging    LoggingConfig    `koanf:"logging"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
}

// ServerConfig holds listener and HTTP middleware settings.
// AppPort is the port of the web application that hosts the auth endpoints;
// the gateway itself listens on WSPort.
type ServerConfig struct {
	Host              string        `koanf:"host"`
	AppPort           int           `koanf:"app_port"`
	WSPort            int           `koanf:"ws_port"`
	ReadHeaderTimeout time.Duration `koanf:"read_header_timeout"`
	ShutdownTimeout   time.Duration `koanf:"shutdown_timeout"`
	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitReqs     int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`
}

// Addr returns the gateway listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.WSPort)
}

// AuthConfig holds bearer-token and session-cookie verification settings.
type AuthConfig struct {
	BaseURL       string        `koanf:"base_url"`
	JWKSPath      string        `koanf:"jwks_path"`
	JWKSCacheTTL  time.Duration `koanf:"jwks_cache_ttl"`
	HTTPTimeout   time.Duration `koanf:"http_timeout"`
	Leeway        time.Duration `koanf:"leeway"`
	Issuer        string        `koanf:"issuer"`
	Audience      string        `koanf:"audience"`
	SessionCookie string        `koanf:"session_cookie"`

	// SessionCacheTTL is how long a resolved session cookie is trusted
	// without asking the database again. Zero disables the cache.
	SessionCacheTTL time.Duration `koanf:"session_cache_ttl"`
}

// JWKSURL returns the full URL of the public key set.
func (a AuthConfig) JWKSURL() string {
	return strings.TrimRight(a.BaseURL, "/") + a.JWKSPath
}

// DatabaseConfig holds persistence settings.
type DatabaseConfig struct {
	Driver         string        `koanf:"driver"` // postgres or memory
	URL            string        `koanf:"url"`
	MaxConns       int32         `koanf:"max_conns"`
	ConnectTimeout time.Duration `koanf:"connect_timeout"`
}

// FanoutConfig selects and tunes the cross-instance bus.
type FanoutConfig struct {
	Driver         string        `koanf:"driver"` // postgres, memory, nats or redis
	ReconnectDelay time.Duration `koanf:"reconnect_delay"`
	NATSURL        string        `koanf:"nats_url"`
	RedisURL       string        `koanf:"redis_url"`

	// NATSEmbedded starts an in-process NATS server on NATSPort and points
	// NATSURL at it. Other instances can connect to it as their NATS_URL.
	NATSEmbedded bool   `koanf:"nats_embedded"`
	NATSHost     string `koanf:"nats_host"`
	NATSPort     int    `koanf:"nats_port"`
}

// AssistantConfig configures the built-in assistant peer.
type AssistantConfig struct {
	BotID        string        `koanf:"bot_id"`
	APIKey       string        `koanf:"api_key"`
	BaseURL      string        `koanf:"base_url"`
	Model        string        `koanf:"model"`
	Timeout      time.Duration `koanf:"timeout"`
	HistoryLimit int           `koanf:"history_limit"`
	SystemPrompt string        `koanf:"system_prompt"`
}

// WebSocketConfig holds per-socket limits.
type WebSocketConfig struct {
	SendBuffer     int           `koanf:"send_buffer"`
	MaxMessageSize int64         `koanf:"max_message_size"`
	WriteWait      time.Duration `koanf:"write_wait"`
	PongWait       time.Duration `koanf:"pong_wait"`
	InboundRate    float64       `koanf:"inbound_rate"`
	InboundBurst   int           `koanf:"inbound_burst"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// SupervisorConfig holds suture tree settings.
type SupervisorConfig struct {
	FailureThreshold float64       `koanf:"failure_threshold"`
	FailureDecay     float64       `koanf:"failure_decay"`
	FailureBackoff   time.Duration `koanf:"failure_backoff"`
	ShutdownTimeout  time.Duration `koanf:"shutdown_timeout"`
}

// Load reads configuration from defaults, an optional config file and the environment.
func Load() (*Config, error) {
	return LoadWithKoanf()
}
