// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in order of priority.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/parley/config.yaml",
	"/etc/parley/config.yml",
}

// ConfigPathEnvVar is the environment variable that can override the config file path.
const ConfigPathEnvVar = "CONFIG_PATH"

// DefaultSystemPrompt is the assistant persona.
const DefaultSystemPrompt = "You are Ikem Ai, a helpful assistant in a chat application. You are concise, friendly, and helpful."

// defaultConfig returns a Config struct with all default values.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:              "0.0.0.0",
			AppPort:           3000,
			WSPort:            3001,
			ReadHeaderTimeout: 10 * time.Second,
			ShutdownTimeout:   10 * time.Second,
			CORSOrigins:       []string{"http://localhost:3000"},
			RateLimitReqs:     100,
			RateLimitWindow:   1 * time.Minute,
		},
		Auth: AuthConfig{
			BaseURL:         "", // derived from AppPort when empty
			JWKSPath:        "/api/auth/jwks",
			JWKSCacheTTL:    1 * time.Hour,
			HTTPTimeout:     10 * time.Second,
			Leeway:          30 * time.Second,
			SessionCookie:   "better-auth.session_token",
			SessionCacheTTL: 30 * time.Second,
		},
		Database: DatabaseConfig{
			Driver:         "postgres",
			MaxConns:       10,
			ConnectTimeout: 10 * time.Second,
		},
		Fanout: FanoutConfig{
			Driver:         "postgres",
			ReconnectDelay: 5 * time.Second,
			NATSURL:        "nats://127.0.0.1:4222",
			RedisURL:       "redis://127.0.0.1:6379/0",
			NATSHost:       "127.0.0.1",
			NATSPort:       4222,
		},
		Assistant: AssistantConfig{
			BotID:        "ikem-ai-bot",
			BaseURL:      "https://api.openai.com/v1",
			Model:        "gpt-4o",
			Timeout:      60 * time.Second,
			HistoryLimit: 20,
			SystemPrompt: DefaultSystemPrompt,
		},
		WebSocket: WebSocketConfig{
			SendBuffer:     256,
			MaxMessageSize: 512 * 1024,
			WriteWait:      10 * time.Second,
			PongWait:       60 * time.Second,
			InboundRate:    20,
			InboundBurst:   40,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Supervisor: SupervisorConfig{
			FailureThreshold: 5,
			FailureDecay:     30,
			FailureBackoff:   15 * time.Second,
			ShutdownTimeout:  10 * time.Second,
		},
	}
}

// LoadWithKoanf loads configuration using Koanf v2 with layered sources:
// defaults, then an optional YAML file, then environment variables.
func LoadWithKoanf() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	cfg.applyDerived()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// applyDerived fills values that default from other settings.
func (c *Config) applyDerived() {
	if c.Auth.BaseURL == "" {
		c.Auth.BaseURL = fmt.Sprintf("http://localhost:%d", c.Server.AppPort)
	}
	c.Fanout.Driver = strings.ToLower(strings.TrimSpace(c.Fanout.Driver))
	c.Database.Driver = strings.ToLower(strings.TrimSpace(c.Database.Driver))
}

// findConfigFile returns the first config file found, or "" if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths defines which config paths are parsed as comma-separated slices.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for known slice fields.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		strVal, ok := k.Get(path).(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envMappings maps environment variable names (lower-cased) to koanf paths.
var envMappings = map[string]string{
	// Server
	"port":                "server.app_port",
	"ws_port":             "server.ws_port",
	"ws_host":             "server.host",
	"cors_origins":        "server.cors_origins",
	"rate_limit_requests": "server.rate_limit_requests",
	"rate_limit_window":   "server.rate_limit_window",
	"rate_limit_disabled": "server.rate_limit_disabled",
	"shutdown_timeout":    "server.shutdown_timeout",

	// Auth
	"auth_base_url":       "auth.base_url",
	"better_auth_url":     "auth.base_url",
	"jwks_path":           "auth.jwks_path",
	"jwks_cache_ttl":      "auth.jwks_cache_ttl",
	"jwt_issuer":          "auth.issuer",
	"jwt_audience":        "auth.audience",
	"session_cookie_name": "auth.session_cookie",
	"session_cache_ttl":   "auth.session_cache_ttl",

	// Database
	"database_url":       "database.url",
	"database_driver":    "database.driver",
	"database_max_conns": "database.max_conns",

	// Fan-out
	"fanout_driver":          "fanout.driver",
	"fanout_reconnect_delay": "fanout.reconnect_delay",
	"nats_url":               "fanout.nats_url",
	"redis_url":              "fanout.redis_url",
	"nats_embedded":          "fanout.nats_embedded",
	"nats_port":              "fanout.nats_port",

	// Assistant
	"openai_api_key":          "assistant.api_key",
	"openai_base_url":         "assistant.base_url",
	"openai_model":            "assistant.model",
	"assistant_bot_id":        "assistant.bot_id",
	"assistant_timeout":       "assistant.timeout",
	"assistant_history_limit": "assistant.history_limit",
	"assistant_system_prompt": "assistant.system_prompt",

	// WebSocket
	"ws_send_buffer":      "websocket.send_buffer",
	"ws_max_message_size": "websocket.max_message_size",
	"ws_inbound_rate":     "websocket.inbound_rate",
	"ws_inbound_burst":    "websocket.inbound_burst",

	// Logging
	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransformFunc maps environment variable names to koanf config paths.
// Unmapped names return "" so unrelated environment variables are ignored.
//
// Examples:
//   - WS_PORT -> server.ws_port
//   - DATABASE_URL -> database.url
//   - OPENAI_API_KEY -> assistant.api_key
func envTransformFunc(key string) string {
	if mapped, ok := envMappings[strings.ToLower(key)]; ok {
		return mapped
	}
	return ""
}
