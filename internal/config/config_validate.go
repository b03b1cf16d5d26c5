// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/tomtom215/parley/internal/logging"
)

// Validate checks that required configuration is present and valid.
func (c *Config) Validate() error {
	if err := c.validateServer(); err != nil {
		return err
	}
	if err := c.validateAuth(); err != nil {
		return err
	}
	if err := c.validateDatabase(); err != nil {
		return err
	}
	if err := c.validateFanout(); err != nil {
		return err
	}
	if err := c.validateAssistant(); err != nil {
		return err
	}
	if err := c.validateWebSocket(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateServer() error {
	if c.Server.WSPort < 1 || c.Server.WSPort > 65535 {
		return fmt.Errorf("WS_PORT must be between 1 and 65535, got %d", c.Server.WSPort)
	}
	if c.Server.AppPort < 1 || c.Server.AppPort > 65535 {
		return fmt.Errorf("PORT must be between 1 and 65535, got %d", c.Server.AppPort)
	}
	if !c.Server.RateLimitDisabled {
		if c.Server.RateLimitReqs < 1 {
			return fmt.Errorf("RATE_LIMIT_REQUESTS must be positive, got %d", c.Server.RateLimitReqs)
		}
		if c.Server.RateLimitWindow <= 0 {
			return fmt.Errorf("RATE_LIMIT_WINDOW must be positive, got %s", c.Server.RateLimitWindow)
		}
	}
	return nil
}

func (c *Config) validateAuth() error {
	if err := validateHTTPURL(c.Auth.BaseURL, "AUTH_BASE_URL"); err != nil {
		return err
	}
	if !strings.HasPrefix(c.Auth.JWKSPath, "/") {
		return fmt.Errorf("JWKS_PATH must start with '/', got %q", c.Auth.JWKSPath)
	}
	if c.Auth.JWKSCacheTTL <= 0 {
		return fmt.Errorf("JWKS_CACHE_TTL must be positive, got %s", c.Auth.JWKSCacheTTL)
	}
	if c.Auth.SessionCookie == "" {
		return fmt.Errorf("SESSION_COOKIE_NAME must not be empty")
	}
	return nil
}

func (c *Config) validateDatabase() error {
	switch c.Database.Driver {
	case "postgres":
		if c.Database.URL == "" {
			return fmt.Errorf("DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
		if c.Database.MaxConns < 1 {
			return fmt.Errorf("DATABASE_MAX_CONNS must be positive, got %d", c.Database.MaxConns)
		}
	case "memory":
	default:
		return fmt.Errorf("DATABASE_DRIVER must be 'postgres' or 'memory', got %q", c.Database.Driver)
	}
	return nil
}

func (c *Config) validateFanout() error {
	switch c.Fanout.Driver {
	case "postgres":
		if c.Database.Driver != "postgres" {
			return fmt.Errorf("FANOUT_DRIVER=postgres requires DATABASE_DRIVER=postgres")
		}
	case "memory":
	case "nats":
		if c.Fanout.NATSEmbedded && (c.Fanout.NATSPort < 1 || c.Fanout.NATSPort > 65535) {
			return fmt.Errorf("NATS_PORT must be between 1 and 65535, got %d", c.Fanout.NATSPort)
		}
		if !c.Fanout.NATSEmbedded && c.Fanout.NATSURL == "" {
			return fmt.Errorf("NATS_URL is required when FANOUT_DRIVER=nats")
		}
	case "redis":
		if c.Fanout.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when FANOUT_DRIVER=redis")
		}
	default:
		return fmt.Errorf("FANOUT_DRIVER must be one of postgres, memory, nats, redis; got %q", c.Fanout.Driver)
	}
	if c.Fanout.ReconnectDelay <= 0 {
		return fmt.Errorf("FANOUT_RECONNECT_DELAY must be positive, got %s", c.Fanout.ReconnectDelay)
	}
	return nil
}

func (c *Config) validateAssistant() error {
	if c.Assistant.BotID == "" {
		return fmt.Errorf("ASSISTANT_BOT_ID must not be empty")
	}
	if c.Assistant.HistoryLimit < 0 {
		return fmt.Errorf("ASSISTANT_HISTORY_LIMIT must not be negative, got %d", c.Assistant.HistoryLimit)
	}
	if c.Assistant.APIKey != "" {
		if _, err := url.Parse(c.Assistant.BaseURL); err != nil {
			return fmt.Errorf("OPENAI_BASE_URL is invalid: %w", err)
		}
	}
	return nil
}

func (c *Config) validateWebSocket() error {
	if c.WebSocket.SendBuffer < 1 {
		return fmt.Errorf("WS_SEND_BUFFER must be positive, got %d", c.WebSocket.SendBuffer)
	}
	if c.WebSocket.MaxMessageSize < 1 {
		return fmt.Errorf("WS_MAX_MESSAGE_SIZE must be positive, got %d", c.WebSocket.MaxMessageSize)
	}
	if c.WebSocket.InboundRate <= 0 || c.WebSocket.InboundBurst < 1 {
		return fmt.Errorf("WS_INBOUND_RATE and WS_INBOUND_BURST must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("LOG_LEVEL %q is not a valid level", c.Logging.Level)
	}
	if c.Logging.Format != "json" && c.Logging.Format != "console" {
		return fmt.Errorf("LOG_FORMAT must be 'json' or 'console', got %q", c.Logging.Format)
	}
	return nil
}

// validateHTTPURL checks that rawURL is an absolute http(s) base URL.
func validateHTTPURL(rawURL, fieldName string) error {
	parsedURL, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%s failed to parse URL: %w", fieldName, err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return fmt.Errorf("%s scheme must be http or https, got: %q", fieldName, parsedURL.Scheme)
	}
	if parsedURL.Host == "" {
		return fmt.Errorf("%s host is required", fieldName)
	}
	if parsedURL.RawQuery != "" {
		return fmt.Errorf("%s should not contain query parameters, remove: ?%s", fieldName, parsedURL.RawQuery)
	}
	return nil
}
