// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Package assistant generates replies for the built-in assistant peer through
// an OpenAI-compatible chat completions endpoint.
//
// Reply never fails: a missing API key, an upstream error or an open circuit
// breaker each produce a fixed reply that is stored and delivered like any
// other message.
package assistant

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/tomtom215/parley/internal/breaker"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/metrics"
	"github.com/tomtom215/parley/internal/models"
)

// Fixed replies.
const (
	MissingKeyReply = "Please configure OPENAI_API_KEY in .env to chat with me!"
	FailureReply    = "I am experiencing some technical difficulties."
)

// ErrNotConfigured is returned by Generate when no API key is set.
var ErrNotConfigured = errors.New("assistant: api key not configured")

// maxErrorBody bounds how much of an error response is kept for the log.
const maxErrorBody = 512

// Client calls the completions API.
type Client struct {
	cfg        config.AssistantConfig
	httpClient *http.Client
	cb         *gobreaker.CircuitBreaker[string]
}

// New creates a Client. A nil httpClient uses one with cfg.Timeout.
func New(cfg config.AssistantConfig, httpClient *http.Client) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		cfg:        cfg,
		httpClient: httpClient,
		cb: breaker.New[string](breaker.Settings{
			Name:        "assistant",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     time.Minute,
			MinRequests: 3,
		}),
	}
}

// BotID returns the user ID of the assistant.
func (c *Client) BotID() string { return c.cfg.BotID }

// Reply returns the assistant's answer to the conversation so far, or a fixed
// fallback when the answer cannot be generated.
func (c *Client) Reply(ctx context.Context, history []models.Message) string {
	start := time.Now()
	text, err := c.Generate(ctx, history)
	switch {
	case err == nil:
		metrics.RecordAssistant("ok", time.Since(start))
		return text
	case errors.Is(err, ErrNotConfigured):
		metrics.RecordAssistant("unconfigured", 0)
		logging.Ctx(ctx).Error().Msg("OPENAI_API_KEY not configured, sending setup reply")
		return MissingKeyReply
	case breaker.IsRejection(err):
		metrics.RecordAssistant("rejected", 0)
		logging.Ctx(ctx).Warn().Err(err).Msg("Assistant circuit open, sending fallback reply")
		return FailureReply
	default:
		metrics.RecordAssistant("error", time.Since(start))
		logging.Ctx(ctx).Error().Err(err).Msg("Assistant request failed, sending fallback reply")
		return FailureReply
	}
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Generate calls the API once through the circuit breaker.
func (c *Client) Generate(ctx context.Context, history []models.Message) (string, error) {
	if c.cfg.APIKey == "" {
		return "", ErrNotConfigured
	}

	ctx, cancel := context.WithTimeout(ctx, c.cfg.Timeout)
	defer cancel()

	return c.cb.Execute(func() (string, error) {
		return c.complete(ctx, c.buildMessages(history))
	})
}

// buildMessages maps stored messages to chat roles: the assistant's own
// messages are "assistant", everything else is "user".
func (c *Client) buildMessages(history []models.Message) []chatMessage {
	msgs := make([]chatMessage, 0, len(history)+1)
	if c.cfg.SystemPrompt != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: c.cfg.SystemPrompt})
	}
	for _, m := range history {
		role := "user"
		if m.SenderID == c.cfg.BotID {
			role = "assistant"
		}
		msgs = append(msgs, chatMessage{Role: role, Content: m.Content})
	}
	return msgs
}

func (c *Client) complete(ctx context.Context, msgs []chatMessage) (string, error) {
	body, err := json.Marshal(completionRequest{Model: c.cfg.Model, Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("encode request: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", fmt.Errorf("completions request failed with status %d: %s", resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	var out completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode response: %w", err)
	}
	if len(out.Choices) == 0 || strings.TrimSpace(out.Choices[0].Message.Content) == "" {
		return "", errors.New("completions response had no content")
	}
	return out.Choices[0].Message.Content, nil
}
