// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

//go:build integration

package testinfra

import (
	"context"
	"fmt"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

const (
	// DefaultRedisImage is the Redis image used for integration tests.
	DefaultRedisImage = "redis:7-alpine"

	// DefaultRedisPort is the port Redis listens on inside the container.
	DefaultRedisPort = "6379"
)

// RedisContainer represents a running Redis container for testing.
type RedisContainer struct {
	testcontainers.Container
	URL string
}

// NewRedisContainer creates and starts a Redis container.
// URL is a redis:// URL suitable for redis.ParseURL.
func NewRedisContainer(ctx context.Context) (*RedisContainer, error) {
	req := testcontainers.ContainerRequest{
		Image:        DefaultRedisImage,
		ExposedPorts: []string{DefaultRedisPort + "/tcp"},
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultRedisPort+"/tcp"),
			wait.ForLog("Ready to accept connections"),
		).WithStartupTimeout(30 * time.Second),
	}

	container, addr, err := startContainer(ctx, req, DefaultRedisPort)
	if err != nil {
		return nil, fmt.Errorf("create redis container: %w", err)
	}

	return &RedisContainer{
		Container: container,
		URL:       fmt.Sprintf("redis://%s/0", addr),
	}, nil
}
