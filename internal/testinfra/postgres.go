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
	// DefaultPostgresImage is the PostgreSQL image used for integration tests.
	DefaultPostgresImage = "postgres:16-alpine"

	// DefaultPostgresPort is the port PostgreSQL listens on inside the container.
	DefaultPostgresPort = "5432"

	postgresUser     = "parley"
	postgresPassword = "parley"
	postgresDB       = "parley"
)

// PostgresContainer represents a running PostgreSQL container for testing.
type PostgresContainer struct {
	testcontainers.Container
	URL string
}

// PostgresOption configures the PostgreSQL container.
type PostgresOption func(*postgresConfig)

type postgresConfig struct {
	image        string
	startTimeout time.Duration
}

// WithPostgresImage sets a custom PostgreSQL image.
func WithPostgresImage(image string) PostgresOption {
	return func(c *postgresConfig) {
		c.image = image
	}
}

// WithPostgresStartTimeout sets the timeout for waiting for PostgreSQL to accept connections.
func WithPostgresStartTimeout(timeout time.Duration) PostgresOption {
	return func(c *postgresConfig) {
		c.startTimeout = timeout
	}
}

// NewPostgresContainer creates and starts a PostgreSQL container.
// URL is a DSN suitable for pgx.
func NewPostgresContainer(ctx context.Context, opts ...PostgresOption) (*PostgresContainer, error) {
	cfg := &postgresConfig{
		image:        DefaultPostgresImage,
		startTimeout: 60 * time.Second,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	req := testcontainers.ContainerRequest{
		Image:        cfg.image,
		ExposedPorts: []string{DefaultPostgresPort + "/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     postgresUser,
			"POSTGRES_PASSWORD": postgresPassword,
			"POSTGRES_DB":       postgresDB,
		},
		// The entrypoint restarts the server once after init, so wait for the second banner.
		WaitingFor: wait.ForAll(
			wait.ForListeningPort(DefaultPostgresPort+"/tcp"),
			wait.ForLog("database system is ready to accept connections").WithOccurrence(2),
		).WithStartupTimeout(cfg.startTimeout),
	}

	container, addr, err := startContainer(ctx, req, DefaultPostgresPort)
	if err != nil {
		return nil, fmt.Errorf("create postgres container: %w", err)
	}

	return &PostgresContainer{
		Container: container,
		URL:       fmt.Sprintf("postgres://%s:%s@%s/%s?sslmode=disable", postgresUser, postgresPassword, addr, postgresDB),
	}, nil
}
