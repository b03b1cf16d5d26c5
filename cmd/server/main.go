// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/tomtom215/parley/internal/api"
	"github.com/tomtom215/parley/internal/assistant"
	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/fanout"
	"github.com/tomtom215/parley/internal/gateway"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/registry"
	"github.com/tomtom215/parley/internal/supervisor"
	"github.com/tomtom215/parley/internal/supervisor/services"
	"github.com/tomtom215/parley/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:     cfg.Logging.Level,
		Format:    cfg.Logging.Format,
		Caller:    cfg.Logging.Caller,
		Timestamp: true,
	})

	logging.Info().
		Str("addr", cfg.Server.Addr()).
		Str("database", cfg.Database.Driver).
		Str("fanout", cfg.Fanout.Driver).
		Str("jwks", cfg.Auth.JWKSURL()).
		Msg("Starting Parley gateway")

	if err := run(cfg); err != nil {
		logging.Fatal().Err(err).Msg("Gateway stopped with error")
	}
	logging.Info().Msg("Application stopped gracefully")
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, pool, err := openStore(ctx, &cfg.Database)
	if err != nil {
		return err
	}
	defer store.Close()

	bus, err := fanout.Open(cfg.Fanout, pool)
	if err != nil {
		return err
	}
	defer func() {
		if err := bus.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing fan-out bus")
		}
	}()

	var reg *registry.Registry
	var bot gateway.Assistant
	opts := gateway.Options{}
	if cfg.Assistant.BotID != "" {
		reg = registry.New(cfg.Assistant.BotID)
		bot = assistant.New(cfg.Assistant, nil)
		opts.AssistantID = cfg.Assistant.BotID
		opts.HistoryLimit = cfg.Assistant.HistoryLimit
		opts.ReplyTimeout = cfg.Assistant.Timeout
		if cfg.Assistant.APIKey == "" {
			logging.Warn().Str("bot_id", cfg.Assistant.BotID).Msg("Assistant API key not set, replies will ask for configuration")
		}
	} else {
		reg = registry.New()
	}

	relay := fanout.NewRelay(reg, bus.Origin())
	relay.Attach(bus)
	defer relay.Detach()

	gw := gateway.NewHandler(store, reg, bus, bot, opts)
	sessions := gateway.NewSessions(gw, reg, websocketLimits(cfg.WebSocket), cfg.WebSocket.SendBuffer)

	handler := api.NewHandler(api.HandlerDeps{
		Store:          store,
		Gateway:        gw,
		Sessions:       sessions,
		Authenticator:  newAuthenticator(cfg.Auth, store),
		AllowedOrigins: cfg.Server.CORSOrigins,
		Checks:         []api.ReadinessCheck{fanoutReadiness(bus)},
	})
	router := api.NewRouter(handler, api.NewChiMiddleware(api.ChiMiddlewareConfigFromServer(cfg.Server)))

	if cfg.Server.RateLimitDisabled {
		logging.Warn().Msg("Rate limiting is DISABLED (RATE_LIMIT_DISABLED=true)")
	}

	server := &http.Server{
		Addr:              cfg.Server.Addr(),
		Handler:           router.SetupChi(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	tree, err := supervisor.NewSupervisorTree(logging.NewComponentSlogLogger("supervisor"), supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return err
	}
	tree.AddMessagingService(services.NewFanoutService(bus))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout,
		func() {
			n := reg.CloseAll()
			logging.Info().Int("connections", n).Msg("Closing WebSocket connections")
		},
		sessions.Wait,
		gw.Wait,
	))

	logging.Info().Str("addr", server.Addr).Msg("Starting supervisor tree")
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop")
	}
	return nil
}

func websocketLimits(cfg config.WebSocketConfig) websocket.Limits {
	return websocket.Limits{
		WriteWait:      cfg.WriteWait,
		PongWait:       cfg.PongWait,
		MaxMessageSize: cfg.MaxMessageSize,
		InboundRate:    cfg.InboundRate,
		InboundBurst:   cfg.InboundBurst,
	}
}

// fanoutReadiness fails until the listener has subscribed once.
func fanoutReadiness(bus *fanout.Notifier) api.ReadinessCheck {
	return api.ReadinessCheck{
		Name: "fanout",
		Check: func(context.Context) error {
			select {
			case <-bus.Ready():
				return nil
			default:
				return errors.New("listener not subscribed")
			}
		},
	}
}
