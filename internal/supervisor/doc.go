// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

/*
Package supervisor runs Parley's long-lived services under suture v4.

The tree is split into layers so that a failing dependency restarts in
isolation:

	RootSupervisor ("parley")
	├── MessagingSupervisor ("messaging-layer")
	│   └── FanoutService (cross-instance listener)
	└── APISupervisor ("api-layer")
	    └── HTTPServerService (REST, health, metrics and /ws)

Supervisor events are logged through sutureslog, which bridges suture's
event hook to the slog adapter in internal/logging.

# Usage

	tree, err := supervisor.NewSupervisorTree(logger, supervisor.TreeConfigFrom(cfg.Supervisor))
	if err != nil {
		return err
	}
	tree.AddMessagingService(services.NewFanoutService(bus))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if err := tree.Serve(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logging.Error().Err(err).Msg("Supervisor stopped")
	}

Services return ctx.Err() on a requested stop and any other error to ask
for a restart.
*/
package supervisor
