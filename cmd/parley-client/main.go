// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

// Command parley-client is a line-oriented client for the Parley gateway.
//
// Each line read from stdin is sent to the peer as a chat message. Lines
// starting with a slash are commands:
//
//	/read                 mark the conversation as read
//	/react <id> <emoji>   add a reaction
//	/unreact <id> <emoji> remove a reaction
//
// Usage:
//
//	PARLEY_TOKEN=... parley-client -url http://localhost:3001 -peer <user-id>
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/tomtom215/parley/internal/client"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
	"github.com/tomtom215/parley/internal/protocol"
)

func main() {
	url := flag.String("url", "http://localhost:3001", "gateway base URL")
	token := flag.String("token", os.Getenv("PARLEY_TOKEN"), "bearer token (default $PARLEY_TOKEN)")
	peer := flag.String("peer", "", "user ID to chat with")
	level := flag.String("log-level", "info", "log level")
	flag.Parse()

	logging.Init(logging.Config{Level: *level, Format: "console", Timestamp: true, Output: os.Stderr})

	if *peer == "" {
		logging.Fatal().Msg("-peer is required")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *url, client.StaticToken(*token), *peer); err != nil {
		logging.Fatal().Err(err).Msg("Client stopped")
	}
}

func run(ctx context.Context, baseURL string, creds client.CredentialSource, peer string) error {
	peerTyping := client.NewPeerTyping(nil, func(userID string, isTyping bool) {
		if userID == peer {
			logging.Info().Str("user_id", userID).Bool("typing", isTyping).Msg("Peer typing")
		}
	})

	var rc *client.Reconnector
	onEvent := func(env protocol.Envelope) {
		handleEvent(rc, peer, peerTyping, env)
	}

	rc, err := client.NewReconnector(baseURL, creds, onEvent, client.Options{
		OnOpen: func() {
			logging.Info().Str("peer", peer).Msg("Connected")
		},
		OnRetry: func(attempt int, delay time.Duration, err error) {
			logging.Warn().Err(err).Int("attempt", attempt).Dur("retry_in", delay).Msg("Disconnected")
		},
	})
	if err != nil {
		return err
	}

	go readInput(ctx, rc, peer)

	return rc.Run(ctx)
}

func handleEvent(rc *client.Reconnector, peer string, peerTyping *client.PeerTyping, env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeChat:
		var msg protocol.ChatEvent
		if err := json.Unmarshal(env.Payload, &msg); err != nil {
			logging.Warn().Err(err).Msg("Bad CHAT payload")
			return
		}
		peerTyping.Set(msg.SenderID, false)
		fmt.Printf("[%s] %s: %s\n", msg.CreatedAt.Local().Format(time.Kitchen), msg.SenderID, msg.Content)
		if msg.SenderID == peer {
			if err := rc.Read(peer); err != nil {
				logging.Debug().Err(err).Msg("Failed to send READ")
			}
		}
	case protocol.TypeTyping:
		var ev protocol.TypingEvent
		if err := json.Unmarshal(env.Payload, &ev); err != nil {
			logging.Warn().Err(err).Msg("Bad TYPING payload")
			return
		}
		peerTyping.Set(ev.UserID, ev.IsTyping)
	default:
		logging.Info().Str("type", string(env.Type)).RawJSON("payload", env.Payload).Msg("Event")
	}
}

func readInput(ctx context.Context, rc *client.Reconnector, peer string) {
	typist := client.NewTypist(nil, func(isTyping bool) {
		_ = rc.Typing(peer, isTyping)
	})
	defer typist.Stop()

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := dispatch(rc, typist, peer, line); err != nil {
			if errors.Is(err, client.ErrNotConnected) {
				logging.Warn().Msg("Not connected, message dropped")
				continue
			}
			logging.Warn().Err(err).Msg("Command failed")
		}
	}
}

func dispatch(rc *client.Reconnector, typist *client.Typist, peer, line string) error {
	fields := strings.Fields(line)
	switch fields[0] {
	case "/read":
		return rc.Read(peer)
	case "/react", "/unreact":
		if len(fields) != 3 {
			return fmt.Errorf("usage: %s <message-id> <emoji>", fields[0])
		}
		action := models.ReactionAdd
		if fields[0] == "/unreact" {
			action = models.ReactionRemove
		}
		return rc.React(fields[1], fields[2], action)
	default:
		typist.Keystroke()
		typist.Stop()
		return rc.Chat(peer, line, uuid.NewString())
	}
}
