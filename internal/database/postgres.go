// Parley - Direct Messaging Delivery Core
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/parley

package database

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/tomtom215/parley/internal/config"
	"github.com/tomtom215/parley/internal/logging"
	"github.com/tomtom215/parley/internal/models"
)

//go:embed database_schema.sql
var schemaSQL string

// DB is the PostgreSQL-backed Store.
type DB struct {
	pool *pgxpool.Pool
}

var _ Store = (*DB)(nil)

// New opens a connection pool and verifies connectivity.
func New(ctx context.Context, cfg *config.DatabaseConfig) (*DB, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse DATABASE_URL: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}

	logging.Info().
		Str("host", poolCfg.ConnConfig.Host).
		Int32("max_conns", poolCfg.MaxConns).
		Msg("Database pool ready")

	return &DB{pool: pool}, nil
}

// Pool exposes the underlying pool so the fan-out publisher can share it.
func (db *DB) Pool() *pgxpool.Pool {
	return db.pool
}

// EnsureSchema creates the tables the gateway depends on if they are missing.
func (db *DB) EnsureSchema(ctx context.Context) error {
	if _, err := db.pool.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Ping checks database connectivity.
func (db *DB) Ping(ctx context.Context) error {
	return db.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (db *DB) Close() {
	db.pool.Close()
}

const conversationColumns = `id, "user1Id", "user2Id", settings, "updatedAt"`

const messageColumns = `id, "conversationId", "senderId", content, "createdAt",
	delivered, "deliveredAt", read, "readAt", reactions`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*models.Conversation, error) {
	var (
		c        models.Conversation
		settings []byte
	)
	if err := row.Scan(&c.ID, &c.User1ID, &c.User2ID, &settings, &c.UpdatedAt); err != nil {
		return nil, err
	}
	if len(settings) > 0 {
		if err := json.Unmarshal(settings, &c.Settings); err != nil {
			return nil, fmt.Errorf("decode settings for conversation %s: %w", c.ID, err)
		}
	}
	if c.Settings == nil {
		c.Settings = models.Settings{}
	}
	return &c, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		m         models.Message
		reactions []byte
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.SenderID, &m.Content, &m.CreatedAt,
		&m.Delivered, &m.DeliveredAt, &m.Read, &m.ReadAt, &reactions); err != nil {
		return nil, err
	}
	if len(reactions) > 0 {
		if err := json.Unmarshal(reactions, &m.Reactions); err != nil {
			return nil, fmt.Errorf("decode reactions for message %s: %w", m.ID, err)
		}
	}
	if m.Reactions == nil {
		m.Reactions = models.Reactions{}
	}
	return &m, nil
}

// notFound maps pgx.ErrNoRows to ErrNotFound.
func notFound(err error, what string) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

// GetOrCreateConversation inserts the canonical row or returns the existing one.
// The no-op DO UPDATE makes RETURNING yield the row in both cases, so concurrent
// first calls from either participant converge on one row.
func (db *DB) GetOrCreateConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	first, second := models.CanonicalPair(a, b)

	row := db.pool.QueryRow(ctx, `
		INSERT INTO conversation (id, "user1Id", "user2Id", settings, "updatedAt")
		VALUES ($1, $2, $3, '{}'::jsonb, now())
		ON CONFLICT ("user1Id", "user2Id") DO UPDATE SET "user1Id" = EXCLUDED."user1Id"
		RETURNING `+conversationColumns,
		uuid.NewString(), first, second)

	c, err := scanConversation(row)
	if err != nil {
		return nil, fmt.Errorf("get or create conversation: %w", err)
	}
	return c, nil
}

// FindConversation returns the canonical conversation without creating it.
func (db *DB) FindConversation(ctx context.Context, a, b string) (*models.Conversation, error) {
	first, second := models.CanonicalPair(a, b)

	row := db.pool.QueryRow(ctx,
		`SELECT `+conversationColumns+` FROM conversation WHERE "user1Id" = $1 AND "user2Id" = $2`,
		first, second)

	c, err := scanConversation(row)
	if err != nil {
		return nil, notFound(err, "find conversation")
	}
	return c, nil
}

// GetConversation loads a conversation by ID.
func (db *DB) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+conversationColumns+` FROM conversation WHERE id = $1`, id)

	c, err := scanConversation(row)
	if err != nil {
		return nil, notFound(err, "get conversation")
	}
	return c, nil
}

// TouchConversation bumps updatedAt.
func (db *DB) TouchConversation(ctx context.Context, id string, at time.Time) error {
	if _, err := db.pool.Exec(ctx, `UPDATE conversation SET "updatedAt" = $2 WHERE id = $1`, id, at); err != nil {
		return fmt.Errorf("touch conversation: %w", err)
	}
	return nil
}

// UpdateSettings overwrites the whole settings document.
func (db *DB) UpdateSettings(ctx context.Context, conversationID string, settings models.Settings) error {
	doc, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("encode settings: %w", err)
	}

	tag, err := db.pool.Exec(ctx, `UPDATE conversation SET settings = $2::jsonb WHERE id = $1`, conversationID, string(doc))
	if err != nil {
		return fmt.Errorf("update settings: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update settings: %w", ErrNotFound)
	}
	return nil
}

// CreateMessage inserts a message row.
func (db *DB) CreateMessage(ctx context.Context, msg NewMessage) (*models.Message, error) {
	var deliveredAt *time.Time
	if msg.Delivered {
		at := msg.At
		deliveredAt = &at
	}

	row := db.pool.QueryRow(ctx, `
		INSERT INTO message (id, "conversationId", "senderId", content, "createdAt", delivered, "deliveredAt")
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING `+messageColumns,
		uuid.NewString(), msg.ConversationID, msg.SenderID, msg.Content, msg.At, msg.Delivered, deliveredAt)

	m, err := scanMessage(row)
	if err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return m, nil
}

// GetMessage loads a message by ID.
func (db *DB) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	row := db.pool.QueryRow(ctx, `SELECT `+messageColumns+` FROM message WHERE id = $1`, id)

	m, err := scanMessage(row)
	if err != nil {
		return nil, notFound(err, "get message")
	}
	return m, nil
}

// UpdateReactions overwrites a message's reaction map.
func (db *DB) UpdateReactions(ctx context.Context, messageID string, reactions models.Reactions) error {
	if reactions == nil {
		reactions = models.Reactions{}
	}
	doc, err := json.Marshal(reactions)
	if err != nil {
		return fmt.Errorf("encode reactions: %w", err)
	}

	tag, err := db.pool.Exec(ctx, `UPDATE message SET reactions = $2::jsonb WHERE id = $1`, messageID, string(doc))
	if err != nil {
		return fmt.Errorf("update reactions: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update reactions: %w", ErrNotFound)
	}
	return nil
}

// MarkDelivered flags every undelivered message sent to userID in any of their conversations.
func (db *DB) MarkDelivered(ctx context.Context, userID string, at time.Time) ([]StatusUpdate, error) {
	rows, err := db.pool.Query(ctx, `
		UPDATE message m
		SET delivered = true, "deliveredAt" = $2
		FROM conversation c
		WHERE m."conversationId" = c.id
		  AND (c."user1Id" = $1 OR c."user2Id" = $1)
		  AND m."senderId" <> $1
		  AND m.delivered = false
		RETURNING m.id, m."conversationId", m."senderId"`,
		userID, at)
	if err != nil {
		return nil, fmt.Errorf("mark delivered: %w", err)
	}
	return collectStatusUpdates(rows, at, "mark delivered")
}

// MarkRead flags unread messages by authorID in the conversation as read.
// Messages that were never marked delivered get deliveredAt = readAt.
func (db *DB) MarkRead(ctx context.Context, conversationID, authorID string, at time.Time) ([]StatusUpdate, error) {
	rows, err := db.pool.Query(ctx, `
		UPDATE message
		SET read = true, "readAt" = $3,
		    delivered = true, "deliveredAt" = COALESCE("deliveredAt", $3)
		WHERE "conversationId" = $1 AND "senderId" = $2 AND read = false
		RETURNING id, "conversationId", "senderId"`,
		conversationID, authorID, at)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	return collectStatusUpdates(rows, at, "mark read")
}

func collectStatusUpdates(rows pgx.Rows, at time.Time, op string) ([]StatusUpdate, error) {
	defer rows.Close()

	var updates []StatusUpdate
	for rows.Next() {
		u := StatusUpdate{At: at}
		if err := rows.Scan(&u.MessageID, &u.ConversationID, &u.SenderID); err != nil {
			return nil, fmt.Errorf("%s: scan: %w", op, err)
		}
		updates = append(updates, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return updates, nil
}

// ListMessages returns up to limit messages at or before cursor, oldest first.
func (db *DB) ListMessages(ctx context.Context, conversationID string, limit int, cursor string) (*models.MessagePage, error) {
	limit = clampLimit(limit)

	rows, err := db.pool.Query(ctx, `
		SELECT `+messageColumns+`
		FROM message
		WHERE "conversationId" = $1
		  AND ($2 = '' OR ("createdAt", id) <= (SELECT "createdAt", id FROM message WHERE id = $2))
		ORDER BY "createdAt" DESC, id DESC
		LIMIT $3`,
		conversationID, cursor, limit+1)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	defer rows.Close()

	messages := make([]models.Message, 0, limit+1)
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("list messages: scan: %w", err)
		}
		messages = append(messages, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	return buildPage(conversationID, messages, limit), nil
}

// buildPage turns a newest-first slice of up to limit+1 rows into a page.
func buildPage(conversationID string, newestFirst []models.Message, limit int) *models.MessagePage {
	page := &models.MessagePage{ConversationID: conversationID}
	if len(newestFirst) > limit {
		page.NextCursor = newestFirst[limit].ID
		newestFirst = newestFirst[:limit]
	}

	page.Messages = make([]models.Message, len(newestFirst))
	for i, m := range newestFirst {
		page.Messages[len(newestFirst)-1-i] = m
	}
	return page
}

// SetUserOnline records presence. A missing user row is not an error.
func (db *DB) SetUserOnline(ctx context.Context, userID string, online bool, at time.Time) error {
	if _, err := db.pool.Exec(ctx, `UPDATE "user" SET "isOnline" = $2, "lastSeen" = $3 WHERE id = $1`, userID, online, at); err != nil {
		return fmt.Errorf("set user online: %w", err)
	}
	return nil
}

// SessionUser resolves a session token issued by the web application.
func (db *DB) SessionUser(ctx context.Context, token string, now time.Time) (string, error) {
	var userID string
	err := db.pool.QueryRow(ctx,
		`SELECT "userId" FROM session WHERE token = $1 AND "expiresAt" > $2`,
		token, now).Scan(&userID)
	if err != nil {
		return "", notFound(err, "lookup session")
	}
	return userID, nil
}
