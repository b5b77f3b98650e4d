package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

var pgTracer = otel.Tracer("support-intel.internal.conversation.postgres")

type rowQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore persists conversations to the conversation_states table.
// The version column is the compare-and-set guard.
type PostgresStore struct {
	pool rowQuerier
	now  func() time.Time
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore creates a store over a pgx pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	if pool == nil {
		panic("conversation: pgx pool required")
	}
	return &PostgresStore{pool: pool, now: time.Now}
}

func newPostgresStoreWithExec(exec rowQuerier) *PostgresStore {
	if exec == nil {
		panic("conversation: exec required")
	}
	return &PostgresStore{pool: exec, now: time.Now}
}

// Get loads the conversation document.
func (s *PostgresStore) Get(ctx context.Context, id string) (*Conversation, error) {
	ctx, span := pgTracer.Start(ctx, "conversation.postgres.get")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	var doc []byte
	var version int64
	err := s.pool.QueryRow(ctx,
		`SELECT document, version FROM conversation_states WHERE id = $1`, id,
	).Scan(&doc, &version)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to get: %w", err)
	}

	conv, err := decodeConversation(doc)
	if err != nil {
		return nil, err
	}
	// The column is authoritative over whatever the document carried.
	conv.Version = version
	return conv, nil
}

// Save inserts on version 0 and otherwise updates only when the version still matches.
func (s *PostgresStore) Save(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation: id required")
	}
	ctx, span := pgTracer.Start(ctx, "conversation.postgres.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.Int64("conversation.version", conv.Version),
	)

	next := conv.Clone()
	next.Version = conv.Version + 1
	next.UpdatedAt = s.now().UTC()
	doc, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal: %w", err)
	}

	var escalationID *string
	if next.Escalation != nil {
		escalationID = &next.Escalation.ID
	}

	createdAt := next.CreatedAt
	if createdAt.IsZero() {
		createdAt = next.UpdatedAt
	}

	var tag pgconn.CommandTag
	if conv.Version == 0 {
		tag, err = s.pool.Exec(ctx, `
			INSERT INTO conversation_states (
				id, version, category, escalation_id, document, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING
		`, next.ID, next.Version, string(next.Category), escalationID, doc, createdAt, next.UpdatedAt)
	} else {
		tag, err = s.pool.Exec(ctx, `
			UPDATE conversation_states SET
				version = $2,
				category = $3,
				escalation_id = $4,
				document = $5,
				updated_at = $6
			WHERE id = $1 AND version = $7
		`, next.ID, next.Version, string(next.Category), escalationID, doc, next.UpdatedAt, conv.Version)
	}
	if err != nil {
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to save: %w", err)
	}
	if tag.RowsAffected() == 0 {
		span.SetAttributes(attribute.Bool("conversation.conflict", true))
		return ErrConflict
	}

	conv.Version = next.Version
	conv.UpdatedAt = next.UpdatedAt
	return nil
}
