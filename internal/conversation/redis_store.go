package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const defaultConversationTTL = 7 * 24 * time.Hour

// RedisStore keeps each conversation as one JSON document and commits with WATCH/MULTI.
// Open conversations expire after ttl; terminal ones are persisted without
// expiry so a committed escalation can never be replaced by a fresh conversation.
type RedisStore struct {
	redis  *redis.Client
	ttl    time.Duration
	tracer trace.Tracer
	now    func() time.Time
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore builds a Redis-backed store. A non-positive ttl uses the default.
func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	if client == nil {
		panic("conversation: redis client cannot be nil")
	}
	if ttl <= 0 {
		ttl = defaultConversationTTL
	}
	return &RedisStore{
		redis:  client,
		ttl:    ttl,
		tracer: otel.Tracer("support-intel.internal.conversation.redis"),
		now:    time.Now,
	}
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Conversation, error) {
	ctx, span := s.tracer.Start(ctx, "conversation.redis.get")
	defer span.End()
	span.SetAttributes(attribute.String("conversation.id", id))

	data, err := s.redis.Get(ctx, stateKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		span.RecordError(err)
		return nil, fmt.Errorf("conversation: failed to load state: %w", err)
	}
	return decodeConversation(data)
}

func (s *RedisStore) Save(ctx context.Context, conv *Conversation) error {
	if conv == nil || conv.ID == "" {
		return errors.New("conversation: id required")
	}
	ctx, span := s.tracer.Start(ctx, "conversation.redis.save")
	defer span.End()
	span.SetAttributes(
		attribute.String("conversation.id", conv.ID),
		attribute.Int64("conversation.version", conv.Version),
	)

	key := stateKey(conv.ID)
	next := conv.Clone()
	next.Version = conv.Version + 1
	next.UpdatedAt = s.now().UTC()
	payload, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("conversation: failed to marshal state: %w", err)
	}
	ttl := s.ttl
	if next.Terminal() {
		ttl = 0
	}

	txf := func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			if conv.Version != 0 {
				return ErrConflict
			}
		case err != nil:
			return fmt.Errorf("conversation: failed to read state: %w", err)
		default:
			current, err := decodeConversation(stored)
			if err != nil {
				return err
			}
			if current.Version != conv.Version {
				return ErrConflict
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, payload, ttl)
			return nil
		})
		return err
	}

	if err := s.redis.Watch(ctx, txf, key); err != nil {
		if errors.Is(err, redis.TxFailedErr) || errors.Is(err, ErrConflict) {
			span.SetAttributes(attribute.Bool("conversation.conflict", true))
			return ErrConflict
		}
		span.RecordError(err)
		return fmt.Errorf("conversation: failed to persist state: %w", err)
	}

	conv.Version = next.Version
	conv.UpdatedAt = next.UpdatedAt
	return nil
}

func decodeConversation(data []byte) (*Conversation, error) {
	var conv Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode state: %w", err)
	}
	if conv.CollectedFields == nil {
		conv.CollectedFields = Fields{}
	}
	return &conv, nil
}

func stateKey(id string) string {
	return fmt.Sprintf("conversation_state:%s", id)
}
