package conversation

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"
)

var (
	// ErrNotFound indicates the conversation has never been saved.
	ErrNotFound = errors.New("conversation: not found")
	// ErrConflict indicates the stored version moved since the caller read it.
	ErrConflict = errors.New("conversation: version conflict")
)

// Store reads and writes conversations with optimistic concurrency.
//
// Save persists conv only if the stored version still equals conv.Version
// (0 meaning "must not exist yet") and bumps conv.Version on success.
// Any other outcome returns ErrConflict and leaves the stored document untouched.
type Store interface {
	Get(ctx context.Context, id string) (*Conversation, error)
	Save(ctx context.Context, conv *Conversation) error
}

// MemoryStore is an in-process Store used by tests, the CLI and single-node deployments.
type MemoryStore struct {
	mu    sync.Mutex
	convs map[string]*Conversation
	now   func() time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		convs: make(map[string]*Conversation),
		now:   time.Now,
	}
}

// Get returns a deep copy of the stored conversation.
func (s *MemoryStore) Get(_ context.Context, id string) (*Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	conv, ok := s.convs[strings.TrimSpace(id)]
	if !ok {
		return nil, ErrNotFound
	}
	return conv.Clone(), nil
}

// Save applies the compare-and-set write.
func (s *MemoryStore) Save(_ context.Context, conv *Conversation) error {
	if conv == nil {
		return errors.New("conversation: id required")
	}
	key := strings.TrimSpace(conv.ID)
	if key == "" {
		return errors.New("conversation: id required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, exists := s.convs[key]
	switch {
	case !exists && conv.Version != 0:
		return ErrConflict
	case exists && current.Version != conv.Version:
		return ErrConflict
	}

	conv.Version++
	conv.UpdatedAt = s.now().UTC()
	s.convs[key] = conv.Clone()
	return nil
}

// Len reports how many conversations are held.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.convs)
}
