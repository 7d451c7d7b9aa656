package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/splax/teamhub/internal/domain"
	"github.com/splax/teamhub/internal/repository"
)

// StoreSink persists messages in the messages collection.
type StoreSink struct {
	store repository.Store
}

// NewStoreSink constructs a StoreSink.
func NewStoreSink(store repository.Store) StoreSink {
	return StoreSink{store: store}
}

// Notify inserts msg, assigning an id and timestamp when missing.
func (s StoreSink) Notify(ctx context.Context, msg domain.Message) error {
	if msg.ID == "" {
		msg.ID = uuid.NewString()
	}
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = time.Now().UTC()
	}
	if err := s.store.Insert(ctx, repository.CollectionMessages, msg); err != nil {
		return fmt.Errorf("store message: %w", err)
	}
	return nil
}

// Inbox lists the messages addressed to userID.
func (s StoreSink) Inbox(ctx context.Context, userID string) ([]domain.Message, error) {
	messages := make([]domain.Message, 0)
	if err := s.store.Find(ctx, repository.CollectionMessages, repository.ByField("receiver", userID), &messages); err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	return messages, nil
}
