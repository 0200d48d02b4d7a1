package interfaces

import (
	"context"

	"github.com/taskwell/mailroom/internal/enum"
)

// EventPublisher emits engine events for downstream consumers (notifications,
// activity feeds). Publishing is best-effort: failures are logged, never
// propagated into the ingestion pipeline.
type EventPublisher interface {
	PublishEvent(ctx context.Context, entityID string, entityType enum.EntityType, eventType string, payload any) error
	Close() error
}
