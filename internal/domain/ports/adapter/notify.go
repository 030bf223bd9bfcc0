package adapter

import (
	"context"

	"edu-subscription-platform/internal/domain/model"
)

// Notifier is the port for the external notification collaborator. Delivery
// is fire-and-forget: the core never consumes its result beyond logging.
type Notifier interface {
	Send(ctx context.Context, kind model.NotificationKind, recipient string, data map[string]string) error
}
