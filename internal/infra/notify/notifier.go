package notify

import (
	"context"

	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/adapter"
)

// Compile-time checks
var (
	_ adapter.Notifier = (*LogNotifier)(nil)
	_ adapter.Notifier = (*NoopNotifier)(nil)
)

// LogNotifier stands in for the external notification service: it records the
// outgoing message in the structured log. The real delivery channel is an
// external collaborator and out of scope here.
type LogNotifier struct {
	log *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "Notifier").Logger()
	return &LogNotifier{log: &l}
}

func (n *LogNotifier) Send(ctx context.Context, kind model.NotificationKind, recipient string, data map[string]string) error {
	n.log.Info().Str("kind", string(kind)).Str("recipient", recipient).Fields(map[string]interface{}{"data": data}).Msg("notification sent")
	return nil
}

type NoopNotifier struct{}

func (NoopNotifier) Send(ctx context.Context, kind model.NotificationKind, recipient string, data map[string]string) error {
	return nil
}
