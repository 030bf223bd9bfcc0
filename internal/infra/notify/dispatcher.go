package notify

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"edu-subscription-platform/internal/domain/model"
	"edu-subscription-platform/internal/domain/ports/adapter"
	"edu-subscription-platform/internal/infra/metrics"
	"edu-subscription-platform/internal/usecase"
)

// Compile-time check
var _ usecase.EventSink = (*Dispatcher)(nil)

// Dispatcher drains outbound events produced by state transitions and hands
// them to the notifier on a background goroutine. Enqueue never blocks: when
// the buffer is full the event is dropped and counted, because a slow or dead
// notification channel must never stall a payment acknowledgement.
type Dispatcher struct {
	notifier adapter.Notifier
	queue    chan model.OutboundEvent
	log      *zerolog.Logger
}

func NewDispatcher(notifier adapter.Notifier, buffer int, logger *zerolog.Logger) *Dispatcher {
	if buffer <= 0 {
		buffer = 256
	}
	l := logger.With().Str("component", "NotificationDispatcher").Logger()
	return &Dispatcher{
		notifier: notifier,
		queue:    make(chan model.OutboundEvent, buffer),
		log:      &l,
	}
}

func (d *Dispatcher) Enqueue(events ...model.OutboundEvent) {
	for _, ev := range events {
		select {
		case d.queue <- ev:
			metrics.IncNotification(string(ev.Kind), "queued")
		default:
			metrics.IncNotification(string(ev.Kind), "dropped")
			d.log.Warn().Str("kind", string(ev.Kind)).Str("recipient", ev.Recipient).Msg("notification queue full; event dropped")
		}
	}
}

// Run delivers queued events until ctx is cancelled, then drains what is
// already buffered with a short grace period.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.log.Info().Msg("starting notification dispatcher")
	for {
		select {
		case <-ctx.Done():
			d.drain()
			d.log.Info().Msg("stopping notification dispatcher")
			return ctx.Err()
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		}
	}
}

func (d *Dispatcher) deliver(ctx context.Context, ev model.OutboundEvent) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := d.notifier.Send(sendCtx, ev.Kind, ev.Recipient, ev.Data); err != nil {
		metrics.IncNotification(string(ev.Kind), "failed")
		d.log.Error().Err(err).Str("kind", string(ev.Kind)).Str("recipient", ev.Recipient).Msg("notification delivery failed")
		return
	}
	metrics.IncNotification(string(ev.Kind), "sent")
}

func (d *Dispatcher) drain() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for {
		select {
		case ev := <-d.queue:
			d.deliver(ctx, ev)
		default:
			return
		}
	}
}
