package browser

import (
	"context"
	"log/slog"
	"time"

	"debotbrowser/pkg/bus"
)

// ObserveEvents logs router events from b until ctx ends or the bus closes.
func ObserveEvents(ctx context.Context, b *bus.Bus, log *slog.Logger) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "bus.events")

	events, unsubscribe := b.SubscribeEvents(ctx, 64)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			logEvent(log, event)
		}
	}
}

func logEvent(log *slog.Logger, event bus.Event) {
	attrs := []any{
		"event_type", event.Type,
		"session", event.Session,
		"address", event.Address,
		"timestamp", event.At.UTC().Format(time.RFC3339Nano),
	}
	if event.Interface != "" {
		attrs = append(attrs, "interface", event.Interface)
	}
	if len(event.Payload) > 0 {
		attrs = append(attrs, "payload", event.Payload)
	}

	switch event.Type {
	case bus.EventRunFailed:
		log.Error("Browser event", append(attrs, "error", event.Error)...)
	case bus.EventRunStarted, bus.EventRunCompleted, bus.EventInstanceCreated, bus.EventExitCaptured:
		log.Info("Browser event", attrs...)
	default:
		log.Debug("Browser event", attrs...)
	}
}
