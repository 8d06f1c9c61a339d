package events

import (
	"context"

	"github.com/rs/zerolog/log"
)

// EventSink receives published events.
type EventSink interface {
	PublishEvent(event Event) error
}

// SinkFunc adapts a function to EventSink.
type SinkFunc func(event Event) error

func (f SinkFunc) PublishEvent(event Event) error { return f(event) }

type ctxKey int

const ctxKeyEventSinks ctxKey = iota

// WithEventSinks returns a context carrying sinks in addition to the ones
// already attached to ctx.
func WithEventSinks(ctx context.Context, sinks ...EventSink) context.Context {
	if len(sinks) == 0 {
		return ctx
	}
	combined := append([]EventSink{}, GetEventSinks(ctx)...)
	combined = append(combined, sinks...)
	return context.WithValue(ctx, ctxKeyEventSinks, combined)
}

func GetEventSinks(ctx context.Context) []EventSink {
	sinks, _ := ctx.Value(ctxKeyEventSinks).([]EventSink)
	return sinks
}

// PublishEventToContext hands event to every sink in ctx. Sink failures are
// logged and otherwise ignored.
func PublishEventToContext(ctx context.Context, event Event) {
	sinks := GetEventSinks(ctx)
	if len(sinks) == 0 {
		return
	}
	for _, sink := range sinks {
		if err := sink.PublishEvent(event); err != nil {
			log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("Failed to publish event")
		}
	}
}
