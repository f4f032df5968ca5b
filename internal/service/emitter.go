package service

import (
	"context"
	"sync"

	"sheetsync/internal/etl"
	"sheetsync/internal/logging"
)

// ─────────────────────────────────────────────────────────────
// EventEmitter: the service publishes run lifecycle events here
// ─────────────────────────────────────────────────────────────

// Event names emitted by SyncService.
const (
	EventSyncStarted   = "sync:started"
	EventSyncCompleted = "sync:completed"
	EventSyncFailed    = "sync:failed"
)

// SyncEvent is the payload of every sync:* event. Report is nil for
// sync:started.
type SyncEvent struct {
	Job     string         `json:"job"`
	Trigger string         `json:"trigger"`
	Report  *etl.RunReport `json:"report,omitempty"`
	Error   string         `json:"error,omitempty"`
}

// EventEmitter receives service events. The log emitter and the
// Prometheus metrics implement it; tests use MockEmitter.
type EventEmitter interface {
	Emit(ctx context.Context, event string, data any)
}

// MultiEmitter fans one event out to several emitters in order.
type MultiEmitter []EventEmitter

func (m MultiEmitter) Emit(ctx context.Context, event string, data any) {
	for _, e := range m {
		if e != nil {
			e.Emit(ctx, event, data)
		}
	}
}

// LogEmitter writes events to the context logger.
type LogEmitter struct{}

func (LogEmitter) Emit(ctx context.Context, event string, data any) {
	log := logging.FromContext(ctx)
	ev, ok := data.(SyncEvent)
	if !ok {
		log.Debug().Str("event", event).Interface("data", data).Msg("event")
		return
	}
	switch event {
	case EventSyncStarted:
		log.Info().Str("job", ev.Job).Str("trigger", ev.Trigger).Msg("sync started")
	case EventSyncFailed:
		log.Error().Str("job", ev.Job).Str("trigger", ev.Trigger).Str("error", ev.Error).Msg("sync failed")
	case EventSyncCompleted:
		e := log.Info().Str("job", ev.Job).Str("trigger", ev.Trigger)
		if r := ev.Report; r != nil {
			e = e.Int("inserted", r.Inserted).Int("updated", r.Updated).Dur("duration", r.Duration)
		}
		e.Msg("sync completed")
	}
}

// MockEmitter is a test-friendly EventEmitter that records all calls.
// It is safe for use from trigger goroutines.
type MockEmitter struct {
	mu     sync.Mutex
	Events []EmittedEvent
}

// EmittedEvent holds a single recorded emission for test assertions.
type EmittedEvent struct {
	Event string
	Data  any
}

func (m *MockEmitter) Emit(_ context.Context, event string, data any) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, EmittedEvent{Event: event, Data: data})
}

// Names returns the recorded event names in order.
func (m *MockEmitter) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	names := make([]string, len(m.Events))
	for i, e := range m.Events {
		names[i] = e.Event
	}
	return names
}
