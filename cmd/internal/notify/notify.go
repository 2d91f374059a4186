// Package notify delivers host-facing events: a walk-in waiting at the gate,
// a visitor checked in. Delivery mechanics beyond the in-process hub
// (push/SMS/WhatsApp) belong to external collaborators behind the Sink
// interface.
package notify

import (
	"context"
	"log/slog"
	"time"
)

// Event types published by the engine.
const (
	TypeWalkinPending  = "walkin.pending"
	TypeVisitorArrived = "visit.checked_in"
)

// Event is a host-keyed notification. Body is a short human-readable line;
// structured fields carry everything a client needs to render its own.
type Event struct {
	Type         string    `json:"type"`
	HostID       string    `json:"host_id"`
	VisitID      string    `json:"visit_id"`
	VisitorName  string    `json:"visitor_name"`
	VisitorPhone string    `json:"visitor_phone"`
	Body         string    `json:"body"`
	At           time.Time `json:"at"`
}

// Sink consumes events. Implementations must be non-blocking and best-effort:
// a slow or absent consumer never stalls a check-in.
type Sink interface {
	Publish(ctx context.Context, ev Event)
}

// LogSink writes events to the structured log. It is the dev fallback and a
// useful audit breadcrumb alongside real delivery.
type LogSink struct {
	Log *slog.Logger
}

// Publish logs the event.
func (s LogSink) Publish(_ context.Context, ev Event) {
	if s.Log == nil {
		return
	}
	s.Log.Info("notify.event",
		"type", ev.Type,
		"host_id", ev.HostID,
		"visit_id", ev.VisitID,
		"visitor_name", ev.VisitorName,
	)
}

// Fanout publishes to every sink in order.
type Fanout []Sink

// Publish forwards the event to each sink.
func (f Fanout) Publish(ctx context.Context, ev Event) {
	for _, s := range f {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}
