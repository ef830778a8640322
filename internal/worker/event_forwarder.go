package worker

import (
	"context"
	"fmt"

	"botfleet/internal/core"
)

var _ core.IEventStore = (*EventForwarder)(nil)

// EventForwarder adapts the bot-facing SendEvents sync call to the
// core.IEventStore interface, so the scheduler, reconciler, and trade pipeline can
// all emit events through the same seam the control-plane-side stores use,
// without needing their own database access (spec §5: the worker has no
// persisted state of its own).
type EventForwarder struct {
	client core.IControlPlaneClient
	botID  string
}

// NewEventForwarder binds a forwarder to a single bot's control-plane client.
func NewEventForwarder(client core.IControlPlaneClient, botID string) *EventForwarder {
	return &EventForwarder{client: client, botID: botID}
}

// Append batches events and POSTs them to /v1/bot/{id}/events.
func (f *EventForwarder) Append(ctx context.Context, events ...*core.Event) error {
	return f.client.SendEvents(ctx, f.botID, events)
}

// List is not available on the worker side; events are only readable
// through the control plane's user-facing API.
func (f *EventForwarder) List(ctx context.Context, botID string, cursor string, limit int) ([]*core.Event, string, error) {
	return nil, "", fmt.Errorf("event listing is not available from the worker")
}

// DeleteOlderThan is a control-plane-side retention concern; the worker
// never purges events it has already forwarded.
func (f *EventForwarder) DeleteOlderThan(ctx context.Context, cutoffUnix int64) (int64, error) {
	return 0, fmt.Errorf("event retention is not available from the worker")
}
