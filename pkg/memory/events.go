package memory

import "time"

// Hub event types.
const (
	EventSnapshotCompiled = "snapshot.compiled"
	EventParamsUpdated    = "params.updated"
)

// Event is a hub state change. Payload is a Snapshot for
// snapshot.compiled and engine.Params for params.updated.
type Event struct {
	Type    string
	Time    time.Time
	Payload any
}

// Observer receives hub events. OnHubEvent runs on the goroutine that made
// the change, after it is visible, and must not block.
type Observer interface {
	OnHubEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnHubEvent calls f.
func (f ObserverFunc) OnHubEvent(e Event) { f(e) }

func (h *Hub) notify(eventType string, payload any) {
	if len(h.observers) == 0 {
		return
	}
	e := Event{Type: eventType, Time: h.clock().UTC(), Payload: payload}
	for _, o := range h.observers {
		o.OnHubEvent(e)
	}
}
