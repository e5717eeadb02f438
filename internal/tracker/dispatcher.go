package tracker

import (
	"context"
	"errors"
	"fmt"
)

// EventType names an inbound browser lifecycle event.
type EventType string

const (
	EventTabCreated         EventType = "tabCreated"
	EventTabUpdated         EventType = "tabUpdated"
	EventTabActivated       EventType = "tabActivated"
	EventTabRemoved         EventType = "tabRemoved"
	EventWindowFocusChanged EventType = "windowFocusChanged"
)

// ErrUnknownEvent is returned for an event type the dispatcher does not handle.
var ErrUnknownEvent = errors.New("tracker: unknown event type")

// Event is a browser lifecycle event as forwarded by the extension shim.
type Event struct {
	Type     EventType `json:"type"`
	TabID    int       `json:"tabId"`
	WindowID int       `json:"windowId"`
	URL      string    `json:"url,omitempty"`
	Active   bool      `json:"active,omitempty"`
}

// Dispatch maps an event onto the matching tracker transition.
func (t *Tracker) Dispatch(ctx context.Context, ev Event) error {
	switch ev.Type {
	case EventTabCreated:
		t.TabCreated(ctx, ev.TabID, ev.WindowID, ev.URL, ev.Active)
	case EventTabUpdated:
		t.TabUpdated(ctx, ev.TabID, ev.WindowID, ev.URL, ev.Active)
	case EventTabActivated:
		t.TabActivated(ctx, ev.TabID, ev.WindowID)
	case EventTabRemoved:
		t.TabRemoved(ctx, ev.TabID)
	case EventWindowFocusChanged:
		t.WindowFocusChanged(ctx, ev.WindowID)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Type)
	}

	t.logger.Debug().
		Str("event", string(ev.Type)).
		Int("tab_id", ev.TabID).
		Int("window_id", ev.WindowID).
		Msg("Event dispatched")
	return nil
}
