package api

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/tracker"
)

// Outbox queues background to page messages per tab until the page polls
// for them. A tab's mailbox exists from its first poll until the tab closes.
type Outbox struct {
	mu     sync.Mutex
	size   int
	boxes  map[int][]tracker.Message
	logger zerolog.Logger
}

// NewOutbox creates an outbox holding at most size messages per tab.
func NewOutbox(size int, logger zerolog.Logger) *Outbox {
	if size <= 0 {
		size = 32
	}
	return &Outbox{
		size:   size,
		boxes:  make(map[int][]tracker.Message),
		logger: logger.With().Str("component", "outbox").Logger(),
	}
}

// Send implements tracker.Notifier. The oldest message is dropped when the
// mailbox is full.
func (o *Outbox) Send(tabID int, msg tracker.Message) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	box, ok := o.boxes[tabID]
	if !ok {
		return tracker.ErrTabUnreachable
	}
	if len(box) >= o.size {
		o.logger.Debug().Int("tab_id", tabID).Str("dropped", box[0].Action).Msg("Mailbox full, dropping oldest")
		box = box[1:]
	}
	o.boxes[tabID] = append(box, msg)
	return nil
}

// Open creates the mailbox for tabID if it does not exist yet.
func (o *Outbox) Open(tabID int) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if _, ok := o.boxes[tabID]; !ok {
		o.boxes[tabID] = nil
	}
}

// Close discards the mailbox for tabID.
func (o *Outbox) Close(tabID int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	delete(o.boxes, tabID)
}

// Drain returns and clears the queued messages for tabID, opening its
// mailbox on first use.
func (o *Outbox) Drain(tabID int) []tracker.Message {
	o.mu.Lock()
	defer o.mu.Unlock()

	box := o.boxes[tabID]
	o.boxes[tabID] = nil
	if box == nil {
		return []tracker.Message{}
	}
	return box
}
