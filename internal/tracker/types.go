package tracker

import (
	"errors"
	"time"

	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/restriction"
)

// WindowNone is the window identifier reported when the browser loses OS
// focus entirely.
const WindowNone = -1

// windowUnknown is the focus value before any focus event has been seen. All
// windows are treated as focused until then.
const windowUnknown = -2

// ErrTabUnreachable is returned by a Notifier when the page context of a tab
// cannot receive messages.
var ErrTabUnreachable = errors.New("tracker: tab unreachable")

// ErrUnknownTab is returned for operations naming a tab the tracker has never
// seen.
var ErrUnknownTab = errors.New("tracker: unknown tab")

// State is the tracking state of a tab session.
type State int

const (
	StateUninitialized State = iota
	StateTracking
	StatePaused
	StateSuppressed
)

func (s State) String() string {
	switch s {
	case StateTracking:
		return "tracking"
	case StatePaused:
		return "paused"
	case StateSuppressed:
		return "suppressed"
	default:
		return "uninitialized"
	}
}

// Message actions sent from the background to a page.
const (
	ActionUpdateRestriction = "updateRestriction"
	ActionResetComplete     = "resetComplete"
)

// Message is a background to page notification.
type Message struct {
	Action string             `json:"action"`
	Status restriction.Status `json:"status,omitempty"`
}

// Notifier delivers messages to the page context of a tab.
type Notifier interface {
	Send(tabID int, msg Message) error
}

// Config holds tracker timing.
type Config struct {
	TickInterval time.Duration
	ArmingDelay  time.Duration
}

const (
	// DefaultTickInterval is the accrual period while a tab is tracked
	DefaultTickInterval = time.Second

	// DefaultArmingDelay is the grace period before a fresh session counts
	DefaultArmingDelay = time.Second
)

// TabSession is the in-memory tracking state for one monitored tab.
type TabSession struct {
	TabID           int
	URL             string
	Domain          string
	WindowID        int
	IsActive        bool
	IsTrackingArmed bool
	LastTickAt      time.Time

	// LocalAccumulatedMs holds foreground time not yet written to the
	// ledger, normally zero unless storage is failing.
	LocalAccumulatedMs int64

	// LastStatus is the effective status last sent to the page. Empty until
	// the first evaluation.
	LastStatus restriction.Status

	state        State
	knownTotalMs int64
	storedStatus restriction.Status
	tick         clock.Timer
	arm          clock.Timer
}

// State returns the current tracking state.
func (s *TabSession) State() State {
	return s.state
}

// totalMs is the best known accumulated time for the domain.
func (s *TabSession) totalMs() int64 {
	return s.knownTotalMs + s.LocalAccumulatedMs
}

func (s *TabSession) stopTimers() {
	if s.tick != nil {
		s.tick.Stop()
		s.tick = nil
	}
	if s.arm != nil {
		s.arm.Stop()
		s.arm = nil
	}
}

// tabInfo is what the tracker knows about any browser tab, monitored or not.
type tabInfo struct {
	URL      string
	WindowID int
	Active   bool
}

// Report describes the usage and effective status of a domain.
type Report struct {
	Domain            string             `json:"domain,omitempty"`
	Status            restriction.Status `json:"status"`
	TotalActiveMs     int64              `json:"totalActiveMs"`
	GrayscaleMs       int64              `json:"grayscaleMs,omitempty"`
	BlockMs           int64              `json:"blockMs,omitempty"`
	OverrideExpiresAt *time.Time         `json:"overrideExpiresAt,omitempty"`
}
