// Package tracker runs the per-tab usage state machine. It consumes browser
// tab events, accrues foreground time into the ledger on a fixed tick and
// pushes restriction changes to the affected tabs.
//
// All state lives behind a single mutex. Timer callbacks take the same lock
// and check that the session they were scheduled for is still current.
package tracker

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/goodtune/snsdetox/internal/clock"
	"github.com/goodtune/snsdetox/internal/domain"
	"github.com/goodtune/snsdetox/internal/ledger"
	"github.com/goodtune/snsdetox/internal/metrics"
	"github.com/goodtune/snsdetox/internal/override"
	"github.com/goodtune/snsdetox/internal/settings"
)

// Tracker manages tab sessions on monitored domains
type Tracker struct {
	settings  *settings.Store
	ledger    *ledger.Ledger
	overrides *override.Manager
	notifier  Notifier
	clock     clock.Source
	config    Config
	logger    zerolog.Logger

	mu            sync.Mutex
	tabs          map[int]*tabInfo
	sessions      map[int]*TabSession
	focusedWindow int
	paused        map[string]bool        // domains paused from the page
	expiry        map[string]clock.Timer // override expiry per domain
}

// New creates a tracker.
func New(
	settingsStore *settings.Store,
	l *ledger.Ledger,
	overrides *override.Manager,
	notifier Notifier,
	clk clock.Source,
	config Config,
	logger zerolog.Logger,
) *Tracker {
	if config.TickInterval <= 0 {
		config.TickInterval = DefaultTickInterval
	}
	if config.ArmingDelay < 0 {
		config.ArmingDelay = 0
	}

	return &Tracker{
		settings:      settingsStore,
		ledger:        l,
		overrides:     overrides,
		notifier:      notifier,
		clock:         clk,
		config:        config,
		logger:        logger.With().Str("component", "tracker").Logger(),
		tabs:          make(map[int]*tabInfo),
		sessions:      make(map[int]*TabSession),
		focusedWindow: windowUnknown,
		paused:        make(map[string]bool),
		expiry:        make(map[string]clock.Timer),
	}
}

// TabCreated registers a new tab and starts a session when its URL is
// monitored.
func (t *Tracker) TabCreated(ctx context.Context, tabID, windowID int, url string, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.tabs[tabID] = &tabInfo{URL: url, WindowID: windowID, Active: active}
	if active {
		t.pauseOthersLocked(ctx, tabID, windowID)
	}
	t.openSessionLocked(ctx, tabID)
}

// TabUpdated handles navigation. A change of domain replaces the session;
// navigation within the same domain only records the new URL.
func (t *Tracker) TabUpdated(ctx context.Context, tabID, windowID int, url string, active bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	info, ok := t.tabs[tabID]
	if !ok {
		info = &tabInfo{}
		t.tabs[tabID] = info
	}
	becameActive := active && !info.Active
	info.URL = url
	info.WindowID = windowID
	info.Active = active

	if becameActive {
		t.pauseOthersLocked(ctx, tabID, windowID)
	}

	if s, ok := t.sessions[tabID]; ok {
		d, err := domain.Canonical(url)
		if err == nil && d == s.Domain {
			s.URL = url
			s.WindowID = windowID
			if becameActive {
				s.IsActive = true
				t.refreshLocked(ctx, s)
				t.engageLocked(ctx, s)
			}
			return
		}
		t.closeSessionLocked(ctx, s)
	}
	t.openSessionLocked(ctx, tabID)
}

// TabActivated makes tabID the foreground tab of windowID. Every other
// session is paused and flushed before the activated tab is read back from
// the ledger.
func (t *Tracker) TabActivated(ctx context.Context, tabID, windowID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.pauseOthersLocked(ctx, tabID, windowID)

	info, ok := t.tabs[tabID]
	if !ok {
		// Activation can arrive before creation; the URL comes with the next update.
		t.tabs[tabID] = &tabInfo{WindowID: windowID, Active: true}
		return
	}
	info.WindowID = windowID
	info.Active = true

	s, ok := t.sessions[tabID]
	if !ok {
		t.openSessionLocked(ctx, tabID)
		return
	}
	s.WindowID = windowID
	s.IsActive = true
	t.refreshLocked(ctx, s)
	t.engageLocked(ctx, s)
}

// TabRemoved flushes and destroys the tab's session.
func (t *Tracker) TabRemoved(ctx context.Context, tabID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if s, ok := t.sessions[tabID]; ok {
		t.closeSessionLocked(ctx, s)
	}
	delete(t.tabs, tabID)
}

// WindowFocusChanged records OS-level focus. WindowNone means the browser
// itself lost focus.
func (t *Tracker) WindowFocusChanged(ctx context.Context, windowID int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if windowID == t.focusedWindow {
		return
	}

	// Credit time up to now under the old focus before switching.
	for _, s := range t.sessions {
		if s.state == StateTracking {
			t.flushLocked(ctx, s)
		}
	}
	t.focusedWindow = windowID

	for _, s := range t.sessions {
		if s.state == StateTracking && !t.windowFocusedLocked(s.WindowID) {
			t.pauseLocked(ctx, s)
		}
	}

	if windowID == WindowNone {
		t.logger.Debug().Msg("Browser lost focus")
		return
	}
	for _, s := range t.sessions {
		if s.WindowID == windowID && s.IsActive && s.state != StateTracking {
			t.refreshLocked(ctx, s)
			t.engageLocked(ctx, s)
		}
	}
}

// Session returns a copy of the session for tabID.
func (t *Tracker) Session(tabID int) (TabSession, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	s, ok := t.sessions[tabID]
	if !ok {
		return TabSession{}, false
	}
	out := *s
	out.tick, out.arm = nil, nil
	return out, true
}

// Shutdown flushes every tracking session and cancels all timers.
func (t *Tracker) Shutdown(ctx context.Context) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, s := range t.sessions {
		if s.state == StateTracking {
			t.flushLocked(ctx, s)
		}
		s.stopTimers()
		s.state = StatePaused
	}
	for d, timer := range t.expiry {
		timer.Stop()
		delete(t.expiry, d)
	}
	t.logger.Info().Int("sessions", len(t.sessions)).Msg("Tracker stopped")
}

// pauseOthersLocked pauses every session except tabID and clears the
// foreground flag of the other tabs in windowID.
func (t *Tracker) pauseOthersLocked(ctx context.Context, tabID, windowID int) {
	for id, info := range t.tabs {
		if id != tabID && info.WindowID == windowID {
			info.Active = false
		}
	}
	for id, s := range t.sessions {
		if id == tabID {
			continue
		}
		if s.WindowID == windowID {
			s.IsActive = false
		}
		if s.state == StateTracking || s.arm != nil {
			t.pauseLocked(ctx, s)
		}
	}
}

// openSessionLocked creates a session for tabID if its URL is monitored.
func (t *Tracker) openSessionLocked(ctx context.Context, tabID int) {
	info, ok := t.tabs[tabID]
	if !ok || info.URL == "" {
		return
	}

	d, err := domain.Canonical(info.URL)
	if err != nil {
		t.logger.Debug().Err(err).Int("tab_id", tabID).Msg("Ignoring tab with unparsable URL")
		return
	}
	if !t.settings.IsMonitored(d) {
		return
	}

	s := &TabSession{
		TabID:    tabID,
		URL:      info.URL,
		Domain:   d,
		WindowID: info.WindowID,
		IsActive: info.Active,
		state:    StateUninitialized,
	}
	t.sessions[tabID] = s
	metrics.TrackedTabs.Set(float64(len(t.sessions)))

	t.logger.Debug().
		Int("tab_id", tabID).
		Int("window_id", info.WindowID).
		Str("domain", d).
		Msg("Session created")

	t.refreshLocked(ctx, s)
	t.engageLocked(ctx, s)
}

// closeSessionLocked flushes and destroys s.
func (t *Tracker) closeSessionLocked(ctx context.Context, s *TabSession) {
	if s.state == StateTracking {
		t.flushLocked(ctx, s)
	}
	if s.LocalAccumulatedMs > 0 {
		t.drainLocked(ctx, s)
	}
	s.stopTimers()
	s.state = StateUninitialized
	delete(t.sessions, s.TabID)
	metrics.TrackedTabs.Set(float64(len(t.sessions)))

	t.logger.Debug().
		Int("tab_id", s.TabID).
		Str("domain", s.Domain).
		Int64("unflushed_ms", s.LocalAccumulatedMs).
		Msg("Session destroyed")
}

func (t *Tracker) windowFocusedLocked(windowID int) bool {
	return t.focusedWindow == windowUnknown || t.focusedWindow == windowID
}

func (t *Tracker) sessionsForLocked(d string) []*TabSession {
	var out []*TabSession
	for _, s := range t.sessions {
		if s.Domain == d {
			out = append(out, s)
		}
	}
	return out
}

func (t *Tracker) now() time.Time {
	return t.clock.Now()
}
