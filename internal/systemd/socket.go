package systemd

import (
	"fmt"
	"net"
	"time"

	"github.com/coreos/go-systemd/v22/activation"
	"github.com/coreos/go-systemd/v22/daemon"
)

// Listener names expected in the FileDescriptorName= directives of
// snsdetox.socket.
const (
	ListenerAPI     = "api"
	ListenerMetrics = "metrics"
)

// Listeners holds all systemd-activated listeners
type Listeners struct {
	API       net.Listener
	Metrics   net.Listener
	Activated bool
}

// GetListeners retrieves systemd socket-activated file descriptors
// Returns nil listeners if not running under socket activation
func GetListeners() (*Listeners, error) {
	listeners := &Listeners{
		Activated: false,
	}

	fds := activation.Files(false) // false = don't unset env vars
	if len(fds) == 0 {
		return listeners, nil
	}
	for _, f := range fds {
		f.Close()
	}

	listeners.Activated = true

	// Named listeners require systemd 227+
	listenersMap, err := activation.ListenersWithNames()
	if err != nil {
		return nil, fmt.Errorf("failed to get systemd listeners: %w", err)
	}

	if lns, ok := listenersMap[ListenerAPI]; ok && len(lns) > 0 {
		listeners.API = lns[0]
	}
	if lns, ok := listenersMap[ListenerMetrics]; ok && len(lns) > 0 {
		listeners.Metrics = lns[0]
	}

	return listeners, nil
}

// NotifyReady sends READY=1 notification to systemd
func NotifyReady() error {
	return notify(daemon.SdNotifyReady)
}

// NotifyReloading sends RELOADING=1 while settings are re-read
func NotifyReloading() error {
	return notify(daemon.SdNotifyReloading)
}

// NotifyStopping sends STOPPING=1 notification to systemd
func NotifyStopping() error {
	return notify(daemon.SdNotifyStopping)
}

// NotifyWatchdog sends WATCHDOG=1 notification to systemd
func NotifyWatchdog() error {
	return notify(daemon.SdNotifyWatchdog)
}

// WatchdogInterval returns how often to ping the watchdog, or zero when the
// unit has no WatchdogSec=.
func WatchdogInterval() time.Duration {
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return 0
	}
	return interval / 2
}

// notify ignores the "not sent" case, which only means we are not running
// under systemd.
func notify(state string) error {
	if _, err := daemon.SdNotify(false, state); err != nil {
		return fmt.Errorf("failed to send sd_notify %s: %w", state, err)
	}
	return nil
}
