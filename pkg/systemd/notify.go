// Package systemd reports daemon lifecycle to the service manager via
// sd_notify. Outside a systemd unit (NOTIFY_SOCKET unset) every call is
// a no-op, so the binary behaves the same in a terminal.
package systemd

import (
	"github.com/coreos/go-systemd/v22/daemon"

	logx "belltower/pkg/logx"
)

func NotifyReady(log logx.Logger) {
	notify(log, daemon.SdNotifyReady)
}

func NotifyStopping(log logx.Logger) {
	notify(log, daemon.SdNotifyStopping)
}

// NotifyStatus updates the unit's human-readable STATUS line.
func NotifyStatus(log logx.Logger, status string) {
	notify(log, "STATUS="+status)
}

func notify(log logx.Logger, state string) {
	sent, err := daemon.SdNotify(false, state)
	if err != nil && !log.IsZero() {
		log.Warn("sd_notify failed", logx.String("state", state), logx.Err(err))
		return
	}
	if sent && !log.IsZero() {
		log.Debug("sd_notify", logx.String("state", state))
	}
}
