package app

import (
	"context"
	"fmt"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"noisebot/internal/task/engine"
	logx "noisebot/pkg/logx"
)

// sdNotifier reports service state to systemd. Outside a systemd unit
// (no NOTIFY_SOCKET) every call is a no-op.
type sdNotifier struct {
	enabled bool
	log     *logx.Logger
}

func newSDNotifier(enabled bool, log *logx.Logger) *sdNotifier {
	return &sdNotifier{enabled: enabled, log: log}
}

func (n *sdNotifier) send(state string) {
	if n == nil || !n.enabled {
		return
	}
	sent, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		n.log.Debugf("sd_notify %q failed: %v", state, err)
	case !sent:
		n.log.Sillyf("sd_notify %q: not running under systemd.", state)
	}
}

func (n *sdNotifier) ready() { n.send(daemon.SdNotifyReady) }

func (n *sdNotifier) stopping() { n.send(daemon.SdNotifyStopping) }

func (n *sdNotifier) status(rep engine.Report, next time.Time) {
	n.send(fmt.Sprintf("STATUS=%d tasks in %s, %d failed; next run %s",
		len(rep.Outcomes), rep.Duration.Round(time.Second), rep.Failed(), next.Format(time.DateTime)))
}

// watchdog pings systemd at half the configured watchdog interval until ctx
// ends. It returns at once when the watchdog is disabled.
func (n *sdNotifier) watchdog(ctx context.Context) error {
	if n == nil || !n.enabled {
		return nil
	}
	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil {
		return err
	}
	if interval <= 0 {
		return nil
	}
	t := time.NewTicker(interval / 2)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			n.send(daemon.SdNotifyWatchdog)
		}
	}
}
