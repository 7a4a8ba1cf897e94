package power

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/godbus/dbus/v5"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
)

const (
	logindDest   = "org.freedesktop.login1"
	logindPath   = dbus.ObjectPath("/org/freedesktop/login1")
	inhibitCall  = "org.freedesktop.login1.Manager.Inhibit"
	inhibitWhat  = "sleep:idle"
	inhibitMode  = "block"
	inhibitorWho = "cubekeeper"
)

// Logind takes systemd-logind inhibitor locks over the system bus.
type Logind struct {
	logger logging.Logger
}

// NewLogind returns a logind inhibitor. Nothing is contacted until Acquire.
func NewLogind(logger logging.Logger) *Logind {
	return &Logind{logger: logging.OrNoop(logger)}
}

// Acquire takes a "sleep:idle" block inhibitor. The lock is held as long as
// the returned file descriptor stays open.
func (l *Logind) Acquire(ctx context.Context, why string) (func(), error) {
	conn, err := dbus.ConnectSystemBus(dbus.WithContext(ctx))
	if err != nil {
		return func() {}, fmt.Errorf("connect system bus: %w", err)
	}

	var fd dbus.UnixFD
	obj := conn.Object(logindDest, logindPath)
	if err := obj.CallWithContext(ctx, inhibitCall, 0, inhibitWhat, inhibitorWho, why, inhibitMode).Store(&fd); err != nil {
		conn.Close()
		return func() {}, fmt.Errorf("call logind inhibit: %w", err)
	}

	l.logger.Debug("sleep inhibitor acquired", "why", why)

	var once sync.Once
	release := func() {
		once.Do(func() {
			if err := os.NewFile(uintptr(fd), "logind-inhibit").Close(); err != nil {
				l.logger.Warn("release sleep inhibitor", "error", err)
			}
			if err := conn.Close(); err != nil {
				l.logger.Warn("close system bus", "error", err)
			}
		})
	}
	return release, nil
}

// Default returns the logind inhibitor, degrading to a no-op per call when
// the system bus cannot be reached.
func Default(logger logging.Logger) Inhibitor {
	return &fallback{primary: NewLogind(logger), logger: logging.OrNoop(logger)}
}
