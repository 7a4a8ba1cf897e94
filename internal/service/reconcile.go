package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/shirou/gopsutil/v4/process"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/runlock"
)

// Orphan describes a server left behind by a host that exited without
// cleaning up.
type Orphan struct {
	Lock runlock.Info
	// Alive reports whether the recorded child still runs.
	Alive  bool
	Killed bool
}

// Reconcile inspects the run lock left by a previous host. It returns nil
// when there is nothing to clean up, and runlock.ErrLockExists when another
// live host owns the lock. A stale lock is removed; when kill is set, a
// still running orphan is killed first.
func (s *Service) Reconcile(ctx context.Context, kill bool) (*Orphan, error) {
	info, err := runlock.Inspect(s.lockDir)
	if errors.Is(err, runlock.ErrNoLock) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if int(info.HostPID) == os.Getpid() {
		return nil, nil
	}
	if !info.Stale() {
		return nil, fmt.Errorf("%w (host pid %d)", runlock.ErrLockExists, info.HostPID)
	}

	orphan := &Orphan{Lock: *info}
	logger := s.logger
	if info.ChildPID > 0 {
		p, alive := s.orphanProcess(ctx, info.ChildPID)
		orphan.Alive = alive
		if alive && kill {
			if err := p.KillWithContext(ctx); err != nil {
				return orphan, fmt.Errorf("kill orphaned server %d: %w", info.ChildPID, err)
			}
			orphan.Killed = true
			logger.Warn("killed orphaned server", "pid", info.ChildPID)
		} else if alive {
			logger.Warn("orphaned server still running", "pid", info.ChildPID)
		}
	}

	if err := runlock.Remove(s.lockDir); err != nil {
		return orphan, err
	}
	logger.Info("removed stale run lock", "host_pid", info.HostPID, "child_pid", info.ChildPID)
	return orphan, nil
}

// orphanProcess returns the recorded child if it still runs the server
// executable. A reused pid belonging to another program is not an orphan.
func (s *Service) orphanProcess(ctx context.Context, pid int32) (*process.Process, bool) {
	exists, err := process.PidExistsWithContext(ctx, pid)
	if err != nil || !exists {
		return nil, false
	}
	p, err := process.NewProcessWithContext(ctx, pid)
	if err != nil {
		return nil, false
	}
	name, err := p.NameWithContext(ctx)
	if err != nil || name != filepath.Base(s.cfg.ExecutablePath()) {
		return nil, false
	}
	return p, true
}
