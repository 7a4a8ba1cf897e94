// Package runlock guards a server run with an on-disk lock so that a host
// restarted after a crash can find a server it left behind.
package runlock

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

// FileName is the lock file created inside the lock directory.
const FileName = "run.lock"

var (
	ErrLockExists = errors.New("run lock exists: another host may be supervising the server")
	ErrNoLock     = errors.New("no run lock")
)

// Info is the metadata recorded in a run lock.
type Info struct {
	HostPID   int32
	ChildPID  int32
	Timestamp time.Time
}

// Lock represents a held run lock.
type Lock struct {
	path string
	file *os.File
	info Info
}

// Acquire takes the run lock in dir.
// Uses O_CREATE|O_EXCL for atomic lock creation. A lock left by a host
// process that no longer exists is removed and acquisition retried once.
func Acquire(dir string) (*Lock, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}

	lockPath := filepath.Join(dir, FileName)

	file, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
	if err != nil {
		if !os.IsExist(err) {
			return nil, fmt.Errorf("create lock file: %w", err)
		}
		if stale, _ := isStale(lockPath); !stale {
			return nil, ErrLockExists
		}
		// Remove stale lock and retry once
		os.Remove(lockPath)
		file, err = os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0600)
		if err != nil {
			return nil, ErrLockExists
		}
	}

	l := &Lock{
		path: lockPath,
		file: file,
		info: Info{
			HostPID:   int32(os.Getpid()),
			Timestamp: time.Now().UTC().Truncate(time.Second),
		},
	}
	if err := l.write(); err != nil {
		file.Close()
		os.Remove(lockPath)
		return nil, err
	}

	return l, nil
}

// SetChild records the supervised child's pid in the lock.
func (l *Lock) SetChild(pid int) error {
	if l.file == nil {
		return ErrNoLock
	}
	l.info.ChildPID = int32(pid)
	return l.write()
}

// Info returns the metadata currently recorded by this lock.
func (l *Lock) Info() Info {
	return l.info
}

// Release releases the lock.
func (l *Lock) Release() error {
	if l.file != nil {
		l.file.Close()
		l.file = nil
	}

	if l.path != "" {
		if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove lock file: %w", err)
		}
		l.path = ""
	}

	return nil
}

func (l *Lock) write() error {
	if err := l.file.Truncate(0); err != nil {
		return fmt.Errorf("truncate lock file: %w", err)
	}
	if _, err := l.file.Seek(0, 0); err != nil {
		return fmt.Errorf("seek lock file: %w", err)
	}

	lockData := fmt.Sprintf("host_pid=%d\nchild_pid=%d\ntimestamp=%s\n",
		l.info.HostPID, l.info.ChildPID, l.info.Timestamp.Format(time.RFC3339))
	if _, err := l.file.WriteString(lockData); err != nil {
		return fmt.Errorf("write lock data: %w", err)
	}

	if err := l.file.Sync(); err != nil {
		return fmt.Errorf("sync lock file: %w", err)
	}
	return nil
}

// Inspect reads the lock in dir without acquiring it.
// Returns ErrNoLock when there is none.
func Inspect(dir string) (*Info, error) {
	return readInfo(filepath.Join(dir, FileName))
}

// Remove deletes the lock in dir regardless of its owner.
func Remove(dir string) error {
	if err := os.Remove(filepath.Join(dir, FileName)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove lock file: %w", err)
	}
	return nil
}

// Stale reports whether the host that wrote info is gone.
func (i *Info) Stale() bool {
	if i.HostPID <= 0 {
		return true
	}
	exists, err := process.PidExists(i.HostPID)
	if err != nil {
		return false
	}
	return !exists
}

func isStale(lockPath string) (bool, error) {
	info, err := readInfo(lockPath)
	if err != nil {
		return false, err
	}
	return info.Stale(), nil
}

func readInfo(lockPath string) (*Info, error) {
	f, err := os.Open(lockPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNoLock
		}
		return nil, fmt.Errorf("open lock file: %w", err)
	}
	defer f.Close()

	info := &Info{}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), "=")
		if !ok {
			continue
		}
		switch key {
		case "host_pid", "child_pid":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil {
				return nil, fmt.Errorf("parse %s: %w", key, err)
			}
			if key == "host_pid" {
				info.HostPID = int32(n)
			} else {
				info.ChildPID = int32(n)
			}
		case "timestamp":
			ts, err := time.Parse(time.RFC3339, value)
			if err != nil {
				return nil, fmt.Errorf("parse timestamp: %w", err)
			}
			info.Timestamp = ts
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read lock file: %w", err)
	}

	return info, nil
}
