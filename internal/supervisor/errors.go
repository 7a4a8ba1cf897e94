package supervisor

import (
	"errors"
	"fmt"
)

var (
	// ErrRunInProgress is returned by Start while a run has not terminated.
	ErrRunInProgress = errors.New("a server run is already in progress")
	// ErrNotRunning is returned when there is no live run to address.
	ErrNotRunning = errors.New("server is not running")
)

// ProcessOp names the process operation that failed.
type ProcessOp int

const (
	OpSpawn ProcessOp = iota
	OpStdinWrite
)

func (o ProcessOp) String() string {
	switch o {
	case OpSpawn:
		return "spawn"
	case OpStdinWrite:
		return "stdin write"
	default:
		return fmt.Sprintf("op(%d)", int(o))
	}
}

// ProcessError is a failure talking to the child process.
type ProcessError struct {
	Op  ProcessOp
	Err error
}

func (e *ProcessError) Error() string {
	return fmt.Sprintf("process %s: %v", e.Op, e.Err)
}

func (e *ProcessError) Unwrap() error {
	return e.Err
}
