package state

import (
	"fmt"
	"time"
)

// RunResult describes how a supervised run ended.
// Exactly one is published per run.
type RunResult struct {
	RunID    string
	Success  bool
	Message  string
	Duration time.Duration
}

func (r RunResult) String() string {
	outcome := "failure"
	if r.Success {
		outcome = "success"
	}
	if r.Message == "" {
		return fmt.Sprintf("run %s: %s after %s", r.RunID, outcome, r.Duration)
	}
	return fmt.Sprintf("run %s: %s after %s: %s", r.RunID, outcome, r.Duration, r.Message)
}
