package state

import (
	"strings"
	"sync"
)

// ConsoleLog is the ordered output of the current run.
// It is cleared at the start of every run.
type ConsoleLog struct {
	mu    sync.RWMutex
	lines []string
}

// Append adds a line to the end of the log.
func (c *ConsoleLog) Append(line string) {
	c.mu.Lock()
	c.lines = append(c.lines, line)
	c.mu.Unlock()
}

// Reset empties the log.
func (c *ConsoleLog) Reset() {
	c.mu.Lock()
	c.lines = nil
	c.mu.Unlock()
}

// Lines returns a snapshot of the log.
func (c *ConsoleLog) Lines() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.lines))
	copy(out, c.lines)
	return out
}

// Len returns the number of lines.
func (c *ConsoleLog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.lines)
}

// String returns the log as one buffer, lines joined by newlines.
func (c *ConsoleLog) String() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return strings.Join(c.lines, "\n")
}

// Level is the severity a server console line was printed with.
type Level int

const (
	LevelInfo Level = iota
	LevelDebug
	LevelWarn
	LevelError
)

var linePrefixes = []struct {
	prefix string
	level  Level
}{
	{"log: ", LevelDebug},
	{"info: ", LevelInfo},
	{"warning: ", LevelWarn},
	{"error: ", LevelError},
}

// ClassifyLine returns the severity of a console line from its prefix
// (case-insensitive) and the line with that prefix removed. Lines without a
// known prefix are LevelInfo and returned unchanged.
func ClassifyLine(line string) (Level, string) {
	lower := strings.ToLower(line)
	for _, p := range linePrefixes {
		if strings.HasPrefix(lower, p.prefix) {
			return p.level, line[len(p.prefix):]
		}
	}
	return LevelInfo, line
}
