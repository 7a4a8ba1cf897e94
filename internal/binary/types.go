package binary

import (
	"fmt"
	"strings"
)

const (
	// ExecutableName is the file name of the server executable inside the
	// install root.
	ExecutableName = "Cuberite"

	// DefaultDownloadHost serves "<abi>.zip" and "server.zip" with sidecars.
	DefaultDownloadHost = "https://download.cuberite.org/androidbinaries/"

	// ServerArtifact is the archive holding the server data directory.
	ServerArtifact = "server.zip"

	// SidecarExt is appended to an artifact URL or path for its checksum file.
	SidecarExt = ".sha1"

	// SignatureExt is appended to an artifact URL or path for its detached
	// OpenPGP signature.
	SignatureExt = ".sig"

	// NoMediaFile is written into every extraction target.
	NoMediaFile = ".nomedia"

	// DefaultRetries is the number of re-downloads after a checksum mismatch.
	DefaultRetries = 1
)

// Kind selects which artifact an install operation handles.
type Kind int

const (
	// KindBinary is the per-ABI server executable archive.
	KindBinary Kind = iota
	// KindServer is the server data archive.
	KindServer
)

// String returns the string representation of the kind
func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindServer:
		return "server"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Target is what an install request covers.
type Target string

const (
	TargetBinary Target = "binary"
	TargetServer Target = "server"
	TargetBoth   Target = "both"
)

// ParseTarget parses "binary", "server" or "both" (case-insensitive).
func ParseTarget(s string) (Target, error) {
	switch t := Target(strings.ToLower(strings.TrimSpace(s))); t {
	case TargetBinary, TargetServer, TargetBoth:
		return t, nil
	default:
		return "", fmt.Errorf("unknown install target %q (want binary, server or both)", s)
	}
}

// ProgressFunc receives (current, total) progress ticks.
type ProgressFunc func(current, total int64)

// ProgressSink receives install progress. Every PhaseStart is followed by
// exactly one PhaseEnd.
type ProgressSink interface {
	PhaseStart(title string)
	Progress(current, max int64)
	PhaseEnd()
}

// RunChecker reports whether the server is currently running.
type RunChecker interface {
	Running() bool
}

type noopSink struct{}

func (noopSink) PhaseStart(string)     {}
func (noopSink) Progress(int64, int64) {}
func (noopSink) PhaseEnd()             {}

type neverRunning struct{}

func (neverRunning) Running() bool { return false }
