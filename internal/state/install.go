package state

// InstallState summarises what is on disk and whether a run is active.
// It is derived on demand and never persisted.
type InstallState int

const (
	NeedBoth InstallState = iota
	NeedBinary
	NeedServer
	PickedBinaryFile
	PickedServerFile
	Ready
	Running
)

func (s InstallState) String() string {
	switch s {
	case NeedBoth:
		return "need-both"
	case NeedBinary:
		return "need-binary"
	case NeedServer:
		return "need-server"
	case PickedBinaryFile:
		return "picked-binary-file"
	case PickedServerFile:
		return "picked-server-file"
	case Ready:
		return "ready"
	case Running:
		return "running"
	default:
		return "unknown"
	}
}

// ComputeInstallState derives the install state from disk presence and the
// running flag. A running server always yields Running.
func ComputeInstallState(binaryExists, serverExists, running bool) InstallState {
	switch {
	case running:
		return Running
	case binaryExists && serverExists:
		return Ready
	case binaryExists:
		return NeedServer
	case serverExists:
		return NeedBinary
	default:
		return NeedBoth
	}
}

// EventType identifies an install progress event.
type EventType int

const (
	EventPhaseStart EventType = iota
	EventProgress
	EventPhaseEnd
	EventResult
)

func (t EventType) String() string {
	switch t {
	case EventPhaseStart:
		return "phase-start"
	case EventProgress:
		return "progress"
	case EventPhaseEnd:
		return "phase-end"
	case EventResult:
		return "result"
	default:
		return "unknown"
	}
}

// InstallEvent is one step of install progress.
// Title is set for EventPhaseStart, Current/Max for EventProgress and
// Message for EventResult.
type InstallEvent struct {
	Type    EventType
	Title   string
	Current int64
	Max     int64
	Message string
}
