package state

import "sync"

// ServiceState is the shared observable state of one managed server.
type ServiceState struct {
	running      *Subject[bool]
	installState *Subject[InstallState]
	logLines     *Subject[string]
	results      *Subject[RunResult]
	install      *Subject[InstallEvent]

	log ConsoleLog

	mu         sync.Mutex
	lastResult *RunResult
}

// NewServiceState returns a state with the running flag false and the
// install state NeedBoth until something computes the real one.
func NewServiceState() *ServiceState {
	return &ServiceState{
		running:      NewValueSubject(false),
		installState: NewValueSubject(NeedBoth),
		logLines:     NewSubject[string](),
		results:      NewSubject[RunResult](),
		install:      NewSubject[InstallEvent](),
	}
}

// SetRunning publishes the running flag.
func (s *ServiceState) SetRunning(running bool) {
	s.running.Publish(running)
}

// Running reports the current running flag.
func (s *ServiceState) Running() bool {
	v, _ := s.running.Value()
	return v
}

// ResetLog clears the console log.
func (s *ServiceState) ResetLog() {
	s.log.Reset()
}

// AppendLog appends a console line and publishes it to line subscribers.
func (s *ServiceState) AppendLog(line string) {
	s.log.Append(line)
	s.logLines.Publish(line)
}

// Log returns the console log of the current (or last) run as one buffer.
func (s *ServiceState) Log() string {
	return s.log.String()
}

// Lines returns a snapshot of the console log.
func (s *ServiceState) Lines() []string {
	return s.log.Lines()
}

// PublishResult records and publishes the result of a finished run.
func (s *ServiceState) PublishResult(r RunResult) {
	s.mu.Lock()
	s.lastResult = &r
	s.mu.Unlock()
	s.results.Publish(r)
}

// LastResult returns the most recent run result, if any.
func (s *ServiceState) LastResult() (RunResult, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastResult == nil {
		return RunResult{}, false
	}
	return *s.lastResult, true
}

// PhaseStart announces the start of an install phase.
func (s *ServiceState) PhaseStart(title string) {
	s.install.Publish(InstallEvent{Type: EventPhaseStart, Title: title})
}

// Progress reports progress within the current install phase.
func (s *ServiceState) Progress(current, max int64) {
	s.install.Publish(InstallEvent{Type: EventProgress, Current: current, Max: max})
}

// PhaseEnd closes the current install phase.
func (s *ServiceState) PhaseEnd() {
	s.install.Publish(InstallEvent{Type: EventPhaseEnd})
}

// InstallResult publishes the final message of an install operation.
func (s *ServiceState) InstallResult(message string) {
	s.install.Publish(InstallEvent{Type: EventResult, Message: message})
}

// SetInstallState publishes the install state.
func (s *ServiceState) SetInstallState(is InstallState) {
	s.installState.Publish(is)
}

// InstallState returns the last published install state.
func (s *ServiceState) InstallState() InstallState {
	v, _ := s.installState.Value()
	return v
}

// SubscribeRunning delivers the running flag, starting with its current value.
func (s *ServiceState) SubscribeRunning() *Subscription[bool] {
	return s.running.Subscribe()
}

// SubscribeInstallState delivers the install state, starting with its current value.
func (s *ServiceState) SubscribeInstallState() *Subscription[InstallState] {
	return s.installState.Subscribe()
}

// SubscribeLog delivers console lines appended after subscribing.
func (s *ServiceState) SubscribeLog() *Subscription[string] {
	return s.logLines.Subscribe()
}

// SubscribeResults delivers run results published after subscribing.
func (s *ServiceState) SubscribeResults() *Subscription[RunResult] {
	return s.results.Subscribe()
}

// SubscribeInstall delivers install events published after subscribing.
func (s *ServiceState) SubscribeInstall() *Subscription[InstallEvent] {
	return s.install.Subscribe()
}

// Close ends every subscription.
func (s *ServiceState) Close() {
	s.running.Close()
	s.installState.Close()
	s.logLines.Close()
	s.results.Close()
	s.install.Close()
}
