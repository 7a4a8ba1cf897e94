// Package supervisor runs one server process at a time, streaming its
// console into the shared service state and classifying how each run ended.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/shirou/gopsutil/v4/process"
	"golang.org/x/sync/errgroup"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/metrics"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/runlock"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
)

const (
	// StartingLine is written to the console before the child is spawned.
	StartingLine = "Info: Cuberite is starting..."

	// StopCommand asks the server to shut down cleanly.
	StopCommand = "stop"

	DefaultMinStartup    = 100 * time.Millisecond
	DefaultCommandBuffer = 16

	maxLineSize = 1024 * 1024
)

// State is the lifecycle phase of the supervisor.
type State int

const (
	Idle State = iota
	Starting
	Running
	Stopping
	Terminated
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Starting:
		return "starting"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	case Terminated:
		return "terminated"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Options configures a Supervisor. State is required.
type Options struct {
	State   *state.ServiceState
	Spawner Spawner
	Clock   Clock
	Logger  logging.Logger
	Metrics metrics.Recorder

	// MinStartup is the shortest run still considered a real start.
	MinStartup time.Duration
	// ABI is reported in startup failure messages.
	ABI string
	// LockDir holds the run lock. Empty disables locking.
	LockDir       string
	CommandBuffer int
}

// Stats is a resource snapshot of the running child.
type Stats struct {
	PID        int
	RSS        uint64
	CPUPercent float64
	Threads    int32
}

// Supervisor owns at most one server run at a time.
type Supervisor struct {
	state      *state.ServiceState
	spawner    Spawner
	clock      Clock
	logger     logging.Logger
	metrics    metrics.Recorder
	minStartup time.Duration
	abi        string
	lockDir    string
	cmdBuffer  int

	mu      sync.Mutex
	phase   State
	current *run
}

type run struct {
	id       string
	proc     Process
	lock     *runlock.Lock
	started  time.Time
	logger   logging.Logger
	commands chan string
	kill     chan struct{}
	done     chan struct{}
	result   state.RunResult
}

// New returns an idle supervisor.
func New(opts Options) (*Supervisor, error) {
	if opts.State == nil {
		return nil, errors.New("supervisor requires a service state")
	}
	s := &Supervisor{
		state:      opts.State,
		spawner:    opts.Spawner,
		clock:      opts.Clock,
		logger:     logging.OrNoop(opts.Logger),
		metrics:    metrics.OrNoop(opts.Metrics),
		minStartup: opts.MinStartup,
		abi:        opts.ABI,
		lockDir:    opts.LockDir,
		cmdBuffer:  opts.CommandBuffer,
	}
	if s.spawner == nil {
		s.spawner = ExecSpawner{}
	}
	if s.clock == nil {
		s.clock = RealClock{}
	}
	if s.minStartup <= 0 {
		s.minStartup = DefaultMinStartup
	}
	if s.cmdBuffer <= 0 {
		s.cmdBuffer = DefaultCommandBuffer
	}
	return s, nil
}

// Phase returns the current lifecycle phase.
func (s *Supervisor) Phase() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.phase
}

// Start launches the server and returns once it is spawned. The run then
// continues in the background until its output ends.
func (s *Supervisor) Start(ctx context.Context, spec Spec) error {
	s.mu.Lock()
	if s.phase != Idle && s.phase != Terminated {
		s.mu.Unlock()
		return ErrRunInProgress
	}
	s.phase = Starting
	s.mu.Unlock()

	runID := uuid.NewString()
	logger := logging.With(s.logger, "run_id", runID)

	s.state.SetRunning(true)
	s.state.ResetLog()
	s.state.AppendLog(StartingLine)

	if err := os.Chmod(spec.Executable, 0o755); err != nil {
		logger.Warn("cannot mark server executable", "path", spec.Executable, "error", err)
	}

	var lock *runlock.Lock
	if s.lockDir != "" {
		l, err := runlock.Acquire(s.lockDir)
		if err != nil {
			return s.failStart(runID, logger, err)
		}
		lock = l
	}

	proc, err := s.spawner.Spawn(ctx, spec)
	if err != nil {
		if lock != nil {
			if rerr := lock.Release(); rerr != nil {
				logger.Warn("release run lock", "error", rerr)
			}
		}
		return s.failStart(runID, logger, err)
	}

	r := &run{
		id:       runID,
		proc:     proc,
		lock:     lock,
		started:  s.clock.Now(),
		logger:   logging.With(logger, "pid", proc.Pid()),
		commands: make(chan string, s.cmdBuffer),
		kill:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
	if lock != nil {
		if err := lock.SetChild(proc.Pid()); err != nil {
			r.logger.Warn("record child in run lock", "error", err)
		}
	}

	s.mu.Lock()
	s.phase = Running
	s.current = r
	s.mu.Unlock()

	r.logger.Info("server started", "executable", spec.Executable)
	go s.supervise(r)
	return nil
}

func (s *Supervisor) failStart(runID string, logger logging.Logger, err error) error {
	perr := &ProcessError{Op: OpSpawn, Err: err}
	logger.Error("server failed to start", "error", err)

	res := state.RunResult{RunID: runID, Message: fmt.Sprintf("Failed to start Cuberite: %v", err)}
	r := &run{id: runID, done: make(chan struct{}), result: res}
	close(r.done)

	s.state.SetRunning(false)
	s.metrics.RunFinished(false, 0)
	s.state.PublishResult(res)

	s.mu.Lock()
	s.phase = Terminated
	s.current = r
	s.mu.Unlock()
	return perr
}

func (s *Supervisor) supervise(r *run) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		ended    time.Time
		closeErr error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer cancel()
		ended = s.pump(r)
		// Closing stdin first unblocks a command write stuck on a dead child.
		closeErr = r.proc.Stdin().Close()
		return nil
	})
	g.Go(func() error {
		s.consume(gctx, r)
		return nil
	})
	g.Go(func() error {
		select {
		case <-gctx.Done():
		case <-r.kill:
			r.logger.Warn("killing server")
			if err := r.proc.Kill(); err != nil {
				r.logger.Error("kill server", "error", err)
			}
		}
		return nil
	})
	_ = g.Wait()

	s.finish(r, ended, closeErr)
}

// pump copies console lines into the state until the output ends and
// returns the time it ended. Lines longer than maxLineSize are cut there
// and the rest of the line is dropped.
func (s *Supervisor) pump(r *run) time.Time {
	rd := bufio.NewReaderSize(r.proc.Output(), 64*1024)
	var (
		line []byte
		cut  bool
	)
	for {
		chunk, more, err := rd.ReadLine()
		if err != nil {
			if len(line) > 0 {
				s.emit(r, line, cut)
			}
			if !errors.Is(err, io.EOF) {
				r.logger.Warn("read server output", "error", err)
			}
			return s.clock.Now()
		}
		if room := maxLineSize - len(line); len(chunk) > room {
			chunk, cut = chunk[:room], true
		}
		line = append(line, chunk...)
		if more {
			continue
		}
		s.emit(r, line, cut)
		line, cut = line[:0], false
	}
}

func (s *Supervisor) emit(r *run, line []byte, cut bool) {
	text := string(line)
	if cut {
		r.logger.Warn("console line truncated", "limit", maxLineSize)
	}
	s.state.AppendLog(text)
	s.metrics.ConsoleLine()
	mirror(r.logger, text)
}

func mirror(logger logging.Logger, line string) {
	level, msg := state.ClassifyLine(line)
	switch level {
	case state.LevelError:
		logger.Error(msg, "source", "server")
	case state.LevelWarn:
		logger.Warn(msg, "source", "server")
	case state.LevelInfo:
		logger.Info(msg, "source", "server")
	default:
		logger.Debug(msg, "source", "server")
	}
}

func (s *Supervisor) consume(ctx context.Context, r *run) {
	stdin := r.proc.Stdin()
	w := bufio.NewWriter(stdin)
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-r.commands:
			_, err := w.WriteString(cmd + "\n")
			if err == nil {
				err = w.Flush()
			}
			if err != nil {
				r.logger.Warn("command dropped", "command", cmd, "error", &ProcessError{Op: OpStdinWrite, Err: err})
				w.Reset(stdin)
			}
		}
	}
}

func (s *Supervisor) finish(r *run, ended time.Time, closeErr error) {
	var errs *multierror.Error
	if closeErr != nil && !errors.Is(closeErr, os.ErrClosed) {
		errs = multierror.Append(errs, fmt.Errorf("close stdin: %w", closeErr))
	}
	if err := r.proc.Wait(); err != nil {
		r.logger.Debug("server exit status", "error", err)
	}
	if r.lock != nil {
		if err := r.lock.Release(); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("release run lock: %w", err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		r.logger.Warn("server cleanup", "error", err)
	}

	elapsed := ended.Sub(r.started)
	res := state.RunResult{RunID: r.id, Success: true, Duration: elapsed}
	if elapsed < s.minStartup {
		res.Success = false
		res.Message = fmt.Sprintf("Cuberite exited after %s; the %s build may not run on this device", elapsed, s.abiName())
	}

	// Publish before the phase admits a new Start.
	s.state.SetRunning(false)
	s.metrics.RunFinished(res.Success, elapsed)
	s.state.PublishResult(res)

	s.mu.Lock()
	r.result = res
	s.phase = Terminated
	s.mu.Unlock()
	close(r.done)

	if res.Success {
		r.logger.Info("server stopped", "duration", elapsed)
	} else {
		r.logger.Error("server failed to start", "duration", elapsed)
	}
}

func (s *Supervisor) abiName() string {
	if s.abi == "" {
		return "unknown"
	}
	return s.abi
}

// live returns the current run if it can still take commands.
func (s *Supervisor) live() (*run, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current == nil || (s.phase != Running && s.phase != Stopping) {
		return nil, ErrNotRunning
	}
	return s.current, nil
}

// Send queues one console command for the server.
func (s *Supervisor) Send(ctx context.Context, cmd string) error {
	r, err := s.live()
	if err != nil {
		return err
	}
	select {
	case r.commands <- cmd:
		return nil
	case <-r.done:
		return ErrNotRunning
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop asks the server to shut down.
func (s *Supervisor) Stop(ctx context.Context) error {
	if err := s.Send(ctx, StopCommand); err != nil {
		return err
	}
	s.toStopping()
	return nil
}

// Kill terminates the server without waiting for queued commands.
func (s *Supervisor) Kill() error {
	r, err := s.live()
	if err != nil {
		return err
	}
	select {
	case r.kill <- struct{}{}:
	default:
	}
	s.toStopping()
	return nil
}

func (s *Supervisor) toStopping() {
	s.mu.Lock()
	if s.phase == Running {
		s.phase = Stopping
	}
	s.mu.Unlock()
}

// Wait blocks until the current or most recent run has ended.
func (s *Supervisor) Wait(ctx context.Context) (state.RunResult, error) {
	s.mu.Lock()
	r := s.current
	s.mu.Unlock()
	if r == nil {
		return state.RunResult{}, ErrNotRunning
	}
	select {
	case <-r.done:
		s.mu.Lock()
		defer s.mu.Unlock()
		return r.result, nil
	case <-ctx.Done():
		return state.RunResult{}, ctx.Err()
	}
}

// Stats samples resource usage of the running child.
func (s *Supervisor) Stats(ctx context.Context) (Stats, error) {
	r, err := s.live()
	if err != nil {
		return Stats{}, err
	}
	pid := r.proc.Pid()
	p, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return Stats{}, fmt.Errorf("inspect process %d: %w", pid, err)
	}

	st := Stats{PID: pid}
	mem, err := p.MemoryInfoWithContext(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("read memory of %d: %w", pid, err)
	}
	st.RSS = mem.RSS
	if st.CPUPercent, err = p.CPUPercentWithContext(ctx); err != nil {
		return Stats{}, fmt.Errorf("read cpu of %d: %w", pid, err)
	}
	if st.Threads, err = p.NumThreadsWithContext(ctx); err != nil {
		return Stats{}, fmt.Errorf("read threads of %d: %w", pid, err)
	}
	return st, nil
}
