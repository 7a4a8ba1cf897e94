package supervisor

import (
	"bufio"
	"context"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
)

type trackedStdin struct {
	*io.PipeWriter
	closed *atomic.Bool
}

func (w trackedStdin) Close() error {
	w.closed.Store(true)
	return w.PipeWriter.Close()
}

type fakeProcess struct {
	pid    int
	outR   *io.PipeReader
	outW   *io.PipeWriter
	inR    *io.PipeReader
	stdin  trackedStdin
	onWait func()

	stdinClosed atomic.Bool
	killed      atomic.Bool
	waited      atomic.Bool
}

func newFakeProcess(pid int, onWait func()) *fakeProcess {
	p := &fakeProcess{pid: pid, onWait: onWait}
	p.outR, p.outW = io.Pipe()
	var inW *io.PipeWriter
	p.inR, inW = io.Pipe()
	p.stdin = trackedStdin{PipeWriter: inW, closed: &p.stdinClosed}
	return p
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Output() io.Reader     { return p.outR }
func (p *fakeProcess) Stdin() io.WriteCloser { return p.stdin }

func (p *fakeProcess) Kill() error {
	p.killed.Store(true)
	return p.outW.Close()
}

func (p *fakeProcess) Wait() error {
	if p.onWait != nil {
		p.onWait()
	}
	p.waited.Store(true)
	return nil
}

func (p *fakeProcess) emit(t *testing.T, lines ...string) {
	t.Helper()
	for _, l := range lines {
		_, err := io.WriteString(p.outW, l+"\n")
		require.NoError(t, err)
	}
}

func (p *fakeProcess) exit() {
	p.outW.Close()
}

// commands reads what the supervisor writes to the child's stdin.
func (p *fakeProcess) commands() <-chan string {
	ch := make(chan string, 16)
	go func() {
		defer close(ch)
		scanner := bufio.NewScanner(p.inR)
		for scanner.Scan() {
			ch <- scanner.Text()
		}
	}()
	return ch
}

type fakeSpawner struct {
	mu     sync.Mutex
	procs  []*fakeProcess
	specs  []Spec
	err    error
	onWait func()
}

func (s *fakeSpawner) Spawn(_ context.Context, spec Spec) (Process, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	p := newFakeProcess(4000+len(s.procs), s.onWait)
	s.procs = append(s.procs, p)
	s.specs = append(s.specs, spec)
	return p, nil
}

func (s *fakeSpawner) last(t *testing.T) *fakeProcess {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.procs, "nothing spawned")
	return s.procs[len(s.procs)-1]
}

type harness struct {
	sup     *Supervisor
	state   *state.ServiceState
	spawner *fakeSpawner
	clock   *TestClock
}

func newHarness(t *testing.T, opts Options) *harness {
	t.Helper()
	h := &harness{
		state:   state.NewServiceState(),
		spawner: &fakeSpawner{},
		clock:   NewTestClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)),
	}
	t.Cleanup(h.state.Close)

	opts.State = h.state
	opts.Spawner = h.spawner
	opts.Clock = h.clock
	if opts.ABI == "" {
		opts.ABI = "arm64-v8a"
	}
	sup, err := New(opts)
	require.NoError(t, err)
	h.sup = sup
	return h
}

func (h *harness) wait(t *testing.T) state.RunResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	res, err := h.sup.Wait(ctx)
	require.NoError(t, err)
	return res
}

func collect[T any](t *testing.T, sub *state.Subscription[T], n int) []T {
	t.Helper()
	out := make([]T, 0, n)
	timeout := time.After(5 * time.Second)
	for len(out) < n {
		select {
		case v, ok := <-sub.C:
			if !ok {
				return out
			}
			out = append(out, v)
		case <-timeout:
			t.Fatalf("timed out after %d of %d values", len(out), n)
		}
	}
	return out
}

func recv(t *testing.T, ch <-chan string) string {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for command")
		return ""
	}
}
