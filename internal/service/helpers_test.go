package service

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha1" //nolint:gosec
	"encoding/hex"
	"io"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/platform"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/supervisor"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/testutil"
)

const (
	testHost = "https://download.test/androidbinaries/"
	testABI  = platform.ABIX8664
)

func zipOf(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		hdr := &zip.FileHeader{Name: name, Method: zip.Deflate}
		hdr.SetMode(0o755)
		w, err := zw.CreateHeader(hdr)
		require.NoError(t, err)
		_, err = w.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

// memFetcher serves artifacts and their sidecars from memory.
type memFetcher struct {
	mu    sync.Mutex
	files map[string][]byte
}

func newMemFetcher(t *testing.T) *memFetcher {
	f := &memFetcher{files: map[string][]byte{}}
	f.add(testABI+".zip", zipOf(t, map[string]string{binary.ExecutableName: "#!/bin/sh\n"}))
	f.add(binary.ServerArtifact, zipOf(t, map[string]string{
		"settings.ini": "[Server]\n",
		"webadmin.ini": "[WebAdmin]\nPorts=8081\nEnabled=1\n",
	}))
	return f
}

func (f *memFetcher) add(name string, body []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sum := sha1.Sum(body) //nolint:gosec
	f.files[testHost+name] = body
	f.files[testHost+name+binary.SidecarExt] = []byte(hex.EncodeToString(sum[:]) + "  " + name + "\n")
}

func (f *memFetcher) remove(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.files, testHost+name)
}

func (f *memFetcher) Download(_ context.Context, url, dest string, _ time.Duration) error {
	f.mu.Lock()
	body, ok := f.files[url]
	f.mu.Unlock()
	if !ok {
		return &binary.DownloadError{Kind: binary.DownloadHTTPStatus, URL: url, Code: http.StatusNotFound, Message: "Not Found"}
	}
	return os.WriteFile(dest, body, 0o644)
}

type stubProcess struct {
	outR *io.PipeReader
	outW *io.PipeWriter
	inW  *io.PipeWriter
}

func (p *stubProcess) Pid() int              { return 4242 }
func (p *stubProcess) Output() io.Reader     { return p.outR }
func (p *stubProcess) Stdin() io.WriteCloser { return p.inW }
func (p *stubProcess) Kill() error           { return p.outW.Close() }
func (p *stubProcess) Wait() error           { return nil }

type stubSpawner struct {
	mu    sync.Mutex
	procs []*stubProcess
	specs []supervisor.Spec
}

func (s *stubSpawner) Spawn(_ context.Context, spec supervisor.Spec) (supervisor.Process, error) {
	p := &stubProcess{}
	p.outR, p.outW = io.Pipe()
	_, p.inW = io.Pipe()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.procs = append(s.procs, p)
	s.specs = append(s.specs, spec)
	return p, nil
}

func (s *stubSpawner) last(t *testing.T) (*stubProcess, supervisor.Spec) {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.NotEmpty(t, s.procs)
	return s.procs[len(s.procs)-1], s.specs[len(s.specs)-1]
}

type fixture struct {
	svc     *Service
	cfg     *config.Config
	fetcher *memFetcher
	spawner *stubSpawner
	clock   *supervisor.TestClock
	lockDir string
}

func newFixture(t *testing.T, tweak func(*config.Config)) *fixture {
	t.Helper()
	testutil.SetupTestEnv(t)

	cfg := config.Default()
	cfg.Download.Host = testHost
	if tweak != nil {
		tweak(cfg)
	}
	require.NoError(t, cfg.Validate())

	f := &fixture{
		cfg:     cfg,
		fetcher: newMemFetcher(t),
		spawner: &stubSpawner{},
		clock:   supervisor.NewTestClock(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)),
		lockDir: t.TempDir(),
	}
	svc, err := New(Options{
		Config:   cfg,
		Platform: &platform.Info{OS: "linux", Arch: "amd64", ABI: testABI},
		Fetcher:  f.fetcher,
		Spawner:  f.spawner,
		Clock:    f.clock,
		LockDir:  f.lockDir,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)
	f.svc = svc
	return f
}

// installResults returns the result messages published while fn runs.
func installResults(t *testing.T, st *state.ServiceState, fn func()) []string {
	t.Helper()
	sub := st.SubscribeInstall()
	defer sub.Close()

	fn()

	var results []string
	for {
		select {
		case ev := <-sub.C:
			if ev.Type == state.EventResult {
				results = append(results, ev.Message)
			}
		case <-time.After(100 * time.Millisecond):
			return results
		}
	}
}

func waitInstallState(t *testing.T, svc *Service, want state.InstallState) {
	t.Helper()
	require.Eventually(t, func() bool {
		return svc.InstallState() == want
	}, 5*time.Second, 5*time.Millisecond, "install state never became %s (is %s)", want, svc.InstallState())
}
