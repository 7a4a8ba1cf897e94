package service

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/runlock"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/supervisor"
)

func TestNewRequiresConfigAndPlatform(t *testing.T) {
	_, err := New(Options{})
	require.Error(t, err)
	_, err = New(Options{Config: config.Default()})
	require.Error(t, err)
}

func TestInitialInstallState(t *testing.T) {
	f := newFixture(t, nil)
	require.Equal(t, state.NeedBoth, f.svc.InstallState())
}

func TestInstallPublishesOneResult(t *testing.T) {
	tests := []struct {
		name    string
		target  binary.Target
		missing string
		want    string
		wantErr bool
		state   state.InstallState
	}{
		{name: "both", target: binary.TargetBoth, want: "Installed binary and server", state: state.Ready},
		{name: "binary", target: binary.TargetBinary, want: "Installed binary", state: state.NeedServer},
		{name: "server", target: binary.TargetServer, want: "Installed server", state: state.NeedBinary},
		{
			name:    "binary missing on host",
			target:  binary.TargetBinary,
			missing: testABI + ".zip",
			want:    "Download of binary failed: 404 Not Found",
			wantErr: true,
			state:   state.NeedBoth,
		},
		{
			name:    "both stops at server",
			target:  binary.TargetBoth,
			missing: binary.ServerArtifact,
			want:    "Download of server failed: 404 Not Found",
			wantErr: true,
			state:   state.NeedServer,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			if tt.missing != "" {
				f.fetcher.remove(tt.missing)
			}

			var err error
			results := installResults(t, f.svc.State(), func() {
				err = f.svc.Install(context.Background(), tt.target)
			})
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			require.Equal(t, []string{tt.want}, results)
			require.Equal(t, tt.state, f.svc.InstallState())
		})
	}
}

func TestInstallUnknownTarget(t *testing.T) {
	f := newFixture(t, nil)
	results := installResults(t, f.svc.State(), func() {
		require.Error(t, f.svc.Install(context.Background(), binary.Target("world")))
	})
	require.Len(t, results, 1)
}

func TestInstallLocal(t *testing.T) {
	f := newFixture(t, nil)
	archive := filepath.Join(t.TempDir(), "server.zip")
	require.NoError(t, os.WriteFile(archive, zipOf(t, map[string]string{"settings.ini": "[Server]\n"}), 0o644))

	states := f.svc.State().SubscribeInstallState()
	defer states.Close()

	results := installResults(t, f.svc.State(), func() {
		require.NoError(t, f.svc.InstallLocal(context.Background(), archive, binary.KindServer))
	})
	require.Equal(t, []string{"Installed server"}, results)
	require.FileExists(t, filepath.Join(f.cfg.ServerDir, "settings.ini"))

	seen := collectUntil(t, states, state.NeedBinary)
	require.Contains(t, seen, state.PickedServerFile)
}

func TestInstallLocalBinaryIsExecutable(t *testing.T) {
	f := newFixture(t, nil)
	archive := filepath.Join(t.TempDir(), "x86_64.zip")
	require.NoError(t, os.WriteFile(archive, zipOf(t, map[string]string{binary.ExecutableName: "#!/bin/sh\n"}), 0o644))

	require.NoError(t, f.svc.InstallLocal(context.Background(), archive, binary.KindBinary))
	fi, err := os.Stat(f.cfg.ExecutablePath())
	require.NoError(t, err)
	require.NotZero(t, fi.Mode().Perm()&0o111)
}

func collectUntil(t *testing.T, sub *state.Subscription[state.InstallState], last state.InstallState) []state.InstallState {
	t.Helper()
	var seen []state.InstallState
	timeout := time.After(5 * time.Second)
	for {
		select {
		case v := <-sub.C:
			seen = append(seen, v)
			if v == last {
				return seen
			}
		case <-timeout:
			t.Fatalf("never saw %s, saw %v", last, seen)
		}
	}
}

func TestStartRequiresInstall(t *testing.T) {
	f := newFixture(t, nil)
	require.ErrorIs(t, f.svc.Start(context.Background()), ErrNotInstalled)
}

func TestRunLifecycle(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	require.NoError(t, f.svc.Install(ctx, binary.TargetBoth))

	require.NoError(t, f.svc.Start(ctx))
	_, spec := f.spawner.last(t)
	require.Equal(t, f.cfg.ExecutablePath(), spec.Executable)
	require.Equal(t, f.cfg.ServerDir, spec.WorkDir)
	require.Equal(t, []string{config.NoOutputBuffering}, spec.Args)
	waitInstallState(t, f.svc, state.Running)
	require.ErrorIs(t, f.svc.Start(ctx), supervisor.ErrRunInProgress)

	results := installResults(t, f.svc.State(), func() {
		require.ErrorIs(t, f.svc.Install(ctx, binary.TargetBinary), binary.ErrBinaryLockedWhileRunning)
	})
	require.Equal(t, []string{"Stop the server before installing a new binary"}, results)

	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.svc.Kill())
	res, err := f.svc.Wait(ctx)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Equal(t, supervisor.Terminated, f.svc.Phase())
	waitInstallState(t, f.svc, state.Ready)

}

func TestAutostart(t *testing.T) {
	ctx := context.Background()

	f := newFixture(t, nil)
	started, err := f.svc.Autostart(ctx)
	require.NoError(t, err)
	require.False(t, started, "autostart disabled")

	f = newFixture(t, func(c *config.Config) { c.Server.Autostart = true })
	started, err = f.svc.Autostart(ctx)
	require.NoError(t, err)
	require.False(t, started, "nothing installed")

	require.NoError(t, f.svc.Install(ctx, binary.TargetBoth))
	started, err = f.svc.Autostart(ctx)
	require.NoError(t, err)
	require.True(t, started)

	f.clock.Advance(time.Second)
	require.NoError(t, f.svc.Kill())
	_, err = f.svc.Wait(ctx)
	require.NoError(t, err)
}

func TestWebAdminURL(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()

	_, err := f.svc.WebAdminURL(ctx)
	require.ErrorIs(t, err, ErrNotInstalled)
	require.NoFileExists(t, filepath.Join(f.cfg.ServerDir, "webadmin.ini"))

	require.NoError(t, f.svc.Install(ctx, binary.TargetServer))

	url, err := f.svc.WebAdminURL(ctx)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(url, "http://"), url)
	require.True(t, strings.HasSuffix(url, ":8081"), url)

	wa, err := f.svc.WebAdmin()
	require.NoError(t, err)
	require.NoError(t, wa.SetLogin("", "admin", "secret"))
	require.NoError(t, wa.Save())
	require.FileExists(t, filepath.Join(f.cfg.ServerDir, "webadmin.ini"))
}

func writeLock(t *testing.T, dir string, host, child int) {
	t.Helper()
	content := fmt.Sprintf("host_pid=%d\nchild_pid=%d\ntimestamp=%s\n", host, child, time.Now().UTC().Format(time.RFC3339))
	require.NoError(t, os.WriteFile(filepath.Join(dir, runlock.FileName), []byte(content), 0o600))
}

func TestReconcile(t *testing.T) {
	ctx := context.Background()

	t.Run("no lock", func(t *testing.T) {
		f := newFixture(t, nil)
		orphan, err := f.svc.Reconcile(ctx, true)
		require.NoError(t, err)
		require.Nil(t, orphan)
	})

	t.Run("stale lock is removed", func(t *testing.T) {
		f := newFixture(t, nil)
		writeLock(t, f.lockDir, 1<<30, 0)

		orphan, err := f.svc.Reconcile(ctx, true)
		require.NoError(t, err)
		require.NotNil(t, orphan)
		require.False(t, orphan.Alive)
		require.False(t, orphan.Killed)

		_, err = runlock.Inspect(f.lockDir)
		require.ErrorIs(t, err, runlock.ErrNoLock)
	})

	t.Run("unrelated child pid is not an orphan", func(t *testing.T) {
		f := newFixture(t, nil)
		writeLock(t, f.lockDir, 1<<30, os.Getpid())

		orphan, err := f.svc.Reconcile(ctx, true)
		require.NoError(t, err)
		require.False(t, orphan.Alive)
		require.False(t, orphan.Killed)
	})

	t.Run("live host keeps its lock", func(t *testing.T) {
		f := newFixture(t, nil)
		writeLock(t, f.lockDir, os.Getppid(), 0)

		_, err := f.svc.Reconcile(ctx, false)
		require.ErrorIs(t, err, runlock.ErrLockExists)
		_, err = runlock.Inspect(f.lockDir)
		require.NoError(t, err)
	})
}

func TestWatch(t *testing.T) {
	f := newFixture(t, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.svc.Watch(ctx) }()

	require.Eventually(t, func() bool {
		_, err := os.Stat(f.cfg.ServerDir)
		return err == nil
	}, 5*time.Second, 5*time.Millisecond)

	// The watcher may not be registered yet; keep touching until it notices.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(f.cfg.ExecutablePath(), []byte("bin"), 0o755)
		_ = os.WriteFile(filepath.Join(f.cfg.ServerDir, "settings.ini"), []byte("[Server]\n"), 0o644)
		return f.svc.InstallState() == state.Ready
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Watch did not return after cancel")
	}
}
