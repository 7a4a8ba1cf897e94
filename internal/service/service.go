// Package service provides the operations an embedding layer calls to
// install, run and configure one Cuberite server.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/config"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/metrics"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/paths"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/platform"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/power"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/supervisor"
)

// ErrNotInstalled is returned by Start when the binary or server data is
// missing.
var ErrNotInstalled = errors.New("cuberite is not installed")

// Options wires a Service. Config and Platform are required; everything
// else has a production default.
type Options struct {
	Config    *config.Config
	Platform  *platform.Info
	Logger    logging.Logger
	Metrics   metrics.Recorder
	Inhibitor power.Inhibitor

	// Fetcher replaces the HTTP downloader.
	Fetcher binary.Fetcher
	Spawner supervisor.Spawner
	Clock   supervisor.Clock
	// LockDir holds the run lock. Defaults to the runtime directory.
	LockDir string
}

// Service owns the shared state, the installer and the supervisor.
type Service struct {
	cfg       *config.Config
	platform  *platform.Info
	logger    logging.Logger
	state     *state.ServiceState
	installer *binary.Installer
	sup       *supervisor.Supervisor
	lockDir   string

	// installMu serializes install operations.
	installMu sync.Mutex

	running   *state.Subscription[bool]
	closeOnce sync.Once
	done      chan struct{}
}

// New creates a Service and publishes the initial install state.
func New(opts Options) (*Service, error) {
	if opts.Config == nil {
		return nil, errors.New("service requires a config")
	}
	if opts.Platform == nil {
		return nil, errors.New("service requires platform info")
	}
	cfg := opts.Config
	logger := logging.OrNoop(opts.Logger)
	rec := metrics.OrNoop(opts.Metrics)
	inhibitor := opts.Inhibitor
	if inhibitor == nil {
		inhibitor = power.Noop()
	}
	lockDir := opts.LockDir
	if lockDir == "" {
		lockDir = paths.Runtime()
	}

	st := state.NewServiceState()

	fetcher := opts.Fetcher
	if fetcher == nil {
		fetcher = binary.NewDownloader(binary.DownloaderConfig{
			ConnectTimeout: cfg.Download.ConnectTimeout,
			ChunkSize:      cfg.Download.ChunkSize,
			Progress:       st.Progress,
			Inhibitor:      inhibitor,
			Metrics:        rec,
			Logger:         logger,
		})
	}

	installer, err := binary.NewInstaller(binary.Config{
		InstallRoot:  cfg.InstallRoot,
		ServerDir:    cfg.ServerDir,
		CacheDir:     cfg.CacheDir,
		DownloadHost: cfg.Download.Host,
		ABI:          opts.Platform.ABI,
		Retries:      cfg.Download.Retries,
		Timeout:      cfg.Download.Timeout,
		CopyBuffer:   cfg.Download.CopyBuffer,
		KeyringPath:  cfg.Keyring,
		Fetcher:      fetcher,
		Progress:     st,
		RunChecker:   st,
		Inhibitor:    inhibitor,
		Logger:       logger,
		Metrics:      rec,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create installer: %w", err)
	}

	sup, err := supervisor.New(supervisor.Options{
		State:         st,
		Spawner:       opts.Spawner,
		Clock:         opts.Clock,
		Logger:        logger,
		Metrics:       rec,
		MinStartup:    cfg.Server.MinStartup,
		ABI:           opts.Platform.ABI,
		LockDir:       lockDir,
		CommandBuffer: cfg.Server.CommandBuffer,
	})
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("create supervisor: %w", err)
	}

	s := &Service{
		cfg:       cfg,
		platform:  opts.Platform,
		logger:    logger,
		state:     st,
		installer: installer,
		sup:       sup,
		lockDir:   lockDir,
		running:   st.SubscribeRunning(),
		done:      make(chan struct{}),
	}
	s.RefreshInstallState()
	go s.followRunning()
	return s, nil
}

// followRunning recomputes the install state whenever the running flag
// changes, so Running and Ready track the supervisor.
func (s *Service) followRunning() {
	defer close(s.done)
	for range s.running.C {
		s.RefreshInstallState()
	}
}

// State returns the observable state shared by all operations.
func (s *Service) State() *state.ServiceState {
	return s.state
}

// Config returns the active configuration.
func (s *Service) Config() *config.Config {
	return s.cfg
}

// Platform returns the detected platform.
func (s *Service) Platform() *platform.Info {
	return s.platform
}

// InstallState returns the current install state.
func (s *Service) InstallState() state.InstallState {
	return s.state.InstallState()
}

// RefreshInstallState recomputes the install state from disk and the
// running flag and publishes it.
func (s *Service) RefreshInstallState() state.InstallState {
	is := s.installer.ComputeInstallState()
	if s.state.InstallState() != is {
		s.logger.Debug("install state changed", "state", is)
	}
	s.state.SetInstallState(is)
	return is
}

// Start launches the server from the install root in the server directory.
func (s *Service) Start(ctx context.Context) error {
	switch s.RefreshInstallState() {
	case state.Running:
		return supervisor.ErrRunInProgress
	case state.Ready:
	default:
		return ErrNotInstalled
	}
	return s.sup.Start(ctx, supervisor.Spec{
		Executable: s.cfg.ExecutablePath(),
		WorkDir:    s.cfg.ServerDir,
		Args:       s.cfg.Server.Args,
	})
}

// Autostart starts the server when the config asks for it and everything
// is installed. It reports whether a run was started.
func (s *Service) Autostart(ctx context.Context) (bool, error) {
	if !s.cfg.Server.Autostart {
		return false, nil
	}
	if is := s.RefreshInstallState(); is != state.Ready {
		s.logger.Info("autostart skipped", "state", is)
		return false, nil
	}
	if err := s.Start(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Stop asks the server to shut down.
func (s *Service) Stop(ctx context.Context) error {
	return s.sup.Stop(ctx)
}

// Kill terminates the server immediately.
func (s *Service) Kill() error {
	return s.sup.Kill()
}

// Send queues a console command.
func (s *Service) Send(ctx context.Context, cmd string) error {
	return s.sup.Send(ctx, cmd)
}

// Wait blocks until the current or last run has ended.
func (s *Service) Wait(ctx context.Context) (state.RunResult, error) {
	return s.sup.Wait(ctx)
}

// Phase returns the supervisor lifecycle phase.
func (s *Service) Phase() supervisor.State {
	return s.sup.Phase()
}

// Stats samples resource usage of the running server.
func (s *Service) Stats(ctx context.Context) (supervisor.Stats, error) {
	return s.sup.Stats(ctx)
}

// Close stops observing state. It does not stop a running server.
func (s *Service) Close() {
	s.closeOnce.Do(func() {
		s.running.Close()
		<-s.done
		s.state.Close()
	})
}
