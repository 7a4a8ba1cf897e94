package binary

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/hashicorp/go-multierror"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/metrics"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/power"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
)

// Config holds configuration for the installer
type Config struct {
	// InstallRoot receives the server executable.
	InstallRoot string
	// ServerDir receives the server data.
	ServerDir string
	// CacheDir holds archives while they are downloaded and extracted.
	CacheDir string
	// DownloadHost is the base URL artifacts are fetched from.
	DownloadHost string
	// ABI selects the binary artifact.
	ABI string
	// Retries is the number of re-downloads after a checksum mismatch.
	// Negative values mean none.
	Retries int
	// Timeout bounds each single download; zero disables it.
	Timeout time.Duration
	// CopyBuffer is the chunk size for hashing and extraction.
	CopyBuffer int
	// KeyringPath enables detached signature checks when set.
	KeyringPath string

	Fetcher    Fetcher
	Verifier   *Verifier
	Extractor  *Extractor
	Progress   ProgressSink
	RunChecker RunChecker
	Inhibitor  power.Inhibitor
	Logger     logging.Logger
	Metrics    metrics.Recorder
}

// Installer orchestrates download, verification and extraction of the
// server executable and data.
type Installer struct {
	installRoot string
	serverDir   string
	cacheDir    string
	host        string
	abi         string
	retries     int
	timeout     time.Duration

	fetcher   Fetcher
	verifier  *Verifier
	extractor *Extractor
	progress  ProgressSink
	running   RunChecker
	logger    logging.Logger
	metrics   metrics.Recorder
}

// NewInstaller creates a new installer
func NewInstaller(cfg Config) (*Installer, error) {
	if cfg.InstallRoot == "" {
		return nil, fmt.Errorf("InstallRoot is required")
	}
	if cfg.ServerDir == "" {
		return nil, fmt.Errorf("ServerDir is required")
	}
	if cfg.CacheDir == "" {
		return nil, fmt.Errorf("CacheDir is required")
	}
	if cfg.DownloadHost == "" {
		cfg.DownloadHost = DefaultDownloadHost
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Progress == nil {
		cfg.Progress = noopSink{}
	}
	if cfg.RunChecker == nil {
		cfg.RunChecker = neverRunning{}
	}
	logger := logging.OrNoop(cfg.Logger)
	rec := metrics.OrNoop(cfg.Metrics)

	if cfg.Fetcher == nil {
		cfg.Fetcher = NewDownloader(DownloaderConfig{
			Progress:  cfg.Progress.Progress,
			Inhibitor: cfg.Inhibitor,
			Metrics:   rec,
			Logger:    logger,
		})
	}
	if cfg.Verifier == nil {
		cfg.Verifier = NewVerifier(cfg.CopyBuffer)
	}
	if cfg.Extractor == nil {
		cfg.Extractor = NewExtractor(cfg.CopyBuffer)
	}
	if cfg.KeyringPath != "" {
		keyring, err := LoadKeyring(cfg.KeyringPath)
		if err != nil {
			return nil, fmt.Errorf("load keyring: %w", err)
		}
		cfg.Verifier.SetKeyring(keyring)
	}

	return &Installer{
		installRoot: cfg.InstallRoot,
		serverDir:   cfg.ServerDir,
		cacheDir:    cfg.CacheDir,
		host:        cfg.DownloadHost,
		abi:         cfg.ABI,
		retries:     cfg.Retries,
		timeout:     cfg.Timeout,
		fetcher:     cfg.Fetcher,
		verifier:    cfg.Verifier,
		extractor:   cfg.Extractor,
		progress:    cfg.Progress,
		running:     cfg.RunChecker,
		logger:      logger,
		metrics:     rec,
	}, nil
}

// BinaryPath returns the filesystem path to the server executable
func (i *Installer) BinaryPath() string {
	return filepath.Join(i.installRoot, ExecutableName)
}

// ServerDir returns the server data directory.
func (i *Installer) ServerDir() string {
	return i.serverDir
}

// InstallRoot returns the directory holding the executable.
func (i *Installer) InstallRoot() string {
	return i.installRoot
}

// TargetDir returns the default extraction directory for kind.
func (i *Installer) TargetDir(kind Kind) string {
	if kind == KindBinary {
		return i.installRoot
	}
	return i.serverDir
}

// ComputeInstallState derives the install state from what is on disk and
// whether the server is running.
func (i *Installer) ComputeInstallState() state.InstallState {
	return state.ComputeInstallState(i.binaryExists(), i.serverExists(), i.running.Running())
}

func (i *Installer) binaryExists() bool {
	info, err := os.Stat(i.BinaryPath())
	return err == nil && info.Mode().IsRegular()
}

// serverExists reports whether the server dir holds anything besides the
// media marker.
func (i *Installer) serverExists() bool {
	entries, err := os.ReadDir(i.serverDir)
	if err != nil {
		return false
	}
	for _, e := range entries {
		if e.Name() != NoMediaFile {
			return true
		}
	}
	return false
}

// InstallBoth installs the binary into the install root and then the server
// data into the server dir, stopping at the first failure.
func (i *Installer) InstallBoth(ctx context.Context) error {
	if err := i.InstallFromDownload(ctx, KindBinary, i.installRoot); err != nil {
		return err
	}
	return i.InstallFromDownload(ctx, KindServer, i.serverDir)
}

// InstallFromDownload downloads, verifies and extracts the artifact for kind
// into targetDir. Errors are *InstallError.
func (i *Installer) InstallFromDownload(ctx context.Context, kind Kind, targetDir string) error {
	if err := i.checkLocked(kind); err != nil {
		return err
	}

	url, err := ArtifactURL(i.host, kind, i.abi)
	if err != nil {
		return &InstallError{Kind: InstallDownload, Artifact: kind, Err: err}
	}
	archive := filepath.Join(i.cacheDir, path.Base(url))

	logger := logging.With(i.logger, "artifact", path.Base(url))
	logger.Info("installing from download", "url", url, "target", targetDir)

	if err := os.MkdirAll(i.cacheDir, 0755); err != nil {
		return &InstallError{Kind: InstallDownload, Artifact: kind, Err: fmt.Errorf("create cache dir: %w", err)}
	}
	defer i.cleanup(logger, archive)

	if err := i.phase("Downloading "+kind.String(), func() error {
		return i.DownloadVerify(ctx, url, archive, i.retries)
	}); err != nil {
		var instErr *InstallError
		if errors.As(err, &instErr) {
			instErr.Artifact = kind
			return instErr
		}
		return &InstallError{Kind: InstallDownload, Artifact: kind, Err: err}
	}

	if err := i.extract(kind, archive, targetDir); err != nil {
		return err
	}

	logger.Info("installed", "target", targetDir)
	return nil
}

// InstallFromLocalArchive extracts a zip the user supplied into targetDir
// without verification.
func (i *Installer) InstallFromLocalArchive(ctx context.Context, archivePath string, kind Kind, targetDir string) error {
	if err := i.checkLocked(kind); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return &InstallError{Kind: InstallExtract, Artifact: kind, Err: err}
	}

	i.logger.Info("installing from local archive", "archive", archivePath, "kind", kind, "target", targetDir)

	if err := i.extract(kind, archivePath, targetDir); err != nil {
		return err
	}

	i.logger.Info("installed", "kind", kind, "target", targetDir)
	return nil
}

// DownloadVerify downloads url to dest and its sidecar to dest+".sha1",
// then compares digests. A mismatch triggers a full re-download up to
// retries more times. Download failures are returned at once.
func (i *Installer) DownloadVerify(ctx context.Context, url, dest string, retries int) error {
	if retries < 0 {
		retries = 0
	}
	artifact := path.Base(url)
	sidecar := dest + SidecarExt
	attempt := 0

	op := func() error {
		attempt++
		i.logger.Debug("download attempt", "artifact", artifact, "attempt", attempt)

		err := i.fetcher.Download(ctx, url, dest, i.timeout)
		i.metrics.DownloadFinished(artifact, err)
		if err != nil {
			return backoff.Permanent(&InstallError{Kind: InstallDownload, Err: err})
		}

		if err := i.fetcher.Download(ctx, url+SidecarExt, sidecar, i.timeout); err != nil {
			os.Remove(sidecar)
			return backoff.Permanent(&InstallError{Kind: InstallDownload, Err: err})
		}

		ok, err := i.verifier.Verify(dest, sidecar)
		// The sidecar has been read; it is not needed for a retry.
		if rmErr := os.Remove(sidecar); rmErr != nil && !os.IsNotExist(rmErr) {
			i.logger.Warn("remove sidecar", "path", sidecar, "error", rmErr)
		}
		if err != nil {
			return backoff.Permanent(&InstallError{Kind: InstallChecksum, Err: err})
		}
		if !ok {
			i.metrics.ChecksumMismatch(artifact)
			i.logger.Warn("checksum mismatch", "artifact", artifact, "attempt", attempt, "retries_left", retries-attempt+1)
			return &ChecksumError{Kind: ChecksumMismatch, Path: dest}
		}

		if i.verifier.HasKeyring() {
			if err := i.verifySignature(ctx, url, dest); err != nil {
				return backoff.Permanent(err)
			}
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(retries)), ctx)
	err := backoff.Retry(op, policy)
	if err == nil {
		i.logger.Debug("artifact verified", "artifact", artifact, "attempts", attempt)
		return nil
	}

	var sumErr *ChecksumError
	if errors.As(err, &sumErr) && sumErr.Kind == ChecksumMismatch {
		if actual, digestErr := i.verifier.Digest(dest); digestErr == nil {
			sumErr.Actual = actual
		}
		return &InstallError{Kind: InstallChecksum, Err: sumErr}
	}
	return err
}

func (i *Installer) verifySignature(ctx context.Context, url, dest string) error {
	sig := dest + SignatureExt
	defer os.Remove(sig)

	if err := i.fetcher.Download(ctx, url+SignatureExt, sig, i.timeout); err != nil {
		return &InstallError{Kind: InstallDownload, Err: err}
	}
	if err := i.verifier.VerifySignature(dest, sig); err != nil {
		return &InstallError{Kind: InstallChecksum, Err: err}
	}
	return nil
}

func (i *Installer) extract(kind Kind, archive, targetDir string) error {
	err := i.phase("Installing "+kind.String(), func() error {
		return i.extractor.Unzip(archive, targetDir, i.progress.Progress)
	})
	if err != nil {
		return &InstallError{Kind: InstallExtract, Artifact: kind, Err: err}
	}

	if kind == KindBinary && targetDir == i.installRoot {
		if err := SetExecutable(i.BinaryPath()); err != nil {
			return &InstallError{Kind: InstallExtract, Artifact: kind, Err: err}
		}
	}
	return nil
}

// phase brackets fn with PhaseStart and PhaseEnd.
func (i *Installer) phase(title string, fn func() error) error {
	i.progress.PhaseStart(title)
	defer i.progress.PhaseEnd()
	return fn()
}

func (i *Installer) checkLocked(kind Kind) error {
	if kind == KindBinary && i.running.Running() {
		return &InstallError{Kind: InstallLocked, Artifact: kind, Err: ErrBinaryLockedWhileRunning}
	}
	return nil
}

// cleanup removes the downloaded archive and any leftover sidecar files.
func (i *Installer) cleanup(logger logging.Logger, archive string) {
	var result *multierror.Error
	for _, p := range []string{archive, archive + SidecarExt, archive + SignatureExt} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			result = multierror.Append(result, err)
		}
	}
	if err := result.ErrorOrNil(); err != nil {
		logger.Warn("cleanup of downloaded files failed", "error", err)
	}
}
