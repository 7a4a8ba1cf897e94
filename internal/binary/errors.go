package binary

import (
	"errors"
	"fmt"
)

// ErrBinaryLockedWhileRunning rejects binary installs while the server runs.
var ErrBinaryLockedWhileRunning = errors.New("cannot replace the server binary while it is running")

// DownloadErrorKind classifies a failed download.
type DownloadErrorKind int

const (
	DownloadHTTPStatus DownloadErrorKind = iota
	DownloadIO
	DownloadTimeout
)

// DownloadError is returned by Downloader.Download.
type DownloadError struct {
	Kind    DownloadErrorKind
	URL     string
	Code    int    // HTTP status, DownloadHTTPStatus only
	Message string // HTTP status text, DownloadHTTPStatus only
	Err     error
}

func (e *DownloadError) Error() string {
	switch e.Kind {
	case DownloadHTTPStatus:
		return fmt.Sprintf("download %s: http status %d %s", e.URL, e.Code, e.Message)
	case DownloadTimeout:
		return fmt.Sprintf("download %s: timed out: %v", e.URL, e.Err)
	default:
		return fmt.Sprintf("download %s: %v", e.URL, e.Err)
	}
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// ChecksumErrorKind classifies a verification failure.
type ChecksumErrorKind int

const (
	ChecksumMismatch ChecksumErrorKind = iota
	ChecksumSidecarMissing
	ChecksumBadSignature
)

// ChecksumError reports a failed artifact verification.
type ChecksumError struct {
	Kind     ChecksumErrorKind
	Path     string
	Expected string
	Actual   string
	Err      error
}

func (e *ChecksumError) Error() string {
	switch e.Kind {
	case ChecksumMismatch:
		return fmt.Sprintf("checksum mismatch for %s:\nactual:   %s\nexpected: %s", e.Path, e.Actual, e.Expected)
	case ChecksumSidecarMissing:
		return fmt.Sprintf("checksum sidecar for %s missing: %v", e.Path, e.Err)
	default:
		return fmt.Sprintf("signature verification failed for %s: %v", e.Path, e.Err)
	}
}

func (e *ChecksumError) Unwrap() error {
	return e.Err
}

// ExtractError reports an I/O failure while unzipping. Entries written
// before the failure stay on disk.
type ExtractError struct {
	Archive string
	Entry   string
	Err     error
}

func (e *ExtractError) Error() string {
	if e.Entry == "" {
		return fmt.Sprintf("extract %s: %v", e.Archive, e.Err)
	}
	return fmt.Sprintf("extract %s (entry %s): %v", e.Archive, e.Entry, e.Err)
}

func (e *ExtractError) Unwrap() error {
	return e.Err
}

// InstallErrorKind says which install step failed.
type InstallErrorKind int

const (
	InstallLocked InstallErrorKind = iota
	InstallDownload
	InstallChecksum
	InstallExtract
)

func (k InstallErrorKind) String() string {
	switch k {
	case InstallLocked:
		return "locked"
	case InstallDownload:
		return "download"
	case InstallChecksum:
		return "checksum"
	case InstallExtract:
		return "extract"
	default:
		return "unknown"
	}
}

// InstallError wraps the failure of one install operation.
type InstallError struct {
	Kind     InstallErrorKind
	Artifact Kind
	Err      error
}

func (e *InstallError) Error() string {
	return fmt.Sprintf("install %s: %s: %v", e.Artifact, e.Kind, e.Err)
}

func (e *InstallError) Unwrap() error {
	return e.Err
}

// Describe turns an install outcome into the one-line message shown to
// the user.
func Describe(kind Kind, err error) string {
	if err == nil {
		return fmt.Sprintf("Installed %s", kind)
	}

	var (
		dlErr  *DownloadError
		sumErr *ChecksumError
		exErr  *ExtractError
	)
	switch {
	case errors.Is(err, ErrBinaryLockedWhileRunning):
		return "Stop the server before installing a new binary"
	case errors.As(err, &dlErr) && dlErr.Kind == DownloadHTTPStatus:
		return fmt.Sprintf("Download of %s failed: %d %s", kind, dlErr.Code, dlErr.Message)
	case errors.As(err, &dlErr) && dlErr.Kind == DownloadTimeout:
		return fmt.Sprintf("Download of %s timed out", kind)
	case errors.As(err, &dlErr):
		return fmt.Sprintf("Download of %s failed: %v", kind, dlErr.Err)
	case errors.As(err, &sumErr) && sumErr.Kind == ChecksumMismatch:
		return fmt.Sprintf("Checksum of %s did not match after retrying", kind)
	case errors.As(err, &sumErr) && sumErr.Kind == ChecksumSidecarMissing:
		return fmt.Sprintf("Checksum file for %s is missing", kind)
	case errors.As(err, &sumErr):
		return fmt.Sprintf("Signature of %s is not valid", kind)
	case errors.As(err, &exErr):
		return fmt.Sprintf("Could not extract %s: %v", kind, exErr.Err)
	default:
		return fmt.Sprintf("Install of %s failed: %v", kind, err)
	}
}
