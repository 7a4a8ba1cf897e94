package binary

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Extractor unzips archives into target directories.
type Extractor struct {
	bufferSize int
}

// NewExtractor creates an extractor copying in chunks of bufferSize bytes.
// A non-positive size selects DefaultCopyBuffer.
func NewExtractor(bufferSize int) *Extractor {
	if bufferSize <= 0 {
		bufferSize = DefaultCopyBuffer
	}
	return &Extractor{bufferSize: bufferSize}
}

// Unzip extracts every entry of source into targetDir, creating it if
// needed and writing a NoMediaFile marker first. progress, if non-nil,
// receives (entriesDone, entriesTotal) after each entry.
//
// The first failure aborts extraction with an *ExtractError; entries already
// written stay on disk. Entries escaping targetDir are rejected.
func (e *Extractor) Unzip(source, targetDir string, progress ProgressFunc) error {
	r, err := zip.OpenReader(source)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		return &ExtractError{Archive: source, Err: fmt.Errorf("open archive: %w", err)}
	}
	// Insecure names are still readable; they are checked per entry below.
	defer r.Close()

	if err := os.MkdirAll(targetDir, 0755); err != nil {
		return &ExtractError{Archive: source, Err: fmt.Errorf("create dest dir: %w", err)}
	}

	marker, err := os.Create(filepath.Join(targetDir, NoMediaFile))
	if err != nil {
		return &ExtractError{Archive: source, Err: fmt.Errorf("write %s: %w", NoMediaFile, err)}
	}
	marker.Close()

	root := filepath.Clean(targetDir) + string(os.PathSeparator)
	buf := make([]byte, e.bufferSize)
	total := int64(len(r.File))

	for i, f := range r.File {
		target := filepath.Join(targetDir, f.Name)

		// Security check: prevent path traversal
		if !strings.HasPrefix(target+string(os.PathSeparator), root) {
			return &ExtractError{Archive: source, Entry: f.Name, Err: fmt.Errorf("illegal file path")}
		}

		if err := e.extractEntry(f, target, buf); err != nil {
			return &ExtractError{Archive: source, Entry: f.Name, Err: err}
		}

		if progress != nil {
			progress(int64(i+1), total)
		}
	}

	return nil
}

func (e *Extractor) extractEntry(f *zip.File, target string, buf []byte) error {
	mode := f.Mode()

	switch {
	case mode.IsDir():
		if err := os.MkdirAll(target, 0755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
		return nil

	case mode&os.ModeSymlink != 0:
		// Skip symlinks; published archives contain none and following
		// one could write outside the target.
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("create parent dir: %w", err)
	}

	perm := mode.Perm()
	if perm == 0 {
		perm = 0644
	}

	in, err := f.Open()
	if err != nil {
		return fmt.Errorf("open entry: %w", err)
	}
	defer in.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, perm)
	if err != nil {
		return fmt.Errorf("create file: %w", err)
	}

	if _, err := io.CopyBuffer(out, in, buf); err != nil {
		out.Close()
		return fmt.Errorf("write file: %w", err)
	}

	if err := out.Close(); err != nil {
		return fmt.Errorf("close file: %w", err)
	}

	// OpenFile applies the umask; restore the archived bits.
	if err := os.Chmod(target, perm); err != nil {
		return fmt.Errorf("set mode: %w", err)
	}

	return nil
}

// SetExecutable sets executable permissions on a file
func SetExecutable(path string) error {
	if err := os.Chmod(path, 0755); err != nil {
		return fmt.Errorf("set executable: %w", err)
	}
	return nil
}
