package binary

import (
	"bytes"
	"crypto/sha1" //nolint:gosec // SHA-1 is what the download host publishes
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ProtonMail/go-crypto/openpgp" //nolint:staticcheck // Using ProtonMail's maintained fork
)

// DefaultCopyBuffer is the chunk size used when hashing and extracting.
const DefaultCopyBuffer = 8 * 1024

// Verifier checks downloaded artifacts against their published digests and,
// when a keyring is set, their detached signatures.
type Verifier struct {
	bufferSize int
	keyring    openpgp.EntityList
}

// NewVerifier creates a verifier hashing in chunks of bufferSize bytes.
// A non-positive size selects DefaultCopyBuffer.
func NewVerifier(bufferSize int) *Verifier {
	if bufferSize <= 0 {
		bufferSize = DefaultCopyBuffer
	}
	return &Verifier{bufferSize: bufferSize}
}

// SetKeyring enables signature verification against keyring.
func (v *Verifier) SetKeyring(keyring openpgp.EntityList) {
	v.keyring = keyring
}

// HasKeyring reports whether signatures are verified.
func (v *Verifier) HasKeyring() bool {
	return len(v.keyring) > 0
}

// Digest returns the lower-case hex SHA-1 of the file at path.
// The file is streamed, never loaded whole.
func (v *Verifier) Digest(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open file: %w", err)
	}
	defer file.Close()

	hasher := sha1.New() //nolint:gosec
	buf := make([]byte, v.bufferSize)
	if _, err := io.CopyBuffer(hasher, file, buf); err != nil {
		return "", fmt.Errorf("hash file: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), nil
}

// Verify compares the digest of path with the one in sidecarPath.
//
// An unreadable or empty sidecar is a ChecksumError of kind
// ChecksumSidecarMissing. An artifact that cannot be read does not match,
// which leaves the retry decision to the caller.
func (v *Verifier) Verify(path, sidecarPath string) (bool, error) {
	expected, err := parseSidecar(sidecarPath)
	if err != nil {
		return false, &ChecksumError{Kind: ChecksumSidecarMissing, Path: path, Err: err}
	}

	actual, err := v.Digest(path)
	if err != nil {
		return false, nil
	}

	return strings.EqualFold(actual, expected), nil
}

// VerifySignature checks the detached signature at sigPath over the file at
// path. Armored and binary signatures are accepted.
func (v *Verifier) VerifySignature(path, sigPath string) error {
	if !v.HasKeyring() {
		return errors.New("no keyring configured")
	}

	sig, err := os.ReadFile(sigPath)
	if err != nil {
		return &ChecksumError{Kind: ChecksumBadSignature, Path: path, Err: fmt.Errorf("read signature: %w", err)}
	}

	file, err := os.Open(path)
	if err != nil {
		return &ChecksumError{Kind: ChecksumBadSignature, Path: path, Err: fmt.Errorf("open file: %w", err)}
	}
	defer file.Close()

	// Try armored first
	_, err = openpgp.CheckArmoredDetachedSignature(v.keyring, file, bytes.NewReader(sig), nil)
	if err != nil {
		if _, seekErr := file.Seek(0, io.SeekStart); seekErr != nil {
			return &ChecksumError{Kind: ChecksumBadSignature, Path: path, Err: seekErr}
		}
		_, err = openpgp.CheckDetachedSignature(v.keyring, file, bytes.NewReader(sig), nil)
	}
	if err != nil {
		return &ChecksumError{Kind: ChecksumBadSignature, Path: path, Err: err}
	}

	return nil
}

// parseSidecar reads "<hex> <filename>" and returns the hex token.
func parseSidecar(sidecarPath string) (string, error) {
	data, err := os.ReadFile(sidecarPath)
	if err != nil {
		return "", err
	}

	fields := strings.Fields(string(data))
	if len(fields) == 0 {
		return "", errors.New("sidecar is empty")
	}

	return strings.ToLower(fields[0]), nil
}
