// Package platform detects the host OS, architecture and the Cuberite
// binary ABI matching it, and exposes them to Lua configurations as a
// read-only table.
//
// Linux distribution details come from gopsutil; detection of those is
// best-effort and never fails the overall detection.
package platform

import "context"

// Linux distribution family constants.
const (
	FamilyDebian  = "debian"  // Debian, Ubuntu, Raspberry Pi OS
	FamilyRHEL    = "rhel"    // RHEL, CentOS, Rocky Linux
	FamilyFedora  = "fedora"  // Fedora
	FamilySUSE    = "suse"    // openSUSE, SLES
	FamilyArch    = "arch"    // Arch Linux, Manjaro
	FamilyAlpine  = "alpine"  // Alpine Linux
	FamilyUnknown = "unknown" // Unrecognized distributions
)

// Cuberite binary ABI identifiers. Prebuilt server binaries are published
// per ABI as "<abi>.zip".
const (
	ABIArm64 = "arm64-v8a"
	ABIArm   = "armeabi-v7a"
	ABIX8664 = "x86_64"
	ABIX86   = "x86"
)

// Info contains platform detection information.
type Info struct {
	OS       string // "linux", "darwin", "android"
	Arch     string // "amd64", "arm64", "arm", "386" (normalized)
	ArchRaw  string // original GOARCH
	ABI      string // Cuberite binary ABI, e.g. "arm64-v8a"
	Platform string // distro ID (Linux only, e.g., "ubuntu", "raspbian")
	Family   string // canonical family (e.g., "debian")
	Version  string // distro version (Linux only)
}

// Distro contains Linux distribution information.
// This is nil on non-Linux platforms.
type Distro struct {
	ID      string
	Family  string
	Version string
}

// GetDistro returns distro information if this is a Linux platform.
// Returns nil for non-Linux platforms or if distro detection failed.
func (i *Info) GetDistro() *Distro {
	if i.OS != "linux" || i.Platform == "" {
		return nil
	}
	return &Distro{
		ID:      i.Platform,
		Family:  i.Family,
		Version: i.Version,
	}
}

// IsLinux returns true if the platform is Linux (Android included).
func (i *Info) IsLinux() bool {
	return i.OS == "linux" || i.OS == "android"
}

// Is64Bit returns true for 64-bit ABIs.
func (i *Info) Is64Bit() bool {
	return i.ABI == ABIArm64 || i.ABI == ABIX8664
}

// Detector is the interface for platform detection.
type Detector interface {
	Detect(ctx context.Context) (*Info, error)
}

// Static is a Detector that always returns the same Info.
type Static struct {
	Info *Info
}

// Detect returns the configured info.
func (s Static) Detect(context.Context) (*Info, error) {
	return s.Info, nil
}
