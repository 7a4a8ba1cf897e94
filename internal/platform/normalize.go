package platform

import (
	"fmt"
	"strings"
)

var familyMap = map[string]string{
	"debian":   FamilyDebian,
	"ubuntu":   FamilyDebian, // gopsutil might return ubuntu as family
	"raspbian": FamilyDebian,
	"rhel":     FamilyRHEL,
	"centos":   FamilyRHEL,
	"rocky":    FamilyRHEL,
	"fedora":   FamilyFedora,
	"suse":     FamilySUSE,
	"opensuse": FamilySUSE,
	"arch":     FamilyArch,
	"manjaro":  FamilyArch,
	"alpine":   FamilyAlpine,
}

// archABI maps normalized architectures to Cuberite binary ABIs.
var archABI = map[string]string{
	"arm64": ABIArm64,
	"arm":   ABIArm,
	"amd64": ABIX8664,
	"386":   ABIX86,
}

// normalizeArch converts GOARCH and uname-style values to normalized
// architecture names. Only architectures Cuberite publishes binaries for
// are accepted.
func normalizeArch(arch string) (string, error) {
	switch arch {
	case "amd64", "x86_64":
		return "amd64", nil
	case "arm64", "aarch64":
		return "arm64", nil
	case "arm", "armv7l", "armv7":
		return "arm", nil
	case "386", "i386", "i686":
		return "386", nil
	default:
		return "", fmt.Errorf("unsupported architecture: %s", arch)
	}
}

// ABIFor returns the Cuberite binary ABI for an architecture name.
func ABIFor(arch string) (string, error) {
	normalized, err := normalizeArch(arch)
	if err != nil {
		return "", err
	}
	return archABI[normalized], nil
}

// ValidABI reports whether abi is one Cuberite publishes binaries for.
func ValidABI(abi string) bool {
	for _, v := range archABI {
		if v == abi {
			return true
		}
	}
	return false
}

// normalizePlatform converts platform IDs to lowercase for consistency.
func normalizePlatform(platform string) string {
	return strings.ToLower(strings.TrimSpace(platform))
}

// mapFamily maps distribution family strings to canonical family names.
func mapFamily(family string) string {
	normalized := strings.ToLower(strings.TrimSpace(family))
	if canonical, ok := familyMap[normalized]; ok {
		return canonical
	}
	return FamilyUnknown
}
