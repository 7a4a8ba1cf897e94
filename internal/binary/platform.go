package binary

import (
	"fmt"
	"net/url"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/platform"
)

// ArtifactName returns the archive name published for kind on abi:
// "<abi>.zip" for the binary and "server.zip" for the server data.
func ArtifactName(kind Kind, abi string) (string, error) {
	switch kind {
	case KindBinary:
		if !platform.ValidABI(abi) {
			return "", fmt.Errorf("no prebuilt binary for ABI %q", abi)
		}
		return abi + ".zip", nil
	case KindServer:
		return ServerArtifact, nil
	default:
		return "", fmt.Errorf("unknown artifact kind: %s", kind)
	}
}

// ArtifactURL joins the download host and the artifact name for kind.
func ArtifactURL(host string, kind Kind, abi string) (string, error) {
	name, err := ArtifactName(kind, abi)
	if err != nil {
		return "", err
	}
	u, err := url.JoinPath(host, name)
	if err != nil {
		return "", fmt.Errorf("build artifact url: %w", err)
	}
	return u, nil
}
