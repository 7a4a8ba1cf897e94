package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/binary"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
)

// Install downloads, verifies and extracts target. Exactly one install
// result message is published, whatever the outcome.
func (s *Service) Install(ctx context.Context, target binary.Target) error {
	s.installMu.Lock()
	defer s.installMu.Unlock()

	var err error
	switch target {
	case binary.TargetBinary:
		err = s.installer.InstallFromDownload(ctx, binary.KindBinary, s.installer.InstallRoot())
	case binary.TargetServer:
		err = s.installer.InstallFromDownload(ctx, binary.KindServer, s.installer.ServerDir())
	case binary.TargetBoth:
		err = s.installer.InstallBoth(ctx)
	default:
		err = fmt.Errorf("unknown install target %q", target)
	}

	s.state.InstallResult(describeTarget(target, err))
	s.RefreshInstallState()
	return err
}

// InstallLocal extracts a user-provided archive of the given kind.
func (s *Service) InstallLocal(ctx context.Context, archivePath string, kind binary.Kind) error {
	s.installMu.Lock()
	defer s.installMu.Unlock()

	picked := state.PickedServerFile
	if kind == binary.KindBinary {
		picked = state.PickedBinaryFile
	}
	s.state.SetInstallState(picked)

	err := s.installer.InstallFromLocalArchive(ctx, archivePath, kind, s.installer.TargetDir(kind))

	s.state.InstallResult(binary.Describe(kind, err))
	s.RefreshInstallState()
	return err
}

func describeTarget(target binary.Target, err error) string {
	switch target {
	case binary.TargetBinary:
		return binary.Describe(binary.KindBinary, err)
	case binary.TargetServer:
		return binary.Describe(binary.KindServer, err)
	}
	if err == nil {
		return "Installed binary and server"
	}
	kind := binary.KindBinary
	var ierr *binary.InstallError
	if errors.As(err, &ierr) {
		kind = ierr.Artifact
	}
	return binary.Describe(kind, err)
}
