package service

import (
	"context"
	"fmt"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/state"
	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/webadmin"
)

// WebAdmin opens the server's webadmin.ini, creating it when missing. The
// server data must be installed first, otherwise the new file alone would
// make the server directory look installed.
func (s *Service) WebAdmin() (*webadmin.File, error) {
	switch s.RefreshInstallState() {
	case state.NeedServer, state.NeedBoth:
		return nil, fmt.Errorf("%w: no server data in %s", ErrNotInstalled, s.cfg.ServerDir)
	}
	return webadmin.Open(s.cfg.ServerDir)
}

// WebAdminURL returns the address of the web interface on this host.
func (s *Service) WebAdminURL(ctx context.Context) (string, error) {
	f, err := s.WebAdmin()
	if err != nil {
		return "", err
	}
	port, err := f.Port()
	if err != nil {
		return "", err
	}
	ip, err := webadmin.LocalIPv4(ctx)
	if err != nil {
		s.logger.Warn("cannot determine local address", "error", err, "fallback", ip)
	}
	return webadmin.URL(ip, port), nil
}
