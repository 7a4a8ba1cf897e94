package service

import (
	"context"
	"fmt"
	"os"

	"github.com/fsnotify/fsnotify"
	"github.com/hashicorp/go-multierror"
)

// Watch republishes the install state whenever the install root or the
// server directory changes on disk. It blocks until ctx is done.
func (s *Service) Watch(ctx context.Context) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer w.Close()

	var errs *multierror.Error
	for _, dir := range []string{s.cfg.InstallRoot, s.cfg.ServerDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("create %s: %w", dir, err))
			continue
		}
		if err := w.Add(dir); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("watch %s: %w", dir, err))
		}
	}
	if err := errs.ErrorOrNil(); err != nil {
		return err
	}
	s.RefreshInstallState()

	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			s.logger.Debug("install tree changed", "path", ev.Name, "op", ev.Op.String())
			s.RefreshInstallState()
		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("watch install tree", "error", err)
		}
	}
}
