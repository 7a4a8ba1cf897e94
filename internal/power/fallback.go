package power

import (
	"context"

	"github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"
)

// fallback never fails: when the primary inhibitor errors the transfer
// proceeds without one.
type fallback struct {
	primary Inhibitor
	logger  logging.Logger
}

func (f *fallback) Acquire(ctx context.Context, why string) (func(), error) {
	release, err := f.primary.Acquire(ctx, why)
	if err != nil {
		f.logger.Debug("sleep inhibitor unavailable", "error", err)
		return func() {}, nil
	}
	return release, nil
}
