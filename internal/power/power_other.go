//go:build !linux

package power

import "github.com/ZebulonRouseFrantzich/cubekeeper/internal/logging"

// Default returns the no-op inhibitor on platforms without logind.
func Default(logger logging.Logger) Inhibitor {
	return &fallback{primary: Noop(), logger: logging.OrNoop(logger)}
}
