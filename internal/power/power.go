// Package power keeps the machine awake while long transfers run.
package power

import "context"

// Inhibitor blocks system sleep until the returned release func is called.
// Release is always non-nil and safe to call more than once.
type Inhibitor interface {
	Acquire(ctx context.Context, why string) (release func(), err error)
}

type noopInhibitor struct{}

func (noopInhibitor) Acquire(context.Context, string) (func(), error) {
	return func() {}, nil
}

// Noop returns an inhibitor that does nothing.
func Noop() Inhibitor {
	return noopInhibitor{}
}
