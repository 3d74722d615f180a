package odometry

import (
	"github.com/pkg/errors"
	"go.uber.org/multierr"
)

var (
	// ErrOutOfRangeInput is a non-fatal warning: the sample's steering angle is at or beyond ±π/2
	// (or a value is not finite). The pose was held and the yaw rate reported as zero.
	ErrOutOfRangeInput = errors.New("sample out of range")
	// ErrNonMonotonicTimestamp is a non-fatal warning: the sample is older than the current state.
	// Only velocities were updated.
	ErrNonMonotonicTimestamp = errors.New("sample timestamp precedes state")
	// ErrInvalidConfiguration is fatal: the integrator refuses to start with a degenerate model.
	ErrInvalidConfiguration = errors.New("invalid vehicle configuration")
)

// IsWarning reports whether err only carries non-fatal sample warnings. A nil error is not a
// warning.
func IsWarning(err error) bool {
	if err == nil {
		return false
	}
	for _, e := range multierr.Errors(err) {
		if !errors.Is(e, ErrOutOfRangeInput) && !errors.Is(e, ErrNonMonotonicTimestamp) {
			return false
		}
	}
	return true
}
