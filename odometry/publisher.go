package odometry

import (
	"context"
)

// StepResult is everything one integration step produced.
type StepResult struct {
	Sample    Sample
	State     State
	Pose      PoseOutput
	Transform TransformOutput
	// Warning is nil or a non-fatal sample warning (see IsWarning).
	Warning error
}

// A Publisher delivers step results somewhere: a message bus, a file, a log.
type Publisher interface {
	Publish(ctx context.Context, result StepResult) error
}

// PublisherFunc adapts a function to a Publisher.
type PublisherFunc func(ctx context.Context, result StepResult) error

// Publish calls f.
func (f PublisherFunc) Publish(ctx context.Context, result StepResult) error {
	return f(ctx, result)
}
