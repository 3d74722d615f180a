// Package inject provides test doubles whose methods can be replaced per test.
package inject

import (
	"context"

	"go.viam.com/ackermann/components/servo"
)

// Servo is an injected servo.
type Servo struct {
	servo.Servo
	PositionFunc func(ctx context.Context, extra map[string]interface{}) (uint32, error)
	CloseFunc    func(ctx context.Context) error
}

// Position calls the injected Position or the real version.
func (s *Servo) Position(ctx context.Context, extra map[string]interface{}) (uint32, error) {
	if s.PositionFunc == nil {
		return s.Servo.Position(ctx, extra)
	}
	return s.PositionFunc(ctx, extra)
}

// Close calls the injected Close or the real version.
func (s *Servo) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		if s.Servo == nil {
			return nil
		}
		return s.Servo.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
