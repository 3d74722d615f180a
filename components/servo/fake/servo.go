// Package fake implements a fake servo.
package fake

import (
	"context"
	"sync/atomic"
)

// Servo is a fake servo that reports whatever position it was last set to.
type Servo struct {
	position atomic.Uint32
}

// NewServo returns a fake servo at positionDeg.
func NewServo(positionDeg uint32) *Servo {
	s := &Servo{}
	s.position.Store(positionDeg)
	return s
}

// Move sets the reported position.
func (s *Servo) Move(positionDeg uint32) {
	s.position.Store(positionDeg)
}

// Position returns the position set last.
func (s *Servo) Position(ctx context.Context, extra map[string]interface{}) (uint32, error) {
	return s.position.Load(), nil
}

// Close does nothing.
func (s *Servo) Close(ctx context.Context) error {
	return nil
}
