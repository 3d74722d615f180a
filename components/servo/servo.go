// Package servo defines the steering servo feedback interface.
package servo

import (
	"context"
)

// A Servo reports the angular position of a steering servo. Only feedback is needed for
// odometry; commanding the servo is left to the drive controller.
type Servo interface {
	// Position returns the current set angle (degrees) of the servo.
	Position(ctx context.Context, extra map[string]interface{}) (uint32, error)
	Close(ctx context.Context) error
}
