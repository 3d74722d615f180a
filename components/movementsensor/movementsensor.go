// Package movementsensor defines the MovementSensor interface the odometry sensor implements.
package movementsensor

import (
	"context"
	"errors"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"go.uber.org/multierr"

	"go.viam.com/ackermann/spatialmath"
)

// Properties tells you what a MovementSensor supports.
type Properties struct {
	PositionSupported        bool `json:"position_supported"`
	LinearVelocitySupported  bool `json:"linear_velocity_supported"`
	AngularVelocitySupported bool `json:"angular_velocity_supported"`
	OrientationSupported     bool `json:"orientation_supported"`
	CompassHeadingSupported  bool `json:"compass_heading_supported"`
}

// A MovementSensor reports information about the robot's direction, position and speed.
type MovementSensor interface {
	Position(ctx context.Context, extra map[string]interface{}) (*geo.Point, float64, error)                // (lat, long), altitude (m)
	LinearVelocity(ctx context.Context, extra map[string]interface{}) (r3.Vector, error)                    // m / sec
	AngularVelocity(ctx context.Context, extra map[string]interface{}) (spatialmath.AngularVelocity, error) // deg / sec
	CompassHeading(ctx context.Context, extra map[string]interface{}) (float64, error)                      // [0->360)
	Orientation(ctx context.Context, extra map[string]interface{}) (spatialmath.Orientation, error)
	Properties(ctx context.Context, extra map[string]interface{}) (*Properties, error)
	Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error)
	DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error)
	Close(ctx context.Context) error
}

// Readings collects every measurement g supports into one map. Methods that report their
// ErrMethodUnimplemented* error are left out. Any other error aborts.
func Readings(ctx context.Context, g MovementSensor, extra map[string]interface{}) (map[string]interface{}, error) {
	readings := map[string]interface{}{}
	collect := func(unimplemented error, read func() error) error {
		if err := read(); err != nil && !errors.Is(err, unimplemented) {
			return err
		}
		return nil
	}

	err := multierr.Combine(
		collect(ErrMethodUnimplementedPosition, func() error {
			pos, altitude, err := g.Position(ctx, extra)
			if err == nil {
				readings["position"], readings["altitude"] = pos, altitude
			}
			return err
		}),
		collect(ErrMethodUnimplementedLinearVelocity, func() error {
			vel, err := g.LinearVelocity(ctx, extra)
			if err == nil {
				readings["linear_velocity"] = vel
			}
			return err
		}),
		collect(ErrMethodUnimplementedAngularVelocity, func() error {
			angVel, err := g.AngularVelocity(ctx, extra)
			if err == nil {
				readings["angular_velocity"] = angVel
			}
			return err
		}),
		collect(ErrMethodUnimplementedCompassHeading, func() error {
			heading, err := g.CompassHeading(ctx, extra)
			if err == nil {
				readings["compass"] = heading
			}
			return err
		}),
		collect(ErrMethodUnimplementedOrientation, func() error {
			o, err := g.Orientation(ctx, extra)
			if err == nil {
				readings["orientation"] = o
			}
			return err
		}),
	)
	if err != nil {
		return nil, err
	}
	return readings, nil
}
