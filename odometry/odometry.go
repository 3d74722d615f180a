// Package odometry implements dead-reckoning for Ackermann steered vehicles.
//
// Each Sample (forward speed plus steering angle at one instant) advances the vehicle State by one
// step of the bicycle model, referenced to the rear axle:
//
//	yaw rate  = speed * tan(steering) / wheelbase
//	heading' = wrap(heading + yaw rate * dt)
//	x'       = x + speed * cos(heading at dt/2) * dt
//	y'       = y + speed * sin(heading at dt/2) * dt
//
// The package is pure computation. Delivery of samples and publishing of the PoseOutput and
// TransformOutput produced by an Emitter are left to callers.
package odometry

import (
	"math"
	"time"

	"github.com/pkg/errors"
)

// VehicleParameters are the fixed kinematic properties of the vehicle.
type VehicleParameters struct {
	// Wheelbase is the distance between the front and rear axles, in meters.
	Wheelbase float64 `json:"wheelbase_m"`
}

// Validate returns ErrInvalidConfiguration unless the wheelbase is finite and positive.
func (p VehicleParameters) Validate() error {
	if math.IsNaN(p.Wheelbase) || math.IsInf(p.Wheelbase, 0) || p.Wheelbase <= 0 {
		return errors.Wrapf(ErrInvalidConfiguration, "wheelbase must be > 0, got %v", p.Wheelbase)
	}
	return nil
}

// TurningRadius returns the radius of the circle driven by the rear axle at the given steering
// angle. Straight driving gives +Inf.
func (p VehicleParameters) TurningRadius(steeringAngle float64) float64 {
	tan := math.Tan(steeringAngle)
	if tan == 0 {
		return math.Inf(1)
	}
	return p.Wheelbase / tan
}

// Sample is one simultaneous measurement of speed and steering.
type Sample struct {
	// Speed is the signed forward velocity in the body frame, in m/s.
	Speed float64
	// SteeringAngle is the signed front wheel angle in radians. Positive turns left.
	SteeringAngle float64
	// Time is when both values were sampled.
	Time time.Time
}

// State is an immutable snapshot of the dead-reckoned vehicle state.
type State struct {
	// X and Y are the position in the reference frame, in meters.
	X, Y float64
	// Heading is the yaw in the reference frame, in radians, always within (-π, π].
	Heading float64

	// VX and VY are the velocity in the reference frame after the step, in m/s.
	VX, VY float64

	// LinearX, LinearY and AngularVelocity are the body frame twist, in m/s and rad/s.
	LinearX, LinearY float64
	AngularVelocity  float64

	// Time is the sample time of the last update.
	Time time.Time
	// Initialized is false until the first sample has been consumed.
	Initialized bool
}

// Speed returns the magnitude of the planar velocity.
func (s State) Speed() float64 {
	return math.Hypot(s.VX, s.VY)
}
