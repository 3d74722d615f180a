// Package steering turns steering feedback into the front wheel angle used by odometry.
package steering

import (
	"context"
	"math"
	"sync"

	"github.com/pkg/errors"

	"go.viam.com/ackermann/components/servo"
	"go.viam.com/ackermann/utils"
)

// A Sensor reports the signed front wheel angle in radians. Positive turns left.
type Sensor interface {
	SteeringAngle(ctx context.Context) (float64, error)
}

// ServoSteering derives the steering angle from a servo position.
type ServoSteering struct {
	servo     servo.Servo
	centerDeg float64
	sign      float64
	limitRad  float64
}

// NewServoSteering maps servo degrees to a steering angle as (deg - centerDeg), negated when
// invert is set, and clamped to ±limitDeg when limitDeg is positive.
func NewServoSteering(s servo.Servo, centerDeg float64, invert bool, limitDeg float64) (*ServoSteering, error) {
	if s == nil {
		return nil, errors.New("steering servo is required")
	}
	if !utils.IsFinite(centerDeg, limitDeg) || limitDeg < 0 || limitDeg >= 90 {
		return nil, errors.Errorf("invalid steering calibration center=%v limit=%v", centerDeg, limitDeg)
	}
	sign := 1.0
	if invert {
		sign = -1
	}
	return &ServoSteering{servo: s, centerDeg: centerDeg, sign: sign, limitRad: utils.DegToRad(limitDeg)}, nil
}

// SteeringAngle reads the servo and converts its position.
func (ss *ServoSteering) SteeringAngle(ctx context.Context) (float64, error) {
	deg, err := ss.servo.Position(ctx, nil)
	if err != nil {
		return 0, err
	}
	return ss.Convert(deg), nil
}

// Convert maps a servo position in degrees to a steering angle in radians.
func (ss *ServoSteering) Convert(deg uint32) float64 {
	angle := ss.sign * utils.DegToRad(float64(deg)-ss.centerDeg)
	if ss.limitRad > 0 {
		angle = utils.Clamp(angle, -ss.limitRad, ss.limitRad)
	}
	return angle
}

// Fixed is a Sensor reporting a settable constant angle.
type Fixed struct {
	mu    sync.Mutex
	angle float64
}

// NewFixed returns a Fixed sensor at angle radians.
func NewFixed(angle float64) *Fixed {
	return &Fixed{angle: angle}
}

// Set changes the reported angle.
func (f *Fixed) Set(angle float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.angle = angle
}

// SteeringAngle returns the angle set last.
func (f *Fixed) SteeringAngle(ctx context.Context) (float64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.angle, nil
}

// Cached remembers the last angle pushed to it, for sources that deliver the angle as messages.
type Cached struct {
	mu    sync.Mutex
	angle float64
	set   bool
}

// ErrNoSteeringAngle is returned by Cached before any angle was received.
var ErrNoSteeringAngle = errors.New("no steering angle received yet")

// Update stores a new angle. Non-finite angles are stored too and surface as out of range
// samples downstream.
func (c *Cached) Update(angle float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.angle = angle
	c.set = true
}

// SteeringAngle returns the last angle received.
func (c *Cached) SteeringAngle(ctx context.Context) (float64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return math.NaN(), ErrNoSteeringAngle
	}
	return c.angle, nil
}
