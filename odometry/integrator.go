package odometry

import (
	"math"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"

	"go.viam.com/ackermann/spatialmath"
	"go.viam.com/ackermann/utils"
)

// maxSteeringAngle is the bicycle model singularity; tan() diverges at ±π/2.
const maxSteeringAngle = math.Pi / 2

// Step advances previous by one sample and returns the new state.
//
// The returned error is nil, or a combination of ErrOutOfRangeInput and ErrNonMonotonicTimestamp.
// Both are warnings: the returned state is always valid and should replace previous.
func Step(sample Sample, previous State, params VehicleParameters) (State, error) {
	var warnings error
	inRange := sampleInRange(sample)
	if !inRange {
		warnings = errors.Wrapf(ErrOutOfRangeInput,
			"speed %v m/s, steering angle %v rad (limit ±%.4f)", sample.Speed, sample.SteeringAngle, maxSteeringAngle)
	}

	if !previous.Initialized {
		// The first sample only anchors time. Nothing is integrated without a prior timestamp.
		return State{
			X:           previous.X,
			Y:           previous.Y,
			Heading:     spatialmath.WrapAngle(previous.Heading),
			Time:        sample.Time,
			Initialized: true,
		}, warnings
	}

	next := previous
	dt := sample.Time.Sub(previous.Time).Seconds()
	if dt < 0 {
		warnings = multierr.Append(warnings, errors.Wrapf(ErrNonMonotonicTimestamp,
			"sample at %s is %.6fs older than state", sample.Time, -dt))
		dt = 0
	} else {
		next.Time = sample.Time
	}

	if !inRange {
		speed := sample.Speed
		if math.IsNaN(speed) || math.IsInf(speed, 0) {
			speed = 0
		}
		next.setVelocity(speed, 0)
		return next, warnings
	}

	yawRate := sample.Speed * math.Tan(sample.SteeringAngle) / params.Wheelbase
	advanced := next
	if dt > 0 {
		midHeading := spatialmath.WrapAngle(previous.Heading + yawRate*dt/2)
		advanced.X = previous.X + sample.Speed*math.Cos(midHeading)*dt
		advanced.Y = previous.Y + sample.Speed*math.Sin(midHeading)*dt
		advanced.Heading = spatialmath.WrapAngle(previous.Heading + yawRate*dt)
	}
	// Finite inputs can still overflow, e.g. a huge speed or a tiny wheelbase.
	if !utils.IsFinite(yawRate, advanced.X, advanced.Y, advanced.Heading) {
		warnings = multierr.Append(warnings, errors.Wrapf(ErrOutOfRangeInput,
			"step overflowed: speed %v m/s, steering angle %v rad, dt %vs", sample.Speed, sample.SteeringAngle, dt))
		next.setVelocity(sample.Speed, 0)
		return next, warnings
	}
	advanced.setVelocity(sample.Speed, yawRate)
	return advanced, warnings
}

// setVelocity fills the body twist and the reference frame velocity at the current heading.
// No lateral slip is modeled.
func (s *State) setVelocity(speed, yawRate float64) {
	s.LinearX = speed
	s.LinearY = 0
	s.AngularVelocity = yawRate
	s.VX = speed * math.Cos(s.Heading)
	s.VY = speed * math.Sin(s.Heading)
}

func sampleInRange(sample Sample) bool {
	if math.IsNaN(sample.Speed) || math.IsInf(sample.Speed, 0) {
		return false
	}
	// Written so that a NaN angle fails the check.
	return math.Abs(sample.SteeringAngle) < maxSteeringAngle
}

// Integrator owns the authoritative vehicle state and advances it one sample at a time. It is
// safe for concurrent use; updates are serialized and readers always observe a whole snapshot.
type Integrator struct {
	params VehicleParameters

	mu    sync.Mutex
	state State
}

// Option configures an Integrator.
type Option func(*Integrator)

// WithInitialPose starts the vehicle at (x, y) facing heading radians instead of the origin.
func WithInitialPose(x, y, heading float64) Option {
	return func(i *Integrator) {
		i.state.X = x
		i.state.Y = y
		i.state.Heading = heading
	}
}

// NewIntegrator returns an Integrator for the given vehicle. It fails with
// ErrInvalidConfiguration if the parameters or the initial pose are degenerate.
func NewIntegrator(params VehicleParameters, opts ...Option) (*Integrator, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	i := &Integrator{params: params}
	for _, opt := range opts {
		opt(i)
	}
	for _, v := range []float64{i.state.X, i.state.Y, i.state.Heading} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, errors.Wrap(ErrInvalidConfiguration, "initial pose must be finite")
		}
	}
	i.state.Heading = spatialmath.WrapAngle(i.state.Heading)
	return i, nil
}

// Update consumes one sample. The returned state is the new snapshot; a non-nil error is a
// warning (see Step) and never means the state was left half-updated.
func (i *Integrator) Update(sample Sample) (State, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	next, err := Step(sample, i.state, i.params)
	i.state = next
	return next, err
}

// State returns the latest snapshot.
func (i *Integrator) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Params returns the vehicle parameters the integrator was built with.
func (i *Integrator) Params() VehicleParameters {
	return i.params
}

// Reset moves the vehicle to the given pose and zeroes its velocity. The state time is kept so
// later samples still integrate from it.
func (i *Integrator) Reset(x, y, heading float64) error {
	for _, v := range []float64{x, y, heading} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return errors.Errorf("cannot reset to non-finite pose (%v, %v, %v)", x, y, heading)
		}
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.state = State{
		X:           x,
		Y:           y,
		Heading:     spatialmath.WrapAngle(heading),
		Time:        i.state.Time,
		Initialized: i.state.Initialized,
	}
	return nil
}
