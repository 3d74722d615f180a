// Package ackermann implements a movement sensor that dead-reckons an Ackermann steered vehicle
// from its forward speed and steering angle.
package ackermann

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"golang.org/x/time/rate"

	"go.viam.com/ackermann/components/movementsensor"
	"go.viam.com/ackermann/components/speedsensor"
	"go.viam.com/ackermann/components/steering"
	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/odometry"
	"go.viam.com/ackermann/spatialmath"
	"go.viam.com/ackermann/utils"
)

// Config configures a Sensor.
type Config struct {
	Parameters     odometry.VehicleParameters
	InitialPose    spatialmath.Pose
	ReferenceFrame string
	BodyFrame      string
	// GeoOrigin is the latitude and longitude of the reference frame origin. The reference frame
	// is taken to be east-north-up. Nil disables Position.
	GeoOrigin *geo.Point
}

// Counters summarize what the sensor has consumed so far.
type Counters struct {
	Samples        uint64 `json:"samples"`
	OutOfRange     uint64 `json:"warnings_out_of_range"`
	NonMonotonic   uint64 `json:"warnings_non_monotonic"`
	SteeringErrors uint64 `json:"steering_errors"`
	PublishErrors  uint64 `json:"publish_errors"`
}

// Sensor owns the odometry integrator. Every speed reading becomes one sample, paired with the
// steering angle read at that moment, and every step is handed to the publishers.
type Sensor struct {
	cfg        Config
	integrator *odometry.Integrator
	emitter    *odometry.Emitter
	speed      speedsensor.SpeedSensor
	steering   steering.Sensor
	publishers []odometry.Publisher
	logger     logging.Logger

	// processMu is held across the steering read and the integration step of each reading.
	processMu      sync.Mutex
	lastAngle      float64
	steeringErrors *movementsensor.LastError
	// warnLimit throttles per-sample warning logs. Counters are always updated.
	warnLimit      *rate.Limiter

	samples      atomic.Uint64
	outOfRange   atomic.Uint64
	nonMonotonic atomic.Uint64
	steeringErrs atomic.Uint64
	publishErrs  atomic.Uint64

	workers *utils.Workers
}

// NewSensor builds a Sensor. When speed is non-nil a background worker consumes its stream until
// Close; otherwise samples are fed with Process.
func NewSensor(
	cfg Config,
	speed speedsensor.SpeedSensor,
	steer steering.Sensor,
	logger logging.Logger,
	publishers ...odometry.Publisher,
) (*Sensor, error) {
	if steer == nil {
		return nil, errors.New("a steering sensor is required")
	}
	var opts []odometry.Option
	if cfg.InitialPose != nil {
		x, y, theta := spatialmath.PlanarComponents(cfg.InitialPose)
		opts = append(opts, odometry.WithInitialPose(x, y, theta))
	}
	integrator, err := odometry.NewIntegrator(cfg.Parameters, opts...)
	if err != nil {
		return nil, err
	}

	s := &Sensor{
		cfg:            cfg,
		integrator:     integrator,
		emitter:        odometry.NewEmitter(cfg.ReferenceFrame, cfg.BodyFrame),
		speed:          speed,
		steering:       steer,
		publishers:     publishers,
		logger:         logger,
		steeringErrors: movementsensor.NewLastError(10, 10),
		warnLimit:      rate.NewLimiter(rate.Every(time.Second), 5),
	}
	state := integrator.State()
	logger.Infow("odometry initialized",
		"wheelbase_m", cfg.Parameters.Wheelbase,
		"reference_frame", s.emitter.ReferenceFrame,
		"body_frame", s.emitter.BodyFrame,
		"x", state.X, "y", state.Y, "heading", state.Heading)

	if speed != nil {
		s.workers = utils.NewWorkers(context.Background(), s.consumeSpeed)
	}
	return s, nil
}

func (s *Sensor) consumeSpeed(ctx context.Context) {
	for reading := range s.speed.Stream(ctx) {
		s.logger.Debugw("heard speed", "speed", reading.Speed, "time", reading.Time)
		if _, err := s.ProcessReading(ctx, reading); err != nil && !odometry.IsWarning(err) {
			s.logger.Warnw("failed to process speed reading", "error", err)
		}
	}
}

// ProcessReading pairs a speed reading with the current steering angle and integrates it. When
// the steering sensor fails, the last good angle is used and the failure counted.
func (s *Sensor) ProcessReading(ctx context.Context, reading speedsensor.Reading) (odometry.StepResult, error) {
	s.processMu.Lock()
	defer s.processMu.Unlock()
	angle, err := s.steering.SteeringAngle(ctx)
	s.steeringErrors.Set(err)
	if err != nil {
		s.steeringErrs.Add(1)
		if s.warnLimit.Allow() {
			s.logger.Warnw("steering angle unavailable, using last value", "error", err, "angle", s.lastAngle)
		}
		angle = s.lastAngle
	} else {
		s.lastAngle = angle
	}
	return s.process(ctx, odometry.Sample{Speed: reading.Speed, SteeringAngle: angle, Time: reading.Time})
}

// Process integrates one sample and publishes the result. The returned error is the integration
// warning, if any, combined with publisher failures.
func (s *Sensor) Process(ctx context.Context, sample odometry.Sample) (odometry.StepResult, error) {
	s.processMu.Lock()
	defer s.processMu.Unlock()
	return s.process(ctx, sample)
}

// process is Process with processMu held.
func (s *Sensor) process(ctx context.Context, sample odometry.Sample) (odometry.StepResult, error) {
	state, warning := s.integrator.Update(sample)
	s.samples.Add(1)
	if warning != nil {
		if errors.Is(warning, odometry.ErrOutOfRangeInput) {
			s.outOfRange.Add(1)
		}
		if errors.Is(warning, odometry.ErrNonMonotonicTimestamp) {
			s.nonMonotonic.Add(1)
		}
		if s.warnLimit.Allow() {
			s.logger.Warnw("odometry sample warning", "error", warning)
		}
	}

	pose, tf := s.emitter.Emit(state)
	result := odometry.StepResult{Sample: sample, State: state, Pose: pose, Transform: tf, Warning: warning}

	var publishErrs error
	for _, p := range s.publishers {
		if err := p.Publish(ctx, result); err != nil {
			s.publishErrs.Add(1)
			publishErrs = multierr.Append(publishErrs, err)
		}
	}
	if publishErrs != nil {
		s.logger.Warnw("failed to publish odometry", "error", publishErrs)
	}
	return result, multierr.Combine(warning, publishErrs)
}

// State returns the latest odometry state.
func (s *Sensor) State() odometry.State {
	return s.integrator.State()
}

// Emitter returns the emitter used to build outputs.
func (s *Sensor) Emitter() *odometry.Emitter {
	return s.emitter
}

// Counters returns the sample and warning counts so far.
func (s *Sensor) Counters() Counters {
	return Counters{
		Samples:        s.samples.Load(),
		OutOfRange:     s.outOfRange.Load(),
		NonMonotonic:   s.nonMonotonic.Load(),
		SteeringErrors: s.steeringErrs.Load(),
		PublishErrors:  s.publishErrs.Load(),
	}
}

// Reset moves the vehicle back to its initial pose.
func (s *Sensor) Reset() error {
	var x, y, theta float64
	if s.cfg.InitialPose != nil {
		x, y, theta = spatialmath.PlanarComponents(s.cfg.InitialPose)
	}
	return s.SetPose(x, y, theta)
}

// SetPose moves the vehicle to the given pose. Velocities are zeroed.
func (s *Sensor) SetPose(x, y, theta float64) error {
	s.processMu.Lock()
	defer s.processMu.Unlock()
	if err := s.integrator.Reset(x, y, theta); err != nil {
		return err
	}
	s.logger.Infow("odometry pose set", "x", x, "y", y, "heading", theta)
	return nil
}

// Position returns the geographic position of the vehicle when a geo origin is configured.
func (s *Sensor) Position(ctx context.Context, extra map[string]interface{}) (*geo.Point, float64, error) {
	if s.cfg.GeoOrigin == nil {
		return nil, 0, movementsensor.ErrMethodUnimplementedPosition
	}
	if err := s.steeringErrors.Get(); err != nil {
		return nil, 0, err
	}
	state := s.integrator.State()
	return LocalToGeo(s.cfg.GeoOrigin, state.X, state.Y), 0, nil
}

// LocalToGeo converts an east-north offset in meters from origin to a geographic point.
func LocalToGeo(origin *geo.Point, east, north float64) *geo.Point {
	dist := math.Hypot(east, north)
	if dist == 0 {
		return geo.NewPoint(origin.Lat(), origin.Lng())
	}
	bearing := utils.RadToDeg(math.Atan2(east, north))
	return origin.PointAtDistanceAndBearing(dist/1000, bearing)
}

// LinearVelocity returns the body frame velocity in m/s. X is forward.
func (s *Sensor) LinearVelocity(ctx context.Context, extra map[string]interface{}) (r3.Vector, error) {
	if err := s.steeringErrors.Get(); err != nil {
		return r3.Vector{}, err
	}
	state := s.integrator.State()
	return r3.Vector{X: state.LinearX, Y: state.LinearY}, nil
}

// AngularVelocity returns the yaw rate in degrees per second about +Z.
func (s *Sensor) AngularVelocity(ctx context.Context, extra map[string]interface{}) (spatialmath.AngularVelocity, error) {
	return spatialmath.YawRateToAngVel(s.integrator.State().AngularVelocity), nil
}

// CompassHeading returns the heading in degrees clockwise from the reference frame +Y axis.
func (s *Sensor) CompassHeading(ctx context.Context, extra map[string]interface{}) (float64, error) {
	return spatialmath.HeadingToCompass(s.integrator.State().Heading), nil
}

// Orientation returns the yaw-only orientation of the vehicle.
func (s *Sensor) Orientation(ctx context.Context, extra map[string]interface{}) (spatialmath.Orientation, error) {
	return spatialmath.NewYawOrientation(s.integrator.State().Heading), nil
}

// Properties reports which methods return data.
func (s *Sensor) Properties(ctx context.Context, extra map[string]interface{}) (*movementsensor.Properties, error) {
	return &movementsensor.Properties{
		PositionSupported:        s.cfg.GeoOrigin != nil,
		LinearVelocitySupported:  true,
		AngularVelocitySupported: true,
		OrientationSupported:     true,
		CompassHeadingSupported:  true,
	}, nil
}

// Readings returns the movement sensor readings plus the planar pose and counters.
func (s *Sensor) Readings(ctx context.Context, extra map[string]interface{}) (map[string]interface{}, error) {
	readings, err := movementsensor.Readings(ctx, s, extra)
	if err != nil {
		return nil, err
	}
	state := s.integrator.State()
	readings["x"] = state.X
	readings["y"] = state.Y
	readings["heading"] = state.Heading
	readings["time"] = state.Time
	c := s.Counters()
	readings["samples"] = c.Samples
	readings["warnings_out_of_range"] = c.OutOfRange
	readings["warnings_non_monotonic"] = c.NonMonotonic
	readings["steering_errors"] = c.SteeringErrors
	return readings, nil
}

// DoCommand supports {"reset": true} and {"set_pose": {"x": .., "y": .., "theta": ..}}. Both
// return the resulting pose.
func (s *Sensor) DoCommand(ctx context.Context, cmd map[string]interface{}) (map[string]interface{}, error) {
	switch {
	case cmd["reset"] != nil:
		reset, err := utils.AssertType[bool](cmd["reset"])
		if err != nil {
			return nil, errors.Wrap(err, "reset")
		}
		if reset {
			if err := s.Reset(); err != nil {
				return nil, err
			}
		}
	case cmd["set_pose"] != nil:
		var pose struct {
			X     float64 `json:"x"`
			Y     float64 `json:"y"`
			Theta float64 `json:"theta"`
		}
		decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{TagName: "json", Result: &pose})
		if err != nil {
			return nil, err
		}
		if err := decoder.Decode(cmd["set_pose"]); err != nil {
			return nil, errors.Wrap(err, "set_pose")
		}
		if err := s.SetPose(pose.X, pose.Y, pose.Theta); err != nil {
			return nil, err
		}
	case cmd["get_state"] != nil:
	default:
		return nil, errors.Errorf("unknown command %v", cmd)
	}
	state := s.integrator.State()
	return map[string]interface{}{"x": state.X, "y": state.Y, "theta": state.Heading}, nil
}

// Close stops consuming speed readings. The speed and steering sources are owned by the caller.
func (s *Sensor) Close(ctx context.Context) error {
	if s.workers != nil {
		s.workers.Stop()
	}
	return nil
}
