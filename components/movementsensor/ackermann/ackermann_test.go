package ackermann

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"github.com/pkg/errors"
	"go.viam.com/test"
	"go.viam.com/utils/testutils"

	"go.viam.com/ackermann/components/movementsensor"
	"go.viam.com/ackermann/components/speedsensor"
	"go.viam.com/ackermann/components/steering"
	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/odometry"
	"go.viam.com/ackermann/spatialmath"
	"go.viam.com/ackermann/testutils/inject"
)

var epoch = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func newTestSensor(t *testing.T, cfg Config, steer steering.Sensor, pubs ...odometry.Publisher) *Sensor {
	t.Helper()
	if cfg.Parameters.Wheelbase == 0 {
		cfg.Parameters.Wheelbase = 0.2
	}
	s, err := NewSensor(cfg, nil, steer, logging.NewTestLogger(t), pubs...)
	test.That(t, err, test.ShouldBeNil)
	t.Cleanup(func() { test.That(t, s.Close(context.Background()), test.ShouldBeNil) })
	return s
}

func TestNewSensor(t *testing.T) {
	logger := logging.NewTestLogger(t)
	_, err := NewSensor(Config{Parameters: odometry.VehicleParameters{Wheelbase: 0.2}}, nil, nil, logger)
	test.That(t, err, test.ShouldNotBeNil)

	_, err = NewSensor(Config{}, nil, steering.NewFixed(0), logger)
	test.That(t, err, test.ShouldBeError)
	test.That(t, errors.Is(err, odometry.ErrInvalidConfiguration), test.ShouldBeTrue)

	s := newTestSensor(t, Config{InitialPose: spatialmath.NewPlanarPose(1, 2, math.Pi/2)}, steering.NewFixed(0))
	state := s.State()
	test.That(t, state.X, test.ShouldEqual, 1.0)
	test.That(t, state.Y, test.ShouldEqual, 2.0)
	test.That(t, state.Heading, test.ShouldAlmostEqual, math.Pi/2)
	test.That(t, state.Initialized, test.ShouldBeFalse)
}

func TestProcessStraight(t *testing.T) {
	var published []odometry.StepResult
	pub := odometry.PublisherFunc(func(ctx context.Context, r odometry.StepResult) error {
		published = append(published, r)
		return nil
	})
	s := newTestSensor(t, Config{ReferenceFrame: "map"}, steering.NewFixed(0), pub)
	ctx := context.Background()

	_, err := s.ProcessReading(ctx, speedsensor.Reading{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	res, err := s.ProcessReading(ctx, speedsensor.Reading{Speed: 1, Time: at(2)})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, res.State.X, test.ShouldAlmostEqual, 2.0, 1e-6)
	test.That(t, res.Pose.Header.FrameID, test.ShouldEqual, "map")
	test.That(t, res.Pose.ChildFrameID, test.ShouldEqual, odometry.DefaultBodyFrame)
	test.That(t, res.Transform.Translation.X, test.ShouldAlmostEqual, 2.0, 1e-6)
	test.That(t, len(published), test.ShouldEqual, 2)
	test.That(t, published[1].State, test.ShouldResemble, res.State)

	vel, err := s.LinearVelocity(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, vel, test.ShouldResemble, r3.Vector{X: 1})

	angVel, err := s.AngularVelocity(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angVel.Z, test.ShouldEqual, 0.0)

	compass, err := s.CompassHeading(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, compass, test.ShouldAlmostEqual, 90.0)

	test.That(t, s.Counters(), test.ShouldResemble, Counters{Samples: 2})
}

func TestProcessWarnings(t *testing.T) {
	s := newTestSensor(t, Config{}, steering.NewFixed(0))
	ctx := context.Background()

	_, err := s.Process(ctx, odometry.Sample{Speed: 1, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)

	res, err := s.Process(ctx, odometry.Sample{Speed: 1, SteeringAngle: 1.6, Time: at(2)})
	test.That(t, errors.Is(err, odometry.ErrOutOfRangeInput), test.ShouldBeTrue)
	test.That(t, odometry.IsWarning(err), test.ShouldBeTrue)
	test.That(t, res.Warning, test.ShouldNotBeNil)
	test.That(t, res.State.X, test.ShouldEqual, 0.0)

	_, err = s.Process(ctx, odometry.Sample{Speed: 1, Time: at(0.5)})
	test.That(t, errors.Is(err, odometry.ErrNonMonotonicTimestamp), test.ShouldBeTrue)

	test.That(t, s.Counters(), test.ShouldResemble, Counters{Samples: 3, OutOfRange: 1, NonMonotonic: 1})
}

func TestPublishErrors(t *testing.T) {
	failing := odometry.PublisherFunc(func(ctx context.Context, r odometry.StepResult) error {
		return errors.New("bus down")
	})
	calls := 0
	counting := odometry.PublisherFunc(func(ctx context.Context, r odometry.StepResult) error {
		calls++
		return nil
	})
	s := newTestSensor(t, Config{}, steering.NewFixed(0), failing, counting)

	res, err := s.Process(context.Background(), odometry.Sample{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "bus down")
	test.That(t, odometry.IsWarning(err), test.ShouldBeFalse)
	test.That(t, res.State.Initialized, test.ShouldBeTrue)
	test.That(t, calls, test.ShouldEqual, 1)
	test.That(t, s.Counters().PublishErrors, test.ShouldEqual, uint64(1))
}

func TestSteeringFailureReusesLastAngle(t *testing.T) {
	var mu sync.Mutex
	var steerErr error
	angle := 0.3
	steer := &inject.SteeringSensor{SteeringAngleFunc: func(ctx context.Context) (float64, error) {
		mu.Lock()
		defer mu.Unlock()
		if steerErr != nil {
			return 0, steerErr
		}
		return angle, nil
	}}
	s := newTestSensor(t, Config{}, steer)
	ctx := context.Background()

	res, err := s.ProcessReading(ctx, speedsensor.Reading{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Sample.SteeringAngle, test.ShouldEqual, 0.3)

	mu.Lock()
	steerErr = errors.New("servo unplugged")
	mu.Unlock()
	res, err = s.ProcessReading(ctx, speedsensor.Reading{Speed: 1, Time: at(0.1)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, res.Sample.SteeringAngle, test.ShouldEqual, 0.3)
	test.That(t, res.State.AngularVelocity, test.ShouldAlmostEqual, math.Tan(0.3)/0.2)
	test.That(t, s.Counters().SteeringErrors, test.ShouldEqual, uint64(1))
}

func TestStreamConsumption(t *testing.T) {
	readings := make(chan speedsensor.Reading, 4)
	speed := &inject.SpeedSensor{StreamFunc: func(ctx context.Context) <-chan speedsensor.Reading {
		return readings
	}}
	s, err := NewSensor(
		Config{Parameters: odometry.VehicleParameters{Wheelbase: 0.2}},
		speed,
		steering.NewFixed(0),
		logging.NewTestLogger(t),
	)
	test.That(t, err, test.ShouldBeNil)

	readings <- speedsensor.Reading{Speed: 0.5, Time: at(0)}
	readings <- speedsensor.Reading{Speed: 0.5, Time: at(4)}
	close(readings)

	testutils.WaitForAssertion(t, func(tb testing.TB) {
		tb.Helper()
		test.That(tb, s.State().X, test.ShouldAlmostEqual, 2.0, 1e-6)
	})
	test.That(t, s.Close(context.Background()), test.ShouldBeNil)
	test.That(t, s.Counters().Samples, test.ShouldEqual, uint64(2))
}

func TestPosition(t *testing.T) {
	ctx := context.Background()
	s := newTestSensor(t, Config{}, steering.NewFixed(0))
	_, _, err := s.Position(ctx, nil)
	test.That(t, err, test.ShouldBeError, movementsensor.ErrMethodUnimplementedPosition)
	props, err := s.Properties(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, props.PositionSupported, test.ShouldBeFalse)
	test.That(t, props.LinearVelocitySupported, test.ShouldBeTrue)

	origin := geo.NewPoint(40.7, -74.0)
	s = newTestSensor(t, Config{GeoOrigin: origin}, steering.NewFixed(0))
	pos, alt, err := s.Position(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, alt, test.ShouldEqual, 0.0)
	test.That(t, pos.Lat(), test.ShouldAlmostEqual, 40.7)
	test.That(t, pos.Lng(), test.ShouldAlmostEqual, -74.0)

	// 1 km east then 1 km north.
	east := LocalToGeo(origin, 1000, 0)
	test.That(t, east.Lat(), test.ShouldAlmostEqual, 40.7, 1e-3)
	test.That(t, east.Lng(), test.ShouldBeGreaterThan, -74.0)
	test.That(t, origin.GreatCircleDistance(east), test.ShouldAlmostEqual, 1.0, 1e-3)

	north := LocalToGeo(origin, 0, 1000)
	test.That(t, north.Lng(), test.ShouldAlmostEqual, -74.0, 1e-6)
	test.That(t, north.Lat(), test.ShouldBeGreaterThan, 40.7)
	test.That(t, origin.GreatCircleDistance(north), test.ShouldAlmostEqual, 1.0, 1e-3)
}

func TestReadings(t *testing.T) {
	s := newTestSensor(t, Config{}, steering.NewFixed(0))
	ctx := context.Background()
	_, err := s.Process(ctx, odometry.Sample{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	_, err = s.Process(ctx, odometry.Sample{Speed: 1, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)

	readings, err := s.Readings(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, readings, test.ShouldNotContainKey, "position")
	test.That(t, readings["x"], test.ShouldAlmostEqual, 1.0, 1e-6)
	test.That(t, readings["y"], test.ShouldEqual, 0.0)
	test.That(t, readings["samples"], test.ShouldEqual, uint64(2))
	test.That(t, readings["time"], test.ShouldResemble, at(1))
	test.That(t, readings, test.ShouldContainKey, "orientation")
	test.That(t, readings, test.ShouldContainKey, "angular_velocity")
}

func TestDoCommand(t *testing.T) {
	s := newTestSensor(t, Config{InitialPose: spatialmath.NewPlanarPose(1, 0, 0)}, steering.NewFixed(0))
	ctx := context.Background()

	resp, err := s.DoCommand(ctx, map[string]interface{}{
		"set_pose": map[string]interface{}{"x": 3, "y": 4.5, "theta": math.Pi / 4},
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["x"], test.ShouldEqual, 3.0)
	test.That(t, resp["y"], test.ShouldEqual, 4.5)
	test.That(t, resp["theta"], test.ShouldAlmostEqual, math.Pi/4)

	ori, err := s.Orientation(ctx, nil)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, spatialmath.QuaternionToYaw(ori.Quaternion()), test.ShouldAlmostEqual, math.Pi/4)

	resp, err = s.DoCommand(ctx, map[string]interface{}{"reset": true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["x"], test.ShouldEqual, 1.0)
	test.That(t, resp["y"], test.ShouldEqual, 0.0)

	resp, err = s.DoCommand(ctx, map[string]interface{}{"get_state": true})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, resp["x"], test.ShouldEqual, 1.0)

	_, err = s.DoCommand(ctx, map[string]interface{}{"reset": "yes"})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = s.DoCommand(ctx, map[string]interface{}{"set_pose": map[string]interface{}{"x": "far"}})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = s.DoCommand(ctx, map[string]interface{}{"set_pose": map[string]interface{}{"x": math.Inf(1)}})
	test.That(t, err, test.ShouldNotBeNil)
	_, err = s.DoCommand(ctx, map[string]interface{}{"fly": true})
	test.That(t, err, test.ShouldNotBeNil)
}

func TestConcurrentReadingsKeepSteeringOrder(t *testing.T) {
	var reads int
	steer := &inject.SteeringSensor{SteeringAngleFunc: func(ctx context.Context) (float64, error) {
		reads++
		// Give a concurrent caller the chance to slip in between the read and the step.
		time.Sleep(time.Millisecond)
		return float64(reads) * 0.001, nil
	}}
	var angles []float64
	record := odometry.PublisherFunc(func(ctx context.Context, result odometry.StepResult) error {
		angles = append(angles, result.Sample.SteeringAngle)
		return nil
	})
	s := newTestSensor(t, Config{}, steer, record)

	const callers = 20
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.ProcessReading(context.Background(), speedsensor.Reading{Speed: 1, Time: at(0)})
			test.That(t, err, test.ShouldBeNil)
		}()
	}
	wg.Wait()

	test.That(t, angles, test.ShouldHaveLength, callers)
	for i := 1; i < len(angles); i++ {
		test.That(t, angles[i], test.ShouldBeGreaterThan, angles[i-1])
	}
}
