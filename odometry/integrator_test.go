package odometry

import (
	"math"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"go.viam.com/test"
)

var epoch = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func at(seconds float64) time.Time {
	return epoch.Add(time.Duration(seconds * float64(time.Second)))
}

func newTestIntegrator(t *testing.T, wheelbase float64, opts ...Option) *Integrator {
	t.Helper()
	integ, err := NewIntegrator(VehicleParameters{Wheelbase: wheelbase}, opts...)
	test.That(t, err, test.ShouldBeNil)
	return integ
}

func TestNewIntegratorInvalid(t *testing.T) {
	for _, wheelbase := range []float64{0, -0.3, math.NaN(), math.Inf(1)} {
		_, err := NewIntegrator(VehicleParameters{Wheelbase: wheelbase})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrInvalidConfiguration), test.ShouldBeTrue)
		test.That(t, IsWarning(err), test.ShouldBeFalse)
	}

	_, err := NewIntegrator(VehicleParameters{Wheelbase: 1}, WithInitialPose(math.NaN(), 0, 0))
	test.That(t, errors.Is(err, ErrInvalidConfiguration), test.ShouldBeTrue)
}

func TestFirstSampleInitializes(t *testing.T) {
	integ := newTestIntegrator(t, 0.2, WithInitialPose(1, 2, 3*math.Pi))
	test.That(t, integ.State().Initialized, test.ShouldBeFalse)
	test.That(t, integ.State().Heading, test.ShouldAlmostEqual, math.Pi, 1e-12)

	s, err := integ.Update(Sample{Speed: 5, SteeringAngle: 0.2, Time: at(10)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Initialized, test.ShouldBeTrue)
	test.That(t, s.X, test.ShouldEqual, 1.0)
	test.That(t, s.Y, test.ShouldEqual, 2.0)
	test.That(t, s.Time, test.ShouldEqual, at(10))
	test.That(t, s.VX, test.ShouldEqual, 0.0)
	test.That(t, s.VY, test.ShouldEqual, 0.0)
	test.That(t, s.LinearX, test.ShouldEqual, 0.0)
	test.That(t, s.AngularVelocity, test.ShouldEqual, 0.0)
}

func TestZeroDtHoldsPose(t *testing.T) {
	integ := newTestIntegrator(t, 0.5)
	_, err := integ.Update(Sample{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	before, err := integ.Update(Sample{Speed: 1, SteeringAngle: 0.1, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)

	after, err := integ.Update(Sample{Speed: 3, SteeringAngle: -0.4, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, after.X, test.ShouldEqual, before.X)
	test.That(t, after.Y, test.ShouldEqual, before.Y)
	test.That(t, after.Heading, test.ShouldEqual, before.Heading)
	test.That(t, after.LinearX, test.ShouldEqual, 3.0)
	test.That(t, after.AngularVelocity, test.ShouldAlmostEqual, 3*math.Tan(-0.4)/0.5, 1e-12)
	test.That(t, after.VX, test.ShouldAlmostEqual, 3*math.Cos(before.Heading), 1e-12)
	test.That(t, after.VY, test.ShouldAlmostEqual, 3*math.Sin(before.Heading), 1e-12)
}

func TestStraightDriving(t *testing.T) {
	for _, speed := range []float64{-2.5, 0, 0.3, 7} {
		integ := newTestIntegrator(t, 1.1, WithInitialPose(0, 0, 0.75))
		var s State
		for i := 0; i < 100; i++ {
			var err error
			s, err = integ.Update(Sample{Speed: speed, Time: at(float64(i) * 0.05)})
			test.That(t, err, test.ShouldBeNil)
			test.That(t, s.AngularVelocity, test.ShouldEqual, 0.0)
			test.That(t, s.Heading, test.ShouldEqual, 0.75)
		}
		dist := speed * 99 * 0.05
		test.That(t, s.X, test.ShouldAlmostEqual, dist*math.Cos(0.75), 1e-6)
		test.That(t, s.Y, test.ShouldAlmostEqual, dist*math.Sin(0.75), 1e-6)
	}
}

func TestCircleConvergence(t *testing.T) {
	params := VehicleParameters{Wheelbase: 0.2}
	steering := 0.3
	radius := params.TurningRadius(steering)
	integ := newTestIntegrator(t, params.Wheelbase)

	// Starting at the origin facing +X and turning left, the rear axle circles (0, radius).
	for i := 0; i <= 2000; i++ {
		s, err := integ.Update(Sample{Speed: 1, SteeringAngle: steering, Time: at(float64(i) * 0.01)})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, math.Hypot(s.X, s.Y-radius), test.ShouldAlmostEqual, radius, 1e-4)
	}

	// Reversing traces the same circle.
	integ = newTestIntegrator(t, params.Wheelbase)
	for i := 0; i <= 500; i++ {
		s, err := integ.Update(Sample{Speed: -1, SteeringAngle: steering, Time: at(float64(i) * 0.01)})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, math.Hypot(s.X, s.Y-radius), test.ShouldAlmostEqual, radius, 1e-4)
	}
}

func TestHeadingAlwaysWrapped(t *testing.T) {
	integ := newTestIntegrator(t, 0.1)
	for i := 0; i < 300; i++ {
		steering := 1.5
		if i%7 == 0 {
			steering = -1.5
		}
		// Large dt makes a single step turn through several revolutions.
		s, err := integ.Update(Sample{Speed: 4, SteeringAngle: steering, Time: at(float64(i) * 2.3)})
		test.That(t, err, test.ShouldBeNil)
		test.That(t, s.Heading, test.ShouldBeGreaterThan, -math.Pi)
		test.That(t, s.Heading, test.ShouldBeLessThanOrEqualTo, math.Pi)
	}
}

func TestDeterminism(t *testing.T) {
	samples := make([]Sample, 0, 500)
	for i := 0; i < 500; i++ {
		samples = append(samples, Sample{
			Speed:         math.Sin(float64(i)*0.1) * 3,
			SteeringAngle: math.Cos(float64(i)*0.07) * 0.6,
			Time:          at(float64(i) * 0.013),
		})
	}
	run := func() []State {
		integ := newTestIntegrator(t, 0.33, WithInitialPose(0.5, -0.5, 1))
		states := make([]State, 0, len(samples))
		for _, sample := range samples {
			s, err := integ.Update(sample)
			test.That(t, err, test.ShouldBeNil)
			states = append(states, s)
		}
		return states
	}
	first, second := run(), run()
	test.That(t, len(first), test.ShouldEqual, len(second))
	for i := range first {
		test.That(t, math.Float64bits(first[i].X), test.ShouldEqual, math.Float64bits(second[i].X))
		test.That(t, math.Float64bits(first[i].Y), test.ShouldEqual, math.Float64bits(second[i].Y))
		test.That(t, math.Float64bits(first[i].Heading), test.ShouldEqual, math.Float64bits(second[i].Heading))
		test.That(t, first[i], test.ShouldResemble, second[i])
	}
}

func TestSingularityGuard(t *testing.T) {
	integ := newTestIntegrator(t, 0.2)
	_, err := integ.Update(Sample{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	before, err := integ.Update(Sample{Speed: 1, SteeringAngle: 0.2, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)

	for _, steering := range []float64{1.6, -1.6, math.Pi / 2, math.NaN()} {
		after, err := integ.Update(Sample{Speed: 1, SteeringAngle: steering, Time: before.Time.Add(time.Second)})
		test.That(t, err, test.ShouldNotBeNil)
		test.That(t, errors.Is(err, ErrOutOfRangeInput), test.ShouldBeTrue)
		test.That(t, IsWarning(err), test.ShouldBeTrue)
		test.That(t, after.X, test.ShouldEqual, before.X)
		test.That(t, after.Y, test.ShouldEqual, before.Y)
		test.That(t, after.Heading, test.ShouldEqual, before.Heading)
		test.That(t, after.AngularVelocity, test.ShouldEqual, 0.0)
		test.That(t, after.LinearX, test.ShouldEqual, 1.0)
		before = after
	}

	after, err := integ.Update(Sample{Speed: math.Inf(1), Time: before.Time.Add(time.Second)})
	test.That(t, errors.Is(err, ErrOutOfRangeInput), test.ShouldBeTrue)
	test.That(t, after.X, test.ShouldEqual, before.X)
	test.That(t, after.LinearX, test.ShouldEqual, 0.0)
}

func TestOverflowingStepHoldsPose(t *testing.T) {
	integ := newTestIntegrator(t, 0.2)
	_, err := integ.Update(Sample{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	before, err := integ.Update(Sample{Speed: 1, SteeringAngle: 0.2, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)

	after, err := integ.Update(Sample{Speed: 1e308, SteeringAngle: 1.5, Time: at(2)})
	test.That(t, errors.Is(err, ErrOutOfRangeInput), test.ShouldBeTrue)
	test.That(t, IsWarning(err), test.ShouldBeTrue)
	test.That(t, after.X, test.ShouldEqual, before.X)
	test.That(t, after.Y, test.ShouldEqual, before.Y)
	test.That(t, after.Heading, test.ShouldEqual, before.Heading)
	test.That(t, after.AngularVelocity, test.ShouldEqual, 0.0)
	test.That(t, after.Time, test.ShouldEqual, at(2))

	// The state stays usable afterwards.
	next, err := integ.Update(Sample{Speed: 1, Time: at(3)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsNaN(next.X) || math.IsInf(next.X, 0), test.ShouldBeFalse)
	test.That(t, next.Heading, test.ShouldBeGreaterThan, -math.Pi)
	test.That(t, next.Heading, test.ShouldBeLessThanOrEqualTo, math.Pi)

	tiny := newTestIntegrator(t, 5e-324)
	_, err = tiny.Update(Sample{Speed: 1, SteeringAngle: 0.3, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	s, err := tiny.Update(Sample{Speed: 1, SteeringAngle: 0.3, Time: at(1)})
	test.That(t, errors.Is(err, ErrOutOfRangeInput), test.ShouldBeTrue)
	test.That(t, s.X, test.ShouldEqual, 0.0)
	test.That(t, s.Heading, test.ShouldEqual, 0.0)
}

func TestNonMonotonicTimestamp(t *testing.T) {
	integ := newTestIntegrator(t, 0.2)
	_, err := integ.Update(Sample{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	before, err := integ.Update(Sample{Speed: 1, Time: at(2)})
	test.That(t, err, test.ShouldBeNil)

	after, err := integ.Update(Sample{Speed: 2, SteeringAngle: 0.1, Time: at(1)})
	test.That(t, errors.Is(err, ErrNonMonotonicTimestamp), test.ShouldBeTrue)
	test.That(t, IsWarning(err), test.ShouldBeTrue)
	test.That(t, after.X, test.ShouldEqual, before.X)
	test.That(t, after.Heading, test.ShouldEqual, before.Heading)
	test.That(t, after.Time, test.ShouldEqual, at(2))
	test.That(t, after.LinearX, test.ShouldEqual, 2.0)

	// Both warnings at once.
	_, err = integ.Update(Sample{Speed: 2, SteeringAngle: 2, Time: at(1)})
	test.That(t, errors.Is(err, ErrOutOfRangeInput), test.ShouldBeTrue)
	test.That(t, errors.Is(err, ErrNonMonotonicTimestamp), test.ShouldBeTrue)
	test.That(t, IsWarning(err), test.ShouldBeTrue)

	// Integration picks up from the kept time.
	s, err := integ.Update(Sample{Speed: 1, Time: at(3)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.X, test.ShouldAlmostEqual, before.X+1, 1e-12)
}

func TestConcreteScenario(t *testing.T) {
	integ := newTestIntegrator(t, 0.2)

	s, err := integ.Update(Sample{Speed: 1, SteeringAngle: 0, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.X, test.ShouldEqual, 0.0)
	test.That(t, s.Y, test.ShouldEqual, 0.0)
	test.That(t, s.Heading, test.ShouldEqual, 0.0)

	s, err = integ.Update(Sample{Speed: 1, SteeringAngle: 0, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.X, test.ShouldAlmostEqual, 1.0, 1e-12)
	test.That(t, s.Y, test.ShouldAlmostEqual, 0.0, 1e-12)
	test.That(t, s.Heading, test.ShouldEqual, 0.0)

	s, err = integ.Update(Sample{Speed: 1, SteeringAngle: 0.3927, Time: at(2)})
	test.That(t, err, test.ShouldBeNil)
	yawRate := math.Tan(0.3927) / 0.2
	test.That(t, s.AngularVelocity, test.ShouldAlmostEqual, 2.0711, 1e-4)
	test.That(t, s.AngularVelocity, test.ShouldAlmostEqual, yawRate, 1e-12)
	test.That(t, s.Heading, test.ShouldAlmostEqual, yawRate, 1e-12)
	mid := yawRate / 2
	test.That(t, s.X, test.ShouldAlmostEqual, 1+math.Cos(mid), 1e-12)
	test.That(t, s.Y, test.ShouldAlmostEqual, math.Sin(mid), 1e-12)
	test.That(t, s.VX, test.ShouldAlmostEqual, math.Cos(yawRate), 1e-12)
	test.That(t, s.VY, test.ShouldAlmostEqual, math.Sin(yawRate), 1e-12)

	// A 45° steer over one more second turns through more than π and wraps.
	s, err = integ.Update(Sample{Speed: 1, SteeringAngle: math.Pi / 4, Time: at(3)})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.AngularVelocity, test.ShouldAlmostEqual, 5.0, 1e-12)
	test.That(t, s.Heading, test.ShouldAlmostEqual, yawRate+5-2*math.Pi, 1e-12)
}

func TestReset(t *testing.T) {
	integ := newTestIntegrator(t, 0.2)
	_, err := integ.Update(Sample{Speed: 1, Time: at(0)})
	test.That(t, err, test.ShouldBeNil)
	_, err = integ.Update(Sample{Speed: 1, SteeringAngle: 0.1, Time: at(1)})
	test.That(t, err, test.ShouldBeNil)

	test.That(t, integ.Reset(5, 6, -4), test.ShouldBeNil)
	s := integ.State()
	test.That(t, s.X, test.ShouldEqual, 5.0)
	test.That(t, s.Y, test.ShouldEqual, 6.0)
	test.That(t, s.Heading, test.ShouldAlmostEqual, -4+2*math.Pi, 1e-12)
	test.That(t, s.LinearX, test.ShouldEqual, 0.0)
	test.That(t, s.Time, test.ShouldEqual, at(1))
	test.That(t, s.Initialized, test.ShouldBeTrue)

	test.That(t, integ.Reset(math.NaN(), 0, 0), test.ShouldNotBeNil)
	test.That(t, integ.State().X, test.ShouldEqual, 5.0)
}

func TestConcurrentReaders(t *testing.T) {
	integ := newTestIntegrator(t, 0.2)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			integ.Update(Sample{Speed: 1, Time: at(float64(i) * 0.01)})
		}
	}()
	for i := 0; i < 1000; i++ {
		s := integ.State()
		// Straight driving along +X: every snapshot is internally consistent.
		test.That(t, s.Y, test.ShouldEqual, 0.0)
		test.That(t, s.Heading, test.ShouldEqual, 0.0)
	}
	wg.Wait()
	test.That(t, integ.State().X, test.ShouldAlmostEqual, 9.99, 1e-6)
}

func TestIsWarning(t *testing.T) {
	test.That(t, IsWarning(nil), test.ShouldBeFalse)
	test.That(t, IsWarning(errors.New("boom")), test.ShouldBeFalse)
	test.That(t, IsWarning(errors.Wrap(ErrOutOfRangeInput, "x")), test.ShouldBeTrue)
}
