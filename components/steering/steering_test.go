package steering

import (
	"context"
	"math"
	"testing"

	"github.com/pkg/errors"
	"go.viam.com/test"

	"go.viam.com/ackermann/components/servo/fake"
	"go.viam.com/ackermann/testutils/inject"
)

func TestServoSteering(t *testing.T) {
	s := fake.NewServo(90)
	ss, err := NewServoSteering(s, 90, false, 0)
	test.That(t, err, test.ShouldBeNil)

	angle, err := ss.SteeringAngle(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldEqual, 0.0)

	s.Move(120)
	angle, err = ss.SteeringAngle(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldAlmostEqual, math.Pi/6)

	inverted, err := NewServoSteering(s, 95, true, 20)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, inverted.Convert(85), test.ShouldAlmostEqual, 10*math.Pi/180)
	test.That(t, inverted.Convert(180), test.ShouldAlmostEqual, -20*math.Pi/180)
	test.That(t, inverted.Convert(0), test.ShouldAlmostEqual, 20*math.Pi/180)
}

func TestServoSteeringErrors(t *testing.T) {
	_, err := NewServoSteering(nil, 90, false, 0)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewServoSteering(fake.NewServo(90), 90, false, 90)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = NewServoSteering(fake.NewServo(90), math.NaN(), false, 0)
	test.That(t, err, test.ShouldNotBeNil)

	broken := &inject.Servo{}
	errDisconnected := errors.New("disconnected")
	broken.PositionFunc = func(ctx context.Context, extra map[string]interface{}) (uint32, error) {
		return 0, errDisconnected
	}
	ss, err := NewServoSteering(broken, 90, false, 0)
	test.That(t, err, test.ShouldBeNil)
	_, err = ss.SteeringAngle(context.Background())
	test.That(t, err, test.ShouldBeError, errDisconnected)
}

func TestFixedAndCached(t *testing.T) {
	f := NewFixed(0.1)
	angle, err := f.SteeringAngle(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldEqual, 0.1)
	f.Set(-0.2)
	angle, _ = f.SteeringAngle(context.Background())
	test.That(t, angle, test.ShouldEqual, -0.2)

	var c Cached
	_, err = c.SteeringAngle(context.Background())
	test.That(t, err, test.ShouldBeError, ErrNoSteeringAngle)
	c.Update(0.3)
	angle, err = c.SteeringAngle(context.Background())
	test.That(t, err, test.ShouldBeNil)
	test.That(t, angle, test.ShouldEqual, 0.3)
}
