package utils

import (
	"context"
	"math"
	"sync/atomic"
	"testing"

	"go.viam.com/test"
)

func TestAngles(t *testing.T) {
	test.That(t, DegToRad(180), test.ShouldAlmostEqual, math.Pi)
	test.That(t, RadToDeg(math.Pi/2), test.ShouldAlmostEqual, 90)
	test.That(t, ModAngDeg(-90), test.ShouldAlmostEqual, 270)
	test.That(t, ModAngDeg(720), test.ShouldAlmostEqual, 0)
	test.That(t, ModAngDeg(-1e-20), test.ShouldBeLessThan, 360)
}

func TestClampAndFinite(t *testing.T) {
	test.That(t, Clamp(5, -1, 1), test.ShouldEqual, 1.0)
	test.That(t, Clamp(-5, -1, 1), test.ShouldEqual, -1.0)
	test.That(t, Clamp(0.5, -1, 1), test.ShouldEqual, 0.5)
	test.That(t, IsFinite(1, 2, 3), test.ShouldBeTrue)
	test.That(t, IsFinite(1, math.NaN()), test.ShouldBeFalse)
	test.That(t, IsFinite(math.Inf(-1)), test.ShouldBeFalse)
}

func TestAssertType(t *testing.T) {
	_, err := AssertType[string](1)
	test.That(t, err, test.ShouldBeError, NewUnexpectedTypeError[string](1))

	m, err := AssertType[map[string]interface{}](map[string]interface{}{"x": 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m["x"], test.ShouldEqual, 1)
}

func TestValidateBaudRate(t *testing.T) {
	test.That(t, ValidateBaudRate([]uint{9600, 57600}, 57600), test.ShouldBeTrue)
	test.That(t, ValidateBaudRate([]uint{9600, 57600}, 1), test.ShouldBeFalse)
}

func TestWorkers(t *testing.T) {
	var count atomic.Int32
	worker := func(ctx context.Context) {
		count.Add(1)
		<-ctx.Done()
	}
	w := NewWorkers(context.Background(), worker, worker)
	test.That(t, w.Go(worker), test.ShouldBeTrue)
	w.Stop()
	test.That(t, count.Load(), test.ShouldEqual, int32(3))

	test.That(t, w.Go(worker), test.ShouldBeFalse)
	w.Stop()
	test.That(t, count.Load(), test.ShouldEqual, int32(3))

	ctx, cancel := context.WithCancel(context.Background())
	w = NewWorkers(ctx, worker)
	cancel()
	<-w.Done()
	w.Stop()
	test.That(t, count.Load(), test.ShouldEqual, int32(4))

	w = NewWorkers(context.Background(), func(context.Context) { panic("boom") })
	w.Stop()
}
