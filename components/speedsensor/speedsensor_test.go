package speedsensor

import (
	"context"
	"testing"
	"time"

	"go.viam.com/test"
)

func TestBroadcaster(t *testing.T) {
	b := NewBroadcaster()
	_, err := b.Latest()
	test.That(t, err, test.ShouldBeError, ErrNoReading)

	ctx, cancel := context.WithCancel(context.Background())
	first := b.Subscribe(ctx)
	second := b.Subscribe(context.Background())

	r := Reading{Speed: 1.5, Time: time.Unix(10, 0)}
	test.That(t, b.Publish(r), test.ShouldEqual, 0)
	test.That(t, <-first, test.ShouldResemble, r)
	test.That(t, <-second, test.ShouldResemble, r)

	latest, err := b.Latest()
	test.That(t, err, test.ShouldBeNil)
	test.That(t, latest, test.ShouldResemble, r)

	cancel()
	_, ok := <-first
	test.That(t, ok, test.ShouldBeFalse)

	// second is never drained, so it eventually drops readings.
	dropped := 0
	for i := 0; i < StreamBufferSize+3; i++ {
		dropped += b.Publish(Reading{Speed: float64(i)})
	}
	test.That(t, dropped, test.ShouldEqual, 3)
	test.That(t, b.Dropped(), test.ShouldEqual, 3)

	b.Close()
	b.Close()
	count := 0
	for range second {
		count++
	}
	test.That(t, count, test.ShouldEqual, StreamBufferSize)

	test.That(t, b.Publish(r), test.ShouldEqual, 0)
	_, ok = <-b.Subscribe(context.Background())
	test.That(t, ok, test.ShouldBeFalse)
}
