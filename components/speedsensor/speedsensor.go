// Package speedsensor defines the interface of a forward speed source and helpers shared by its
// implementations.
package speedsensor

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	goutils "go.viam.com/utils"
)

// ErrNoReading is returned by LinearSpeed before the first value arrives.
var ErrNoReading = errors.New("no speed reading received yet")

// StreamBufferSize is the number of readings a slow subscriber may fall behind before readings
// are dropped.
const StreamBufferSize = 64

// Reading is one forward speed measurement.
type Reading struct {
	// Speed is the signed forward speed, in m/s.
	Speed float64
	Time  time.Time
}

// A SpeedSensor reports the forward speed of the vehicle.
type SpeedSensor interface {
	// LinearSpeed returns the latest reading.
	LinearSpeed(ctx context.Context, extra map[string]interface{}) (Reading, error)
	// Stream delivers every new reading until ctx is done or the sensor is closed, then closes the
	// channel.
	Stream(ctx context.Context) <-chan Reading
	Close(ctx context.Context) error
}

// Broadcaster keeps the latest reading and fans new ones out to Stream subscribers.
type Broadcaster struct {
	mu          sync.Mutex
	latest      Reading
	hasReading  bool
	subscribers map[chan Reading]struct{}
	closed      bool
	done        chan struct{}
	dropped     int
}

// NewBroadcaster returns an empty Broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subscribers: map[chan Reading]struct{}{}, done: make(chan struct{})}
}

// Publish records r as the latest reading and offers it to every subscriber. It reports how many
// subscribers were too far behind to receive it.
func (b *Broadcaster) Publish(r Reading) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return 0
	}
	b.latest = r
	b.hasReading = true
	dropped := 0
	for ch := range b.subscribers {
		select {
		case ch <- r:
		default:
			dropped++
		}
	}
	b.dropped += dropped
	return dropped
}

// Latest returns the most recent reading, or ErrNoReading.
func (b *Broadcaster) Latest() (Reading, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.hasReading {
		return Reading{}, ErrNoReading
	}
	return b.latest, nil
}

// Dropped returns the number of readings subscribers missed so far.
func (b *Broadcaster) Dropped() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.dropped
}

// Subscribe returns a channel receiving every reading published after the call. The channel is
// closed once ctx is done or the Broadcaster is closed.
func (b *Broadcaster) Subscribe(ctx context.Context) <-chan Reading {
	ch := make(chan Reading, StreamBufferSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.subscribers[ch] = struct{}{}
	goutils.PanicCapturingGo(func() {
		select {
		case <-ctx.Done():
			b.unsubscribe(ch)
		case <-b.done:
		}
	})
	return ch
}

func (b *Broadcaster) unsubscribe(ch chan Reading) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subscribers[ch]; ok {
		delete(b.subscribers, ch)
		close(ch)
	}
}

// Close closes every subscriber channel. Later Publish calls are ignored.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.done)
	for ch := range b.subscribers {
		delete(b.subscribers, ch)
		close(ch)
	}
}
