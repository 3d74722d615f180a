// Package fake is a fake SpeedSensor for testing and bench runs without hardware.
package fake

import (
	"context"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"go.viam.com/ackermann/components/speedsensor"
	"go.viam.com/ackermann/logging"
	"go.viam.com/ackermann/utils"
)

// SpeedSensor reports a settable speed at a fixed rate.
type SpeedSensor struct {
	mu    sync.Mutex
	speed float64

	clock    clock.Clock
	readings *speedsensor.Broadcaster
	workers  *utils.Workers
	logger   logging.Logger
}

// NewSpeedSensor starts reporting speed m/s rateHz times per second on clk.
func NewSpeedSensor(speed, rateHz float64, clk clock.Clock, logger logging.Logger) *SpeedSensor {
	if clk == nil {
		clk = clock.New()
	}
	if rateHz <= 0 {
		rateHz = 10
	}
	s := &SpeedSensor{
		speed:    speed,
		clock:    clk,
		readings: speedsensor.NewBroadcaster(),
		logger:   logger,
	}
	period := time.Duration(float64(time.Second) / rateHz)
	// The ticker is created before the worker starts so that a mock clock advanced right after
	// construction still fires it.
	ticker := clk.Ticker(period)
	s.workers = utils.NewWorkers(context.Background(), func(ctx context.Context) {
		defer ticker.Stop()
		defer s.readings.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case now := <-ticker.C:
				s.readings.Publish(speedsensor.Reading{Speed: s.Speed(), Time: now})
			}
		}
	})
	logger.Infow("fake speed sensor started", "speed", speed, "rate_hz", rateHz)
	return s
}

// Speed returns the speed currently reported.
func (s *SpeedSensor) Speed() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.speed
}

// SetSpeed changes the reported speed.
func (s *SpeedSensor) SetSpeed(speed float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.speed = speed
}

// LinearSpeed returns the latest reading.
func (s *SpeedSensor) LinearSpeed(ctx context.Context, extra map[string]interface{}) (speedsensor.Reading, error) {
	return s.readings.Latest()
}

// Stream delivers every reading produced after the call.
func (s *SpeedSensor) Stream(ctx context.Context) <-chan speedsensor.Reading {
	return s.readings.Subscribe(ctx)
}

// Close stops producing readings.
func (s *SpeedSensor) Close(ctx context.Context) error {
	s.workers.Stop()
	return nil
}
