package inject

import (
	"context"

	"go.viam.com/ackermann/components/speedsensor"
)

// SpeedSensor is an injected speed sensor.
type SpeedSensor struct {
	speedsensor.SpeedSensor
	LinearSpeedFunc func(ctx context.Context, extra map[string]interface{}) (speedsensor.Reading, error)
	StreamFunc      func(ctx context.Context) <-chan speedsensor.Reading
	CloseFunc       func(ctx context.Context) error
}

// LinearSpeed calls the injected LinearSpeed or the real version.
func (s *SpeedSensor) LinearSpeed(ctx context.Context, extra map[string]interface{}) (speedsensor.Reading, error) {
	if s.LinearSpeedFunc == nil {
		return s.SpeedSensor.LinearSpeed(ctx, extra)
	}
	return s.LinearSpeedFunc(ctx, extra)
}

// Stream calls the injected Stream or the real version.
func (s *SpeedSensor) Stream(ctx context.Context) <-chan speedsensor.Reading {
	if s.StreamFunc == nil {
		return s.SpeedSensor.Stream(ctx)
	}
	return s.StreamFunc(ctx)
}

// Close calls the injected Close or the real version.
func (s *SpeedSensor) Close(ctx context.Context) error {
	if s.CloseFunc == nil {
		if s.SpeedSensor == nil {
			return nil
		}
		return s.SpeedSensor.Close(ctx)
	}
	return s.CloseFunc(ctx)
}
