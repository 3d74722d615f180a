package inject

import (
	"context"
)

// SteeringSensor is an injected steering sensor. With no SteeringAngleFunc it reports straight
// ahead.
type SteeringSensor struct {
	SteeringAngleFunc func(ctx context.Context) (float64, error)
}

// SteeringAngle calls the injected SteeringAngle.
func (s *SteeringSensor) SteeringAngle(ctx context.Context) (float64, error) {
	if s.SteeringAngleFunc == nil {
		return 0, nil
	}
	return s.SteeringAngleFunc(ctx)
}
