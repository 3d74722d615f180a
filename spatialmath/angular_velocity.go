package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"
)

// AngularVelocity contains angular velocity in deg/s across x/y/z axes.
type AngularVelocity r3.Vector

// R3ToAngVel converts an r3.Vector of deg/s rates to an AngularVelocity.
func R3ToAngVel(vec r3.Vector) AngularVelocity {
	return AngularVelocity{X: vec.X, Y: vec.Y, Z: vec.Z}
}

// YawRateToAngVel converts a yaw rate in rad/s to an AngularVelocity in deg/s about +Z.
func YawRateToAngVel(yawRate float64) AngularVelocity {
	return AngularVelocity{Z: yawRate * 180 / math.Pi}
}

// QuatToAngVel calculates the angular velocity (deg/s) that turns through diffQ over dt seconds.
func QuatToAngVel(diffQ quat.Number, dt float64) AngularVelocity {
	if dt <= 0 {
		return AngularVelocity{}
	}
	// Take the short way around so the rate is bounded by π/dt.
	if diffQ.Real < 0 {
		diffQ = quat.Scale(-1, diffQ)
	}
	axis := r3.Vector{X: diffQ.Imag, Y: diffQ.Jmag, Z: diffQ.Kmag}
	sinHalf := axis.Norm()
	if sinHalf == 0 {
		return AngularVelocity{}
	}
	theta := 2 * math.Atan2(sinHalf, diffQ.Real)
	return R3ToAngVel(axis.Mul(theta * 180 / math.Pi / (sinHalf * dt)))
}
