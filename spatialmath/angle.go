// Package spatialmath defines the planar and rotational math used by odometry: angle wrapping,
// yaw quaternions, poses and angular velocities.
package spatialmath

import "math"

const twoPi = 2 * math.Pi

// WrapAngle maps any angle in radians into (-π, π]. Non-finite inputs are returned unchanged.
func WrapAngle(theta float64) float64 {
	if math.IsNaN(theta) || math.IsInf(theta, 0) {
		return theta
	}
	if theta > -math.Pi && theta <= math.Pi {
		return theta
	}
	wrapped := math.Mod(theta+math.Pi, twoPi)
	if wrapped <= 0 {
		wrapped += twoPi
	}
	wrapped -= math.Pi
	// Rounding can land exactly on the excluded endpoint.
	if wrapped <= -math.Pi {
		wrapped = math.Pi
	}
	return wrapped
}

// AngleDiff returns the signed shortest rotation from a to b, in (-π, π].
func AngleDiff(a, b float64) float64 {
	return WrapAngle(b - a)
}

// HeadingToCompass converts a counter-clockwise heading in radians, measured from +X (east), to a
// clockwise compass heading in degrees from +Y (north) in [0, 360).
func HeadingToCompass(heading float64) float64 {
	deg := 90 - heading*180/math.Pi
	deg = math.Mod(deg, 360)
	if deg < 0 {
		deg += 360
	}
	return deg
}
