package spatialmath

import (
	"github.com/golang/geo/r3"
)

// Pose represents a 6dof pose, position and orientation, with respect to the origin.
type Pose interface {
	Point() r3.Vector
	Orientation() Orientation
}

type pose struct {
	point       r3.Vector
	orientation Orientation
}

// NewPose makes a Pose from a point and an orientation. A nil orientation means no rotation.
func NewPose(point r3.Vector, orientation Orientation) Pose {
	if orientation == nil {
		orientation = NewZeroOrientation()
	}
	return &pose{point: point, orientation: orientation}
}

// NewPlanarPose makes a Pose on the z=0 plane with a heading of theta radians about +Z.
func NewPlanarPose(x, y, theta float64) Pose {
	return NewPose(r3.Vector{X: x, Y: y}, NewYawOrientation(theta))
}

// NewZeroPose returns a pose at (0,0,0) with no rotation.
func NewZeroPose() Pose {
	return NewPose(r3.Vector{}, nil)
}

func (p *pose) Point() r3.Vector {
	return p.point
}

func (p *pose) Orientation() Orientation {
	return p.orientation
}

// PoseAlmostEqual checks position within 1e-8 and orientation via OrientationAlmostEqual.
func PoseAlmostEqual(a, b Pose) bool {
	return a.Point().Sub(b.Point()).Norm() < 1e-8 && OrientationAlmostEqual(a.Orientation(), b.Orientation())
}

// PlanarComponents returns x, y and the yaw of p.
func PlanarComponents(p Pose) (x, y, theta float64) {
	pt := p.Point()
	return pt.X, pt.Y, QuaternionToYaw(p.Orientation().Quaternion())
}
