package odometry

import (
	"time"

	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/ackermann/spatialmath"
)

const (
	// DefaultReferenceFrame is the fixed frame the pose is expressed in.
	DefaultReferenceFrame = "odom"
	// DefaultBodyFrame is the frame attached to the rear axle of the vehicle.
	DefaultBodyFrame = "base_link"
)

// Header stamps an output with its time and the frame it is expressed in.
type Header struct {
	Stamp   time.Time
	FrameID string
}

// PoseOutput is the full odometry message: pose in the reference frame and twist in the body
// frame.
type PoseOutput struct {
	Header
	ChildFrameID string

	Position    r3.Vector
	Orientation quat.Number

	// LinearVelocity and AngularVelocity are expressed in ChildFrameID.
	LinearVelocity  r3.Vector
	AngularVelocity r3.Vector
}

// TransformOutput is the rigid transform from Header.FrameID to ChildFrameID.
type TransformOutput struct {
	Header
	ChildFrameID string

	Translation r3.Vector
	Rotation    quat.Number
}

// Emitter converts States into outputs. It holds no state beyond frame names.
type Emitter struct {
	ReferenceFrame string
	BodyFrame      string
}

// NewEmitter returns an Emitter for the given frames. Empty names fall back to the defaults.
func NewEmitter(referenceFrame, bodyFrame string) *Emitter {
	if referenceFrame == "" {
		referenceFrame = DefaultReferenceFrame
	}
	if bodyFrame == "" {
		bodyFrame = DefaultBodyFrame
	}
	return &Emitter{ReferenceFrame: referenceFrame, BodyFrame: bodyFrame}
}

// PoseOutput builds the odometry message for s.
func (e *Emitter) PoseOutput(s State) PoseOutput {
	return PoseOutput{
		Header:          Header{Stamp: s.Time, FrameID: e.ReferenceFrame},
		ChildFrameID:    e.BodyFrame,
		Position:        r3.Vector{X: s.X, Y: s.Y},
		Orientation:     spatialmath.YawQuaternion(s.Heading),
		LinearVelocity:  r3.Vector{X: s.LinearX, Y: s.LinearY},
		AngularVelocity: r3.Vector{Z: s.AngularVelocity},
	}
}

// TransformOutput builds the reference to body transform for s.
func (e *Emitter) TransformOutput(s State) TransformOutput {
	return TransformOutput{
		Header:       Header{Stamp: s.Time, FrameID: e.ReferenceFrame},
		ChildFrameID: e.BodyFrame,
		Translation:  r3.Vector{X: s.X, Y: s.Y},
		Rotation:     spatialmath.YawQuaternion(s.Heading),
	}
}

// Emit returns both outputs for s. They share the same stamp and agree on position and
// orientation.
func (e *Emitter) Emit(s State) (PoseOutput, TransformOutput) {
	return e.PoseOutput(s), e.TransformOutput(s)
}

// Pose returns the output position and orientation as a Pose.
func (p PoseOutput) Pose() spatialmath.Pose {
	q := spatialmath.Quaternion(p.Orientation)
	return spatialmath.NewPose(p.Position, &q)
}
