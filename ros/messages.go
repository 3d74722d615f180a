package ros

import (
	"github.com/bluenviron/goroslib/v2/pkg/msgs/geometry_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/nav_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/std_msgs"
	"github.com/bluenviron/goroslib/v2/pkg/msgs/tf2_msgs"
	"github.com/golang/geo/r3"
	"gonum.org/v1/gonum/num/quat"

	"go.viam.com/ackermann/odometry"
)

func header(h odometry.Header, seq uint32) std_msgs.Header {
	return std_msgs.Header{Seq: seq, Stamp: h.Stamp, FrameId: h.FrameID}
}

func vector3(v r3.Vector) geometry_msgs.Vector3 {
	return geometry_msgs.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}

func quaternion(q quat.Number) geometry_msgs.Quaternion {
	return geometry_msgs.Quaternion{X: q.Imag, Y: q.Jmag, Z: q.Kmag, W: q.Real}
}

// OdometryMessage converts a pose output to nav_msgs/Odometry. Covariances are left zero since
// the integrator does not estimate uncertainty.
func OdometryMessage(p odometry.PoseOutput, seq uint32) *nav_msgs.Odometry {
	return &nav_msgs.Odometry{
		Header:       header(p.Header, seq),
		ChildFrameId: p.ChildFrameID,
		Pose: geometry_msgs.PoseWithCovariance{
			Pose: geometry_msgs.Pose{
				Position:    geometry_msgs.Point{X: p.Position.X, Y: p.Position.Y, Z: p.Position.Z},
				Orientation: quaternion(p.Orientation),
			},
		},
		Twist: geometry_msgs.TwistWithCovariance{
			Twist: geometry_msgs.Twist{
				Linear:  vector3(p.LinearVelocity),
				Angular: vector3(p.AngularVelocity),
			},
		},
	}
}

// TransformMessage converts a transform output to a tf2_msgs/TFMessage holding one transform.
func TransformMessage(tf odometry.TransformOutput, seq uint32) *tf2_msgs.TFMessage {
	return &tf2_msgs.TFMessage{
		Transforms: []geometry_msgs.TransformStamped{{
			Header:       header(tf.Header, seq),
			ChildFrameId: tf.ChildFrameID,
			Transform: geometry_msgs.Transform{
				Translation: vector3(tf.Translation),
				Rotation:    quaternion(tf.Rotation),
			},
		}},
	}
}
