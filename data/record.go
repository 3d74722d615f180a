// Package data captures odometry steps to disk and reads them back.
package data

import (
	"time"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/types/known/structpb"

	"go.viam.com/ackermann/odometry"
	"go.viam.com/ackermann/protoutils"
)

// Record is one captured integration step.
type Record struct {
	Session        string    `json:"session"`
	Seq            uint64    `json:"seq"`
	Time           time.Time `json:"time"`
	Speed          float64   `json:"speed"`
	SteeringAngle  float64   `json:"steering_angle"`
	X              float64   `json:"x"`
	Y              float64   `json:"y"`
	Heading        float64   `json:"heading"`
	VX             float64   `json:"vx"`
	VY             float64   `json:"vy"`
	LinearX        float64   `json:"linear_x"`
	AngularZ       float64   `json:"angular_z"`
	ReferenceFrame string    `json:"reference_frame"`
	BodyFrame      string    `json:"body_frame"`
	Warning        string    `json:"warning"`
	OutOfRange     bool      `json:"out_of_range"`
	NonMonotonic   bool      `json:"non_monotonic"`
}

// NewRecord flattens a step result into a Record.
func NewRecord(session string, seq uint64, r odometry.StepResult) Record {
	rec := Record{
		Session:        session,
		Seq:            seq,
		Time:           r.State.Time,
		Speed:          r.Sample.Speed,
		SteeringAngle:  r.Sample.SteeringAngle,
		X:              r.State.X,
		Y:              r.State.Y,
		Heading:        r.State.Heading,
		VX:             r.State.VX,
		VY:             r.State.VY,
		LinearX:        r.State.LinearX,
		AngularZ:       r.State.AngularVelocity,
		ReferenceFrame: r.Pose.Header.FrameID,
		BodyFrame:      r.Pose.ChildFrameID,
	}
	if r.Warning != nil {
		rec.Warning = r.Warning.Error()
		rec.OutOfRange = errors.Is(r.Warning, odometry.ErrOutOfRangeInput)
		rec.NonMonotonic = errors.Is(r.Warning, odometry.ErrNonMonotonicTimestamp)
	}
	return rec
}

// ToProto converts the record to a Struct.
func (r Record) ToProto() (*structpb.Struct, error) {
	m, err := protoutils.InterfaceToMap(r)
	if err != nil {
		return nil, err
	}
	return structpb.NewStruct(m)
}

// RecordFromProto is the inverse of Record.ToProto.
func RecordFromProto(s *structpb.Struct) (Record, error) {
	f := s.GetFields()
	num := func(key string) float64 {
		return f[key].GetNumberValue()
	}
	rec := Record{
		Session:        f["session"].GetStringValue(),
		Seq:            uint64(num("seq")),
		Speed:          num("speed"),
		SteeringAngle:  num("steering_angle"),
		X:              num("x"),
		Y:              num("y"),
		Heading:        num("heading"),
		VX:             num("vx"),
		VY:             num("vy"),
		LinearX:        num("linear_x"),
		AngularZ:       num("angular_z"),
		ReferenceFrame: f["reference_frame"].GetStringValue(),
		BodyFrame:      f["body_frame"].GetStringValue(),
		Warning:        f["warning"].GetStringValue(),
		OutOfRange:     f["out_of_range"].GetBoolValue(),
		NonMonotonic:   f["non_monotonic"].GetBoolValue(),
	}
	if stamp := f["time"].GetStringValue(); stamp != "" {
		t, err := time.Parse(time.RFC3339Nano, stamp)
		if err != nil {
			return Record{}, errors.Wrap(err, "parsing record time")
		}
		rec.Time = t
	}
	return rec, nil
}
