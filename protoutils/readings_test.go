package protoutils

import (
	"testing"
	"time"

	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"go.viam.com/test"

	"go.viam.com/ackermann/spatialmath"
)

func TestReadingsRoundtrip(t *testing.T) {
	m1 := map[string]interface{}{
		"d":  5.4,
		"av": spatialmath.AngularVelocity{X: 1, Y: 2, Z: 3},
		"vv": r3.Vector{X: 1, Y: 2, Z: 3},
		"ea": &spatialmath.EulerAngles{Roll: 3, Pitch: 5, Yaw: 4},
		"q":  &spatialmath.Quaternion{Real: 1, Imag: 2, Jmag: 3, Kmag: 4},
		"gp": geo.NewPoint(12, 13),
		"s":  "odom",
	}

	p, err := ReadingGoToProto(m1)
	test.That(t, err, test.ShouldBeNil)

	m2, err := ReadingProtoToGo(p)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m2, test.ShouldResemble, m1)
}

func TestReadingsToStruct(t *testing.T) {
	stamp := time.Date(2024, 3, 1, 12, 0, 0, 500, time.UTC)
	s, err := ReadingsToStruct(map[string]interface{}{
		"samples":     uint64(7),
		"time":        stamp,
		"orientation": spatialmath.NewYawOrientation(0),
	})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, s.Fields["samples"].GetNumberValue(), test.ShouldEqual, 7.0)
	test.That(t, s.Fields["time"].GetStringValue(), test.ShouldEqual, "2024-03-01T12:00:00.0000005Z")
	ori := s.Fields["orientation"].GetStructValue().AsMap()
	test.That(t, ori["r"], test.ShouldEqual, 1.0)
	test.That(t, ori["_type"], test.ShouldEqual, typeQuat)
}

func TestInterfaceToMap(t *testing.T) {
	type counters struct {
		Samples uint64 `json:"samples"`
		Frame   string
		hidden  int
	}
	m, err := InterfaceToMap(&counters{Samples: 3, Frame: "odom", hidden: 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldResemble, map[string]interface{}{"samples": 3.0, "Frame": "odom"})

	m, err = InterfaceToMap(map[string][]int{"a": {1, 2}})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, m, test.ShouldResemble, map[string]interface{}{"a": []interface{}{1.0, 2.0}})

	_, err = InterfaceToMap(nil)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = InterfaceToMap(4)
	test.That(t, err, test.ShouldNotBeNil)
	_, err = InterfaceToMap(map[int]int{1: 1})
	test.That(t, err, test.ShouldNotBeNil)
}
