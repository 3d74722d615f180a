package protoutils

import (
	"github.com/golang/geo/r3"
	geo "github.com/kellydunn/golang-geo"
	"google.golang.org/protobuf/types/known/structpb"

	"go.viam.com/ackermann/spatialmath"
)

const (
	typeAngularVelocity = "angular_velocity"
	typeVector3         = "vector3"
	typeEuler           = "euler"
	typeQuat            = "quat"
	typeGeopoint        = "geopoint"
)

func goToProto(v interface{}) (*structpb.Value, error) {
	switch x := v.(type) {
	case spatialmath.AngularVelocity:
		v = map[string]interface{}{"x": x.X, "y": x.Y, "z": x.Z, "_type": typeAngularVelocity}
	case r3.Vector:
		v = map[string]interface{}{"x": x.X, "y": x.Y, "z": x.Z, "_type": typeVector3}
	case *spatialmath.EulerAngles:
		v = map[string]interface{}{"roll": x.Roll, "pitch": x.Pitch, "yaw": x.Yaw, "_type": typeEuler}
	case spatialmath.Orientation:
		q := x.Quaternion()
		v = map[string]interface{}{"r": q.Real, "i": q.Imag, "j": q.Jmag, "k": q.Kmag, "_type": typeQuat}
	case *geo.Point:
		v = map[string]interface{}{"lat": x.Lat(), "lng": x.Lng(), "_type": typeGeopoint}
	}

	v, err := toInterface(v)
	if err != nil {
		return nil, err
	}
	return structpb.NewValue(v)
}

// ReadingGoToProto converts movement sensor readings to protobuf values. Vectors, orientations
// and geo points are tagged with their type so ReadingProtoToGo can restore them.
func ReadingGoToProto(readings map[string]interface{}) (map[string]*structpb.Value, error) {
	m := map[string]*structpb.Value{}
	for k, v := range readings {
		vv, err := goToProto(v)
		if err != nil {
			return nil, err
		}
		m[k] = vv
	}
	return m, nil
}

// ReadingsToStruct is ReadingGoToProto wrapped in a Struct.
func ReadingsToStruct(readings map[string]interface{}) (*structpb.Struct, error) {
	fields, err := ReadingGoToProto(readings)
	if err != nil {
		return nil, err
	}
	return &structpb.Struct{Fields: fields}, nil
}

// ReadingProtoToGo converts protobuf values back to readings.
func ReadingProtoToGo(readings map[string]*structpb.Value) (map[string]interface{}, error) {
	m := map[string]interface{}{}
	for k, v := range readings {
		m[k] = cleanSensorType(v.AsInterface())
	}
	return m, nil
}

func cleanSensorType(v interface{}) interface{} {
	x, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	f := func(key string) float64 {
		n, _ := x[key].(float64)
		return n
	}
	switch x["_type"] {
	case typeAngularVelocity:
		return spatialmath.AngularVelocity{X: f("x"), Y: f("y"), Z: f("z")}
	case typeVector3:
		return r3.Vector{X: f("x"), Y: f("y"), Z: f("z")}
	case typeEuler:
		return &spatialmath.EulerAngles{Roll: f("roll"), Pitch: f("pitch"), Yaw: f("yaw")}
	case typeQuat:
		return &spatialmath.Quaternion{Real: f("r"), Imag: f("i"), Jmag: f("j"), Kmag: f("k")}
	case typeGeopoint:
		return geo.NewPoint(f("lat"), f("lng"))
	}
	return v
}
