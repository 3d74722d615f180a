// Package protoutils converts odometry values to and from protobuf well known types and frames
// protobuf messages in length delimited streams.
package protoutils

import (
	"reflect"
	"time"

	"github.com/pkg/errors"
)

// InterfaceToMap coerces a struct or a map with string keys into a form acceptable by
// structpb.NewStruct. Struct fields are keyed by their json tag when present.
func InterfaceToMap(data interface{}) (map[string]interface{}, error) {
	if data == nil {
		return nil, errors.New("no data passed in")
	}
	t := reflect.TypeOf(data)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return structToMap(data)
	case reflect.Map:
		return marshalMap(data)
	default:
		return nil, errors.Errorf("data of type %T not a struct or a map-like object", data)
	}
}

func toInterface(data interface{}) (interface{}, error) {
	if data == nil {
		return nil, nil
	}
	switch x := data.(type) {
	case time.Time:
		return x.UTC().Format(time.RFC3339Nano), nil
	case time.Duration:
		return x.Seconds(), nil
	case error:
		return x.Error(), nil
	}
	t := reflect.TypeOf(data)
	if t.Kind() == reflect.Ptr {
		if reflect.ValueOf(data).IsNil() {
			return nil, nil
		}
		t = t.Elem()
	}
	switch t.Kind() {
	case reflect.Struct:
		return structToMap(data)
	case reflect.Map:
		return marshalMap(data)
	case reflect.Slice, reflect.Array:
		return marshalSlice(data)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(reflect.ValueOf(data).Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(reflect.ValueOf(data).Uint()), nil
	case reflect.Float32:
		return reflect.ValueOf(data).Float(), nil
	default:
		return data, nil
	}
}

func structToMap(data interface{}) (map[string]interface{}, error) {
	value := reflect.Indirect(reflect.ValueOf(data))
	t := value.Type()
	if t.Kind() != reflect.Struct {
		return nil, errors.Errorf("data of type %T is not a struct", data)
	}
	res := map[string]interface{}{}
	for i := 0; i < t.NumField(); i++ {
		sField := t.Field(i)
		if !sField.IsExported() {
			continue
		}
		key := sField.Name
		if tag := sField.Tag.Get("json"); tag != "" && tag != "-" {
			key = tag
		}
		data, err := toInterface(value.Field(i).Interface())
		if err != nil {
			return nil, err
		}
		res[key] = data
	}
	return res, nil
}

func marshalMap(data interface{}) (map[string]interface{}, error) {
	s := reflect.Indirect(reflect.ValueOf(data))
	if s.Kind() != reflect.Map {
		return nil, errors.Errorf("data of type %T is not a map", data)
	}

	iter := s.MapRange()
	result := map[string]interface{}{}
	var err error
	for iter.Next() {
		k := iter.Key()
		if k.Kind() != reflect.String {
			return nil, errors.Errorf("map keys of type %v are not strings", k.Kind())
		}
		result[k.String()], err = toInterface(iter.Value().Interface())
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func marshalSlice(data interface{}) ([]interface{}, error) {
	s := reflect.ValueOf(data)
	if s.Kind() != reflect.Slice && s.Kind() != reflect.Array {
		return nil, errors.Errorf("data of type %T is not a slice", data)
	}

	newList := make([]interface{}, 0, s.Len())
	for i := 0; i < s.Len(); i++ {
		data, err := toInterface(s.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		newList = append(newList, data)
	}
	return newList, nil
}
