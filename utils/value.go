package utils

import (
	"github.com/pkg/errors"
)

// NewUnexpectedTypeError is used when there is a type mismatch.
func NewUnexpectedTypeError[ExpectedT any](actual interface{}) error {
	return errors.Errorf("expected %T but got %T", *new(ExpectedT), actual)
}

// AssertType attempts to assert that the given interface argument is
// the given type parameter.
func AssertType[T any](from interface{}) (T, error) {
	var zero T
	asserted, ok := from.(T)
	if !ok {
		return zero, NewUnexpectedTypeError[T](from)
	}
	return asserted, nil
}

// ValidateBaudRate validates that the baudrate is in the list of valid values.
func ValidateBaudRate(validBaudRates []uint, baudRate int) bool {
	for _, val := range validBaudRates {
		if val == uint(baudRate) {
			return true
		}
	}
	return false
}
