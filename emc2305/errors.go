package emc2305

import (
	"errors"
	"fmt"
)

var (
	// ErrDeviceNotFound reports a product or manufacturer ID mismatch
	// during detection.
	ErrDeviceNotFound = errors.New("emc2305: device not found")

	// ErrConfigurationLocked reports that the hardware software-lock
	// register is set. The lock holds until power-on reset.
	ErrConfigurationLocked = errors.New("emc2305: configuration locked until hardware reset")
)

// ValidationError reports a value outside its allowed domain. It is raised
// before any register write, so a rejected input never reaches the bus.
type ValidationError struct {
	Field   string
	Value   any
	Allowed string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("emc2305: %s = %v, must be %s", e.Field, e.Value, e.Allowed)
}

func validationErr(field string, value any, allowed string) error {
	return &ValidationError{Field: field, Value: value, Allowed: allowed}
}

// CommError wraps a transport failure. Use errors.Unwrap (or errors.Is
// against i2cbus.ErrLockTimeout) to distinguish a busy bus from a broken one.
type CommError struct {
	Op  string
	Err error
}

func (e *CommError) Error() string { return "emc2305: " + e.Op + ": " + e.Err.Error() }
func (e *CommError) Unwrap() error { return e.Err }

func commErr(op string, err error) error {
	return &CommError{Op: op, Err: err}
}
