package engine

import "fmt"

// BadRequestError covers schema downgrade attempts and schema changes
// submitted without a version increment.
type BadRequestError struct{ Msg string }

func (e *BadRequestError) Error() string { return e.Msg }

func badRequestf(format string, args ...interface{}) error {
	return &BadRequestError{Msg: fmt.Sprintf(format, args...)}
}

// NotFoundError indicates the requested table has no schema on record.
type NotFoundError struct{ Msg string }

func (e *NotFoundError) Error() string { return e.Msg }

func notFoundf(format string, args ...interface{}) error {
	return &NotFoundError{Msg: fmt.Sprintf(format, args...)}
}

// DriverError wraps a failure surfaced by the underlying wide-column store
// after its own retry policy has been exhausted.
type DriverError struct {
	Msg string
	Err error
}

func (e *DriverError) Error() string { return fmt.Sprintf("%s: %v", e.Msg, e.Err) }
func (e *DriverError) Unwrap() error { return e.Err }

func driverErrorf(err error, format string, args ...interface{}) error {
	return &DriverError{Msg: fmt.Sprintf(format, args...), Err: err}
}
