package export

import (
	"errors"
	"fmt"

	"github.com/amanvirparhar/lmpeek/pkg/schema"
	"github.com/amanvirparhar/lmpeek/pkg/trace"
)

// LengthMismatchError is returned when values, names and slots disagree.
type LengthMismatchError struct {
	Values int
	Names  int
	Slots  int
}

func (e *LengthMismatchError) Error() string {
	return fmt.Sprintf("length mismatch: values=%d names=%d slots=%d", e.Values, e.Names, e.Slots)
}

// SinkWriteError wraps a failure reported by the sink.
type SinkWriteError struct {
	Err error
}

func (e *SinkWriteError) Error() string {
	return fmt.Sprintf("writing artifact: %v", e.Err)
}

func (e *SinkWriteError) Unwrap() error {
	return e.Err
}

// KindOf names the failure kind of err, or "Error" if it is not one of ours.
func KindOf(err error) string {
	var (
		invalid  *schema.InvalidConfigurationError
		missing  *trace.MissingValueError
		mismatch *LengthMismatchError
		sink     *SinkWriteError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &invalid):
		return "InvalidConfiguration"
	case errors.As(err, &missing):
		return "MissingTraceValue"
	case errors.As(err, &mismatch):
		return "LengthMismatch"
	case errors.As(err, &sink):
		return "SinkWriteError"
	default:
		return "Error"
	}
}
