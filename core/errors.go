package core

import (
	"strings"

	"github.com/pkg/errors"
)

// FieldError pins an error message to a named request field, such as a form
// field or an uploaded file.
type FieldError struct {
	Field string
	Error string
}

// ValidationError is a client-side error: the request was understood but its
// content was rejected. Handlers translate it to a 400 response.
type ValidationError struct {
	Err    error
	Fields []FieldError
}

func NewValidationError(err error, flds ...FieldError) error {
	return &ValidationError{Err: err, Fields: flds}
}

func (err ValidationError) Error() string {
	if err.Err != nil {
		return err.Err.Error()
	}
	msgs := make([]string, 0, len(err.Fields))
	for _, fld := range err.Fields {
		msgs = append(msgs, fld.Field+": "+fld.Error)
	}
	return strings.Join(msgs, "; ")
}

// shutdown marks errors fatal enough that the serving process should stop,
// such as losing integrity of shared state.
type shutdown struct {
	message string
}

func NewShutdownError(msg string) error {
	return &shutdown{message: msg}
}

func (s shutdown) Error() string {
	return s.message
}

// IsShutdown reports whether err (at its cause) requests a graceful shutdown.
func IsShutdown(err error) bool {
	_, ok := errors.Cause(err).(*shutdown)
	return ok
}
