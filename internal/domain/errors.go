package domain

import (
	"errors"
	"fmt"
)

// Kind classifies an outcome of the pricing pipeline.
type Kind int

const (
	KindOK Kind = iota
	KindConfiguration
	KindNoPathFound
	KindExternalService
	KindValidation
	KindUnknown
)

func (k Kind) String() string {
	switch k {
	case KindOK:
		return "OK"
	case KindConfiguration:
		return "CONFIGURATION_ERROR"
	case KindNoPathFound:
		return "NO_PATH_FOUND"
	case KindExternalService:
		return "EXTERNAL_SERVICE_ERROR"
	case KindValidation:
		return "VALIDATION_ERROR"
	default:
		return "UNKNOWN"
	}
}

// Error carries a Kind plus the failing operation.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	s := e.Kind.String()
	if e.Op != "" {
		s = e.Op + ": " + s
	}
	if e.Msg != "" {
		s += ": " + e.Msg
	}
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches the bare kind sentinels below.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

var (
	ErrConfiguration   = &Error{Kind: KindConfiguration}
	ErrNoPathFound     = &Error{Kind: KindNoPathFound}
	ErrExternalService = &Error{Kind: KindExternalService}
	ErrValidation      = &Error{Kind: KindValidation}
)

// KindOf maps any error to its outcome. nil is KindOK.
func KindOf(err error) Kind {
	if err == nil {
		return KindOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

func ConfigurationError(op, format string, args ...any) error {
	return &Error{Kind: KindConfiguration, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func NoPathFound(op, format string, args ...any) error {
	return &Error{Kind: KindNoPathFound, Op: op, Msg: fmt.Sprintf(format, args...)}
}

func ValidationError(op string, err error) error {
	return &Error{Kind: KindValidation, Op: op, Err: err}
}

func ExternalServiceError(op string, err error) error {
	return &Error{Kind: KindExternalService, Op: op, Err: err}
}
