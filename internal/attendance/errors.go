package attendance

import "errors"

var (
	// ErrInvalidInput marks request data rejected by the configured input policy.
	ErrInvalidInput = errors.New("invalid input")
	// ErrUnknownStudent is returned when the referential check is on and no student matches.
	ErrUnknownStudent = errors.New("unknown student")
)
