package engine

import "errors"

// Errors returned by the engine. Callers match them with errors.Is.
var (
	// ErrInvalidFormat reports malformed PCM16 input: empty or odd-length
	// byte data.
	ErrInvalidFormat = errors.New("invalid PCM16 data")

	// ErrOutOfRange reports a volume outside [0.0, 1.0].
	ErrOutOfRange = errors.New("volume out of range")

	// ErrDevice reports that the output sink could not be opened.
	ErrDevice = errors.New("audio device error")
)
