package opl

import "errors"

// Sentinel errors returned by the Device control surface. Callers should
// compare with errors.Is rather than matching on message text.
var (
	// ErrNotInitialized is returned when an operation is attempted before Init.
	ErrNotInitialized = errors.New("opl: device not initialized")

	// ErrDeviceFailed is returned when the audio backend fails to open or resume.
	ErrDeviceFailed = errors.New("opl: audio device failed")

	// ErrStreamTruncated is returned by PlayIMF when the stream length is not
	// a multiple of 4, or a record runs past the end of the buffer.
	ErrStreamTruncated = errors.New("opl: imf stream truncated")

	// ErrAdlMalformed is returned when an ADL instrument blob's declared
	// length exceeds the size of the buffer it was parsed from.
	ErrAdlMalformed = errors.New("opl: adl sound malformed")
)
