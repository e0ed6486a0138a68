package tts

import "errors"

// Common errors for the narration pipeline.
var (
	// Synthesis errors
	ErrNoAudio = errors.New("synthesis response carried no audio")

	// Decoder errors
	ErrInvalidAudioFormat = errors.New("invalid audio format")
	ErrInvalidSampleRate  = errors.New("invalid sample rate")
	ErrInvalidChannels    = errors.New("invalid number of channels")

	// Output context errors
	ErrContextClosed    = errors.New("audio context is closed")
	ErrAudioUnavailable = errors.New("audio not available in nocgo build")

	// Session errors
	ErrSessionClosed = errors.New("narration session is closed")

	// Configuration errors
	ErrInvalidConfig = errors.New("invalid configuration")
)

// IsSegmentError reports whether err only spoils the segment it came from.
// Such errors skip the segment; anything else aborts the whole request.
func IsSegmentError(err error) bool {
	return errors.Is(err, ErrNoAudio) || errors.Is(err, ErrInvalidAudioFormat)
}
