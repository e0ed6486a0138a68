package tts

// Audio format constants shared with the synthesis API.
// These are fixed by the API contract and are never renegotiated at runtime.
const (
	// SampleRate is the audio sample rate in Hz (24kHz for Gemini TTS)
	SampleRate = 24000
	// Channels is the number of audio channels (1 = mono)
	Channels = 1
	// BitDepth is the bit depth per sample (16-bit)
	BitDepth = 16
	// BytesPerSample is the number of bytes per sample
	BytesPerSample = BitDepth / 8
)

// NoPage marks an empty page slot in PlaybackState.
const NoPage = -1

// DefaultSegmentLimit is the soft length cap of a narration segment in characters.
const DefaultSegmentLimit = 200
