package tts

import "context"

// Synthesizer converts one narration segment to speech.
type Synthesizer interface {
	// Synthesize returns raw signed 16-bit little-endian mono PCM at
	// SampleRate for text. A response without audio returns an error
	// wrapping ErrNoAudio; any other error means the service failed.
	Synthesize(ctx context.Context, text string) ([]byte, error)

	// Name returns the human-readable name of the engine.
	Name() string
}
