package tts

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// PCMFormat represents PCM audio format parameters
type PCMFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
	ByteOrder  binary.ByteOrder
}

// DefaultPCMFormat returns the PCM format produced by the synthesis API
func DefaultPCMFormat() PCMFormat {
	return PCMFormat{
		SampleRate: SampleRate,
		Channels:   Channels,
		BitDepth:   BitDepth,
		ByteOrder:  binary.LittleEndian,
	}
}

// BytesPerFrame returns the number of bytes in one frame (one sample per channel)
func (f PCMFormat) BytesPerFrame() int {
	return f.BitDepth / 8 * f.Channels
}

// ValidatePCMData validates that PCM data matches the expected format
func ValidatePCMData(data []byte, format PCMFormat) error {
	if format.SampleRate <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSampleRate, format.SampleRate)
	}
	if format.Channels <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidChannels, format.Channels)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: empty PCM data", ErrInvalidAudioFormat)
	}

	bytesPerFrame := format.BytesPerFrame()
	if len(data)%bytesPerFrame != 0 {
		return fmt.Errorf("%w: PCM data length %d is not aligned to %d-byte frames",
			ErrInvalidAudioFormat, len(data), bytesPerFrame)
	}

	return nil
}

// CalculatePCMDuration calculates the duration of PCM audio data
func CalculatePCMDuration(dataLen int, format PCMFormat) time.Duration {
	if format.SampleRate == 0 || format.BytesPerFrame() == 0 {
		return 0
	}

	frames := dataLen / format.BytesPerFrame()
	return time.Duration(frames) * time.Second / time.Duration(format.SampleRate)
}

// GenerateSilence generates silent PCM data for the given duration
func GenerateSilence(d time.Duration, format PCMFormat) []byte {
	frames := int(d.Seconds() * float64(format.SampleRate))
	return make([]byte, frames*format.BytesPerFrame())
}

// AudioBuffer is a decoded, normalized sample buffer ready for scheduling.
// Channels[c][i] is sample i of channel c.
type AudioBuffer struct {
	SampleRate int
	Channels   [][]float32
}

// NumberOfChannels returns the channel count of the buffer.
func (b *AudioBuffer) NumberOfChannels() int {
	return len(b.Channels)
}

// Frames returns the number of frames per channel.
func (b *AudioBuffer) Frames() int {
	if len(b.Channels) == 0 {
		return 0
	}
	return len(b.Channels[0])
}

// Duration returns the playback length of the buffer in seconds.
func (b *AudioBuffer) Duration() float64 {
	if b == nil || b.SampleRate == 0 {
		return 0
	}
	return float64(b.Frames()) / float64(b.SampleRate)
}

// Mono returns the frame at index i averaged across channels.
func (b *AudioBuffer) Mono(i int) float32 {
	switch len(b.Channels) {
	case 0:
		return 0
	case 1:
		return b.Channels[0][i]
	}
	var sum float32
	for _, ch := range b.Channels {
		sum += ch[i]
	}
	return sum / float32(len(b.Channels))
}

// DecodePCM converts signed 16-bit little-endian interleaved PCM into a
// normalized buffer. Each sample is divided by 32768, mapping into [-1, 1).
// Sample i of channel c is read from interleaved offset i*channels+c.
func DecodePCM(data []byte, sampleRate, channels int) (*AudioBuffer, error) {
	format := PCMFormat{
		SampleRate: sampleRate,
		Channels:   channels,
		BitDepth:   BitDepth,
		ByteOrder:  binary.LittleEndian,
	}
	if err := ValidatePCMData(data, format); err != nil {
		return nil, err
	}

	samples := len(data) / BytesPerSample
	frames := samples / channels

	buf := &AudioBuffer{
		SampleRate: sampleRate,
		Channels:   make([][]float32, channels),
	}
	for c := range buf.Channels {
		buf.Channels[c] = make([]float32, frames)
	}

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			off := (i*channels + c) * BytesPerSample
			s := int16(binary.LittleEndian.Uint16(data[off:]))
			buf.Channels[c][i] = float32(s) / 32768.0
		}
	}

	return buf, nil
}

// EncodePCM is the inverse of DecodePCM. Samples are clamped to [-1, 1] and
// interleaved in channel order.
func EncodePCM(buf *AudioBuffer) []byte {
	frames := buf.Frames()
	channels := buf.NumberOfChannels()
	out := make([]byte, frames*channels*BytesPerSample)

	for i := 0; i < frames; i++ {
		for c := 0; c < channels; c++ {
			v := math.Max(-1, math.Min(1, float64(buf.Channels[c][i])))
			s := int16(math.Max(math.MinInt16, math.Min(math.MaxInt16, math.Round(v*32768))))
			off := (i*channels + c) * BytesPerSample
			binary.LittleEndian.PutUint16(out[off:], uint16(s))
		}
	}

	return out
}
