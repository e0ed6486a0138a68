package tts

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
	"time"
)

func int16Bytes(samples ...int16) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(out[i*2:], uint16(s))
	}
	return out
}

func TestDecodePCM(t *testing.T) {
	t.Run("mono values", func(t *testing.T) {
		samples := []int16{0, 1, -1, 16384, -16384, 32767, -32768}
		buf, err := DecodePCM(int16Bytes(samples...), SampleRate, 1)
		if err != nil {
			t.Fatalf("DecodePCM failed: %v", err)
		}
		if buf.NumberOfChannels() != 1 {
			t.Fatalf("Expected 1 channel, got %d", buf.NumberOfChannels())
		}
		if buf.Frames() != len(samples) {
			t.Fatalf("Expected %d frames, got %d", len(samples), buf.Frames())
		}
		for i, s := range samples {
			want := float64(s) / 32768.0
			if got := float64(buf.Channels[0][i]); math.Abs(got-want) > 1e-7 {
				t.Errorf("Sample %d: expected %f, got %f", i, want, got)
			}
		}
		if buf.Channels[0][6] != -1 {
			t.Errorf("Expected -32768 to map to -1, got %f", buf.Channels[0][6])
		}
		if buf.Channels[0][5] >= 1 {
			t.Errorf("Expected 32767 to map below 1, got %f", buf.Channels[0][5])
		}
	})

	t.Run("stereo deinterleave", func(t *testing.T) {
		// L0 R0 L1 R1 L2 R2
		data := int16Bytes(100, -100, 200, -200, 300, -300)
		buf, err := DecodePCM(data, SampleRate, 2)
		if err != nil {
			t.Fatalf("DecodePCM failed: %v", err)
		}
		if buf.Frames() != 3 {
			t.Fatalf("Expected 3 frames, got %d", buf.Frames())
		}
		for i := 0; i < 3; i++ {
			wantL := float32(100*(i+1)) / 32768.0
			wantR := -wantL
			if buf.Channels[0][i] != wantL {
				t.Errorf("Channel 0 frame %d: expected %f, got %f", i, wantL, buf.Channels[0][i])
			}
			if buf.Channels[1][i] != wantR {
				t.Errorf("Channel 1 frame %d: expected %f, got %f", i, wantR, buf.Channels[1][i])
			}
			if buf.Mono(i) != 0 {
				t.Errorf("Expected mono mix of opposite channels to be 0, got %f", buf.Mono(i))
			}
		}
	})

	t.Run("duration", func(t *testing.T) {
		data := GenerateSilence(500*time.Millisecond, DefaultPCMFormat())
		buf, err := DecodePCM(data, SampleRate, Channels)
		if err != nil {
			t.Fatalf("DecodePCM failed: %v", err)
		}
		if math.Abs(buf.Duration()-0.5) > 1e-9 {
			t.Errorf("Expected 0.5s, got %f", buf.Duration())
		}
	})

	t.Run("malformed payloads", func(t *testing.T) {
		cases := map[string]struct {
			data     []byte
			channels int
		}{
			"empty":          {nil, 1},
			"odd byte count": {[]byte{1, 2, 3}, 1},
			"partial frame":  {int16Bytes(1, 2, 3), 2},
			"zero channels":  {int16Bytes(1, 2), 0},
		}
		for name, tc := range cases {
			if _, err := DecodePCM(tc.data, SampleRate, tc.channels); err == nil {
				t.Errorf("%s: expected error", name)
			}
		}
		_, err := DecodePCM([]byte{1}, SampleRate, 1)
		if !errors.Is(err, ErrInvalidAudioFormat) {
			t.Errorf("Expected ErrInvalidAudioFormat, got %v", err)
		}
		if !IsSegmentError(err) {
			t.Error("Expected decode errors to be segment errors")
		}
	})
}

func TestEncodePCMInvertsDecode(t *testing.T) {
	data := int16Bytes(0, 1234, -1234, 32767, -32768, 7, -7, 20000)
	buf, err := DecodePCM(data, SampleRate, 2)
	if err != nil {
		t.Fatalf("DecodePCM failed: %v", err)
	}
	out := EncodePCM(buf)
	if string(out) != string(data) {
		t.Errorf("EncodePCM did not reproduce input\n got: %v\nwant: %v", out, data)
	}
}

func TestCalculatePCMDuration(t *testing.T) {
	format := DefaultPCMFormat()
	if got := CalculatePCMDuration(SampleRate*BytesPerSample, format); got != time.Second {
		t.Errorf("Expected 1s, got %v", got)
	}
	if got := CalculatePCMDuration(100, PCMFormat{}); got != 0 {
		t.Errorf("Expected 0 for empty format, got %v", got)
	}
}
