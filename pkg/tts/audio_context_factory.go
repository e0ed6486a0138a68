package tts

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/charmbracelet/log"
)

// IsCI detects if we're running in a CI environment
func IsCI() bool {
	ciVars := []string{
		"CI",
		"CONTINUOUS_INTEGRATION",
		"GITHUB_ACTIONS",
		"GITLAB_CI",
		"JENKINS_URL",
		"TRAVIS",
		"CIRCLECI",
		"BUILDKITE",
		"DRONE",
		"TEAMCITY_VERSION",
	}

	for _, envVar := range ciVars {
		if val := os.Getenv(envVar); val != "" && val != "false" {
			log.Debug("CI environment detected", "variable", envVar, "value", val)
			return true
		}
	}

	return false
}

// AudioFactory creates the output context for a Scheduler.
type AudioFactory func() (AudioContext, error)

// mockTick is how often a headless mock clock advances
const mockTick = 20 * time.Millisecond

// NewAudioContext creates an audio context of the given type. Mock
// contexts created here run on the wall clock so narration completes
// without a device.
func NewAudioContext(contextType AudioContextType, bufferSize time.Duration) (AudioContext, error) {
	switch contextType {
	case AudioContextProduction:
		log.Debug("Creating production audio context")
		return NewProductionAudioContext(bufferSize)

	case AudioContextMock:
		return newRunningMock(), nil

	case AudioContextAuto:
		if IsCI() {
			log.Info("Using mock audio context", "reason", "CI environment")
			return newRunningMock(), nil
		}

		prod, err := NewProductionAudioContext(bufferSize)
		if err != nil {
			log.Warn("Failed to create production audio context, falling back to mock",
				"error", err)
			return newRunningMock(), nil
		}
		return prod, nil

	default:
		return nil, fmt.Errorf("unknown audio context type: %v", contextType)
	}
}

func newRunningMock() *MockAudioContext {
	m := NewMockAudioContext()
	m.RunClock(context.Background(), mockTick)
	return m
}

// NewAudioFactory returns a factory bound to the given type and buffer size
func NewAudioFactory(contextType AudioContextType, bufferSize time.Duration) AudioFactory {
	return func() (AudioContext, error) {
		return NewAudioContext(contextType, bufferSize)
	}
}
