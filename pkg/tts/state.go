package tts

import "fmt"

// Phase is the lifecycle phase of a narration session
type Phase int

const (
	// PhaseIdle means nothing is generating or playing
	PhaseIdle Phase = iota
	// PhaseGenerating means a request is waiting for its first audio
	PhaseGenerating
	// PhasePlaying means at least one segment of the request is scheduled
	PhasePlaying
)

// String returns the string representation of the phase
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseGenerating:
		return "generating"
	case PhasePlaying:
		return "playing"
	default:
		return fmt.Sprintf("phase(%d)", int(p))
	}
}

// State is the observable narration state. Page fields hold NoPage when
// empty; the session is idle when both are NoPage.
type State struct {
	RequestID      int64
	PlayingPage    int
	GeneratingPage int
}

// idleState is the state of a fresh or stopped session
func idleState() State {
	return State{PlayingPage: NoPage, GeneratingPage: NoPage}
}

// Phase derives the lifecycle phase from the page fields
func (s State) Phase() Phase {
	switch {
	case s.GeneratingPage != NoPage:
		return PhaseGenerating
	case s.PlayingPage != NoPage:
		return PhasePlaying
	default:
		return PhaseIdle
	}
}

// Idle reports whether nothing is generating or playing
func (s State) Idle() bool {
	return s.Phase() == PhaseIdle
}

// Page returns the page being narrated, or NoPage
func (s State) Page() int {
	if s.GeneratingPage != NoPage {
		return s.GeneratingPage
	}
	return s.PlayingPage
}
