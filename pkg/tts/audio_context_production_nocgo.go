//go:build nocgo
// +build nocgo

package tts

import (
	"context"
	"time"
)

// Stub implementation for static analysis and builds without CGO

// ProductionAudioContext stub for nocgo builds
type ProductionAudioContext struct{}

// NewProductionAudioContext always fails without CGO
func NewProductionAudioContext(time.Duration) (*ProductionAudioContext, error) {
	return nil, ErrAudioUnavailable
}

func (pac *ProductionAudioContext) CurrentTime() float64 { return 0 }

func (pac *ProductionAudioContext) State() ContextState { return ContextClosed }

func (pac *ProductionAudioContext) Resume(context.Context) error { return ErrAudioUnavailable }

func (pac *ProductionAudioContext) Suspend() error { return ErrAudioUnavailable }

func (pac *ProductionAudioContext) Start(*AudioBuffer, float64, func()) (Source, error) {
	return nil, ErrAudioUnavailable
}

func (pac *ProductionAudioContext) SampleRate() int { return SampleRate }

func (pac *ProductionAudioContext) Close() error { return nil }
