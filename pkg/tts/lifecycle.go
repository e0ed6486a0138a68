package tts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
)

// LifecycleManager coordinates graceful shutdown of narration components
type LifecycleManager struct {
	mu              sync.Mutex
	components      []LifecycleComponent
	shutdownCh      chan struct{}
	done            chan struct{}
	isShutdown      bool
	shutdownTimeout time.Duration
	err             error
}

// LifecycleComponent represents a component that needs cleanup on shutdown
type LifecycleComponent interface {
	// Name returns the component name for logging
	Name() string

	// Shutdown performs graceful shutdown
	Shutdown(ctx context.Context) error
}

// forceStopper is implemented by components that can be stopped
// immediately when graceful shutdown fails
type forceStopper interface {
	ForceStop() error
}

// NewLifecycleManager creates a new lifecycle manager
func NewLifecycleManager() *LifecycleManager {
	return &LifecycleManager{
		shutdownCh:      make(chan struct{}),
		done:            make(chan struct{}),
		shutdownTimeout: 5 * time.Second,
	}
}

// Register adds a component to lifecycle management. Components are shut
// down in reverse order of registration.
func (lm *LifecycleManager) Register(component LifecycleComponent) {
	lm.mu.Lock()
	defer lm.mu.Unlock()

	if lm.isShutdown {
		log.Warn("Cannot register component during shutdown", "component", component.Name())
		return
	}

	lm.components = append(lm.components, component)
	log.Debug("Registered lifecycle component", "name", component.Name())
}

// Start begins monitoring for SIGINT and SIGTERM. Shutdown also runs when
// ctx is cancelled.
func (lm *LifecycleManager) Start(ctx context.Context) {
	go lm.monitorSignals(ctx)
}

// monitorSignals watches for system signals
func (lm *LifecycleManager) monitorSignals(ctx context.Context) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case sig := <-sigCh:
		log.Info("Received shutdown signal", "signal", sig)
		_ = lm.Shutdown()
	case <-ctx.Done():
		_ = lm.Shutdown()
	case <-lm.shutdownCh:
		log.Debug("Shutdown initiated programmatically")
	}
}

// Shutdown performs graceful shutdown of all components. Only the first
// call does any work; later calls wait for it and return its result.
func (lm *LifecycleManager) Shutdown() error {
	lm.mu.Lock()
	if lm.isShutdown {
		lm.mu.Unlock()
		<-lm.done
		return lm.err
	}
	lm.isShutdown = true
	components := lm.components
	lm.mu.Unlock()

	log.Info("Starting graceful shutdown")
	close(lm.shutdownCh)

	ctx, cancel := context.WithTimeout(context.Background(), lm.shutdownTimeout)
	defer cancel()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		component := components[i]
		log.Debug("Shutting down component", "name", component.Name())

		err := component.Shutdown(ctx)
		if err == nil {
			continue
		}
		log.Warn("Component graceful shutdown failed", "name", component.Name(), "error", err)

		if fs, ok := component.(forceStopper); ok {
			forceErr := fs.ForceStop()
			if forceErr == nil {
				continue
			}
			log.Error("Component force stop failed", "name", component.Name(), "error", forceErr)
			err = forceErr
		}
		errs = append(errs, fmt.Errorf("%s: %w", component.Name(), err))
	}

	lm.err = errors.Join(errs...)
	close(lm.done)
	log.Info("Graceful shutdown complete", "errors", len(errs))
	return lm.err
}

// Stopping returns a channel that is closed as soon as shutdown begins
func (lm *LifecycleManager) Stopping() <-chan struct{} {
	return lm.shutdownCh
}

// Done returns a channel that is closed once shutdown completed
func (lm *LifecycleManager) Done() <-chan struct{} {
	return lm.done
}

// Wait blocks until shutdown is complete
func (lm *LifecycleManager) Wait() {
	<-lm.done
}

// componentFunc adapts a shutdown function to LifecycleComponent
type componentFunc struct {
	name string
	fn   func(ctx context.Context) error
}

// NewComponent wraps fn as a lifecycle component named name
func NewComponent(name string, fn func(ctx context.Context) error) LifecycleComponent {
	return &componentFunc{name: name, fn: fn}
}

func (c *componentFunc) Name() string { return c.name }

func (c *componentFunc) Shutdown(ctx context.Context) error { return c.fn(ctx) }

// SessionLifecycle wraps a narration session with lifecycle management
type SessionLifecycle struct {
	session *Session
}

// NewSessionLifecycle creates a lifecycle wrapper for a session
func NewSessionLifecycle(session *Session) *SessionLifecycle {
	return &SessionLifecycle{session: session}
}

// Name returns the component name
func (sl *SessionLifecycle) Name() string {
	return "Narration Session"
}

// Shutdown stops narration and waits for pipelines to exit
func (sl *SessionLifecycle) Shutdown(ctx context.Context) error {
	done := make(chan error, 1)
	go func() { done <- sl.session.Close() }()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("session shutdown timed out: %w", ctx.Err())
	}
}

// ForceStop silences output immediately
func (sl *SessionLifecycle) ForceStop() error {
	sl.session.Stop()
	return nil
}
