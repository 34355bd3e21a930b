// Package lifecycle tears down process components in reverse start order.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type component struct {
	name string
	stop func(context.Context) error
}

// Shutdown collects stop functions and runs them LIFO.
type Shutdown struct {
	mu         sync.Mutex
	components []component
	timeout    time.Duration
	logger     *slog.Logger
	done       bool
}

func NewShutdown(timeout time.Duration, logger *slog.Logger) *Shutdown {
	if logger == nil {
		logger = slog.Default()
	}
	return &Shutdown{
		timeout: timeout,
		logger:  logger.With("component", "shutdown"),
	}
}

// Register adds a stop function. Components registered later stop first.
func (s *Shutdown) Register(name string, stop func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.components = append(s.components, component{name: name, stop: stop})
}

// RegisterCloser adapts a plain close function.
func (s *Shutdown) RegisterCloser(name string, closeFn func() error) {
	s.Register(name, func(context.Context) error { return closeFn() })
}

// Run stops every component, newest first, sharing one timeout. Failures
// do not stop the sequence; they are joined into the returned error. Only
// the first call does anything.
func (s *Shutdown) Run(ctx context.Context) error {
	s.mu.Lock()
	if s.done {
		s.mu.Unlock()
		return nil
	}
	s.done = true
	components := s.components
	s.mu.Unlock()

	s.logger.Info("starting graceful shutdown", "components", len(components))

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var errs []error
	for i := len(components) - 1; i >= 0; i-- {
		c := components[i]
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("%s: shutdown timed out: %w", c.name, err))
			continue
		}
		if err := c.stop(ctx); err != nil {
			s.logger.Error("shutdown step failed", "name", c.name, "error", err)
			errs = append(errs, fmt.Errorf("%s: %w", c.name, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		return err
	}
	s.logger.Info("graceful shutdown complete")
	return nil
}
