// Package proxyconf implements the host proxy-configuration API: the place
// a generated PAC script is submitted to and cleared from.
package proxyconf

import (
	"context"
	"fmt"
	"sync"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

// Configurator accepts proxy settings for a scope.
type Configurator interface {
	Apply(ctx context.Context, settings domain.ProxySettings) error
	Clear(ctx context.Context, scope domain.Scope) error
	// Errors delivers failures that happen outside Apply and Clear.
	Errors() <-chan error
}

// errorBufferSize bounds queued asynchronous errors; further errors are
// dropped until the subscriber catches up.
const errorBufferSize = 16

type errorFeed struct {
	ch chan error
}

func newErrorFeed() errorFeed { return errorFeed{ch: make(chan error, errorBufferSize)} }

func (f errorFeed) report(err error) {
	select {
	case f.ch <- err:
	default:
	}
}

func (f errorFeed) Errors() <-chan error { return f.ch }

func checkScope(scope domain.Scope) error {
	if scope != domain.ScopeRegular {
		return fmt.Errorf("%w: scope %q is not available", domain.ErrConfigSubmission, scope)
	}
	return nil
}

// Multi submits to every configurator in order and stops at the first
// failure.
type Multi struct {
	targets []Configurator

	once   sync.Once
	merged chan error
}

// NewMulti fans submissions out to targets.
func NewMulti(targets ...Configurator) *Multi {
	return &Multi{targets: targets}
}

func (m *Multi) Apply(ctx context.Context, settings domain.ProxySettings) error {
	for _, t := range m.targets {
		if err := t.Apply(ctx, settings); err != nil {
			return err
		}
	}
	return nil
}

func (m *Multi) Clear(ctx context.Context, scope domain.Scope) error {
	for _, t := range m.targets {
		if err := t.Clear(ctx, scope); err != nil {
			return err
		}
	}
	return nil
}

// Errors merges the error streams of all targets. Like a single target, the
// merged stream drops errors while its buffer is full, so forwarders never
// block on a subscriber that went away.
func (m *Multi) Errors() <-chan error {
	m.once.Do(func() {
		m.merged = make(chan error, errorBufferSize)
		for _, t := range m.targets {
			src := t.Errors()
			if src == nil {
				continue
			}
			go func() {
				for err := range src {
					select {
					case m.merged <- err:
					default:
					}
				}
			}()
		}
	})
	return m.merged
}
