package proxyconf

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/haukened/rr-pac/internal/pac/common/clock"
	"github.com/haukened/rr-pac/internal/pac/domain"
	"github.com/haukened/rr-pac/internal/pac/services/pacscript"
)

// ContentType is the media type clients expect for PAC files.
const ContentType = "application/x-ns-proxy-autoconfig"

var directScript = pacscript.DirectScript()

type published struct {
	script    string
	etag      string
	updatedAt time.Time
}

func publish(script string, at time.Time) *published {
	sum := sha256.Sum256([]byte(script))
	return &published{script: script, etag: `"` + hex.EncodeToString(sum[:16]) + `"`, updatedAt: at}
}

// Served publishes the applied script over HTTP. Until the first Apply, and
// after Clear, it serves a script that routes everything DIRECT.
type Served struct {
	errorFeed
	clock   clock.Clock
	current atomic.Pointer[published]
}

// NewServed returns an empty Served configurator.
func NewServed(clk clock.Clock) *Served {
	if clk == nil {
		clk = clock.RealClock{}
	}
	s := &Served{errorFeed: newErrorFeed(), clock: clk}
	s.current.Store(publish(directScript, time.Time{}))
	return s
}

func (s *Served) Apply(_ context.Context, settings domain.ProxySettings) error {
	if err := settings.Validate(); err != nil {
		return err
	}
	s.current.Store(publish(settings.Script, s.clock.Now()))
	return nil
}

func (s *Served) Clear(_ context.Context, scope domain.Scope) error {
	if err := checkScope(scope); err != nil {
		return err
	}
	s.current.Store(publish(directScript, s.clock.Now()))
	return nil
}

// Script returns the script currently served.
func (s *Served) Script() string { return s.current.Load().script }

// ServeHTTP writes the current script. Conditional requests are answered
// from the script hash.
func (s *Served) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	p := s.current.Load()

	h := w.Header()
	h.Set("Content-Type", ContentType)
	h.Set("Cache-Control", "no-cache")
	h.Set("ETag", p.etag)
	if !p.updatedAt.IsZero() {
		h.Set("Last-Modified", p.updatedAt.UTC().Format(http.TimeFormat))
	}
	if match := r.Header.Get("If-None-Match"); match != "" && match == p.etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}
	if r.Method == http.MethodHead {
		return
	}
	if _, err := w.Write([]byte(p.script)); err != nil {
		s.report(fmt.Errorf("serve pac script to %s: %w", r.RemoteAddr, err))
	}
}
