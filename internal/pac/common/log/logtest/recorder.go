// Package logtest provides an in-memory log.Logger for tests.
package logtest

import (
	"maps"
	"sync"

	"github.com/haukened/rr-pac/internal/pac/common/log"
)

// Entry is one message captured by a Recorder.
type Entry struct {
	Level  string
	Msg    string
	Fields map[string]any
}

// Recorder keeps every message in memory. Children created with With share
// the parent's entry list.
type Recorder struct {
	mu      *sync.Mutex
	entries *[]Entry
	fields  map[string]any
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{mu: &sync.Mutex{}, entries: &[]Entry{}}
}

func (r *Recorder) record(level string, fields map[string]any, msg string) {
	merged := make(map[string]any, len(r.fields)+len(fields))
	maps.Copy(merged, r.fields)
	maps.Copy(merged, fields)
	r.mu.Lock()
	*r.entries = append(*r.entries, Entry{Level: level, Msg: msg, Fields: merged})
	r.mu.Unlock()
}

func (r *Recorder) Info(f map[string]any, msg string)  { r.record("info", f, msg) }
func (r *Recorder) Error(f map[string]any, msg string) { r.record("error", f, msg) }
func (r *Recorder) Debug(f map[string]any, msg string) { r.record("debug", f, msg) }
func (r *Recorder) Warn(f map[string]any, msg string)  { r.record("warn", f, msg) }
func (r *Recorder) Panic(f map[string]any, msg string) { r.record("panic", f, msg) }
func (r *Recorder) Fatal(f map[string]any, msg string) { r.record("fatal", f, msg) }

func (r *Recorder) With(fields map[string]any) log.Logger {
	merged := make(map[string]any, len(r.fields)+len(fields))
	maps.Copy(merged, r.fields)
	maps.Copy(merged, fields)
	return &Recorder{mu: r.mu, entries: r.entries, fields: merged}
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(*r.entries))
	copy(out, *r.entries)
	return out
}

// Messages returns the recorded messages at the given level.
func (r *Recorder) Messages(level string) []string {
	var out []string
	for _, e := range r.Entries() {
		if e.Level == level {
			out = append(out, e.Msg)
		}
	}
	return out
}
