package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

const maxBodyBytes = 4 << 10

type errorBody struct {
	Error string `json:"error"`
}

type cycleBody struct {
	State      string     `json:"state"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
	Domains    int        `json:"domains"`
	Degraded   bool       `json:"degraded"`
	Error      string     `json:"error,omitempty"`
}

type blockedBody struct {
	Domain    string    `json:"domain"`
	AddedAt   time.Time `json:"added_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

type snapshotBody struct {
	Domains   int       `json:"domains"`
	FetchedAt time.Time `json:"fetched_at"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// statusFor maps domain errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrInvalidHost):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, domain.ErrConfigSubmission), errors.Is(err, domain.ErrRegistryFetch):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (a *api) fail(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		a.logger.Error(map[string]any{"error": err, "path": r.URL.Path}, "request failed")
	}
	writeJSON(w, status, errorBody{Error: err.Error()})
}

func (a *api) cycle() cycleBody {
	last := a.ctrl.LastCycle()
	body := cycleBody{State: a.ctrl.State().String(), Domains: last.Domains, Degraded: last.Degraded}
	if !last.StartedAt.IsZero() {
		body.StartedAt = &last.StartedAt
	}
	if !last.FinishedAt.IsZero() {
		body.FinishedAt = &last.FinishedAt
	}
	if last.Err != nil {
		body.Error = last.Err.Error()
	}
	return body
}

func (a *api) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (a *api) status(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, a.cycle())
}

func (a *api) decision(w http.ResponseWriter, r *http.Request) {
	host := r.URL.Query().Get("host")
	if host == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "host query parameter is required"})
		return
	}
	writeJSON(w, http.StatusOK, a.decider.Decide(host))
}

func (a *api) listBlocked(w http.ResponseWriter, r *http.Request) {
	entries, err := a.blocklist.Entries()
	if err != nil {
		a.fail(w, r, err)
		return
	}
	retention := a.blocklist.Retention()
	out := make([]blockedBody, 0, len(entries))
	for _, e := range entries {
		out = append(out, blockedBody{Domain: e.Domain, AddedAt: e.AddedAt, ExpiresAt: e.AddedAt.Add(retention)})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"retention": retention.String(),
		"entries":   out,
	})
}

func (a *api) block(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Host string `json:"host"`
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid request body: " + err.Error()})
		return
	}
	if err := a.ctrl.Block(r.Context(), req.Host); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.cycle())
}

func (a *api) unblock(w http.ResponseWriter, r *http.Request) {
	host, err := url.PathUnescape(chi.URLParam(r, "host"))
	if err != nil || strings.TrimSpace(host) == "" {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid host"})
		return
	}
	removed, err := a.ctrl.Unblock(r.Context(), host)
	if err != nil {
		a.fail(w, r, err)
		return
	}
	if !removed {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "host is not in the local blocklist"})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *api) refresh(w http.ResponseWriter, r *http.Request) {
	snap, err := a.ctrl.RefreshRegistry(r.Context())
	if err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshotBody{Domains: len(snap.Domains), FetchedAt: snap.FetchedAt})
}

func (a *api) apply(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.Apply(r.Context(), ""); err != nil {
		a.fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, a.cycle())
}

func (a *api) clear(w http.ResponseWriter, r *http.Request) {
	if err := a.ctrl.Clear(r.Context()); err != nil {
		a.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
