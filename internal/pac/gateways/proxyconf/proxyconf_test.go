package proxyconf

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-pac/internal/pac/domain"
)

type rejecting struct {
	errorFeed
	calls int
}

func (r *rejecting) Apply(context.Context, domain.ProxySettings) error {
	r.calls++
	return domain.ErrConfigSubmission
}

func (r *rejecting) Clear(context.Context, domain.Scope) error {
	r.calls++
	return domain.ErrConfigSubmission
}

func TestMulti_AppliesToAll(t *testing.T) {
	served := NewServed(nil)
	file, err := NewFile(filepath.Join(t.TempDir(), "proxy.pac"))
	require.NoError(t, err)
	m := NewMulti(served, file)

	require.NoError(t, m.Apply(context.Background(), domain.NewPACSettings(script)))
	assert.Equal(t, script, served.Script())

	require.NoError(t, m.Clear(context.Background(), domain.ScopeRegular))
	assert.Equal(t, directScript, served.Script())
}

func TestMulti_StopsAtFirstFailure(t *testing.T) {
	bad := &rejecting{errorFeed: newErrorFeed()}
	served := NewServed(nil)
	m := NewMulti(bad, served)

	err := m.Apply(context.Background(), domain.NewPACSettings(script))
	require.ErrorIs(t, err, domain.ErrConfigSubmission)
	assert.Equal(t, directScript, served.Script())

	err = m.Clear(context.Background(), domain.ScopeRegular)
	require.ErrorIs(t, err, domain.ErrConfigSubmission)
	assert.Equal(t, 2, bad.calls)
}

func TestMulti_MergesErrors(t *testing.T) {
	a := &rejecting{errorFeed: newErrorFeed()}
	b := &rejecting{errorFeed: newErrorFeed()}
	m := NewMulti(a, b)
	ch := m.Errors()
	require.True(t, ch == m.Errors(), "merged channel is reused")

	a.report(errors.New("from a"))
	b.report(errors.New("from b"))

	got := map[string]bool{}
	for len(got) < 2 {
		select {
		case err := <-ch:
			got[err.Error()] = true
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	assert.True(t, got["from a"])
	assert.True(t, got["from b"])
}

func TestErrorFeed_DropsWhenFull(t *testing.T) {
	f := newErrorFeed()
	for i := 0; i < errorBufferSize+5; i++ {
		f.report(errors.New("x"))
	}
	assert.Len(t, f.ch, errorBufferSize)
}

func TestMulti_ForwardersKeepDrainingWithoutSubscriber(t *testing.T) {
	a := &rejecting{errorFeed: newErrorFeed()}
	m := NewMulti(a)
	merged := m.Errors()

	for round := 0; round < 3; round++ {
		for i := 0; i < errorBufferSize; i++ {
			a.report(errors.New("async failure"))
		}
		assert.Eventually(t, func() bool { return len(a.ch) == 0 }, 2*time.Second, 5*time.Millisecond,
			"forwarder stalled in round %d", round)
	}
	assert.Len(t, merged, errorBufferSize, "overflow is dropped, not queued")
}
