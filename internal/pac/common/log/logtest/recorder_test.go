package logtest

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/haukened/rr-pac/internal/pac/common/log"
)

var _ log.Logger = (*Recorder)(nil)

func TestRecorder_WithSharesEntries(t *testing.T) {
	rec := NewRecorder()
	child := rec.With(map[string]any{"component": "sync"})
	child.Warn(map[string]any{"attempt": 2}, "refresh failed")
	rec.Info(nil, "parent")

	entries := rec.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, "warn", entries[0].Level)
	assert.Equal(t, "sync", entries[0].Fields["component"])
	assert.Equal(t, 2, entries[0].Fields["attempt"])
	assert.Equal(t, []string{"parent"}, rec.Messages("info"))
}
