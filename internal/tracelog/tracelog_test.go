package tracelog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(filepath.Join(t.TempDir(), "reasoning_logs.jsonl"), 100)
	require.NoError(t, err)
	l.now = func() time.Time {
		return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	}
	return l
}

func TestExtractThoughts(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "single block",
			text: "before <thought>the market looks toppy</thought> after",
			want: []string{"the market looks toppy"},
		},
		{
			name: "multiline block",
			text: "<thought>\nline one\nline two\n</thought>",
			want: []string{"line one\nline two"},
		},
		{
			name: "multiple blocks",
			text: "<thought>first</thought> middle <thought>second</thought>",
			want: []string{"first", "second"},
		},
		{
			name: "no blocks",
			text: "plain response",
			want: []string{},
		},
		{
			name: "unclosed block ignored",
			text: "<thought>never closed",
			want: []string{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, ExtractThoughts(tt.text))
		})
	}
}

func TestRecord_AppendsEntries(t *testing.T) {
	l := newTestLog(t)

	err := l.Record("reasoning_loop", "analyze BTC", "<thought>uptrend</thought> BUY",
		map[string]interface{}{"confidence": 0.75})
	require.NoError(t, err)
	err = l.Record("explorer", "hypothesize", "no structured thoughts", nil)
	require.NoError(t, err)

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	first := entries[0]
	assert.Equal(t, "reasoning_loop", first.Source)
	assert.Equal(t, "analyze BTC", first.Prompt)
	assert.Equal(t, []string{"uptrend"}, first.Thoughts)
	assert.Equal(t, 1, first.ThoughtCount)
	assert.InDelta(t, 0.75, first.Metadata["confidence"].(float64), 1e-9)
	assert.Equal(t, 2025, first.Timestamp.Year())

	second := entries[1]
	assert.Equal(t, "explorer", second.Source)
	assert.Equal(t, 0, second.ThoughtCount)
	assert.NotNil(t, second.Metadata)
}

func TestRecent_Limit(t *testing.T) {
	l := newTestLog(t)
	for i := 0; i < 5; i++ {
		require.NoError(t, l.Record("reasoning_loop", "", "response", nil))
	}

	entries, err := l.Recent(2)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	all, err := l.Recent(0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestRecent_SkipsBadLines(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.Record("reasoning_loop", "", "good", nil))

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, 0600)
	require.NoError(t, err)
	_, err = f.WriteString("not json at all\n")
	require.NoError(t, err)
	require.NoError(t, f.Close())

	require.NoError(t, l.Record("explorer", "", "also good", nil))

	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "reasoning_loop", entries[0].Source)
	assert.Equal(t, "explorer", entries[1].Source)
}

func TestStatistics(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, l.Record("reasoning_loop", "", "a", nil))
	require.NoError(t, l.Record("reasoning_loop", "", "b", nil))
	require.NoError(t, l.Record("explorer", "", "c", nil))

	stats, err := l.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalTraces)
	assert.Equal(t, 2, stats.Sources["reasoning_loop"])
	assert.Equal(t, 1, stats.Sources["explorer"])
	assert.GreaterOrEqual(t, stats.FileSizeMB, 0.0)
}

func TestStatistics_MissingFile(t *testing.T) {
	l := newTestLog(t)
	require.NoError(t, os.Remove(l.path))

	stats, err := l.Statistics()
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalTraces)
	assert.Empty(t, stats.Sources)

	entries, err := l.Recent(10)
	require.NoError(t, err)
	assert.Nil(t, entries)
}

func TestRotation(t *testing.T) {
	l := newTestLog(t)
	l.maxBytes = 64

	require.NoError(t, l.Record("reasoning_loop", "", "first entry, longer than the rotation threshold", nil))
	require.NoError(t, l.Record("reasoning_loop", "", "second entry", nil))

	// The oversized file was renamed with a timestamp suffix and the
	// fresh file holds only the newest entry.
	entries, err := l.Recent(10)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "second entry", entries[0].Response)

	rotated, err := filepath.Glob(filepath.Join(filepath.Dir(l.path), "reasoning_logs_*.jsonl"))
	require.NoError(t, err)
	require.Len(t, rotated, 1)
	assert.Contains(t, rotated[0], "reasoning_logs_20250601_120000.jsonl")
}
