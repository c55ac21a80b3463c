package pluginlog_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hourglassapp/hourglass/internal/pluginlog"
)

func TestAppendAndRecent(t *testing.T) {
	s := pluginlog.New()
	s.Append("tasks", pluginlog.Line{Level: "info", Msg: "loaded"})
	s.Append("tasks", pluginlog.Line{Level: "warn", Msg: "slow query"})

	lines := s.Recent("tasks")
	require.Len(t, lines, 2)
	assert.Equal(t, "loaded", lines[0].Msg)
	assert.Equal(t, "slow query", lines[1].Msg)
}

func TestRecentIsIsolatedPerPlugin(t *testing.T) {
	s := pluginlog.New()
	s.Append("tasks", pluginlog.Line{Msg: "a"})
	s.Append("billing", pluginlog.Line{Msg: "b"})

	assert.Len(t, s.Recent("tasks"), 1)
	assert.Len(t, s.Recent("billing"), 1)
	assert.Empty(t, s.Recent("ghost"))
}

func TestAppendEvictsOldestBeyondCapacity(t *testing.T) {
	s := pluginlog.New()
	for i := 0; i < 250; i++ {
		s.Append("tasks", pluginlog.Line{Msg: "line"})
	}
	assert.Len(t, s.Recent("tasks"), 200)
}

func TestRecentReturnsACopy(t *testing.T) {
	s := pluginlog.New()
	s.Append("tasks", pluginlog.Line{Msg: "original"})

	lines := s.Recent("tasks")
	lines[0].Msg = "mutated"

	assert.Equal(t, "original", s.Recent("tasks")[0].Msg, "mutating the returned slice must not affect the stored buffer")
}
