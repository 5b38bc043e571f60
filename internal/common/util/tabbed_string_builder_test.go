package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTabbedStringBuilder_Writef(t *testing.T) {
	w := NewTabbedStringBuilder(1, 1, 1, ' ', 0)
	w.Writef("a:\t%s\n", "b")
	w.Writef("a:\t%.2f\t%d\n", 1.5, 2)
	assert.Equal(t, "a: b\na: 1.50 2\n", w.String())
}

func TestTabbedStringBuilder_Row(t *testing.T) {
	w := NewTabbedStringBuilder(1, 1, 1, ' ', 0)
	w.Row("ID", "NAME", "STATUS")
	w.Row(1, "job_a", "Completed")
	assert.Equal(t, "ID NAME  STATUS\n1  job_a Completed\n", w.String())
}

func TestMergeMaps(t *testing.T) {
	merged := MergeMaps(map[string]any{"time": "00:10:00", "nodes": 1}, map[string]any{"nodes": 2})
	assert.Equal(t, map[string]any{"time": "00:10:00", "nodes": 2}, merged)
}

func TestNewULID_Unique(t *testing.T) {
	a, b := NewULID(), NewULID()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)
	assert.True(t, a < b)
}

func TestDummyClock(t *testing.T) {
	ts := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	var c Clock = &DummyClock{T: ts}
	assert.Equal(t, ts, c.Now())
}
