package common

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUIDint64Unique(t *testing.T) {
	seen := make(map[int64]bool)
	for i := 0; i < 1000; i++ {
		id := UUIDint64()
		assert.Positive(t, id)
		assert.False(t, seen[id], "duplicate id %d", id)
		seen[id] = true
	}
}

func TestSha256HashWithSalt(t *testing.T) {
	a := Sha256HashWithSalt("secret", "salt1")
	b := Sha256HashWithSalt("secret", "salt1")
	c := Sha256HashWithSalt("secret", "salt2")
	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.Len(t, a, 64)
}

func TestIsEmptyOrNA(t *testing.T) {
	assert.True(t, IsEmptyOrNA(""))
	assert.True(t, IsEmptyOrNA("  "))
	assert.True(t, IsEmptyOrNA("N/A"))
	assert.True(t, IsEmptyOrNA("n/a"))
	assert.False(t, IsEmptyOrNA("value"))
}

func TestMustLocalTimeRFC3339(t *testing.T) {
	ts, err := MustLocalTime("2026-08-01T10:30:00Z")
	require.NoError(t, err)
	assert.Equal(t, 2026, ts.Year())
	assert.Equal(t, time.August, ts.Month())
}

func TestMustLocalTimeUnixMillis(t *testing.T) {
	ts, err := MustLocalTime("1722508200000")
	require.NoError(t, err)
	assert.Equal(t, int64(1722508200000), ts.UnixMilli())
}

func TestMustLocalTimeRejectsGarbage(t *testing.T) {
	_, err := MustLocalTime("not-a-time")
	assert.Error(t, err)
}
