package util

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoffDoublesUntilMax(t *testing.T) {
	b := NewBackoff(1*time.Second, 5*time.Second)

	assert.Equal(t, 1*time.Second, b.Next())
	assert.Equal(t, 2*time.Second, b.Next())
	assert.Equal(t, 4*time.Second, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())
	assert.Equal(t, 5*time.Second, b.Next())
}

func TestBackoffReset(t *testing.T) {
	b := NewBackoff(1*time.Second, 60*time.Second)
	b.Next()
	b.Next()
	b.Reset()
	assert.Equal(t, 1*time.Second, b.Next())
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "45s", FormatDuration(45_000))
	assert.Equal(t, "2m 34s", FormatDuration(154_000))
	assert.Equal(t, "1h 23m", FormatDuration(4_980_000))
}

func TestValidatePath(t *testing.T) {
	assert.Error(t, ValidatePath("path", ""))
	assert.Error(t, ValidatePath("path", "../etc/passwd"))
	assert.NoError(t, ValidatePath("path", "/tmp/recordings"))
}
