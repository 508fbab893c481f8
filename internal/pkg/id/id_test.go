package id

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IsUniqueAndParsable(t *testing.T) {
	a, b := New(), New()
	assert.NotEqual(t, a, b)
	assert.Len(t, a, 26)

	ts, ok := Time(a)
	require.True(t, ok)
	assert.WithinDuration(t, time.Now(), ts, time.Minute)
}

func TestTime_Invalid(t *testing.T) {
	_, ok := Time("not-a-ulid")
	assert.False(t, ok)
}
