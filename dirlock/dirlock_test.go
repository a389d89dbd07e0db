package dirlock_test

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lhlRahman/vector-database/dirlock"
)

func TestAcquireReleaseRoundTrip(t *testing.T) {
	dir := t.TempDir()
	l, err := dirlock.Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l.Release())

	l2, err := dirlock.Acquire(dir)
	require.NoError(t, err)
	require.NoError(t, l2.Release())
}

func TestSecondAcquireFailsWhileHeld(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("advisory flock is a no-op on this platform")
	}
	dir := t.TempDir()
	l, err := dirlock.Acquire(dir)
	require.NoError(t, err)
	defer l.Release()

	_, err = dirlock.Acquire(dir)
	assert.ErrorIs(t, err, dirlock.ErrLocked)
}
