package lock

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_AcquireAndRelease(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	r, err := m.Acquire(context.Background())
	require.NoError(t, err)

	require.NoError(t, r.Release())
}

func TestManager_TryAcquire_BusyWhenHeld(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	held, ok, err := m.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)
	defer held.Release()

	m2 := New(dir)
	_, ok2, err := m2.TryAcquire()
	require.NoError(t, err)
	assert.False(t, ok2)
}

func TestManager_AcquireBlocksUntilReleased(t *testing.T) {
	dir := t.TempDir()
	m := New(dir)

	held, ok, err := m.TryAcquire()
	require.NoError(t, err)
	require.True(t, ok)

	go func() {
		time.Sleep(50 * time.Millisecond)
		held.Release()
	}()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	m2 := New(dir)
	r2, err := m2.Acquire(ctx)
	require.NoError(t, err)
	require.NoError(t, r2.Release())
}
