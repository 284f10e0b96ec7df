package inhibit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadDelete_Roundtrip(t *testing.T) {
	dir := t.TempDir()

	marker := New("cli deploy", time.Minute)
	require.NoError(t, Write(dir, marker))

	loaded, ok, err := Read(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, marker.Reason, loaded.Reason)
	assert.Equal(t, marker.Token, loaded.Token)

	require.NoError(t, Delete(dir))

	_, ok, err = Read(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRead_MissingFileIsNotFound(t *testing.T) {
	dir := t.TempDir()

	_, ok, err := Read(dir)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestActive_GarbageCollectsExpiredMarker(t *testing.T) {
	dir := t.TempDir()

	marker := New("stale", -time.Second)
	require.NoError(t, Write(dir, marker))

	_, ok, err := Active(dir)
	require.NoError(t, err)
	assert.False(t, ok)

	_, stillThere, err := Read(dir)
	require.NoError(t, err)
	assert.False(t, stillThere)
}

func TestActive_ReturnsUnexpiredMarker(t *testing.T) {
	dir := t.TempDir()

	marker := New("in progress", time.Hour)
	require.NoError(t, Write(dir, marker))

	active, ok, err := Active(dir)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "in progress", active.Reason)
}
