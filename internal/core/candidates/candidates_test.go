package candidates

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStubStore(t *testing.T) {
	var s StubStore
	ctx := context.Background()

	list, err := s.List(ctx)
	require.NoError(t, err)
	assert.NotNil(t, list)
	assert.Empty(t, list)

	ok, err := s.Exists(ctx, "0")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, SourceStub, s.Source())
}

func TestGenerateAndFileStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "candidates.json")

	names := Generate(0, 42)
	require.Len(t, names, DefaultCount)
	for _, name := range names {
		assert.NotEmpty(t, name)
	}
	require.NoError(t, WriteFile(path, names))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	assert.Equal(t, SourceFile, store.Source())
	assert.Equal(t, path, store.Path())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, DefaultCount)
	assert.Equal(t, Candidate{ID: 0, Name: names[0]}, list[0])
	assert.Equal(t, Candidate{ID: 9, Name: names[9]}, list[9])
}

func TestGenerateIsReproducibleWithSeed(t *testing.T) {
	assert.Equal(t, Generate(5, 7), Generate(5, 7))
	assert.Len(t, Generate(3, 0), 3)
}

func TestFileStoreExists(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, WriteFile(path, []string{"Ada Lovelace", "Alan Turing"}))

	store, err := NewFileStore(path)
	require.NoError(t, err)
	ctx := context.Background()

	for id, want := range map[string]bool{
		"0":   true,
		"1":   true,
		"2":   false,
		"-1":  false,
		"1.5": false,
		"1e0": false,
	} {
		ok, err := store.Exists(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, want, ok, "id %s", id)
	}
}

func TestFileStoreReloadKeepsPreviousOnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "candidates.json")
	require.NoError(t, WriteFile(path, []string{"Ada Lovelace"}))

	store, err := NewFileStore(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte("{broken"), 0o644))
	require.Error(t, store.Reload())

	list, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, WriteFile(path, []string{"Ada Lovelace", "Grace Hopper"}))
	require.NoError(t, store.Reload())
	list, err = store.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, list, 2)
}

func TestReadFileErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := ReadFile(filepath.Join(dir, "missing.json"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	blank := filepath.Join(dir, "blank.json")
	require.NoError(t, os.WriteFile(blank, []byte(`["Ada", "  "]`), 0o644))
	_, err = ReadFile(blank)
	assert.ErrorContains(t, err, "entry 1 is empty")

	_, err = NewFileStore(blank)
	assert.Error(t, err)
}

func TestWriteFileIsCompactJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.json")
	require.NoError(t, WriteFile(path, []string{"A B", "C D"}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `["A B","C D"]`, string(data))
}
