package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func backends(t *testing.T) map[string]Storage {
	t.Helper()
	local, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	sqlite, err := NewSQLiteStorage(filepath.Join(t.TempDir(), "objects.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Storage{"local": local, "sqlite": sqlite}
}

func TestStorage_RoundTrip(t *testing.T) {
	ctx := context.Background()
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			_, err := s.Read(ctx, "projects/p1/state.json")
			require.ErrorIs(t, err, ErrNotFound)

			ok, err := s.Exists(ctx, "projects/p1/state.json")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, s.Write(ctx, "projects/p1/state.json", []byte(`{"status":"init"}`)))
			require.NoError(t, s.Write(ctx, "projects/p1/state.json", []byte(`{"status":"completed"}`)))
			require.NoError(t, s.Write(ctx, "projects/p1/nested/DESIGN.md", []byte("# design")))

			data, err := s.Read(ctx, "projects/p1/state.json")
			require.NoError(t, err)
			assert.Equal(t, `{"status":"completed"}`, string(data))

			paths, err := s.List(ctx, "projects/p1")
			require.NoError(t, err)
			assert.Equal(t, []string{"projects/p1/state.json"}, paths)

			require.NoError(t, s.Delete(ctx, "projects/p1/state.json"))
			require.ErrorIs(t, s.Delete(ctx, "projects/p1/state.json"), ErrNotFound)
		})
	}
}

func TestLocalStorage_WriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		require.NoError(t, s.Write(context.Background(), "p/state.json", []byte("{}")))
	}

	entries, err := os.ReadDir(filepath.Join(dir, "p"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "state.json", entries[0].Name())
}

func TestLocalStorage_PathsStayUnderBase(t *testing.T) {
	dir := t.TempDir()
	s, err := NewLocalStorage(dir)
	require.NoError(t, err)

	require.NoError(t, s.Write(context.Background(), "../../escape.txt", []byte("x")))
	_, err = os.Stat(filepath.Join(dir, "escape.txt"))
	assert.NoError(t, err)
}
