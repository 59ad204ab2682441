package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

// backends returns one instance of every backend, keyed by name.
func backends(t *testing.T) map[string]Store {
	t.Helper()

	file, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "kv.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"file":   file,
		"sqlite": sqlite,
	}
}

func TestStore_RoundTrip(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			// Absent key: found=false, no error.
			var out record
			found, err := s.Load("missing", &out)
			require.NoError(t, err)
			assert.False(t, found)

			require.NoError(t, s.Save("k", record{Name: "a", Count: 3}))
			found, err = s.Load("k", &out)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, record{Name: "a", Count: 3}, out)

			// Overwrite replaces the value.
			require.NoError(t, s.Save("k", record{Name: "b", Count: 7}))
			_, err = s.Load("k", &out)
			require.NoError(t, err)
			assert.Equal(t, record{Name: "b", Count: 7}, out)
		})
	}
}

func TestStore_RemoveAndExists(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save("k", record{Name: "a"}))

			exists, err := s.Exists("k")
			require.NoError(t, err)
			assert.True(t, exists)

			require.NoError(t, s.Remove("k"))
			exists, err = s.Exists("k")
			require.NoError(t, err)
			assert.False(t, exists)

			// Removing an absent key is not an error.
			assert.NoError(t, s.Remove("k"))
		})
	}
}

func TestStore_Clear(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			require.NoError(t, s.Save("a", record{Name: "a"}))
			require.NoError(t, s.Save("b", record{Name: "b"}))

			require.NoError(t, s.Clear())

			for _, key := range []string{"a", "b"} {
				exists, err := s.Exists(key)
				require.NoError(t, err)
				assert.False(t, exists)
			}
		})
	}
}

func TestStore_SliceValues(t *testing.T) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) {
			in := []record{{Name: "a", Count: 1}, {Name: "b", Count: 2}}
			require.NoError(t, s.Save("list", in))

			var out []record
			found, err := s.Load("list", &out)
			require.NoError(t, err)
			require.True(t, found)
			assert.Equal(t, in, out)
		})
	}
}

func TestFileStore_UnsafeKeys(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	// Path separators in keys must not escape the store directory.
	require.NoError(t, s.Save("../escape/attempt", record{Name: "x"}))

	var out record
	found, err := s.Load("../escape/attempt", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "x", out.Name)
}

func TestSQLiteStore_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kv.db")

	s, err := NewSQLiteStore(path)
	require.NoError(t, err)
	require.NoError(t, s.Save("k", record{Name: "a", Count: 1}))
	require.NoError(t, s.Close())

	s2, err := NewSQLiteStore(path)
	require.NoError(t, err)
	defer s2.Close()

	var out record
	found, err := s2.Load("k", &out)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, record{Name: "a", Count: 1}, out)
}

func TestNew_Factory(t *testing.T) {
	tests := []struct {
		name     string
		backend  string
		settings map[string]any
		wantErr  bool
	}{
		{
			name:     "file backend",
			backend:  "file",
			settings: map[string]any{"dir": t.TempDir()},
		},
		{
			name:     "sqlite backend",
			backend:  "sqlite",
			settings: map[string]any{"path": filepath.Join(t.TempDir(), "kv.db")},
		},
		{
			name:    "file backend without dir",
			backend: "file",
			wantErr: true,
		},
		{
			name:    "sqlite backend without path",
			backend: "sqlite",
			wantErr: true,
		},
		{
			name:     "file backend with empty dir",
			backend:  "file",
			settings: map[string]any{"dir": ""},
			wantErr:  true,
		},
		{
			name:    "unknown backend",
			backend: "redis",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(tt.backend, tt.settings)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer s.Close()
			assert.NoError(t, s.Save("probe", record{Name: "p"}))
		})
	}
}
