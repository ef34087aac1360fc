package lockstore

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFile_SurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "client.json")

	s := NewFile(path)
	_, ok, err := s.Get("logout_lock")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Set("logout_lock", []byte(`{"set_at":1}`)))
	require.NoError(t, s.Set("other", []byte("x")))

	reopened := NewFile(path)
	v, ok, err := reopened.Get("logout_lock")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `{"set_at":1}`, string(v))

	require.NoError(t, reopened.Delete("logout_lock"))
	_, ok, _ = NewFile(path).Get("logout_lock")
	assert.False(t, ok)
	v, _, _ = NewFile(path).Get("other")
	assert.Equal(t, "x", string(v))
}

func TestFile_CorruptFileIsAnError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "client.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))
	_, _, err := NewFile(path).Get("logout_lock")
	assert.Error(t, err)
}

func TestMemory_CopiesValues(t *testing.T) {
	s := NewMemory()
	in := []byte("abc")
	require.NoError(t, s.Set("k", in))
	in[0] = 'z'
	v, ok, err := s.Get("k")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "abc", string(v))
}
