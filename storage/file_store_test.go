package storage_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/edutrack-uz/portal-client/storage"
)

func TestFileStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state", "portal.json")

	store, err := storage.NewFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Set(storage.KeyAuthToken, "tok-1"))
	require.NoError(t, store.Set(storage.KeyStudentCode, "YT-E000123"))
	require.NoError(t, store.Set(storage.KeyIsLogged, "true"))
	require.NoError(t, store.Delete(storage.KeyIsLogged))

	reopened, err := storage.NewFileStore(path)
	require.NoError(t, err)

	token, ok := reopened.Get(storage.KeyAuthToken)
	require.True(t, ok)
	require.Equal(t, "tok-1", token)
	code, ok := reopened.Get(storage.KeyStudentCode)
	require.True(t, ok)
	require.Equal(t, "YT-E000123", code)
	_, ok = reopened.Get(storage.KeyIsLogged)
	require.False(t, ok)
}

func TestFileStoreMissingFileStartsEmpty(t *testing.T) {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "missing.json"))
	require.NoError(t, err)
	_, ok := store.Get(storage.KeyAuthToken)
	require.False(t, ok)
}

func TestFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := storage.NewFileStore(path)
	require.Error(t, err)
}

func TestFileStoreDeleteMissingKeyIsNoop(t *testing.T) {
	store, err := storage.NewFileStore(filepath.Join(t.TempDir(), "state.json"))
	require.NoError(t, err)
	require.NoError(t, store.Delete("never-set"))
}
