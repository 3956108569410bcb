package testutil

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/t77yq/promise-engine/internal/store"
)

// SetupStore creates a throwaway sqlite promise store
func SetupStore(t *testing.T) *store.SQLitePromiseStore {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "promises.db")
	promises, err := store.NewSQLitePromiseStore(zap.NewNop(), dbPath)
	require.NoError(t, err)

	t.Cleanup(func() {
		promises.Close()
	})

	return promises
}
