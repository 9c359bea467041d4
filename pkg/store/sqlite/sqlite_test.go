package sqlite

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/veesix-networks/segmentd/pkg/store"
	"github.com/veesix-networks/segmentd/pkg/store/storetest"
)

func newTestStore(t *testing.T) store.Store {
	st, err := Open(filepath.Join(t.TempDir(), "segments.db"))
	require.NoError(t, err)
	return st
}

func TestStore(t *testing.T) {
	storetest.Run(t, newTestStore)
}

func TestOpenCreatesDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "segments.db")
	st, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, st.Close())
}

func TestReopenKeepsSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "segments.db")

	st, err := Open(path)
	require.NoError(t, err)
	storetest.Create(t, st, storetest.NewSegment(t, 1, "virtual", "10", "10.0.0.0/29"))
	require.NoError(t, st.Close())

	st, err = Open(path)
	require.NoError(t, err)
	defer st.Close()

	var n int
	require.NoError(t, st.View(t.Context(), func(tx store.ReadTx) error {
		var err error
		n, err = tx.CountSegments(t.Context())
		return err
	}))
	require.Equal(t, 1, n)
}
