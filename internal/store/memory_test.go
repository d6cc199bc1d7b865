package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soteland/world-map/internal/game"
)

func TestMemoryStore(t *testing.T) {
	ctx := context.Background()
	st := NewMemoryStore()

	_, err := st.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	sess := game.New([]string{"4", "8"})
	require.NoError(t, st.Save(ctx, sess))

	got, err := st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Same(t, sess, got)

	// Save is an upsert.
	sess.State = sess.State.Skip()
	require.NoError(t, st.Save(ctx, sess))
	got, err = st.Get(ctx, sess.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.State.Cursor)

	require.NoError(t, st.Delete(ctx, sess.ID))
	_, err = st.Get(ctx, sess.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting twice is fine.
	assert.NoError(t, st.Delete(ctx, sess.ID))
}
