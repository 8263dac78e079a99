package artifact

import (
	"context"
	"testing"

	"specwatch/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPutAndGetRoundTrip(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "src-1/v3/docs.md", []byte("# API v3")))

	data, err := store.Get(ctx, "src-1/v3/docs.md")
	require.NoError(t, err)
	assert.Equal(t, "# API v3", string(data))
}

func TestPutNeverOverwrites(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "src-1/v1/docs.md", []byte("first")))
	assert.Error(t, store.Put(ctx, "src-1/v1/docs.md", []byte("second")))

	data, err := store.Get(ctx, "src-1/v1/docs.md")
	require.NoError(t, err)
	assert.Equal(t, "first", string(data))
}

func TestGetMissingArtifact(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	_, err = store.Get(context.Background(), "src-1/v9/docs.md")
	assert.ErrorIs(t, err, models.ErrRecordNotFound)
}

func TestPathTraversalRejected(t *testing.T) {
	store, err := NewFSStore(t.TempDir(), zerolog.Nop())
	require.NoError(t, err)

	assert.Error(t, store.Put(context.Background(), "../escape.md", []byte("x")))
	_, err = store.Get(context.Background(), "/etc/passwd")
	assert.Error(t, err)
}
