package mongodb

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Nothing listens on port 1, so every server selection times out.
const unreachableURI = "mongodb://127.0.0.1:1/?connectTimeoutMS=200"

func TestNewRepositoryStartsWhenServerUnreachable(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()

	repo, err := NewMongoDBRepository(ctx, unreachableURI, "feria_test", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close(context.Background()) })

	assert.False(t, repo.IndexesReady())

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer pingCancel()
	assert.Error(t, repo.Ping(pingCtx))
	assert.False(t, repo.IndexesReady())
}
