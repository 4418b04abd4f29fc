//go:build integration

package session

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/b2b-content-agent/internal/db"
)

func TestIntegration_PGStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set, skipping integration test")
	}

	ctx := context.Background()
	database, err := db.Connect(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(database.Close)

	store, err := NewPGStore(ctx, database)
	require.NoError(t, err)

	id := "it-" + uuid.NewString()
	s := sampleSession(id)
	require.NoError(t, store.Save(ctx, s))

	loaded, err := store.Load(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, s.CallsUsed, loaded.CallsUsed)
	assert.Len(t, loaded.Artifacts, 1)

	_, err = store.Load(ctx, "it-missing-"+uuid.NewString())
	assert.ErrorIs(t, err, ErrNotFound)
}
