package postgres

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/coinhunt/roomengine/internal/database"
	"github.com/coinhunt/roomengine/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Sweeper = (*Backend)(nil)
)

// The dialect wrapper is exercised over sqlite; the SQL it issues is portable.
func TestNewWithDB_InitClose(t *testing.T) {
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "pg.db"))
	require.NoError(t, err)

	b := NewWithDB(db, nil, nil)
	require.NoError(t, b.Init())

	ctx := context.Background()
	require.NoError(t, b.GeoAdd(ctx, "lobby", storage.Member{Name: "coin1"}))
	names, err := b.Members(ctx, "lobby")
	require.NoError(t, err)
	assert.Equal(t, []string{"coin1"}, names)

	require.NoError(t, b.Close())
	assert.Error(t, database.Ping(db))
}

func TestNew_Unreachable(t *testing.T) {
	_, err := New("host=127.0.0.1 port=1 user=x password=x dbname=x sslmode=disable connect_timeout=1", nil, nil)
	assert.Error(t, err)
}
