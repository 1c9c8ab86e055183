package nightscout

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/glucolog/glucolog/internal/entries"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type memCursors struct {
	data map[string][]byte
}

func newMemCursors() *memCursors {
	return &memCursors{data: make(map[string][]byte)}
}

func (m *memCursors) SetKV(key string, value []byte) error {
	m.data[key] = value
	return nil
}

func (m *memCursors) GetKV(key string) ([]byte, error) {
	val, ok := m.data[key]
	if !ok {
		return nil, errors.New("key not found")
	}
	return val, nil
}

func setupSyncer(t *testing.T, serverURL string) (*Syncer, *entries.Store, *memCursors) {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{})
	require.NoError(t, err)
	entryStore, err := entries.NewStore(db)
	require.NoError(t, err)

	cursors := newMemCursors()
	syncer := NewSyncer(NewClient(serverURL, ""), entryStore, cursors, zap.NewNop())
	return syncer, entryStore, cursors
}

const syncFixture = `[
	{"_id":"ns_1","sgv":142,"date":1717236000000,"direction":"Flat"},
	{"_id":"ns_2","sgv":138,"date":1717235700000},
	{"_id":"ns_3","sgv":0,"date":1717235400000}
]`

func TestSyncer_ImportsAndDeduplicates(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(syncFixture))
	}))
	defer server.Close()

	syncer, entryStore, cursors := setupSyncer(t, server.URL)

	// Zero-SGV calibration records are skipped.
	imported, err := syncer.Sync(context.Background(), "user_123")
	require.NoError(t, err)
	assert.Equal(t, 2, imported)

	stored, err := entryStore.List("user_123", entries.TypeGlucose, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, "nightscout", stored[0].Source)
	assert.Equal(t, "ns_1", stored[0].ExternalID)
	assert.Equal(t, "direction: Flat", stored[0].Notes)

	// Second run sees the same payload and imports nothing new.
	imported, err = syncer.Sync(context.Background(), "user_123")
	require.NoError(t, err)
	assert.Zero(t, imported)

	assert.Equal(t, []byte("1717236000000"), cursors.data[cursorKey("user_123")])
}

func TestSyncer_CursorBoundsNextFetch(t *testing.T) {
	var gotFrom string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotFrom = r.URL.Query().Get("find[date][$gte]")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	syncer, _, cursors := setupSyncer(t, server.URL)
	require.NoError(t, cursors.SetKV(cursorKey("user_123"), []byte("1717236000000")))

	_, err := syncer.Sync(context.Background(), "user_123")
	require.NoError(t, err)
	assert.Equal(t, "1717236000000", gotFrom)
}

func TestSyncer_PropagatesServerFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	syncer, _, _ := setupSyncer(t, server.URL)
	_, err := syncer.Sync(context.Background(), "user_123")
	assert.Error(t, err)
}
