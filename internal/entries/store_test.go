package entries

import (
	"database/sql"
	"testing"
	"time"

	_ "github.com/glebarez/go-sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupTestStore(t *testing.T) *Store {
	conn, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	conn.SetMaxOpenConns(1)
	db, err := gorm.Open(sqlite.Dialector{Conn: conn}, &gorm.Config{})
	require.NoError(t, err)

	store, err := NewStore(db)
	require.NoError(t, err)
	return store
}

func TestParseType(t *testing.T) {
	for _, valid := range []string{"glucose", "carbs", "medication", "activity"} {
		parsed, err := ParseType(valid)
		require.NoError(t, err)
		assert.Equal(t, Type(valid), parsed)
	}

	_, err := ParseType("weight")
	assert.Error(t, err, "unknown tags must fail, not default")

	_, err = ParseType("")
	assert.Error(t, err)
}

func TestParseStatus(t *testing.T) {
	for _, valid := range []string{"scheduled", "taken", "missed", "skipped"} {
		parsed, err := ParseStatus(valid)
		require.NoError(t, err)
		assert.Equal(t, valid, parsed)
	}

	_, err := ParseStatus("late")
	assert.Error(t, err)
}

func TestStore_CreateAndGet(t *testing.T) {
	store := setupTestStore(t)

	entry := &Entry{
		UserID: "user_123",
		Type:   TypeGlucose,
		Value:  142,
	}
	require.NoError(t, store.Create(entry))
	assert.NotEmpty(t, entry.ID)
	assert.Equal(t, "mg/dL", entry.Unit)
	assert.Equal(t, "manual", entry.Source)

	got, err := store.Get("user_123", entry.ID)
	require.NoError(t, err)
	assert.Equal(t, 142.0, got.Value)
}

func TestStore_CreateRejectsUnknownType(t *testing.T) {
	store := setupTestStore(t)

	err := store.Create(&Entry{UserID: "user_123", Type: "weight", Value: 80})
	assert.Error(t, err)
}

func TestStore_CreateRejectsNonPositiveValue(t *testing.T) {
	store := setupTestStore(t)

	err := store.Create(&Entry{UserID: "user_123", Type: TypeCarbs, Value: 0})
	assert.Error(t, err)
}

func TestStore_Delete(t *testing.T) {
	store := setupTestStore(t)

	entry := &Entry{UserID: "user_123", Type: TypeCarbs, Value: 45}
	require.NoError(t, store.Create(entry))

	require.NoError(t, store.Delete("user_123", entry.ID))

	_, err := store.Get("user_123", entry.ID)
	assert.Error(t, err)

	err = store.Delete("user_123", "missing")
	assert.Error(t, err)
}

func TestStore_ListFilters(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()

	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 110, OccurredAt: now.Add(-2 * time.Hour)}))
	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 160, OccurredAt: now.Add(-1 * time.Hour)}))
	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeCarbs, Value: 30, OccurredAt: now}))
	require.NoError(t, store.Create(&Entry{UserID: "other", Type: TypeGlucose, Value: 99, OccurredAt: now}))

	glucose, err := store.List("user_123", TypeGlucose, time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	require.Len(t, glucose, 2)
	assert.Equal(t, 160.0, glucose[0].Value, "newest first")

	all, err := store.List("user_123", "", time.Time{}, time.Time{}, 0)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	windowed, err := store.List("user_123", TypeGlucose, now.Add(-90*time.Minute), now, 0)
	require.NoError(t, err)
	assert.Len(t, windowed, 1)
}

func TestStore_GlucoseSeriesOrder(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()

	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 150, OccurredAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 120, OccurredAt: now.Add(-2 * time.Hour)}))

	series, err := store.GlucoseSeries("user_123", now.Add(-24*time.Hour), now)
	require.NoError(t, err)
	require.Len(t, series, 2)
	assert.Equal(t, 120.0, series[0].Value, "oldest first")
}

func TestStore_Latest(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()

	latest, err := store.Latest("user_123", TypeGlucose)
	require.NoError(t, err)
	assert.Nil(t, latest)

	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 100, OccurredAt: now.Add(-time.Hour)}))
	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 130, OccurredAt: now}))

	latest, err = store.Latest("user_123", TypeGlucose)
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, 130.0, latest.Value)
}

func TestStore_OverdueMedications(t *testing.T) {
	store := setupTestStore(t)

	overdueTime := time.Now().Add(-2 * time.Hour)
	freshTime := time.Now().Add(-5 * time.Minute)

	require.NoError(t, store.Create(&Entry{
		UserID: "user_123", Type: TypeMedication, Value: 4,
		Name: "insulin aspart", Status: StatusScheduled, ScheduledAt: &overdueTime,
	}))
	require.NoError(t, store.Create(&Entry{
		UserID: "user_123", Type: TypeMedication, Value: 4,
		Name: "insulin aspart", Status: StatusScheduled, ScheduledAt: &freshTime,
	}))
	require.NoError(t, store.Create(&Entry{
		UserID: "user_123", Type: TypeMedication, Value: 4,
		Name: "metformin", Status: StatusTaken,
	}))

	overdue, err := store.OverdueMedications("user_123", 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, overdue, 1)
	assert.Equal(t, overdueTime.Unix(), overdue[0].ScheduledAt.Unix())
}

func TestStore_HasExternalID(t *testing.T) {
	store := setupTestStore(t)

	require.NoError(t, store.Create(&Entry{
		UserID: "user_123", Type: TypeGlucose, Value: 140,
		Source: "nightscout", ExternalID: "ns_abc",
	}))

	exists, err := store.HasExternalID("user_123", "ns_abc")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.HasExternalID("user_123", "ns_missing")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestStore_CountByDay(t *testing.T) {
	store := setupTestStore(t)
	now := time.Now()
	yesterday := now.Add(-24 * time.Hour)

	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 110, OccurredAt: now}))
	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeCarbs, Value: 40, OccurredAt: now}))
	require.NoError(t, store.Create(&Entry{UserID: "user_123", Type: TypeGlucose, Value: 120, OccurredAt: yesterday}))

	days, err := store.CountByDay("user_123", now.Add(-48*time.Hour), now.Add(time.Hour))
	require.NoError(t, err)

	assert.Len(t, days, 2)
	assert.Equal(t, 2, days[now.Local().Format("2006-01-02")])
}
