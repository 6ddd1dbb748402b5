package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"testing"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// setupTestDB connects to the PostgreSQL database named by the PG*
// environment variables and skips the test when it is unreachable.
func setupTestDB(t testing.TB) *sql.DB {
	t.Helper()

	env := func(key, fallback string) string {
		if v := os.Getenv(key); v != "" {
			return v
		}
		return fallback
	}

	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		env("PGHOST", "localhost"),
		env("PGPORT", "5432"),
		env("PGUSER", "user"),
		env("PGPASSWORD", "password"),
		env("PGDATABASE", "testdb"),
	)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		t.Fatalf("failed to open database connection: %v", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		t.Skipf("skipping: could not connect to postgres: %v", err)
	}

	if err := NewEventStore(db).EnsureSchema(context.Background()); err != nil {
		t.Fatalf("failed to create schema: %v", err)
	}

	return db
}

type testPayload struct {
	Message string `json:"message"`
}

func testEvent(t testing.TB, msg string) Event {
	data, err := json.Marshal(testPayload{Message: msg})
	require.NoError(t, err)
	return Event{
		EventType: "TestEvent",
		EventData: data,
		Metadata:  map[string]string{"source": "test"},
	}
}

func TestLoadQuery(t *testing.T) {
	id := uuid.New()

	query, args := loadQuery(id, 1, 0)
	assert.NotContains(t, query, "$3")
	assert.Equal(t, []any{id, 1}, args)

	query, args = loadQuery(id, 2, 5)
	assert.Contains(t, query, "version <= $3")
	assert.Equal(t, []any{id, 2, 5}, args)
}

func TestAppendEventsRejectsNegativeVersion(t *testing.T) {
	store := NewEventStore(nil)
	err := store.AppendEvents(context.Background(), uuid.New(), "category", -1, nil)
	assert.ErrorIs(t, err, ErrInvalidVersion)
}

func TestAppendAndLoad(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.AppendEvents(ctx, id, "category", 0, []Event{testEvent(t, "a"), testEvent(t, "b")}))

	version, err := store.GetCurrentVersion(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, version)

	events, err := store.LoadEvents(ctx, id, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, 1, events[0].Version)
	assert.Equal(t, 2, events[1].Version)
	assert.Equal(t, "category", events[0].AggregateType)
	assert.Equal(t, "test", events[0].Metadata["source"])
	assert.JSONEq(t, `{"message":"b"}`, string(events[1].EventData))

	events, err = store.LoadEvents(ctx, id, 2, 2)
	require.NoError(t, err)
	require.Len(t, events, 1)
}

func TestAppendEventsConflict(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()
	id := uuid.New()

	require.NoError(t, store.AppendEvents(ctx, id, "category", 0, []Event{testEvent(t, "a")}))
	err := store.AppendEvents(ctx, id, "category", 0, []Event{testEvent(t, "b")})
	assert.ErrorIs(t, err, ErrConcurrencyConflict)
}

func TestAppendContinuesFromCurrentVersion(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()
	id := uuid.New()

	version, err := store.Append(ctx, id, "category", []Event{testEvent(t, "a")})
	require.NoError(t, err)
	assert.Equal(t, 1, version)

	version, err = store.Append(ctx, id, "category", []Event{testEvent(t, "b"), testEvent(t, "c")})
	require.NoError(t, err)
	assert.Equal(t, 3, version)
}

func TestConcurrentAppendsNeverDuplicateVersions(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()
	store := NewEventStore(db)
	ctx := context.Background()
	id := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			// Losers of the race report a conflict or a serialization failure.
			store.AppendEvents(ctx, id, "category", 0, []Event{testEvent(t, fmt.Sprint(i))})
		}(i)
	}
	wg.Wait()

	events, err := store.LoadEvents(ctx, id, 0, 0)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}

func TestGetCurrentVersionUnknownAggregate(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	version, err := NewEventStore(db).GetCurrentVersion(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.Equal(t, 0, version)
}

func BenchmarkAppendEvents(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		b.StopTimer()
		aggregateID := uuid.New()
		events := []Event{testEvent(b, fmt.Sprintf("event %d", i))}
		b.StartTimer()

		if err := store.AppendEvents(context.Background(), aggregateID, "category", 0, events); err != nil {
			b.Fatalf("AppendEvents failed: %v", err)
		}
	}
}

func BenchmarkLoadEvents(b *testing.B) {
	db := setupTestDB(b)
	defer db.Close()
	store := NewEventStore(db)

	aggregateID := uuid.New()
	for i := 0; i < 10; i++ {
		events := []Event{testEvent(b, fmt.Sprintf("event %d", i))}
		if err := store.AppendEvents(context.Background(), aggregateID, "category", i, events); err != nil {
			b.Fatalf("failed to setup events for benchmark: %v", err)
		}
	}

	b.ReportAllocs()
	b.ResetTimer()

	for i := 0; i < b.N; i++ {
		if _, err := store.LoadEvents(context.Background(), aggregateID, 0, 0); err != nil {
			b.Fatalf("LoadEvents failed: %v", err)
		}
	}
}
