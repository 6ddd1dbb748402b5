package eventstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var (
	ErrConcurrencyConflict = errors.New("concurrency conflict: version mismatch")
	ErrInvalidVersion      = errors.New("invalid version number")
)

const schema = `
CREATE TABLE IF NOT EXISTS events (
	id BIGSERIAL PRIMARY KEY,
	aggregate_id UUID NOT NULL,
	aggregate_type TEXT NOT NULL,
	event_type TEXT NOT NULL,
	event_data JSONB NOT NULL,
	metadata JSONB,
	version INT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	UNIQUE (aggregate_id, version)
)`

// Event is one journaled domain event.
type Event struct {
	ID            int64             `json:"id" db:"id"`
	AggregateID   uuid.UUID         `json:"aggregate_id" db:"aggregate_id"`
	AggregateType string            `json:"aggregate_type" db:"aggregate_type"`
	EventType     string            `json:"event_type" db:"event_type"`
	EventData     json.RawMessage   `json:"event_data" db:"event_data"`
	Metadata      map[string]string `json:"metadata" db:"metadata"`
	Version       int               `json:"version" db:"version"`
	CreatedAt     time.Time         `json:"created_at" db:"created_at"`
}

// EventStore is an append-only, per-aggregate versioned journal in Postgres.
type EventStore struct {
	db     *sql.DB
	tracer trace.Tracer
}

func NewEventStore(db *sql.DB) *EventStore {
	return &EventStore{
		db:     db,
		tracer: otel.Tracer("categoryhub/eventstore"),
	}
}

// EnsureSchema creates the events table when it does not exist yet.
func (es *EventStore) EnsureSchema(ctx context.Context) error {
	ctx, span := es.tracer.Start(ctx, "eventstore.ensure_schema")
	defer span.End()

	if _, err := es.db.ExecContext(ctx, schema); err != nil {
		return fail(span, fmt.Errorf("create schema: %w", err))
	}
	return nil
}

// AppendEvents appends events after expectedVersion. A concurrent writer that
// got there first yields ErrConcurrencyConflict.
func (es *EventStore) AppendEvents(ctx context.Context, aggregateID uuid.UUID, aggregateType string, expectedVersion int, events []Event) error {
	if expectedVersion < 0 {
		return ErrInvalidVersion
	}

	ctx, span := es.tracer.Start(ctx, "eventstore.append",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("expected.version", expectedVersion),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	_, err := es.append(ctx, span, aggregateID, aggregateType, &expectedVersion, events)
	return err
}

// Append appends events after whatever version the aggregate is at and
// returns the new version.
func (es *EventStore) Append(ctx context.Context, aggregateID uuid.UUID, aggregateType string, events []Event) (int, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.append_next",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.String("aggregate.type", aggregateType),
			attribute.Int("event.count", len(events)),
		),
	)
	defer span.End()

	return es.append(ctx, span, aggregateID, aggregateType, nil, events)
}

func (es *EventStore) append(ctx context.Context, span trace.Span, aggregateID uuid.UUID, aggregateType string, expectedVersion *int, events []Event) (int, error) {
	tx, err := es.db.BeginTx(ctx, &sql.TxOptions{
		Isolation: sql.LevelSerializable,
	})
	if err != nil {
		return 0, fail(span, fmt.Errorf("begin transaction: %w", err))
	}
	defer tx.Rollback()

	var currentVersion int
	err = tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&currentVersion)
	if err != nil && err != sql.ErrNoRows {
		return 0, fail(span, fmt.Errorf("query current version: %w", err))
	}

	if expectedVersion != nil && currentVersion != *expectedVersion {
		span.SetAttributes(
			attribute.Int("actual.version", currentVersion),
			attribute.Bool("conflict.detected", true),
		)
		return 0, ErrConcurrencyConflict
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`)
	if err != nil {
		return 0, fail(span, fmt.Errorf("prepare statement: %w", err))
	}
	defer stmt.Close()

	version := currentVersion
	for i, event := range events {
		version++
		metadataJSON, err := json.Marshal(event.Metadata)
		if err != nil {
			return 0, fail(span, fmt.Errorf("encode metadata %d: %w", i, err))
		}

		var eventID int64
		err = stmt.QueryRowContext(
			ctx,
			aggregateID,
			aggregateType,
			event.EventType,
			[]byte(event.EventData),
			metadataJSON,
			version,
			time.Now().UTC(),
		).Scan(&eventID)
		if err != nil {
			var pqErr *pq.Error
			if errors.As(err, &pqErr) && pqErr.Code == "23505" {
				return 0, ErrConcurrencyConflict
			}
			return 0, fail(span, fmt.Errorf("insert event %d: %w", i, err))
		}

		span.AddEvent("event.appended", trace.WithAttributes(
			attribute.Int64("event.id", eventID),
			attribute.Int("event.version", version),
			attribute.String("event.type", event.EventType),
		))
	}

	if err := tx.Commit(); err != nil {
		return 0, fail(span, fmt.Errorf("commit transaction: %w", err))
	}

	span.SetAttributes(attribute.Int("new.version", version))
	return version, nil
}

// LoadEvents returns the events of an aggregate in version order. A
// toVersion of 0 means no upper bound.
func (es *EventStore) LoadEvents(ctx context.Context, aggregateID uuid.UUID, fromVersion, toVersion int) ([]Event, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.load",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
			attribute.Int("from.version", fromVersion),
			attribute.Int("to.version", toVersion),
		),
	)
	defer span.End()

	query, args := loadQuery(aggregateID, fromVersion, toVersion)

	rows, err := es.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fail(span, fmt.Errorf("query events: %w", err))
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var event Event
		var data, metadataJSON []byte

		err := rows.Scan(
			&event.ID,
			&event.AggregateID,
			&event.AggregateType,
			&event.EventType,
			&data,
			&metadataJSON,
			&event.Version,
			&event.CreatedAt,
		)
		if err != nil {
			return nil, fail(span, fmt.Errorf("scan event: %w", err))
		}

		event.EventData = data
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &event.Metadata); err != nil {
				return nil, fail(span, fmt.Errorf("decode metadata of event %d: %w", event.ID, err))
			}
		}

		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fail(span, fmt.Errorf("iterate events: %w", err))
	}

	span.SetAttributes(attribute.Int("events.loaded", len(events)))
	return events, nil
}

func loadQuery(aggregateID uuid.UUID, fromVersion, toVersion int) (string, []any) {
	query := `
		SELECT id, aggregate_id, aggregate_type, event_type, event_data, metadata, version, created_at
		FROM events
		WHERE aggregate_id = $1
		AND version >= $2`
	args := []any{aggregateID, fromVersion}

	if toVersion > 0 {
		query += " AND version <= $3"
		args = append(args, toVersion)
	}

	return query + " ORDER BY version ASC", args
}

// GetCurrentVersion returns the latest version of an aggregate, 0 if it has no events.
func (es *EventStore) GetCurrentVersion(ctx context.Context, aggregateID uuid.UUID) (int, error) {
	ctx, span := es.tracer.Start(ctx, "eventstore.get_version",
		trace.WithAttributes(
			attribute.String("aggregate.id", aggregateID.String()),
		),
	)
	defer span.End()

	var version int
	err := es.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(version), 0)
		FROM events
		WHERE aggregate_id = $1
	`, aggregateID).Scan(&version)
	if err != nil && err != sql.ErrNoRows {
		return 0, fail(span, fmt.Errorf("query version: %w", err))
	}

	span.SetAttributes(attribute.Int("current.version", version))
	return version, nil
}

func fail(span trace.Span, err error) error {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
	return err
}
