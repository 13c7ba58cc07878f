package store

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dmitrymomot/mailblocks/internal/database"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Postgres backs the record collection with a schedules table. Status
// transitions are compare-and-set UPDATEs, so two concurrent writers to the
// same record cannot lose each other's update; writers to different records
// never block each other beyond row-level locking.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a postgres-backed store and applies pending schema
// migrations.
func NewPostgres(ctx context.Context, pool *pgxpool.Pool, log *slog.Logger) (*Postgres, error) {
	if pool == nil {
		return nil, fmt.Errorf("store: pool is required")
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if err := database.Migrate(ctx, pool, migrations, log); err != nil {
		return nil, err
	}
	return &Postgres{pool: pool}, nil
}

const recordColumns = `schedule_id, handle, recipient, subject, payload, target_time, status, created_at, sent_at, cancelled_at`

// Create implements Store.
func (s *Postgres) Create(ctx context.Context, rec Record) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO schedules (`+recordColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.ScheduleID, rec.Handle, rec.Recipient, rec.Subject, rec.Payload,
		rec.TargetTime, rec.Status, rec.CreatedAt, rec.SentAt, rec.CancelledAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", ErrAlreadyExists, rec.ScheduleID)
		}
		return fmt.Errorf("store: insert schedule: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *Postgres) Get(ctx context.Context, scheduleID string) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+recordColumns+` FROM schedules WHERE schedule_id = $1`, scheduleID)
	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, scheduleID)
	}
	if err != nil {
		return Record{}, fmt.Errorf("store: select schedule: %w", err)
	}
	return rec, nil
}

// List implements Store.
func (s *Postgres) List(ctx context.Context) ([]Record, error) {
	rows, err := s.pool.Query(ctx, `SELECT `+recordColumns+` FROM schedules`)
	if err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("store: scan schedule: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list schedules: %w", err)
	}
	return records, nil
}

// SetHandle implements Store.
func (s *Postgres) SetHandle(ctx context.Context, scheduleID, handle string) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE schedules SET handle = $2 WHERE schedule_id = $1`, scheduleID, handle)
	if err != nil {
		return fmt.Errorf("store: set handle: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, scheduleID)
	}
	return nil
}

// Transition implements Store. The UPDATE only matches when the record is
// still in the expected status, which makes the read-check-write cycle a
// single atomic statement.
func (s *Postgres) Transition(ctx context.Context, scheduleID string, from, to Status, at time.Time) (Record, error) {
	row := s.pool.QueryRow(ctx,
		`UPDATE schedules
		   SET status = $3,
		       sent_at = CASE WHEN $3 = 'sent' THEN $4 ELSE sent_at END,
		       cancelled_at = CASE WHEN $3 = 'cancelled' THEN $4 ELSE cancelled_at END
		 WHERE schedule_id = $1 AND status = $2
		 RETURNING `+recordColumns,
		scheduleID, from, to, at,
	)
	rec, err := scanRecord(row)
	if err == nil {
		return rec, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return Record{}, fmt.Errorf("store: update schedule: %w", err)
	}

	// No row matched: distinguish a missing record from a lost race.
	current, getErr := s.Get(ctx, scheduleID)
	if getErr != nil {
		return Record{}, getErr
	}
	return Record{}, fmt.Errorf("%w: %s is %s, expected %s",
		ErrIllegalTransition, scheduleID, current.Status, from)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ScheduleID, &rec.Handle, &rec.Recipient, &rec.Subject, &rec.Payload,
		&rec.TargetTime, &rec.Status, &rec.CreatedAt, &rec.SentAt, &rec.CancelledAt,
	)
	return rec, err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}
