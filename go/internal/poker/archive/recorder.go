package archive

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog/log"
)

var ErrNoRoomCode = errors.New("round result has no room code")

// RoundResult is one revealed round as it gets archived.
type RoundResult struct {
	RoomCode   string
	Round      int
	Votes      map[string]string
	Average    *float64
	RevealedAt time.Time
}

// Recorder persists revealed rounds. Recording the same round twice is a no-op.
type Recorder interface {
	RecordRound(ctx context.Context, result RoundResult) error
}

const schema = `
CREATE TABLE IF NOT EXISTS estimate_rounds (
	room_code   TEXT             NOT NULL,
	round       INTEGER          NOT NULL,
	votes       JSONB            NOT NULL,
	average     DOUBLE PRECISION,
	revealed_at TIMESTAMPTZ      NOT NULL,
	recorded_at TIMESTAMPTZ      NOT NULL DEFAULT now(),
	PRIMARY KEY (room_code, round)
)`

// PostgresRecorder archives rounds in Postgres
type PostgresRecorder struct {
	pool *pgxpool.Pool
}

// NewPostgresRecorder connects to dsn and verifies the connection.
func NewPostgresRecorder(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	return &PostgresRecorder{pool: pool}, nil
}

func (r *PostgresRecorder) Close() {
	r.pool.Close()
}

// EnsureSchema creates the archive table if it does not exist.
func (r *PostgresRecorder) EnsureSchema(ctx context.Context) error {
	if _, err := r.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("failed to create estimate_rounds: %w", err)
	}
	return nil
}

func (r *PostgresRecorder) RecordRound(ctx context.Context, result RoundResult) error {
	if result.RoomCode == "" {
		return ErrNoRoomCode
	}
	votes := result.Votes
	if votes == nil {
		votes = map[string]string{}
	}

	tag, err := r.pool.Exec(ctx, `
		INSERT INTO estimate_rounds (room_code, round, votes, average, revealed_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (room_code, round) DO NOTHING`,
		result.RoomCode, result.Round, votes, result.Average, result.RevealedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record round %d of %s: %w", result.Round, result.RoomCode, err)
	}

	log.Debug().
		Str("room_code", result.RoomCode).
		Int("round", result.Round).
		Bool("inserted", tag.RowsAffected() == 1).
		Msg("round archived")
	return nil
}

// Rounds returns every archived round of a room, oldest first.
func (r *PostgresRecorder) Rounds(ctx context.Context, roomCode string) ([]RoundResult, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT room_code, round, votes, average, revealed_at
		FROM estimate_rounds
		WHERE room_code = $1
		ORDER BY round`, roomCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query rounds: %w", err)
	}

	results, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (RoundResult, error) {
		var res RoundResult
		err := row.Scan(&res.RoomCode, &res.Round, &res.Votes, &res.Average, &res.RevealedAt)
		return res, err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to scan rounds: %w", err)
	}
	return results, nil
}
