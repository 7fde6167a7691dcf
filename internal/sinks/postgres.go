// Package sinks provides concrete, library-backed implementations of the
// pkg/dc600/sink interfaces, grounded on the teacher stack's sibling
// ingestion service: a pgxpool-backed upsert writer for positions, a
// franz-go producer for forwarding alarm events, and a gzip-compressing
// blob store for multimedia.
package sinks

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/fleetwave/dc600core/pkg/dc600/record"
)

// PostgresPositionSink persists decoded Positions to a positions table,
// upserting on (device_id, original_seq) so re-delivered sub-packaged
// batches never duplicate a row. Mirrors the teacher stack's
// pool-plus-logger Writer shape (internal/state/writer.go) rather than a
// bare *sql.DB, since the rest of this stack standardizes on pgxpool.
type PostgresPositionSink struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPostgresPositionSink wraps an already-connected pool.
func NewPostgresPositionSink(pool *pgxpool.Pool, logger *zap.Logger) *PostgresPositionSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresPositionSink{pool: pool, logger: logger}
}

// NewPostgresPool opens and pings a pgxpool.Pool for dsn, the same
// ParseConfig-then-Ping shape as the teacher's internal/db.NewPool.
func NewPostgresPool(ctx context.Context, dsn string, maxConns, minConns int32) (*pgxpool.Pool, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("sinks: parsing postgres dsn: %w", err)
	}
	cfg.MaxConns = maxConns
	cfg.MinConns = minConns

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sinks: creating postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("sinks: pinging postgres: %w", err)
	}
	return pool, nil
}

// Accept implements sink.PositionSink.
func (s *PostgresPositionSink) Accept(ctx context.Context, pos *record.Position) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO positions (device_id, reported_at, latitude, longitude, altitude_m,
			speed_kmh, heading_deg, valid_fix, alarm_tags, original_seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (device_id, original_seq) DO UPDATE SET
			reported_at = EXCLUDED.reported_at,
			latitude    = EXCLUDED.latitude,
			longitude   = EXCLUDED.longitude,
			altitude_m  = EXCLUDED.altitude_m,
			speed_kmh   = EXCLUDED.speed_kmh,
			heading_deg = EXCLUDED.heading_deg,
			valid_fix   = EXCLUDED.valid_fix,
			alarm_tags  = EXCLUDED.alarm_tags`,
		pos.DeviceID, pos.Time, pos.Latitude, pos.Longitude, pos.Altitude,
		pos.SpeedKMH, pos.HeadingDeg, pos.ValidFix, pos.Alarms.Tags(), pos.OriginalSeq,
	)
	if err != nil {
		return fmt.Errorf("sinks: upserting position for %s: %w", pos.DeviceID, err)
	}
	return nil
}
