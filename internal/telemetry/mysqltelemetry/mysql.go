// Package mysqltelemetry persists playback events to MySQL, adapted from
// DayQuest-CDN's internal/database.NewDatabaseConnection: the same
// retry-until-reachable dial loop, swapped from the standard log package to
// zerolog and from video-status rows to playback-event rows.
package mysqltelemetry

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog"

	"github.com/pulsejet/go-vod-chop/internal/telemetry"
)

// Sink writes playback events to a `playback_events` table.
type Sink struct {
	db  *sql.DB
	log zerolog.Logger
}

// Connect opens a MySQL connection, retrying at a fixed interval until it
// succeeds or ctx is cancelled — the same shape as
// NewDatabaseConnection's dial loop, bounded instead of unconditional.
func Connect(ctx context.Context, dsn string, log zerolog.Logger) (*Sink, error) {
	const retryDelay = 5 * time.Second

	for {
		db, err := sql.Open("mysql", dsn)
		if err == nil {
			if err = db.PingContext(ctx); err == nil {
				log.Info().Msg("connected to telemetry database")
				return &Sink{db: db, log: log}, nil
			}
			db.Close()
		}

		log.Warn().Err(err).Dur("retry_in", retryDelay).Msg("telemetry database unreachable")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(retryDelay):
		}
	}
}

func (s *Sink) RecordPlayback(ctx context.Context, ev telemetry.PlaybackEvent) error {
	const query = `INSERT INTO playback_events
		(video_id, variant, bytes_sent, quality_upshifts, quality_downshifts, aborted, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`

	_, err := s.db.ExecContext(ctx, query,
		ev.VideoID, ev.Variant, ev.BytesSent, ev.QualityUpshifts, ev.QualityDownshifts, ev.Aborted, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mysqltelemetry: recording playback event: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.db.Close()
}
