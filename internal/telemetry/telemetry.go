// Package telemetry defines the playback-event sink implemented by
// mysqltelemetry (persisted) and noop (disabled). Neither send_video() nor
// any other part of the original C server recorded playback history; this
// is a supplemented feature, following DayQuest-CDN's pattern of a MySQL-
// backed status table for video lifecycle events.
package telemetry

import "context"

// PlaybackEvent summarizes one completed or aborted playback session.
type PlaybackEvent struct {
	VideoID           int
	Variant           string
	BytesSent         int64
	QualityUpshifts   int
	QualityDownshifts int
	Aborted           bool
}

// Sink persists PlaybackEvents somewhere durable, or nowhere at all.
type Sink interface {
	RecordPlayback(ctx context.Context, ev PlaybackEvent) error
	Close() error
}
