// Package noop implements telemetry.Sink as a discard target, used when no
// telemetry DSN is configured.
package noop

import (
	"context"

	"github.com/pulsejet/go-vod-chop/internal/telemetry"
)

// Sink discards every event.
type Sink struct{}

// New builds a Sink.
func New() Sink { return Sink{} }

func (Sink) RecordPlayback(context.Context, telemetry.PlaybackEvent) error { return nil }

func (Sink) Close() error { return nil }
