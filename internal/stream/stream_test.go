package stream

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/pulsejet/go-vod-chop/internal/videocache"
)

func singleVariantVideo() *videocache.Video {
	return &videocache.Video{
		ID: 1,
		Variants: []videocache.Variant{
			{Filename: "a.flv", Data: []byte("0123456789"), IframeOffset: []int64{0, 4}},
		},
	}
}

func multiVariantVideo() *videocache.Video {
	return &videocache.Video{
		ID: 2,
		Variants: []videocache.Variant{
			{Filename: "low.flv", Data: bytes.Repeat([]byte{'L'}, 4096), IframeOffset: []int64{0, 1024, 2048, 3072}},
			{Filename: "mid.flv", Data: bytes.Repeat([]byte{'M'}, 4096), IframeOffset: []int64{0, 1024, 2048, 3072}},
			{Filename: "high.flv", Data: bytes.Repeat([]byte{'H'}, 4096), IframeOffset: []int64{0, 1024, 2048, 3072}},
		},
	}
}

func TestGetNextOffsetSkipsDuplicates(t *testing.T) {
	offsets := []int64{0, 10, 10, 10, 20}
	got := getNextOffset(offsets, 1, 1)
	require.Equal(t, 4, got)
}

func TestSendFastPathSingleVariant(t *testing.T) {
	video := singleVariantVideo()
	var buf bytes.Buffer

	s := NewSender(nil, 0)
	req := Request{VideoID: 1}

	result, err := s.Serve(context.Background(), &buf, video, req, nil)
	require.NoError(t, err)
	require.EqualValues(t, buf.Len(), result.BytesSent)
	require.Equal(t, "0123456789", buf.String())
}

func TestSendFastPathWithExplicitQuality(t *testing.T) {
	video := multiVariantVideo()
	var buf bytes.Buffer

	s := NewSender(nil, 0)
	q := 0
	req := Request{VideoID: 2, Quality: &q}

	require.False(t, s.Chunked(video, req), "explicit quality should force the fast path")

	_, err := s.Serve(context.Background(), &buf, video, req, nil)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(buf.String(), "LLLL"), "expected low-quality bytes, got prefix %q", buf.String()[:4])
}

func TestSendAdaptiveProducesValidChunkFraming(t *testing.T) {
	video := multiVariantVideo()
	var buf bytes.Buffer

	s := NewSender(nil, 0)
	req := Request{VideoID: 2}

	require.True(t, s.Chunked(video, req), "multi-variant video with no explicit quality should use the chunked path")

	_, err := s.Serve(context.Background(), &buf, video, req, nil)
	require.NoError(t, err)

	out := buf.String()
	require.True(t, strings.HasSuffix(out, "\r\n0\r\n\r\n"), "missing terminal chunk, got suffix %q", out[len(out)-10:])
}

func TestSendAdaptiveHonorsReconfigure(t *testing.T) {
	video := multiVariantVideo()
	var buf bytes.Buffer

	s := NewSender(nil, 0)
	req := Request{VideoID: 2}

	reconfig := make(chan Reconfigure, 1)
	q := 2
	reconfig <- Reconfigure{Quality: &q}

	_, err := s.Serve(context.Background(), &buf, video, req, reconfig)
	require.NoError(t, err)
	require.Contains(t, buf.String(), "HHHH", "expected a switch to the high-quality variant after reconfigure")
}

// TestSendAdaptiveDownshiftsOnFastTransfer exercises a real timing-driven
// quality shift rather than an explicit reconfigure: cachedTime starts at
// zero and one timed segment can credit at most segmentPlaybackTime (1s),
// which is below lowerLimit, so even though in-memory writes finish in
// nanoseconds the sender drops from the default mid-quality selection to low
// quality with no client input at all.
func TestSendAdaptiveDownshiftsOnFastTransfer(t *testing.T) {
	video := multiVariantVideo()
	var buf bytes.Buffer

	s := NewSender(nil, 0)
	req := Request{VideoID: 2}

	result, err := s.Serve(context.Background(), &buf, video, req, nil)
	require.NoError(t, err)
	require.Positive(t, result.QualityDownshifts)
	require.Zero(t, result.QualityUpshifts)

	out := buf.String()
	midAt := strings.Index(out, "MMMM")
	lowAt := strings.LastIndex(out, "LLLL")
	require.GreaterOrEqual(t, midAt, 0, "expected mid-quality bytes before the downshift")
	require.GreaterOrEqual(t, lowAt, 0, "expected low-quality bytes after the downshift")
	require.Greater(t, lowAt, midAt, "low-quality bytes should follow mid-quality bytes")
}

func TestSendTimeoutNextUsesConfiguredFloorBeforeFirstWrite(t *testing.T) {
	timer := &sendTimeout{configured: 5 * time.Second}
	require.Equal(t, 5*time.Second, timer.next())
}

func TestSendTimeoutNextGrowsWithSlowWrites(t *testing.T) {
	timer := &sendTimeout{configured: 5 * time.Second}
	timer.record(2*time.Second, chunkSize)
	// ceil((2/1024)*1024) + 5 == 2 + 5
	require.Equal(t, 7*time.Second, timer.next())
}
