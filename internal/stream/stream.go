// Package stream implements the adaptive chunked sender described in
// stream.c's send_video(): a fast path that writes one variant from its
// starting keyframe to the end in chunkSize writes with no chunk framing,
// and a chunked path that walks keyframe-to-keyframe segments,
// switching quality up or down based on how much real time each segment
// costs to send versus how much playback time it represents.
//
// Unlike the original, the quality-shift accounting (cachedTime and the
// upper/lower thresholds) is carried in nanoseconds end to end
// (time.Duration) — stream.c computed spent_time by truncating a nanosecond
// difference down to whole seconds with ceil()/NANOSEC_IN_SEC, which made
// its cached_time accounting lossy near the one-second boundary. The
// send-timeout tracker (sendTimeout) is the exception: it accumulates
// whole seconds per write, as stream.c does.
package stream

import (
	"context"
	"fmt"
	"io"
	"math"
	"time"

	"github.com/pulsejet/go-vod-chop/internal/videocache"
)

const (
	// upperLimit is the cachedTime buffer above which the sender raises
	// quality one step; lowerLimit is the buffer below which it drops one
	// step. Both mirror UPPER_LIMIT_TIME/LOWER_LIMIT_TIME from stream.c.
	upperLimit = 2 * time.Second
	lowerLimit = 1500 * time.Millisecond

	// chunkSize is the physical write size used to split an inter-keyframe
	// segment into individual HTTP chunks, matching CHUNK_SIZE.
	chunkSize = 1024

	// nextIframeJump is the index step used to size the very first segment
	// sent in the chunked path, matching NEXT_IFRAME.
	nextIframeJump = 2

	segmentPlaybackTime = time.Second

	// SocketSendBufferBytes is the SO_SNDBUF size httpapi applies to the
	// hijacked connection before the first write, matching send_video()'s
	// setsockopt(SO_SNDBUF, 524288).
	SocketSendBufferBytes = 524288
)

// deadlineSetter is implemented by net.Conn and by httpapi's flushWriter,
// which forwards to the underlying connection. Serve type-asserts for it so
// the dynamic SO_SNDTIMEO recalculation below only touches sockets that
// actually support a write deadline — a plain io.Writer (as used in tests)
// just skips it.
type deadlineSetter interface {
	SetWriteDeadline(time.Time) error
}

func applyDeadline(w io.Writer, d time.Duration) {
	if ds, ok := w.(deadlineSetter); ok {
		_ = ds.SetWriteDeadline(time.Now().Add(d))
	}
}

// sendTimeout recomputes the write deadline after every physical write, the
// Go equivalent of send_video()'s recalculated SO_SNDTIMEO:
// ceil((spentSeconds/sentBytes)*CHUNK_SIZE) + configured. spentSeconds
// accumulates ceil(elapsed) per write rather than a running nanosecond sum,
// matching stream.c's lossy whole-seconds accounting.
type sendTimeout struct {
	configured   time.Duration
	spentSeconds float64
	sentBytes    int64
}

func (t *sendTimeout) record(elapsed time.Duration, n int) {
	t.spentSeconds += math.Ceil(elapsed.Seconds())
	t.sentBytes += int64(n)
}

func (t *sendTimeout) next() time.Duration {
	if t.sentBytes == 0 {
		return t.configured
	}
	secs := math.Ceil((t.spentSeconds / float64(t.sentBytes)) * chunkSize)
	return time.Duration(secs)*time.Second + t.configured
}

// Reconfigure carries a mid-stream client request to change quality and/or
// playback position, the Go equivalent of the RNEW_QUALITY_PARAM/
// RNEW_POS_PARAM pair read out-of-band from the socket in send_video()'s
// main loop.
type Reconfigure struct {
	Quality *int
	Pos     *int
}

// Request describes one playback request.
type Request struct {
	VideoID int
	Sign    string
	Quality *int // nil selects the middle variant
	Pos     *int // nil starts at the first keyframe
}

// Result reports what a Serve call actually did, so callers can thread
// byte counts and adaptive quality-shift counts into telemetry.
type Result struct {
	BytesSent         int64
	QualityUpshifts   int
	QualityDownshifts int
}

// Sender drives playback against a shared videocache.Cache.
type Sender struct {
	cache       *videocache.Cache
	sendTimeout time.Duration
}

// NewSender builds a Sender backed by cache. sendTimeout is the configured
// base send timeout (SEND_TIMEOUT_SECONDS) added to the dynamically
// recalculated per-write deadline.
func NewSender(cache *videocache.Cache, sendTimeout time.Duration) *Sender {
	return &Sender{cache: cache, sendTimeout: sendTimeout}
}

// ContentType reports the variant's best-guess MIME type purely from the
// filename extension, for the HTTP layer's Content-Type header.
func ContentType(filename string) string {
	switch ext(filename) {
	case "flv":
		return "video/x-flv"
	case "mp4", "m4v":
		return "video/mp4"
	case "mov":
		return "video/quicktime"
	case "webm", "mkv":
		return "video/webm"
	case "ogv":
		return "video/ogg"
	default:
		return "application/octet-stream"
	}
}

func ext(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return toLower(filename[i+1:])
		}
	}
	return ""
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// Chunked reports whether req would be served over the chunked adaptive
// path rather than the single-shot fast path, so the HTTP layer can decide
// which response headers to send before any bytes go out.
func (s *Sender) Chunked(video *videocache.Video, req Request) bool {
	return len(video.Variants) > 1 && req.Quality == nil
}

// Acquire loads (or reuses) the requested video from the cache. The caller
// must call s.cache.Release on the result.
func (s *Sender) Acquire(ctx context.Context, req Request) (*videocache.Video, error) {
	return s.cache.Acquire(ctx, req.VideoID, req.Sign)
}

// Serve streams the requested video to w and reports what it sent. reconfig
// may be nil; if non-nil it is polled, non-blockingly, once per keyframe
// segment on the chunked path only.
func (s *Sender) Serve(ctx context.Context, w io.Writer, video *videocache.Video, req Request, reconfig <-chan Reconfigure) (Result, error) {
	qualityPos := selectQuality(video, req.Quality)
	variant := video.VariantAt(qualityPos)
	firstIframe := selectPos(variant, req.Pos)

	timer := &sendTimeout{configured: s.sendTimeout}

	if !s.Chunked(video, req) {
		n, err := sendFastPath(w, variant, firstIframe, timer)
		return Result{BytesSent: n}, err
	}
	return sendAdaptive(ctx, w, video, qualityPos, firstIframe, reconfig, timer)
}

func selectQuality(video *videocache.Video, q *int) int {
	if q != nil && *q >= 0 && *q <= len(video.Variants)-1 {
		return *q
	}
	return len(video.Variants) / 2
}

func selectPos(variant *videocache.Variant, pos *int) int {
	if pos != nil && *pos >= 0 && *pos <= len(variant.IframeOffset)-1 {
		return *pos
	}
	return 0
}

// getNextOffset advances from first by jump, then skips over any run of
// equal consecutive iframe offsets, the Go port of stream.c's
// get_next_offset(). Equal consecutive offsets happen when the indexer
// recorded back-to-back keyframes with no intervening non-key video
// packet, and sending a zero-length segment for each would be wasted work.
func getNextOffset(offsets []int64, first, jump int) int {
	next := first + jump
	for next < len(offsets) && offsets[first] == offsets[next] {
		next++
	}
	return next
}

func segmentEnd(variant *videocache.Variant, idx int) int64 {
	if idx < len(variant.IframeOffset) {
		return variant.IframeOffset[idx]
	}
	return variant.Size()
}

// sendFastPath streams a whole variant as a sequence of chunkSize writes
// rather than one big Write, so the SO_SNDTIMEO-equivalent deadline keeps
// getting recalculated across the transfer exactly as send_video()'s fast
// path does (it still loops over CHUNK_SIZE-sized send() calls even though
// it skips HTTP chunked framing).
func sendFastPath(w io.Writer, variant *videocache.Variant, firstIframe int, timer *sendTimeout) (int64, error) {
	data := variant.Data[variant.IframeOffset[firstIframe]:]

	var total int64
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		n, err := writeTimed(w, data[off:end], timer)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func sendAdaptive(ctx context.Context, w io.Writer, video *videocache.Video, qualityPos, firstIframe int, reconfig <-chan Reconfigure, timer *sendTimeout) (Result, error) {
	variant := video.VariantAt(qualityPos)
	offsets := variant.IframeOffset

	nextIframe := getNextOffset(offsets, firstIframe, nextIframeJump)
	firstSegment := variant.Data[offsets[firstIframe]:segmentEnd(variant, nextIframe)]

	var result Result

	n, err := writeFirstChunk(w, firstSegment, timer)
	result.BytesSent += int64(n)
	if err != nil {
		return result, err
	}

	nextIframe = getNextOffset(offsets, nextIframe, 1)

	var cachedTime time.Duration

	for nextIframe <= len(offsets) {
		if ctx.Err() != nil {
			return result, ctx.Err()
		}

		segment := variant.Data[offsets[nextIframe-1]:segmentEnd(variant, nextIframe)]

		start := time.Now()
		n, err := writeChunkedSegment(w, segment, timer)
		result.BytesSent += int64(n)
		if err != nil {
			return result, err
		}
		elapsed := time.Since(start)

		cachedTime += segmentPlaybackTime - elapsed

		if nextIframe <= len(offsets) {
			switch {
			case cachedTime > upperLimit && qualityPos < len(video.Variants)-1:
				qualityPos++
				result.QualityUpshifts++
				variant = video.VariantAt(qualityPos)
				offsets = variant.IframeOffset
			case cachedTime < lowerLimit && qualityPos > 0:
				qualityPos--
				result.QualityDownshifts++
				variant = video.VariantAt(qualityPos)
				offsets = variant.IframeOffset
			}
		}

		nextIframe = getNextOffset(offsets, nextIframe, 1)

		if reconfig != nil {
			select {
			case cfg, ok := <-reconfig:
				if ok {
					applyReconfigure(&qualityPos, &variant, &offsets, &nextIframe, video, cfg)
				}
			default:
			}
		}
	}

	n, err = writeTerminalChunk(w, timer)
	result.BytesSent += int64(n)
	return result, err
}

func applyReconfigure(qualityPos *int, variant **videocache.Variant, offsets *[]int64, nextIframe *int, video *videocache.Video, cfg Reconfigure) {
	if cfg.Quality != nil && *cfg.Quality >= 0 && *cfg.Quality < len(video.Variants) {
		*qualityPos = *cfg.Quality
		*variant = video.VariantAt(*qualityPos)
		*offsets = (*variant).IframeOffset
	}
	if cfg.Pos != nil && *cfg.Pos > 0 && *cfg.Pos < len(*offsets) {
		*nextIframe = *cfg.Pos
	}
}

// writeFirstChunk writes the chunked transfer's very first chunk: a hex
// length, CRLF, then the payload — no leading CRLF, since nothing has been
// written to the body yet.
func writeFirstChunk(w io.Writer, data []byte, timer *sendTimeout) (int, error) {
	head := fmt.Sprintf("%x\r\n", len(data))
	return writeAll(w, head, data, timer)
}

// writeChunkedSegment splits data into chunkSize pieces and writes each as
// its own HTTP chunk, matching send_video()'s inner "Send data in chunks"
// loop.
func writeChunkedSegment(w io.Writer, data []byte, timer *sendTimeout) (int, error) {
	var total int
	for off := 0; off < len(data); off += chunkSize {
		end := off + chunkSize
		if end > len(data) {
			end = len(data)
		}
		piece := data[off:end]
		head := fmt.Sprintf("\r\n%x\r\n", len(piece))
		n, err := writeAll(w, head, piece, timer)
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func writeTerminalChunk(w io.Writer, timer *sendTimeout) (int, error) {
	const tail = "\r\n0\r\n\r\n"
	return writeTimed(w, []byte(tail), timer)
}

// writeAll writes head followed by data as one physical send, recalculating
// and applying the write deadline beforehand and recording the observed
// throughput afterward — the Go equivalent of send_video()'s per-send()
// SO_SNDTIMEO recalculation.
func writeAll(w io.Writer, head string, data []byte, timer *sendTimeout) (int, error) {
	applyDeadline(w, timer.next())

	start := time.Now()
	n, err := io.WriteString(w, head)
	if err != nil {
		timer.record(time.Since(start), n)
		return n, err
	}
	m, err := w.Write(data)
	timer.record(time.Since(start), n+m)
	return n + m, err
}

// writeTimed is writeAll without a separate header, used by the fast path
// and the terminal chunk.
func writeTimed(w io.Writer, data []byte, timer *sendTimeout) (int, error) {
	applyDeadline(w, timer.next())

	start := time.Now()
	n, err := w.Write(data)
	timer.record(time.Since(start), n)
	return n, err
}
