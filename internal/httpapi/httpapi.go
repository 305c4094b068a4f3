// Package httpapi wires internal/stream and internal/videocache to HTTP,
// using gorilla/mux for routing as DayQuest-CDN's cmd/server/main.go does.
// The streaming handler hijacks the connection on the chunked path so it
// can write the manually framed chunk boundaries internal/stream produces
// instead of letting net/http apply its own chunked Transfer-Encoding on
// top.
package httpapi

import (
	"bufio"
	"context"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"

	"github.com/pulsejet/go-vod-chop/internal/streamerr"
	"github.com/pulsejet/go-vod-chop/internal/stream"
	"github.com/pulsejet/go-vod-chop/internal/telemetry"
	"github.com/pulsejet/go-vod-chop/internal/videocache"
)

// maxReconfigureLineBytes bounds the mid-stream "quality=N&pos=M"
// reconfiguration line read off the hijacked connection, matching
// send_video()'s fixed-size read buffer for the out-of-band control line —
// a client that never sends '\n' can't grow the read unboundedly.
const maxReconfigureLineBytes = 512

// StreamHandler serves /video/{id} requests.
type StreamHandler struct {
	Cache     *videocache.Cache
	Sender    *stream.Sender
	Telemetry telemetry.Sink
	Log       zerolog.Logger
}

// NewRouter builds the full gorilla/mux router: video streaming, a health
// check, and the small set of static assets the original server exposed at
// well-known paths (crossdomain.xml, robots.txt).
func NewRouter(h *StreamHandler) *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/video/{id}", h.ServeHTTP).Methods(http.MethodGet)
	r.HandleFunc("/healthz", HandleHealth(h.Cache)).Methods(http.MethodGet)
	r.HandleFunc("/crossdomain.xml", ServeCrossdomain).Methods(http.MethodGet)
	r.HandleFunc("/robots.txt", ServeRobots).Methods(http.MethodGet)
	r.Use(LoggingMiddleware(h.Log))
	return r
}

func (h *StreamHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	idStr := mux.Vars(r)["id"]
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "invalid video id", http.StatusBadRequest)
		return
	}

	q := r.URL.Query()
	sign := q.Get("sign")
	quality := parseIntParam(q.Get("quality"))
	pos := parseIntParam(q.Get("pos"))

	req := stream.Request{VideoID: id, Sign: sign, Quality: quality, Pos: pos}

	video, err := h.Sender.Acquire(ctx, req)
	if err != nil {
		writeStreamError(w, err)
		return
	}
	defer h.Cache.Release(video)

	chunked := h.Sender.Chunked(video, req)
	variant := video.VariantAt(firstVariantIndex(video, quality))
	w.Header().Set("Content-Type", stream.ContentType(variant.Filename))
	w.Header().Set("Cache-Control", "no-cache")

	var (
		result  stream.Result
		sendErr error
	)

	if !chunked {
		w.WriteHeader(http.StatusOK)
		result, sendErr = h.Sender.Serve(ctx, w, video, req, nil)
	} else {
		result, sendErr = h.serveChunked(ctx, w, video, req)
	}

	h.recordTelemetry(ctx, req, variant.Filename, result, sendErr)
}

func (h *StreamHandler) serveChunked(ctx context.Context, w http.ResponseWriter, video *videocache.Video, req stream.Request) (stream.Result, error) {
	hijacker, ok := w.(http.Hijacker)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return stream.Result{}, streamerr.ErrClientDisconnect
	}

	conn, bufrw, err := hijacker.Hijack()
	if err != nil {
		h.Log.Error().Err(err).Msg("hijack failed")
		return stream.Result{}, err
	}
	defer conn.Close()

	if tcp, ok := conn.(*net.TCPConn); ok {
		if err := tcp.SetWriteBuffer(stream.SocketSendBufferBytes); err != nil {
			h.Log.Warn().Err(err).Msg("setting SO_SNDBUF failed")
		}
	}

	header := "HTTP/1.1 200 OK\r\n" +
		"Content-Type: " + w.Header().Get("Content-Type") + "\r\n" +
		"Cache-Control: no-cache\r\n" +
		"Transfer-Encoding: chunked\r\n" +
		"Connection: close\r\n\r\n"

	if _, err := bufrw.WriteString(header); err != nil {
		return stream.Result{}, err
	}
	if err := bufrw.Flush(); err != nil {
		return stream.Result{}, err
	}

	reconfig := make(chan stream.Reconfigure, 1)
	readerCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go readReconfigure(readerCtx, bufrw.Reader, reconfig)

	return h.Sender.Serve(ctx, flushWriter{rw: bufrw, conn: conn}, video, req, reconfig)
}

// flushWriter flushes after every write so each manually-framed chunk
// reaches the client promptly instead of sitting in bufio's buffer. It also
// forwards SetWriteDeadline to the underlying connection so stream.Serve's
// dynamic SO_SNDTIMEO-equivalent recalculation reaches the real socket.
type flushWriter struct {
	rw   *bufio.ReadWriter
	conn net.Conn
}

func (f flushWriter) Write(p []byte) (int, error) {
	n, err := f.rw.Write(p)
	if err != nil {
		return n, err
	}
	return n, f.rw.Flush()
}

func (f flushWriter) SetWriteDeadline(t time.Time) error {
	return f.conn.SetWriteDeadline(t)
}

// readReconfigure watches the hijacked connection for a client-sent
// "quality=N&pos=M" reconfiguration line, the HTTP analogue of send_video()
// polling the socket with MSG_DONTWAIT between keyframe segments. The line
// is bounded to maxReconfigureLineBytes; anything beyond that is discarded
// rather than grown or parsed whole.
func readReconfigure(ctx context.Context, r *bufio.Reader, out chan<- stream.Reconfigure) {
	for {
		if ctx.Err() != nil {
			return
		}
		line, err := readBoundedLine(r, maxReconfigureLineBytes)
		if line != "" {
			if cfg, ok := parseReconfigureLine(line); ok {
				select {
				case out <- cfg:
				default:
				}
			}
		}
		if err != nil {
			return
		}
	}
}

// readBoundedLine reads at most limit bytes from r looking for '\n',
// returning once it finds one or hits the limit. If the limit is hit first,
// the rest of the line is discarded byte by byte (without being buffered)
// so the stream stays framed for the next read — the payload is truncated
// rather than grown or parsed whole.
func readBoundedLine(r *bufio.Reader, limit int) (string, error) {
	buf := make([]byte, 0, limit)
	for len(buf) < limit {
		b, err := r.ReadByte()
		if err != nil {
			return string(buf), err
		}
		buf = append(buf, b)
		if b == '\n' {
			return string(buf), nil
		}
	}

	for {
		b, err := r.ReadByte()
		if err != nil {
			return string(buf), err
		}
		if b == '\n' {
			return string(buf), nil
		}
	}
}

func parseReconfigureLine(line string) (stream.Reconfigure, bool) {
	var cfg stream.Reconfigure
	found := false
	for _, field := range strings.Split(strings.TrimSpace(line), "&") {
		kv := strings.SplitN(field, "=", 2)
		if len(kv) != 2 {
			continue
		}
		switch kv[0] {
		case "quality":
			if n, err := strconv.Atoi(kv[1]); err == nil {
				cfg.Quality = &n
				found = true
			}
		case "pos":
			if n, err := strconv.Atoi(kv[1]); err == nil {
				cfg.Pos = &n
				found = true
			}
		}
	}
	return cfg, found
}

func parseIntParam(v string) *int {
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return nil
	}
	return &n
}

func firstVariantIndex(video *videocache.Video, quality *int) int {
	if quality != nil && *quality >= 0 && *quality < len(video.Variants) {
		return *quality
	}
	return len(video.Variants) / 2
}

func (h *StreamHandler) recordTelemetry(ctx context.Context, req stream.Request, filename string, result stream.Result, sendErr error) {
	if h.Telemetry == nil {
		return
	}
	ev := telemetry.PlaybackEvent{
		VideoID:           req.VideoID,
		Variant:           filename,
		BytesSent:         result.BytesSent,
		QualityUpshifts:   result.QualityUpshifts,
		QualityDownshifts: result.QualityDownshifts,
		Aborted:           sendErr != nil,
	}
	tctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := h.Telemetry.RecordPlayback(tctx, ev); err != nil {
		h.Log.Warn().Err(err).Msg("recording telemetry failed")
	}
}

func writeStreamError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	var se *streamerr.Error
	if as, ok := err.(*streamerr.Error); ok {
		se = as
	}
	if se != nil {
		switch se.Code {
		case streamerr.CodeInvalidPath, streamerr.CodeMissingSidecar, streamerr.CodeMalformedSidecar,
			streamerr.CodeMissingVariant, streamerr.CodeInvalidOffsets, streamerr.CodeNoStreamsAvailable:
			status = http.StatusNotFound
		case streamerr.CodeInvalidSignature:
			status = http.StatusForbidden
		case streamerr.CodeOutOfMemory:
			status = http.StatusServiceUnavailable
		}
	}
	http.Error(w, err.Error(), status)
}
