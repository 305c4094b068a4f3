// Package videocache holds decoded video variants in memory and hands out
// reference-counted handles to internal/stream. It is the Go counterpart of
// stream.c's load_video()/unload_video(): the mutex discipline (release the
// lock during disk I/O, then re-check for a racing concurrent insert before
// adding) and the bsearch-by-id cache lookup are ported directly from there.
// The eviction goroutine completes async_clean.c's check_video_alloc(),
// which in the original was an endless loop with its delete-from-memory
// branch left empty.
package videocache

import (
	"bytes"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsejet/go-vod-chop/internal/sidecar"
	"github.com/pulsejet/go-vod-chop/internal/signature"
	"github.com/pulsejet/go-vod-chop/internal/streamerr"
	"github.com/pulsejet/go-vod-chop/internal/variantstore"
)

// Variant is one loaded quality rendition of a video: the whole file read
// into memory, plus its keyframe offset table. Buffering the full file
// mirrors stream.c, where cur_stream->data is the result of
// get_file_contents() on the variant file — chunked sends slice directly
// out of this buffer instead of re-reading the file per request.
type Variant struct {
	Filename     string
	Data         []byte
	IframeOffset []int64
}

// Size returns the length of the variant's data in bytes, which is also the
// offset one past its end.
func (v *Variant) Size() int64 { return int64(len(v.Data)) }

// Video is one numeric-ID entry from the library tree, holding every
// quality variant sorted ascending by size, matching
// compare_stream_size()'s ordering in stream.c.
type Video struct {
	ID       int
	Path     string
	Sign     string
	Variants []Variant
	Size     int64

	refCount    int
	periodCount int
	reqCount    int
}

// VariantAt returns the i'th variant, clamped to the valid index range.
func (v *Video) VariantAt(i int) *Variant {
	if i < 0 {
		i = 0
	}
	if i > len(v.Variants)-1 {
		i = len(v.Variants) - 1
	}
	return &v.Variants[i]
}

// Cache is the process-wide in-memory video cache.
type Cache struct {
	mu sync.Mutex

	store      variantstore.Store
	signedAuth bool
	memBudget  int64
	memUsed    int64

	videos []*Video // kept sorted by ID, mirrors the C bsearch array
	log    zerolog.Logger
}

// New builds an empty Cache reading variants through store.
func New(store variantstore.Store, memBudget int64, signedAuth bool, log zerolog.Logger) *Cache {
	return &Cache{
		store:      store,
		signedAuth: signedAuth,
		memBudget:  memBudget,
		log:        log,
	}
}

// MemUsed reports the current accounted memory, for telemetry/health.
func (c *Cache) MemUsed() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.memUsed
}

func (c *Cache) find(id int) (*Video, int) {
	idx := sort.Search(len(c.videos), func(i int) bool { return c.videos[i].ID >= id })
	if idx < len(c.videos) && c.videos[idx].ID == id {
		return c.videos[idx], idx
	}
	return nil, idx
}

func (c *Cache) insertSorted(v *Video) {
	_, idx := c.find(v.ID)
	c.videos = append(c.videos, nil)
	copy(c.videos[idx+1:], c.videos[idx:])
	c.videos[idx] = v
}

// Acquire returns a reference-counted handle to the video with the given
// numeric id, loading it from disk on a cache miss. The caller must call
// Release exactly once for every successful Acquire.
func (c *Cache) Acquire(ctx context.Context, id int, sign string) (*Video, error) {
	c.mu.Lock()

	if v, _ := c.find(id); v != nil {
		if c.signedAuth && v.Sign != sign {
			c.mu.Unlock()
			return nil, streamerr.Wrap(streamerr.ErrInvalidSignature, fmt.Errorf("video %d", id))
		}
		v.refCount++
		v.reqCount++
		c.mu.Unlock()
		return v, nil
	}

	// Miss: release the lock for the disk I/O, exactly as load_video() does,
	// then re-check before inserting in case another goroutine raced us.
	c.mu.Unlock()

	loaded, err := c.loadFromDisk(ctx, id)
	if err != nil {
		return nil, err
	}

	if c.signedAuth && loaded.Sign != sign {
		return nil, streamerr.Wrap(streamerr.ErrInvalidSignature, fmt.Errorf("video %d", id))
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if existing, _ := c.find(id); existing != nil {
		// Someone else loaded it first; use theirs and drop ours.
		existing.refCount++
		existing.reqCount++
		return existing, nil
	}

	loaded.refCount = 1
	loaded.reqCount = 1
	c.insertSorted(loaded)
	c.memUsed += loaded.Size

	return loaded, nil
}

// Release decrements the reference count on v. Unlike unload_video(), a
// video reaching a zero refcount is not freed immediately; it becomes
// eligible for the background evictor, so a subsequent Acquire for the same
// id within the eviction period is still a cache hit.
func (c *Cache) Release(v *Video) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v.refCount--
}

func (c *Cache) loadFromDisk(ctx context.Context, id int) (*Video, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	dir := fmt.Sprintf("%d", id)
	raw, err := c.store.ReadSidecar(ctx, dir)
	if err != nil {
		return nil, streamerr.Wrap(streamerr.ErrMissingSidecar, err)
	}
	rec, err := sidecar.Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, err
	}

	video := &Video{
		ID:       id,
		Path:     rec.Path,
		Sign:     rec.Sign,
		Variants: make([]Variant, 0, len(rec.Variants)),
	}

	for _, vr := range rec.Variants {
		data, err := c.store.ReadVariant(ctx, dir, vr.Filename)
		if err != nil {
			c.log.Warn().Err(err).Str("file", vr.Filename).Msg("variant missing on disk")
			continue
		}
		if len(vr.IframeOffset) == 0 || vr.IframeOffset[len(vr.IframeOffset)-1] >= int64(len(data)) {
			c.log.Warn().Str("file", vr.Filename).Msg("malformed iframe offsets, skipping variant")
			continue
		}
		video.Variants = append(video.Variants, Variant{
			Filename:     vr.Filename,
			Data:         data,
			IframeOffset: vr.IframeOffset,
		})
		video.Size += int64(len(data))
	}

	if len(video.Variants) == 0 {
		return nil, streamerr.Wrap(streamerr.ErrNoStreamsAvailable, fmt.Errorf("video %d", id))
	}

	sort.SliceStable(video.Variants, func(i, j int) bool {
		return len(video.Variants[i].Data) < len(video.Variants[j].Data)
	})

	return video, nil
}

// VerifyContentSignature recomputes the content signature independent of
// what data.txt claims, for diagnostics.
func VerifyContentSignature(path string, epochSeconds, totalBytes int64, candidate string) bool {
	return signature.Verify(path, epochSeconds, totalBytes, candidate)
}

// RunEvictor starts the background LRU-style sweep described in
// async_clean.c's check_video_alloc(): every period it decays each video's
// usage score and, once memUsed exceeds the budget, evicts refcount-zero
// videos lowest-score first until usage is back under budget or no more
// evictable videos remain. It blocks until ctx is cancelled.
func (c *Cache) RunEvictor(ctx context.Context, period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, v := range c.videos {
		if v.reqCount > 0 {
			v.periodCount++
		} else {
			v.periodCount--
		}
		v.reqCount = 0
	}

	if c.memUsed <= c.memBudget {
		return
	}

	candidates := make([]*Video, 0, len(c.videos))
	for _, v := range c.videos {
		if v.refCount <= 0 {
			candidates = append(candidates, v)
		}
	}
	sort.Slice(candidates, func(i, j int) bool { return candidates[i].periodCount < candidates[j].periodCount })

	for _, v := range candidates {
		if c.memUsed <= c.memBudget {
			break
		}
		c.evict(v)
	}
}

func (c *Cache) evict(v *Video) {
	_, idx := c.find(v.ID)
	if idx >= len(c.videos) || c.videos[idx] != v {
		return
	}
	c.videos = append(c.videos[:idx], c.videos[idx+1:]...)
	c.memUsed -= v.Size
	c.log.Info().Int("id", v.ID).Str("path", v.Path).Msg("evicted video from cache")
}
