// Package indexer is the offline counterpart to internal/stream: it walks a
// video library tree and writes the data.txt sidecar for each leaf
// directory, mirroring chopper.c's load_videos()/save_common_info()/
// save_stream_info() pipeline. Unlike the original, container decoding is
// dispatched per file extension to the internal/container/* extractors
// instead of going through a single libavcodec demux loop.
package indexer

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pulsejet/go-vod-chop/internal/container"
	"github.com/pulsejet/go-vod-chop/internal/container/flv"
	"github.com/pulsejet/go-vod-chop/internal/container/mp4"
	"github.com/pulsejet/go-vod-chop/internal/container/ogv"
	"github.com/pulsejet/go-vod-chop/internal/container/webm"
	"github.com/pulsejet/go-vod-chop/internal/sidecar"
	"github.com/pulsejet/go-vod-chop/internal/signature"
)

const (
	// MinDirNum and MaxDirNum bound the numeric leaf directory names the
	// indexer will walk, matching chopper.c's MINNUMPATH/MAXNUMPATH.
	MinDirNum = 100
	MaxDirNum = 99999

	// SidecarFilename is the handoff file written per directory.
	SidecarFilename = sidecar.Filename
)

var extractors = map[string]container.Extractor{
	".flv":  flv.Extractor,
	".mp4":  mp4.Extractor,
	".m4v":  mp4.Extractor,
	".mov":  mp4.Extractor,
	".webm": webm.Extractor,
	".mkv":  webm.Extractor,
	".ogv":  ogv.Extractor,
}

type variant struct {
	name   string
	size   int64
	offset []int64
}

// Indexer walks a library tree and writes one sidecar per leaf directory.
type Indexer struct {
	Log zerolog.Logger

	// Now returns the epoch seconds stamped into the signature; overridable
	// so tests can produce a deterministic sidecar.
	Now func() int64
}

// New builds an Indexer with the real wall clock.
func New(log zerolog.Logger) *Indexer {
	return &Indexer{Log: log, Now: func() int64 { return time.Now().Unix() }}
}

// ScanRoot walks root. When dirNames is empty every numeric subdirectory in
// [MinDirNum, MaxDirNum] is scanned, alphabetically sorted, matching
// chopper.c's scandir(path, &entries, check_dir, alphasort) path. When
// dirNames is non-empty, only those subdirectories are scanned, in the
// order given — the "-d/--dirs" comma-separated path.
func (ix *Indexer) ScanRoot(root string, dirNames []string) error {
	return ix.ScanRootConcurrent(root, dirNames, 1)
}

// ScanRootConcurrent is ScanRoot with per-directory work spread across a
// bounded pool of workers instead of scanned one at a time. chopper.c's
// getopt_long loop is inherently single-threaded; Go makes fanning the
// per-directory scan out across goroutines nearly free, so --workers lets
// an operator parallelize a large library scan. workers <= 1 scans
// sequentially on the calling goroutine.
func (ix *Indexer) ScanRootConcurrent(root string, dirNames []string, workers int) error {
	var names []string

	if len(dirNames) > 0 {
		names = dirNames
	} else {
		entries, err := os.ReadDir(root)
		if err != nil {
			return fmt.Errorf("indexer: reading root %s: %w", root, err)
		}

		names = make([]string, 0, len(entries))
		for _, e := range entries {
			if !e.IsDir() {
				continue
			}
			n, err := strconv.Atoi(e.Name())
			if err != nil || n < MinDirNum || n > MaxDirNum {
				continue
			}
			names = append(names, e.Name())
		}
		sort.Strings(names)
	}

	if workers <= 1 {
		for _, n := range names {
			if err := ix.ScanDir(filepath.Join(root, n)); err != nil {
				ix.Log.Error().Err(err).Str("dir", n).Msg("scanning directory failed")
			}
		}
		return nil
	}

	jobs := make(chan string)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for n := range jobs {
				if err := ix.ScanDir(filepath.Join(root, n)); err != nil {
					ix.Log.Error().Err(err).Str("dir", n).Msg("scanning directory failed")
				}
			}
		}()
	}
	for _, n := range names {
		jobs <- n
	}
	close(jobs)
	wg.Wait()
	return nil
}

// ScanDir indexes a single leaf directory. A directory with no recognized
// video files is silently skipped — chopper.c treats that as expected, not
// an error, since library trees commonly have directories with no video
// yet uploaded.
func (ix *Indexer) ScanDir(path string) error {
	entries, err := os.ReadDir(path)
	if err != nil {
		return fmt.Errorf("indexer: reading %s: %w", path, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if _, ok := extractors[strings.ToLower(filepath.Ext(e.Name()))]; ok {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil
	}
	sort.Strings(names)

	ix.Log.Info().Str("path", path).Msg("loading video")

	var variants []variant
	var totalSize int64

	for _, name := range names {
		full := filepath.Join(path, name)
		info, err := os.Stat(full)
		if err != nil {
			ix.Log.Warn().Err(err).Str("file", name).Msg("stat failed")
			continue
		}
		totalSize += info.Size()

		v, err := ix.loadVariant(full, name, info.Size())
		if err != nil {
			ix.Log.Warn().Err(err).Str("file", name).Msg("load failed")
			continue
		}
		variants = append(variants, v)
	}

	if len(variants) == 0 {
		return fmt.Errorf("indexer: no usable variants in %s", path)
	}

	sort.SliceStable(variants, func(i, j int) bool { return variants[i].size < variants[j].size })

	sign := signature.Compute(path, ix.Now(), totalSize)

	rec := &sidecar.Record{
		Path:     path,
		Sign:     sign,
		Variants: make([]sidecar.VariantRecord, len(variants)),
	}
	for i, v := range variants {
		rec.Variants[i] = sidecar.VariantRecord{Filename: v.name, IframeOffset: v.offset}
	}

	if err := sidecar.WriteFile(filepath.Join(path, SidecarFilename), rec); err != nil {
		return fmt.Errorf("indexer: writing sidecar for %s: %w", path, err)
	}

	ix.Log.Info().Str("path", path).Int("variants", len(variants)).Msg("done")
	return nil
}

func (ix *Indexer) loadVariant(full, name string, size int64) (variant, error) {
	ext := strings.ToLower(filepath.Ext(name))
	extractor, ok := extractors[ext]
	if !ok {
		return variant{}, fmt.Errorf("unsupported extension %s", ext)
	}

	f, err := os.Open(full)
	if err != nil {
		return variant{}, err
	}
	defer f.Close()

	packets, err := extractor.Extract(f, size)
	if err != nil {
		return variant{}, err
	}

	offsets := container.IframeOffsets(packets)
	if len(offsets) == 0 {
		return variant{}, fmt.Errorf("no iframes found in %s", name)
	}

	return variant{name: name, size: size, offset: offsets}, nil
}
