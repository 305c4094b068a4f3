// Package sidecar reads and writes the data.txt handoff file shared between
// the offline indexer and the online stream engine. The grammar is the
// line-oriented text format of spec.md §4.1, ported from the C server's
// load_video() parser in stream.c and the indexer's save_common_info /
// save_stream_info writer in chopper/file.c.
package sidecar

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pulsejet/go-vod-chop/internal/streamerr"
)

// VariantRecord is one variant entry as it appears in data.txt, before the
// actual file bytes are loaded.
type VariantRecord struct {
	Filename     string
	IframeOffset []int64
}

// Record is the fully parsed contents of one data.txt file.
type Record struct {
	Path     string
	Sign     string
	Variants []VariantRecord
}

const signLen = 40

// Filename is the sidecar's name within each leaf directory, matching the
// FILE_INFO constant shared by chopper/file.c and stream.c.
const Filename = "data.txt"

// Parse reads a data.txt payload per the §4.1 grammar. Any framing anomaly
// yields ErrMalformedSidecar, matching the "reject silently" design note —
// the error is returned to the caller, not logged here.
func Parse(r io.Reader) (*Record, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	readLine := func() (string, bool) {
		if !sc.Scan() {
			return "", false
		}
		return sc.Text(), true
	}

	path, ok := readLine()
	if !ok {
		return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("missing path line"))
	}

	sign, ok := readLine()
	if !ok || len(sign) != signLen {
		return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("bad signature line %q", sign))
	}

	countLine, ok := readLine()
	if !ok {
		return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("missing variant count"))
	}
	count, err := strconv.Atoi(strings.TrimSpace(countLine))
	if err != nil || count < 1 {
		return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("bad variant count %q", countLine))
	}

	rec := &Record{Path: path, Sign: sign, Variants: make([]VariantRecord, 0, count)}

	for i := 0; i < count; i++ {
		filename, ok := readLine()
		if !ok || strings.ContainsAny(filename, `/\`) {
			return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("bad variant filename %q", filename))
		}

		countStr, ok := readLine()
		if !ok {
			return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("missing iframe count for %s", filename))
		}
		iframeNum, err := strconv.Atoi(strings.TrimSpace(countStr))
		if err != nil || iframeNum < 1 {
			return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("bad iframe count %q", countStr))
		}

		offsetLine, ok := readLine()
		if !ok {
			return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("missing offset line for %s", filename))
		}

		fields := strings.Fields(offsetLine)
		if len(fields) < iframeNum {
			return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("offset count mismatch for %s: want %d got %d", filename, iframeNum, len(fields)))
		}

		offsets := make([]int64, iframeNum)
		for j := 0; j < iframeNum; j++ {
			v, err := strconv.ParseInt(fields[j], 10, 64)
			if err != nil {
				return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, fmt.Errorf("bad offset %q for %s", fields[j], filename))
			}
			offsets[j] = v
		}

		rec.Variants = append(rec.Variants, VariantRecord{Filename: filename, IframeOffset: offsets})
	}

	if err := sc.Err(); err != nil {
		return nil, streamerr.Wrap(streamerr.ErrMalformedSidecar, err)
	}

	return rec, nil
}

// ParseFile opens and parses the sidecar at the given path.
func ParseFile(path string) (*Record, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, streamerr.Wrap(streamerr.ErrMissingSidecar, err)
		}
		return nil, streamerr.Wrap(streamerr.ErrMissingSidecar, err)
	}
	defer f.Close()
	return Parse(f)
}

// Write serializes a Record back to the §4.1 grammar, the counterpart to
// Parse — round-tripping through Write then Parse must reproduce the same
// Record.
func Write(w io.Writer, rec *Record) error {
	if len(rec.Sign) != signLen {
		return fmt.Errorf("sidecar: signature must be %d hex chars, got %d", signLen, len(rec.Sign))
	}

	bw := bufio.NewWriter(w)
	fmt.Fprintf(bw, "%s\n%s\n%d\n", rec.Path, rec.Sign, len(rec.Variants))

	for _, v := range rec.Variants {
		fmt.Fprintf(bw, "%s\n%d\n", v.Filename, len(v.IframeOffset))
		for i, off := range v.IframeOffset {
			if i > 0 {
				bw.WriteByte(' ')
			}
			fmt.Fprintf(bw, "%d", off)
		}
		bw.WriteByte('\n')
	}

	return bw.Flush()
}

// WriteFile serializes a Record to the named path, truncating any existing
// file, matching chopper/file.c's O_RDWR|O_CREAT|O_TRUNC semantics.
func WriteFile(path string, rec *Record) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return Write(f, rec)
}
