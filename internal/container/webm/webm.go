// Package webm extracts keyframe boundaries from Matroska/WebM containers
// using luispater/matroska-go. The demuxer hands back decoded packet payloads
// rather than raw block byte ranges, so this wraps the source reader in a
// byte-counting io.ReadSeeker and derives each packet's file offset from the
// reader's position immediately after the packet was read, the same pattern
// used by the example extractor in
// luispater-matroska-go/example/extracter/main.go. The recovered offset is a
// few bytes short of the block's true start (EBML element and lace headers
// aren't counted), which is harmless here: internal/container.IframeOffsets
// only needs a safe, monotonically increasing seek point, not an exact
// per-sample boundary.
package webm

import (
	"fmt"
	"io"

	"github.com/luispater/matroska-go"
	"github.com/pulsejet/go-vod-chop/internal/container"
)

const trackTypeVideo = 1

type extractor struct{}

// Extractor is the webm.Extractor value used by internal/indexer for
// .webm/.mkv variants.
var Extractor container.Extractor = extractor{}

type countingReadSeeker struct {
	r   io.ReadSeeker
	pos int64
}

func (c *countingReadSeeker) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.pos += int64(n)
	return n, err
}

func (c *countingReadSeeker) Seek(offset int64, whence int) (int64, error) {
	pos, err := c.r.Seek(offset, whence)
	if err == nil {
		c.pos = pos
	}
	return pos, err
}

func (extractor) Extract(r io.ReadSeeker, size int64) ([]container.Packet, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	cr := &countingReadSeeker{r: r}

	demuxer, err := matroska.NewDemuxer(cr)
	if err != nil {
		return nil, fmt.Errorf("webm: opening demuxer: %w", err)
	}
	defer demuxer.Close()

	numTracks, err := demuxer.GetNumTracks()
	if err != nil {
		return nil, fmt.Errorf("webm: reading tracks: %w", err)
	}

	videoTrackNumbers := make(map[uint8]bool, numTracks)
	for i := uint(0); i < numTracks; i++ {
		info, err := demuxer.GetTrackInfo(i)
		if err != nil {
			continue
		}
		if info.Type == trackTypeVideo {
			videoTrackNumbers[info.Number] = true
		}
	}

	var packets []container.Packet
	for {
		pkt, err := demuxer.ReadPacket()
		if err != nil {
			if err == io.EOF {
				break
			}
			return nil, fmt.Errorf("webm: reading packet: %w", err)
		}

		end := cr.pos
		start := end - int64(len(pkt.Data))
		if start < 0 {
			start = 0
		}

		if videoTrackNumbers[pkt.Track] {
			packets = append(packets, container.Packet{
				Offset:     start,
				Size:       end - start,
				IsVideo:    true,
				IsKeyframe: pkt.KeyFrame,
			})
		} else {
			packets = append(packets, container.Packet{Offset: start, Size: end - start})
		}
	}

	if len(packets) == 0 {
		return nil, fmt.Errorf("webm: no packets found")
	}

	return packets, nil
}
