// Package ogv provides a heuristic keyframe extractor for Ogg-encapsulated
// Theora video (.ogv). No repo in the retrieved pack bundles an Ogg or
// Theora library, so this walks raw Ogg page headers instead of decoding
// packets: each page's granule position encodes, for Theora, the keyframe
// number in its upper bits and the frame count since that keyframe in its
// lower bits (the split point is the stream header's keyframe_granule_shift,
// which this package does not parse out of the Theora identification
// header). A page is treated as carrying a keyframe when its granule
// position's low bits are zero, which holds for the common
// keyframe-granule-shift values seen in practice but is not a correctness
// guarantee for arbitrary encoders. This is a known limitation, not a
// complete Theora demuxer.
package ogv

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pulsejet/go-vod-chop/internal/container"
)

const (
	capturePattern = "OggS"
	pageHeaderLen  = 27
	lowGranuleMask = 0x7F // heuristic: treat these low bits as the intra-GOP frame count
)

type extractor struct{}

// Extractor is the ogv.Extractor value used by internal/indexer for .ogv
// variants.
var Extractor container.Extractor = extractor{}

func (extractor) Extract(r io.ReadSeeker, size int64) ([]container.Packet, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	var packets []container.Packet
	var pos int64
	hdr := make([]byte, pageHeaderLen)

	for pos+pageHeaderLen <= size {
		if _, err := io.ReadFull(r, hdr); err != nil {
			break
		}
		if string(hdr[0:4]) != capturePattern {
			return nil, fmt.Errorf("ogv: lost page sync at offset %d", pos)
		}

		granule := binary.LittleEndian.Uint64(hdr[6:14])
		segCount := int(hdr[26])

		segTable := make([]byte, segCount)
		if _, err := io.ReadFull(r, segTable); err != nil {
			break
		}

		pageBodyLen := int64(0)
		for _, s := range segTable {
			pageBodyLen += int64(s)
		}

		payloadOffset := pos + pageHeaderLen + int64(segCount)

		isKeyframe := granule != 0 && granule&lowGranuleMask == 0
		packets = append(packets, container.Packet{
			Offset:     payloadOffset,
			Size:       pageBodyLen,
			IsVideo:    true,
			IsKeyframe: isKeyframe,
		})

		pos = payloadOffset + pageBodyLen
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			break
		}
	}

	if len(packets) == 0 {
		return nil, fmt.Errorf("ogv: no pages found")
	}

	return packets, nil
}
