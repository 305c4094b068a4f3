// Package container defines the shared packet model and I-frame offset
// algorithm used by every format-specific extractor (flv, mp4, webm, ogv).
// The algorithm reproduces chopper/video.c's load_stream(): prev_offset is
// the file position recorded after the most recently decoded non-keyframe
// video packet, and it is that stale position — not the keyframe packet's
// own start — that gets recorded as the seek point for a new GOP. Any bytes
// belonging to interleaved non-video packets (audio, in particular) between
// the last non-key video packet and the next keyframe are folded into the
// resulting chunk, which is intentional: it keeps the emitted offset a safe,
// demuxable seek point rather than a tight per-sample boundary.
package container

import "io"

// Packet is one demuxed sample, video or otherwise, in file order.
type Packet struct {
	Offset     int64 // byte offset where the packet's data begins
	Size       int64
	IsVideo    bool
	IsKeyframe bool // only meaningful when IsVideo is true
}

// End is the byte offset immediately following this packet.
func (p Packet) End() int64 { return p.Offset + p.Size }

// Extractor produces a keyframe-oriented view of one variant file: the
// ordered list of container.Packet found in the stream.
type Extractor interface {
	Extract(r io.ReadSeeker, size int64) ([]Packet, error)
}

// IframeOffsets turns the packets of one video stream into the
// iframe_offset list of spec.md §3/§4.2, applying the prev_offset rule.
func IframeOffsets(packets []Packet) []int64 {
	var offsets []int64
	var prevOffset int64

	for _, p := range packets {
		if !p.IsVideo {
			continue
		}
		if p.IsKeyframe {
			offsets = append(offsets, prevOffset)
		} else {
			prevOffset = p.End()
		}
	}

	return offsets
}
