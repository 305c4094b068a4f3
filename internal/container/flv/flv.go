// Package flv implements a minimal demuxer for the FLV container, enough to
// classify each video tag as a keyframe or not. FLV's tag framing and video
// tag header layout (frame type in the high nibble, codec ID in the low
// nibble of the first payload byte) are simple enough that no pack repo
// bundles a dedicated library for it; the frame-type/codec-ID bit layout
// here mirrors the RTMP video tag parser in
// alxayo-rtmp-go/internal/rtmp/media/video.go, since RTMP video messages and
// FLV video tags share the same body format.
package flv

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/pulsejet/go-vod-chop/internal/container"
)

const (
	tagTypeAudio = 8
	tagTypeVideo = 9
	tagTypeMeta  = 18

	headerLen   = 9 // "FLV" + version + flags + data offset (u32)
	tagHeaderLen = 11 // type(1) + datasize(3) + timestamp(3) + timestampExt(1) + streamID(3)
	prevTagSizeLen = 4
)

// frameTypeKey is the FLV VideoTagHeader frame type for a keyframe (1).
const frameTypeKey = 1

type extractor struct{}

// Extractor is the flv.Extractor value used by internal/indexer.
var Extractor container.Extractor = extractor{}

func (extractor) Extract(r io.ReadSeeker, size int64) ([]container.Packet, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	hdr := make([]byte, headerLen)
	if _, err := io.ReadFull(r, hdr); err != nil {
		return nil, fmt.Errorf("flv: reading header: %w", err)
	}
	if hdr[0] != 'F' || hdr[1] != 'L' || hdr[2] != 'V' {
		return nil, fmt.Errorf("flv: bad signature")
	}
	dataOffset := int64(binary.BigEndian.Uint32(hdr[5:9]))

	pos := dataOffset
	if _, err := r.Seek(pos, io.SeekStart); err != nil {
		return nil, err
	}

	var packets []container.Packet
	tagHdr := make([]byte, tagHeaderLen)
	prevSize := make([]byte, prevTagSizeLen)

	for pos+int64(prevTagSizeLen) < size {
		if _, err := io.ReadFull(r, prevSize); err != nil {
			break
		}
		pos += prevTagSizeLen

		if pos+tagHeaderLen > size {
			break
		}
		if _, err := io.ReadFull(r, tagHdr); err != nil {
			break
		}

		tagType := tagHdr[0]
		dataSize := int64(tagHdr[1])<<16 | int64(tagHdr[2])<<8 | int64(tagHdr[3])
		payloadOffset := pos + tagHeaderLen

		if payloadOffset+dataSize > size {
			break
		}

		if tagType == tagTypeVideo && dataSize >= 1 {
			var firstByte [1]byte
			if _, err := io.ReadFull(r, firstByte[:]); err != nil {
				break
			}
			frameType := (firstByte[0] >> 4) & 0x0F

			packets = append(packets, container.Packet{
				Offset:     payloadOffset,
				Size:       dataSize,
				IsVideo:    true,
				IsKeyframe: frameType == frameTypeKey,
			})
		} else if tagType == tagTypeAudio || tagType == tagTypeMeta {
			packets = append(packets, container.Packet{Offset: payloadOffset, Size: dataSize})
		}

		pos = payloadOffset + dataSize
		if _, err := r.Seek(pos, io.SeekStart); err != nil {
			break
		}
	}

	if len(packets) == 0 {
		return nil, fmt.Errorf("flv: no tags found")
	}

	return packets, nil
}
