package flv

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/pulsejet/go-vod-chop/internal/container"
)

// buildTag appends one FLV tag (and the preceding PreviousTagSize field for
// the tag before it) to buf, returning the updated buffer.
func buildTag(buf []byte, tagType byte, payload []byte, prevTagSize uint32) []byte {
	var prevSize [4]byte
	binary.BigEndian.PutUint32(prevSize[:], prevTagSize)
	buf = append(buf, prevSize[:]...)

	dataSize := len(payload)
	hdr := []byte{
		tagType,
		byte(dataSize >> 16), byte(dataSize >> 8), byte(dataSize),
		0, 0, 0, // timestamp
		0,       // timestamp extended
		0, 0, 0, // stream id
	}
	buf = append(buf, hdr...)
	buf = append(buf, payload...)
	return buf
}

func buildFLV() []byte {
	buf := []byte{'F', 'L', 'V', 1, 1, 0, 0, 0, 9}

	buf = buildTag(buf, tagTypeVideo, []byte{0x17, 0, 0, 0, 0}, 0) // keyframe
	buf = buildTag(buf, tagTypeVideo, []byte{0x27, 0, 0, 0, 0}, 16)

	return buf
}

type readSeeker struct{ *bytes.Reader }

func TestExtract(t *testing.T) {
	data := buildFLV()
	r := readSeeker{bytes.NewReader(data)}

	packets, err := Extractor.Extract(r, int64(len(data)))
	require.NoError(t, err)
	require.Len(t, packets, 2)
	require.True(t, packets[0].IsKeyframe, "first packet should be a keyframe")
	require.False(t, packets[1].IsKeyframe, "second packet should not be a keyframe")

	offsets := container.IframeOffsets(packets)
	require.Equal(t, []int64{0}, offsets)
}

func TestExtractRejectsBadSignature(t *testing.T) {
	data := append([]byte{'X', 'X', 'X', 1, 1, 0, 0, 0, 9}, buildFLV()[9:]...)
	r := readSeeker{bytes.NewReader(data)}

	_, err := Extractor.Extract(r, int64(len(data)))
	require.Error(t, err)
}
