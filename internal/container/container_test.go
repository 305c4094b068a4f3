package container

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIframeOffsetsSkipsNonVideo(t *testing.T) {
	packets := []Packet{
		{Offset: 0, Size: 10, IsVideo: true, IsKeyframe: true},  // offset 0 recorded
		{Offset: 10, Size: 4},                                   // audio, ignored
		{Offset: 14, Size: 8, IsVideo: true, IsKeyframe: false}, // prevOffset -> 22
		{Offset: 22, Size: 3},                                   // audio, ignored
		{Offset: 25, Size: 9, IsVideo: true, IsKeyframe: true},  // offset 22 recorded
	}

	got := IframeOffsets(packets)
	require.Equal(t, []int64{0, 22}, got)
}

func TestIframeOffsetsEmptyWithoutKeyframes(t *testing.T) {
	packets := []Packet{
		{Offset: 0, Size: 10, IsVideo: true, IsKeyframe: false},
		{Offset: 10, Size: 10, IsVideo: true, IsKeyframe: false},
	}
	require.Empty(t, IframeOffsets(packets))
}

func TestPacketEnd(t *testing.T) {
	p := Packet{Offset: 100, Size: 50}
	require.Equal(t, int64(150), p.End())
}
