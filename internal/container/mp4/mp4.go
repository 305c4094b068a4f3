// Package mp4 extracts keyframe boundaries from ISO-BMFF containers
// (.mp4, .m4v, .mov) by walking the sample tables in moov directly, using
// Eyevinn/mp4ff for box decoding. This sidesteps needing a real AVC/HEVC
// decoder: the sync sample box (stss) already names which samples are
// keyframes, and stsc/stco/co64/stsz already give each sample's absolute
// byte offset, so the classification chopper/video.c gets from
// avcodec_decode_video's pict_type falls out of the box tree instead.
package mp4

import (
	"fmt"
	"io"
	"sort"

	"github.com/Eyevinn/mp4ff/mp4"
	"github.com/pulsejet/go-vod-chop/internal/container"
)

type extractor struct{}

// Extractor is the mp4.Extractor value used by internal/indexer for
// .mp4/.m4v/.mov variants.
var Extractor container.Extractor = extractor{}

func (extractor) Extract(r io.ReadSeeker, size int64) ([]container.Packet, error) {
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}

	f, err := mp4.DecodeFile(r)
	if err != nil {
		return nil, fmt.Errorf("mp4: decode: %w", err)
	}
	if f.Moov == nil {
		return nil, fmt.Errorf("mp4: no moov box")
	}

	var packets []container.Packet
	seenVideo := false

	for _, trak := range f.Moov.Traks {
		// Only the first video track is classified as video; samples of any
		// later video track are carried as non-video packets.
		isVideo := !seenVideo && trackIsVideo(trak)
		if isVideo {
			seenVideo = true
		}
		offsets, sizes, err := sampleOffsetsAndSizes(trak)
		if err != nil {
			return nil, err
		}
		sync := syncSampleSet(trak)

		for i := range offsets {
			pkt := container.Packet{Offset: offsets[i], Size: sizes[i], IsVideo: isVideo}
			if isVideo {
				// A track with no stss box means every sample is a sync
				// sample (ISO/IEC 14496-12 §8.6.2).
				if sync == nil {
					pkt.IsKeyframe = true
				} else {
					pkt.IsKeyframe = sync[i+1]
				}
			}
			packets = append(packets, pkt)
		}
	}

	sort.Slice(packets, func(i, j int) bool { return packets[i].Offset < packets[j].Offset })

	if len(packets) == 0 {
		return nil, fmt.Errorf("mp4: no samples found")
	}

	return packets, nil
}

func trackIsVideo(trak *mp4.TrakBox) bool {
	if trak.Mdia == nil || trak.Mdia.Hdlr == nil {
		return false
	}
	return trak.Mdia.Hdlr.HandlerType == "vide"
}

// syncSampleSet returns the set of 1-based sample numbers marked as sync
// samples by stss, or nil if the track has no stss box (meaning every
// sample is implicitly a sync sample).
func syncSampleSet(trak *mp4.TrakBox) map[int]bool {
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return nil
	}
	stss := trak.Mdia.Minf.Stbl.Stss
	if stss == nil {
		return nil
	}
	set := make(map[int]bool, len(stss.SampleNumber))
	for _, n := range stss.SampleNumber {
		set[int(n)] = true
	}
	return set
}

// sampleOffsetsAndSizes resolves every sample's absolute file offset and
// size from stsc (sample-to-chunk), stco/co64 (chunk offsets), and stsz
// (sample sizes), in sample order.
func sampleOffsetsAndSizes(trak *mp4.TrakBox) ([]int64, []int64, error) {
	if trak.Mdia == nil || trak.Mdia.Minf == nil || trak.Mdia.Minf.Stbl == nil {
		return nil, nil, fmt.Errorf("mp4: track missing sample table")
	}
	stbl := trak.Mdia.Minf.Stbl
	if stbl.Stsz == nil || stbl.Stsc == nil {
		return nil, nil, fmt.Errorf("mp4: track missing stsz/stsc")
	}

	chunkOffsets := chunkOffsetList(stbl)
	if chunkOffsets == nil {
		return nil, nil, fmt.Errorf("mp4: track missing stco/co64")
	}

	sampleSizes := sampleSizeList(stbl.Stsz)

	offsets := make([]int64, 0, len(sampleSizes))
	sizes := make([]int64, 0, len(sampleSizes))

	sampleIdx := 0
	entries := stbl.Stsc.Entries

	for e := 0; e < len(entries) && sampleIdx < len(sampleSizes); e++ {
		firstChunk := int(entries[e].FirstChunk)
		samplesPerChunk := int(entries[e].SamplesPerChunk)

		lastChunk := len(chunkOffsets)
		if e+1 < len(entries) {
			lastChunk = int(entries[e+1].FirstChunk) - 1
		}

		for chunk := firstChunk; chunk <= lastChunk && chunk <= len(chunkOffsets); chunk++ {
			chunkOffset := chunkOffsets[chunk-1]
			runOffset := chunkOffset

			for s := 0; s < samplesPerChunk && sampleIdx < len(sampleSizes); s++ {
				sz := sampleSizes[sampleIdx]
				offsets = append(offsets, runOffset)
				sizes = append(sizes, sz)
				runOffset += sz
				sampleIdx++
			}
		}
	}

	return offsets, sizes, nil
}

func chunkOffsetList(stbl *mp4.StblBox) []int64 {
	if stbl.Stco != nil {
		out := make([]int64, len(stbl.Stco.ChunkOffset))
		for i, v := range stbl.Stco.ChunkOffset {
			out[i] = int64(v)
		}
		return out
	}
	if stbl.Co64 != nil {
		out := make([]int64, len(stbl.Co64.ChunkOffset))
		for i, v := range stbl.Co64.ChunkOffset {
			out[i] = int64(v)
		}
		return out
	}
	return nil
}

func sampleSizeList(stsz *mp4.StszBox) []int64 {
	if stsz.SampleUniformSize > 0 {
		out := make([]int64, stsz.SampleNumber)
		for i := range out {
			out[i] = int64(stsz.SampleUniformSize)
		}
		return out
	}
	out := make([]int64, len(stsz.SampleSize))
	for i, v := range stsz.SampleSize {
		out[i] = int64(v)
	}
	return out
}
