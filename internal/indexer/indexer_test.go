package indexer

import (
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pulsejet/go-vod-chop/internal/sidecar"
)

func appendTag(buf []byte, tagType byte, payload []byte, prevTagSize uint32) []byte {
	var prevSize [4]byte
	binary.BigEndian.PutUint32(prevSize[:], prevTagSize)
	buf = append(buf, prevSize[:]...)

	dataSize := len(payload)
	hdr := []byte{
		tagType,
		byte(dataSize >> 16), byte(dataSize >> 8), byte(dataSize),
		0, 0, 0,
		0,
		0, 0, 0,
	}
	buf = append(buf, hdr...)
	buf = append(buf, payload...)
	return buf
}

func writeTestFLV(t *testing.T, path string) {
	t.Helper()
	const tagTypeVideo = 9

	buf := []byte{'F', 'L', 'V', 1, 1, 0, 0, 0, 9}
	buf = appendTag(buf, tagTypeVideo, []byte{0x17, 0, 0, 0, 0}, 0)
	buf = appendTag(buf, tagTypeVideo, []byte{0x27, 0, 0, 0, 0}, 16)

	require.NoError(t, os.WriteFile(path, buf, 0o644))
}

func TestScanDirWritesSidecar(t *testing.T) {
	dir := t.TempDir()
	leaf := filepath.Join(dir, "100")
	require.NoError(t, os.Mkdir(leaf, 0o755))
	writeTestFLV(t, filepath.Join(leaf, "720p.flv"))

	ix := New(zerolog.Nop())
	ix.Now = func() int64 { return 1700000000 }

	require.NoError(t, ix.ScanDir(leaf))

	rec, err := sidecar.ParseFile(filepath.Join(leaf, SidecarFilename))
	require.NoError(t, err)

	require.Equal(t, leaf, rec.Path)
	require.Len(t, rec.Sign, 40)
	require.Len(t, rec.Variants, 1)
	require.Equal(t, "720p.flv", rec.Variants[0].Filename)
	require.Equal(t, []int64{0}, rec.Variants[0].IframeOffset)
}

func TestScanDirSkipsEmptyDirectories(t *testing.T) {
	dir := t.TempDir()
	leaf := filepath.Join(dir, "101")
	require.NoError(t, os.Mkdir(leaf, 0o755))

	ix := New(zerolog.Nop())
	require.NoError(t, ix.ScanDir(leaf), "ScanDir on empty dir should not error")

	_, err := os.Stat(filepath.Join(leaf, SidecarFilename))
	require.True(t, os.IsNotExist(err), "sidecar should not be written for empty dir")
}

func TestScanRootFiltersDirRange(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"99", "100", "99999", "100000", "notadir"} {
		if name == "notadir" {
			require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
			continue
		}
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
	}
	writeTestFLV(t, filepath.Join(dir, "100", "v.flv"))
	writeTestFLV(t, filepath.Join(dir, "99999", "v.flv"))

	ix := New(zerolog.Nop())
	require.NoError(t, ix.ScanRoot(dir, nil))

	_, err := os.Stat(filepath.Join(dir, "100", SidecarFilename))
	require.NoError(t, err, "expected sidecar in 100")

	_, err = os.Stat(filepath.Join(dir, "99999", SidecarFilename))
	require.NoError(t, err, "expected sidecar in 99999")

	_, err = os.Stat(filepath.Join(dir, "99", SidecarFilename))
	require.True(t, os.IsNotExist(err), "directory 99 is out of range and should not be scanned")
}

func TestScanRootConcurrentMatchesSequential(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"100", "101", "102"} {
		require.NoError(t, os.Mkdir(filepath.Join(dir, name), 0o755))
		writeTestFLV(t, filepath.Join(dir, name, "v.flv"))
	}

	ix := New(zerolog.Nop())
	require.NoError(t, ix.ScanRootConcurrent(dir, nil, 4))

	for _, name := range []string{"100", "101", "102"} {
		_, err := os.Stat(filepath.Join(dir, name, SidecarFilename))
		require.NoError(t, err, "expected sidecar in %s", name)
	}
}
