package videocache

import (
	"context"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/pulsejet/go-vod-chop/internal/sidecar"
	"github.com/pulsejet/go-vod-chop/internal/variantstore/localstore"
)

func writeFixture(t *testing.T, root string, id int, sign string) {
	t.Helper()
	dir := filepath.Join(root, strconv.Itoa(id))
	require.NoError(t, os.MkdirAll(dir, 0o755))
	data := []byte("abcdefghij")
	require.NoError(t, os.WriteFile(filepath.Join(dir, "v.flv"), data, 0o644))
	rec := &sidecar.Record{
		Path: dir,
		Sign: sign,
		Variants: []sidecar.VariantRecord{
			{Filename: "v.flv", IframeOffset: []int64{0, 5}},
		},
	}
	require.NoError(t, sidecar.WriteFile(filepath.Join(dir, sidecar.Filename), rec))
}

const testSign = "0123456789012345678901234567890123456789"

func TestAcquireReleaseRefCounting(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, 100, testSign)

	c := New(localstore.New(root), 1<<30, false, zerolog.Nop())

	v1, err := c.Acquire(context.Background(), 100, "")
	require.NoError(t, err)
	v2, err := c.Acquire(context.Background(), 100, "")
	require.NoError(t, err)
	require.Same(t, v1, v2, "expected same cached video pointer")
	require.Equal(t, 2, v1.refCount)

	c.Release(v1)
	c.Release(v2)
	require.Zero(t, v1.refCount)
}

func TestAcquireSignatureMismatch(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, 101, testSign)

	c := New(localstore.New(root), 1<<30, true, zerolog.Nop())

	_, err := c.Acquire(context.Background(), 101, "wrongwrongwrongwrongwrongwrongwrongwrong")
	require.Error(t, err, "expected signature mismatch error")
}

func TestAcquireMissingVideo(t *testing.T) {
	root := t.TempDir()
	c := New(localstore.New(root), 1<<30, false, zerolog.Nop())

	_, err := c.Acquire(context.Background(), 999, "")
	require.Error(t, err, "expected error for missing video")
}

func TestEvictorReclaimsUnreferencedVideos(t *testing.T) {
	root := t.TempDir()
	writeFixture(t, root, 100, testSign)
	writeFixture(t, root, 101, testSign)

	c := New(localstore.New(root), 5, false, zerolog.Nop()) // tiny budget forces eviction

	v1, err := c.Acquire(context.Background(), 100, "")
	require.NoError(t, err)
	c.Release(v1)

	_, err = c.Acquire(context.Background(), 101, "")
	require.NoError(t, err)

	c.sweep()

	_, idx := c.find(100)
	evicted := !(idx < len(c.videos) && c.videos[idx] != nil && c.videos[idx].ID == 100)
	require.True(t, evicted, "expected video 100 to have been evicted")
}
