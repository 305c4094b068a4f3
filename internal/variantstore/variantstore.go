// Package variantstore abstracts where variant bytes and their sidecar
// actually live, so internal/videocache doesn't care whether a video's
// directory is a plain path on local disk (the original server's only
// option) or an object storage bucket. The two-method shape mirrors
// DayQuest-CDN's internal/storage.Storage interface, narrowed to what the
// cache needs: whole-object reads, since every variant is buffered in
// memory anyway.
package variantstore

import "context"

// Store resolves one video's directory (its numeric id as a string) to its
// sidecar and variant file contents.
type Store interface {
	// ReadSidecar returns the raw contents of the data.txt sidecar for dir.
	ReadSidecar(ctx context.Context, dir string) ([]byte, error)

	// ReadVariant returns the raw contents of one variant file within dir.
	ReadVariant(ctx context.Context, dir, filename string) ([]byte, error)
}
