// Package signature computes and verifies the content signature described
// in spec.md §4.7, ported from chopper/video.c's SHA1(path || timestamp ||
// total_bytes) construction.
package signature

import (
	"crypto/sha1"
	"encoding/hex"
	"strconv"
)

// Compute returns the 40-char lowercase hex SHA-1 digest of the
// concatenation of path, the decimal epoch seconds at index time, and the
// decimal total byte count across all variants. No delimiters are used
// between the three fields, matching the original asprintf("%s%lu%d", ...).
func Compute(path string, epochSeconds int64, totalBytes int64) string {
	h := sha1.New()
	h.Write([]byte(path))
	h.Write([]byte(strconv.FormatInt(epochSeconds, 10)))
	h.Write([]byte(strconv.FormatInt(totalBytes, 10)))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify reports whether candidate matches the signature produced by
// Compute for the same inputs, using a plain byte comparison — the
// signature is a content-addressing token, not a MAC, so constant-time
// comparison is not required.
func Verify(path string, epochSeconds int64, totalBytes int64, candidate string) bool {
	return Compute(path, epochSeconds, totalBytes) == candidate
}
