package httpapi

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/pulsejet/go-vod-chop/internal/videocache"
)

// HandleHealth reports cache memory usage, the HTTP analogue of the
// ping/stats endpoint the teacher server exposed for connection-quality
// checks — here repurposed to report server-side cache health instead of
// round-trip timing.
func HandleHealth(cache *videocache.Cache) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Cache-Control", "no-store, no-cache, must-revalidate")
		w.Header().Set("Content-Type", "application/json")

		resp := map[string]interface{}{
			"status":    "ok",
			"timestamp": time.Now().UnixMilli(),
			"mem_used":  cache.MemUsed(),
		}
		json.NewEncoder(w).Encode(resp)
	}
}
