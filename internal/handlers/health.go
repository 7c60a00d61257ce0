package handlers

import (
	"context"
	"net/http"
	"time"
)

// Pinger reports whether a backing store is reachable.
type Pinger func(ctx context.Context) error

// Health answers 200 "OK" when every check passes within two seconds and
// 503 naming the first failing dependency otherwise.
func Health(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				http.Error(w, name+" unavailable", http.StatusServiceUnavailable)
				return
			}
		}
		_, _ = w.Write([]byte("OK"))
	}
}
