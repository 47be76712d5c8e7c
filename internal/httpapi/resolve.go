package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/dealeriq/priorityd/internal/places"
)

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	input := strings.TrimSpace(r.URL.Query().Get("input"))
	dealer := strings.TrimSpace(r.URL.Query().Get("dealer"))
	if dealer == "" {
		dealer = "default"
	}
	if input == "" {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing input"})
		return
	}
	if s.resolver == nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"ok": false, "error": "missing maps api key"})
		return
	}

	resolution, err := s.resolver.Resolve(r.Context(), input, dealer, clientIP(r))
	if err != nil {
		var rateLimited *places.RateLimitError
		if errors.As(err, &rateLimited) {
			retryAfterSec := int(math.Ceil(rateLimited.RetryAfter.Seconds()))
			if retryAfterSec < 1 {
				retryAfterSec = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
			w.Header().Set("X-RateLimit-Limit", "1")
			w.Header().Set("X-RateLimit-Remaining", "0")
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(time.Now().Unix()+int64(retryAfterSec), 10))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"ok":              false,
				"error":           "rate_limited",
				"retry_after_sec": retryAfterSec,
			})
			return
		}
		s.logger.Error("resolve failed", zap.String("input", input), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]any{"ok": false, "error": "resolve_failed"})
		return
	}

	w.Header().Set("X-RateLimit-Limit", "1")
	w.Header().Set("X-RateLimit-Remaining", "0")
	writeJSON(w, http.StatusOK, resolution)
}
