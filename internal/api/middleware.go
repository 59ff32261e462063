package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/terra-clan/gigboard/internal/auth"
)

// loggingMiddleware logs HTTP requests using slog
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			slog.Info("http request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
				"remote_addr", r.RemoteAddr,
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// applyRateLimit throttles repeated applications by one freelancer to one post
func (s *Server) applyRateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.applyPerMinute <= 0 {
			next.ServeHTTP(w, r)
			return
		}

		actor, _ := auth.ActorFrom(r.Context())
		key := "apply:" + chi.URLParam(r, "id") + ":" + actor.ID
		if !s.limiter.Allow(r.Context(), key, s.applyPerMinute, time.Minute) {
			slog.Warn("apply rate limit exceeded", "actor", actor.ID, "post_id", chi.URLParam(r, "id"))
			w.Header().Set("Retry-After", "60")
			respondError(w, http.StatusTooManyRequests, "rate_limited", "too many applications, try again later")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// tokenFromQuery lets websocket clients, which cannot set headers, pass
// the bearer token as ?access_token=
func tokenFromQuery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") == "" {
			if token := r.URL.Query().Get("access_token"); token != "" {
				r.Header.Set("Authorization", "Bearer "+token)
			}
		}
		next.ServeHTTP(w, r)
	})
}
