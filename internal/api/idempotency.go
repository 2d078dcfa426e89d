package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/metrics"
	"github.com/lalithlochan/bloodlink/internal/redis"
)

type Idempotency interface {
	CheckOrReserve(ctx context.Context, scope, key string) (*redis.CachedResponse, *redis.Reservation, error)
	Store(ctx context.Context, res *redis.Reservation, resp *redis.CachedResponse, ttl time.Duration) error
	Release(ctx context.Context, res *redis.Reservation) error
}

const idempotencyHeader = "Idempotency-Key"

// recorder tees the response so it can be cached after the handler returns.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rec *recorder) WriteHeader(code int) {
	if rec.status == 0 {
		rec.status = code
	}
	rec.ResponseWriter.WriteHeader(code)
}

func (rec *recorder) Write(b []byte) (int, error) {
	if rec.status == 0 {
		rec.status = http.StatusOK
	}
	rec.body.Write(b)
	return rec.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the first outcome of a request carrying an
// Idempotency-Key header. Keys are scoped to the caller and route. Server
// errors are not cached so the client can retry them. A nil store or a
// failing Redis processes the request normally.
func IdempotencyMiddleware(store Idempotency, logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(idempotencyHeader)
			if store == nil || key == "" {
				next.ServeHTTP(w, r)
				return
			}

			ctx := r.Context()
			scope := strconv.FormatInt(callerID(r), 10) + ":" + r.Method + ":" + r.URL.Path

			cached, res, err := store.CheckOrReserve(ctx, scope, key)
			switch {
			case errors.Is(err, redis.ErrRequestInFlight):
				writeError(w, http.StatusConflict, "duplicate_request",
					"Request is already being processed",
					"Another request with this idempotency key is in progress")
				return
			case err != nil:
				logger.Warn("idempotency check failed, proceeding",
					zap.Error(err),
					zap.String("idempotency_key", key),
				)
				next.ServeHTTP(w, r)
				return
			case cached != nil:
				metrics.RecordIdempotencyHit()
				contentType := "application/json"
				if cached.StatusCode >= http.StatusBadRequest {
					contentType = "application/problem+json"
				}
				w.Header().Set("Content-Type", contentType)
				w.Header().Set("X-Idempotency-Replayed", "true")
				w.WriteHeader(cached.StatusCode)
				_, _ = w.Write(cached.Body)
				return
			}

			rec := &recorder{ResponseWriter: w}
			next.ServeHTTP(rec, r)

			// The request context may already be cancelled once the handler returns.
			bg := context.WithoutCancel(ctx)
			body := rec.body.Bytes()
			if rec.status >= http.StatusInternalServerError || !json.Valid(body) {
				if err := store.Release(bg, res); err != nil {
					logger.Warn("failed to release idempotency key",
						zap.Error(err),
						zap.String("idempotency_key", key),
					)
				}
				return
			}

			resp := &redis.CachedResponse{StatusCode: rec.status, Body: bytes.TrimSpace(body)}
			if err := store.Store(bg, res, resp, redis.IdempotencyTTL); err != nil {
				logger.Warn("failed to store idempotency result",
					zap.Error(err),
					zap.String("idempotency_key", key),
				)
			}
		})
	}
}
