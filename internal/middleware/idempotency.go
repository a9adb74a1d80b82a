package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"net/http"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/repository/postgres"
	"github.com/rs/zerolog/log"
)

const (
	IdempotencyKeyHeader   = "Idempotency-Key"
	maxIdempotencyBodySize = 1 << 20
	maxIdempotencyKeyLen   = 255
	idempotencyTTL         = 24 * time.Hour
	// Outlives the router's 30s request timeout; a reservation left by a
	// crashed process is reclaimable after this.
	idempotencyReserveTTL = time.Minute
)

type IdempotencyStore interface {
	Get(ctx context.Context, key string) (*postgres.IdempotencyEntry, error)
	Reserve(ctx context.Context, key string, expiresAt time.Time) error
	Complete(ctx context.Context, entry *postgres.IdempotencyEntry) error
	Release(ctx context.Context, key string) error
}

// Idempotency replays the stored response for a repeated Idempotency-Key.
// Keys are scoped to the authenticated user, the route and a digest of the
// request body, so a key reused by another customer (whose body names a
// different user) never replays someone else's checkout session.
//
// The key is reserved before the handler runs; a concurrent request with the
// same key gets 409 instead of running checkout twice. 5xx responses release
// the reservation so the client may retry.
func Idempotency(store IdempotencyStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get(IdempotencyKeyHeader)
			if key == "" {
				next.ServeHTTP(w, r)
				return
			}
			if len(key) > maxIdempotencyKeyLen {
				writeJSONError(w, http.StatusBadRequest, "idempotency key too long", "invalid_idempotency_key")
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodySize+1))
			if err != nil {
				writeJSONError(w, http.StatusBadRequest, "unreadable request body", "invalid_body")
				return
			}
			if len(body) > maxIdempotencyBodySize {
				writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large", "body_too_large")
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			ctx := r.Context()
			scoped := scopeKey(r, key, body)

			entry, err := store.Get(ctx, scoped)
			switch {
			case err != nil:
				log.Ctx(ctx).Warn().Err(err).Msg("Idempotency lookup failed, processing request")
				next.ServeHTTP(w, r)
				return
			case entry != nil && entry.InProgress():
				writeJSONError(w, http.StatusConflict, "a request with this idempotency key is in progress", "request_in_progress")
				return
			case entry != nil:
				replay(w, entry)
				return
			}

			if err := store.Reserve(ctx, scoped, time.Now().Add(idempotencyReserveTTL)); err != nil {
				if errors.Is(err, domainErrors.ErrDuplicateIdempotencyKey) {
					writeJSONError(w, http.StatusConflict, "a request with this idempotency key is in progress", "request_in_progress")
					return
				}
				log.Ctx(ctx).Warn().Err(err).Msg("Idempotency reservation failed, processing request")
				next.ServeHTTP(w, r)
				return
			}

			rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			// The request context may already be cancelled by the timeout middleware.
			storeCtx := context.WithoutCancel(ctx)
			if rec.statusCode >= 500 || rec.bodyTruncated {
				if err := store.Release(storeCtx, scoped); err != nil {
					log.Ctx(ctx).Warn().Err(err).Msg("Failed to release idempotency key")
				}
				return
			}
			now := time.Now()
			err = store.Complete(storeCtx, &postgres.IdempotencyEntry{
				Key:            scoped,
				ResponseBody:   rec.body.String(),
				ResponseStatus: rec.statusCode,
				CreatedAt:      now,
				ExpiresAt:      now.Add(idempotencyTTL),
			})
			if err != nil {
				log.Ctx(ctx).Warn().Err(err).Msg("Failed to store idempotent response")
			}
		})
	}
}

func replay(w http.ResponseWriter, entry *postgres.IdempotencyEntry) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Idempotency-Replayed", "true")
	w.WriteHeader(entry.ResponseStatus)
	w.Write([]byte(entry.ResponseBody))
}

func scopeKey(r *http.Request, key string, body []byte) string {
	user, _ := GetUserID(r.Context())
	sum := sha256.Sum256(body)
	return user + "|" + r.Method + " " + r.URL.Path + "|" + hex.EncodeToString(sum[:12]) + "|" + key
}

type responseRecorder struct {
	http.ResponseWriter
	statusCode    int
	body          *bytes.Buffer
	bodyTruncated bool
}

func (r *responseRecorder) WriteHeader(code int) {
	r.statusCode = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Write(b []byte) (int, error) {
	if !r.bodyTruncated {
		if r.body.Len()+len(b) > maxIdempotencyBodySize {
			r.bodyTruncated = true
		} else {
			r.body.Write(b)
		}
	}
	return r.ResponseWriter.Write(b)
}
