package middleware

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/storefront/internal/domain/errors"
	"github.com/cassiomorais/storefront/internal/repository/postgres"
	"github.com/cassiomorais/storefront/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func countingHandler(calls *atomic.Int32, status int, body string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	})
}

func checkoutRequest(userID, key string) *http.Request {
	return checkoutRequestWithBody(userID, key, `{}`)
}

func checkoutRequestWithBody(userID, key, body string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(body))
	if key != "" {
		req.Header.Set(IdempotencyKeyHeader, key)
	}
	if userID != "" {
		req = req.WithContext(WithUserID(req.Context(), userID))
	}
	return req
}

func TestIdempotency_ReplaysStoredResponse(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{"session_id":"cs_1"}`))

	first := httptest.NewRecorder()
	handler.ServeHTTP(first, checkoutRequest("user-1", "key-1"))
	second := httptest.NewRecorder()
	handler.ServeHTTP(second, checkoutRequest("user-1", "key-1"))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusCreated, second.Code)
	assert.Equal(t, `{"session_id":"cs_1"}`, second.Body.String())
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Empty(t, first.Header().Get("X-Idempotency-Replayed"))
}

func TestIdempotency_KeysScopedPerUser(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{}`))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("user-1", "shared"))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("user-2", "shared"))

	assert.Equal(t, int32(2), calls.Load())
	assert.Len(t, store.Keys(), 2)
}

func TestIdempotency_AnonymousKeysScopedByBody(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		b, _ := io.ReadAll(r.Body)
		w.WriteHeader(http.StatusCreated)
		w.Write(b)
	})
	mw := Idempotency(store)(handler)

	first := httptest.NewRecorder()
	mw.ServeHTTP(first, checkoutRequestWithBody("", "shared", `{"user_id":"user-1"}`))
	second := httptest.NewRecorder()
	mw.ServeHTTP(second, checkoutRequestWithBody("", "shared", `{"user_id":"user-2"}`))

	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, `{"user_id":"user-1"}`, first.Body.String())
	assert.Equal(t, `{"user_id":"user-2"}`, second.Body.String())
	assert.Empty(t, second.Header().Get("X-Idempotency-Replayed"))
}

func TestIdempotency_InFlightKeyConflicts(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	started := make(chan struct{})
	release := make(chan struct{})
	handler := Idempotency(store)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		close(started)
		<-release
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"session_id":"cs_1"}`))
	}))

	done := make(chan *httptest.ResponseRecorder)
	go func() {
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, checkoutRequest("user-1", "key-1"))
		done <- w
	}()
	<-started

	concurrent := httptest.NewRecorder()
	handler.ServeHTTP(concurrent, checkoutRequest("user-1", "key-1"))
	close(release)
	first := <-done

	assert.Equal(t, http.StatusConflict, concurrent.Code)
	assert.Contains(t, concurrent.Body.String(), "request_in_progress")
	assert.Equal(t, http.StatusCreated, first.Code)
	assert.Equal(t, int32(1), calls.Load())

	replayed := httptest.NewRecorder()
	handler.ServeHTTP(replayed, checkoutRequest("user-1", "key-1"))
	assert.Equal(t, http.StatusCreated, replayed.Code)
	assert.Equal(t, "true", replayed.Header().Get("X-Idempotency-Replayed"))
}

func TestIdempotency_LostReservationRaceConflicts(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	store.ReserveFunc = func(context.Context, string, time.Time) error {
		return domainErrors.ErrDuplicateIdempotencyKey
	}
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{}`))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, checkoutRequest("user-1", "key-1"))

	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Zero(t, calls.Load())
}

func TestIdempotency_NoKeyPassesThrough(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{}`))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("user-1", ""))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("user-1", ""))

	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, store.Keys())
}

func TestIdempotency_ServerErrorsNotStored(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusServiceUnavailable, `{"code":"upstream_unavailable"}`))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("user-1", "key-1"))
	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("user-1", "key-1"))

	assert.Equal(t, int32(2), calls.Load())
	assert.Empty(t, store.Keys())
}

func TestIdempotency_ClientErrorsStored(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusUnprocessableEntity, `{"code":"empty_cart"}`))

	handler.ServeHTTP(httptest.NewRecorder(), checkoutRequest("user-1", "key-1"))
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, checkoutRequest("user-1", "key-1"))

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestIdempotency_KeyTooLong(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{}`))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, checkoutRequest("user-1", strings.Repeat("k", maxIdempotencyKeyLen+1)))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Zero(t, calls.Load())
}

func TestIdempotency_StoreFailureStillServes(t *testing.T) {
	store := testutil.NewMockIdempotencyStore()
	store.GetFunc = func(context.Context, string) (*postgres.IdempotencyEntry, error) {
		return nil, errors.New("connection refused")
	}
	store.ReserveFunc = func(context.Context, string, time.Time) error {
		return errors.New("connection refused")
	}
	var calls atomic.Int32
	handler := Idempotency(store)(countingHandler(&calls, http.StatusCreated, `{"session_id":"cs_1"}`))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, checkoutRequest("user-1", "key-1"))

	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, int32(1), calls.Load())
}

func TestResponseRecorder_TruncatesLargeBodies(t *testing.T) {
	w := httptest.NewRecorder()
	rec := &responseRecorder{ResponseWriter: w, body: &bytes.Buffer{}, statusCode: http.StatusOK}

	rec.Write([]byte(strings.Repeat("a", maxIdempotencyBodySize)))
	rec.Write([]byte("b"))

	assert.True(t, rec.bodyTruncated)
	assert.Equal(t, maxIdempotencyBodySize+1, w.Body.Len())
}
