package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/lalithlochan/bloodlink/internal/db"
	"github.com/lalithlochan/bloodlink/internal/donation"
	"github.com/lalithlochan/bloodlink/internal/redis"
)

func newIdempotentServer(t *testing.T) (*testServer, *redis.IdempotencyService) {
	t.Helper()
	client, _ := setupRedis(t)
	svc := redis.NewIdempotencyService(client, zap.NewNop())
	ts := newTestServer(t, func(cfg *RouterConfig) { cfg.Idempotency = svc })
	return ts, svc
}

func sendWithKey(t *testing.T, ts *testServer, path string, userID int64, key, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	token, err := ts.issuer.Issue(userID)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set(idempotencyHeader, key)

	rec := httptest.NewRecorder()
	ts.router.ServeHTTP(rec, req)
	return rec
}

const offerBody = `{"donor_id":5,"request_id":10,"hospital_name":"H"}`

func TestIdempotency_ReplaysFirstResponse(t *testing.T) {
	ts, _ := newIdempotentServer(t)
	calls := 0
	ts.workflow.sendOffer = func(donation.OfferInput) (*db.Offer, error) {
		calls++
		return &db.Offer{ID: int64(calls)}, nil
	}

	first := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "k1", offerBody)
	require.Equal(t, http.StatusOK, first.Code)
	assert.Empty(t, first.Header().Get("X-Idempotency-Replayed"))

	second := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "k1", offerBody)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.JSONEq(t, first.Body.String(), second.Body.String())
	assert.Equal(t, 1, calls)
}

func TestIdempotency_KeysAreScopedPerCaller(t *testing.T) {
	ts, _ := newIdempotentServer(t)
	calls := 0
	ts.workflow.sendOffer = func(donation.OfferInput) (*db.Offer, error) {
		calls++
		return &db.Offer{ID: int64(calls)}, nil
	}

	sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "shared", offerBody)
	rec := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 2, "shared", offerBody)

	assert.Empty(t, rec.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ServerErrorsAreRetryable(t *testing.T) {
	ts, _ := newIdempotentServer(t)
	calls := 0
	ts.workflow.sendOffer = func(donation.OfferInput) (*db.Offer, error) {
		calls++
		if calls == 1 {
			return nil, assert.AnError
		}
		return &db.Offer{ID: 1}, nil
	}

	first := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "k1", offerBody)
	require.Equal(t, http.StatusInternalServerError, first.Code)

	second := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "k1", offerBody)
	require.Equal(t, http.StatusOK, second.Code)
	assert.Empty(t, second.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, 2, calls)
}

func TestIdempotency_ClientErrorsAreReplayed(t *testing.T) {
	ts, _ := newIdempotentServer(t)

	first := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "k1", "{bad")
	require.Equal(t, http.StatusBadRequest, first.Code)

	second := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "k1", "{bad")
	require.Equal(t, http.StatusBadRequest, second.Code)
	assert.Equal(t, "true", second.Header().Get("X-Idempotency-Replayed"))
	assert.Equal(t, "application/problem+json", second.Header().Get("Content-Type"))
}

func TestIdempotency_InFlightConflicts(t *testing.T) {
	ts, svc := newIdempotentServer(t)

	// Hold the reservation the way a concurrent request would.
	_, res, err := svc.CheckOrReserve(context.Background(), "1:POST:/api/blood-request/send-donor-request", "k1")
	require.NoError(t, err)
	require.NotNil(t, res)

	rec := sendWithKey(t, ts, "/api/blood-request/send-donor-request", 1, "k1", offerBody)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "duplicate_request", decodeProblem(t, rec).Type)
}

func TestIdempotency_WithoutKeyAlwaysRuns(t *testing.T) {
	ts, _ := newIdempotentServer(t)
	calls := 0
	ts.workflow.sendOffer = func(donation.OfferInput) (*db.Offer, error) {
		calls++
		return &db.Offer{ID: 1}, nil
	}

	for i := 0; i < 2; i++ {
		rec := ts.do(t, http.MethodPost, "/api/blood-request/send-donor-request", 1, offerBody)
		require.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Equal(t, 2, calls)
}
