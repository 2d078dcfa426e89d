package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyTTL is how long a completed response is replayed for a key.
	IdempotencyTTL = 24 * time.Hour

	// processingTTL bounds how long a crashed request can hold a key.
	processingTTL = 5 * time.Minute

	processingPrefix = "processing:"
)

// ErrRequestInFlight means another request with the same key has not finished yet.
var ErrRequestInFlight = errors.New("request with this idempotency key is still in progress")

// CachedResponse is the replayable outcome of a completed request.
type CachedResponse struct {
	StatusCode int             `json:"status_code"`
	Body       json.RawMessage `json:"body"`
	CreatedAt  int64           `json:"created_at"`
}

// Reservation is held by the request that owns a key until Store or Release.
type Reservation struct {
	key   string
	token string
}

// releaseScript deletes the key only while it still holds this reservation.
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// IdempotencyService caches responses per (scope, key) so client retries
// replay the first outcome instead of repeating the side effect.
type IdempotencyService struct {
	client *Client
	logger *zap.Logger
}

func NewIdempotencyService(client *Client, logger *zap.Logger) *IdempotencyService {
	return &IdempotencyService{
		client: client,
		logger: logger,
	}
}

func (s *IdempotencyService) buildKey(scope, idempotencyKey string) string {
	return fmt.Sprintf("idempotency:%s:%s", scope, idempotencyKey)
}

// CheckOrReserve returns the cached response when one exists. Otherwise it
// reserves the key and returns a Reservation. ErrRequestInFlight is returned
// while another holder has the key reserved.
func (s *IdempotencyService) CheckOrReserve(ctx context.Context, scope, idempotencyKey string) (*CachedResponse, *Reservation, error) {
	key := s.buildKey(scope, idempotencyKey)
	res := &Reservation{key: key, token: processingPrefix + uuid.NewString()}

	set, err := s.client.rdb.SetNX(ctx, key, res.token, processingTTL).Result()
	if err != nil {
		return nil, nil, fmt.Errorf("redis setnx failed: %w", err)
	}
	if set {
		return nil, res, nil
	}

	val, err := s.client.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		// expired between SETNX and GET; the caller may retry
		return nil, nil, ErrRequestInFlight
	}
	if err != nil {
		return nil, nil, fmt.Errorf("redis get failed: %w", err)
	}

	if strings.HasPrefix(val, processingPrefix) {
		return nil, nil, ErrRequestInFlight
	}

	var cached CachedResponse
	if err := json.Unmarshal([]byte(val), &cached); err != nil {
		s.logger.Error("failed to unmarshal idempotency result", zap.Error(err), zap.String("key", key))
		return nil, nil, fmt.Errorf("invalid cached result: %w", err)
	}

	s.logger.Debug("idempotency cache hit",
		zap.String("scope", scope),
		zap.Int("status_code", cached.StatusCode),
	)
	return &cached, nil, nil
}

// Store replaces the reservation with the final response.
func (s *IdempotencyService) Store(ctx context.Context, res *Reservation, resp *CachedResponse, ttl time.Duration) error {
	if resp.CreatedAt == 0 {
		resp.CreatedAt = time.Now().Unix()
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	if err := s.client.rdb.Set(ctx, res.key, data, ttl).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

// Release drops a reservation without caching, so the client may retry.
func (s *IdempotencyService) Release(ctx context.Context, res *Reservation) error {
	if err := releaseScript.Run(ctx, s.client.rdb, []string{res.key}, res.token).Err(); err != nil {
		return fmt.Errorf("redis release failed: %w", err)
	}
	return nil
}
