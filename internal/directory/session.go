package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/camayank/clientportal-realtime/internal/domain"
)

const sessionKeyPrefix = "portal:session:"

// NewRedisClient connects to the portal's shared Redis and verifies
// connectivity.
func NewRedisClient(ctx context.Context, redisURL string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}

	return client, nil
}

// sessionRecord is the JSON shape the portal writes for each session.
type sessionRecord struct {
	UserID int64 `json:"userId"`
}

// RedisSessionStore implements domain.SessionStore against the portal's
// session keys. This service only ever reads; session issuance and expiry
// belong to the portal.
type RedisSessionStore struct {
	rdb *goredis.Client
}

func NewRedisSessionStore(rdb *goredis.Client) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

// ResolveSession maps a session token to the user that owns it. A missing or
// expired session yields domain.ErrSessionNotFound.
func (s *RedisSessionStore) ResolveSession(ctx context.Context, token string) (domain.UserID, error) {
	raw, err := s.rdb.Get(ctx, sessionKeyPrefix+token).Result()
	if errors.Is(err, goredis.Nil) {
		return 0, domain.ErrSessionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read session: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return 0, fmt.Errorf("failed to decode session record: %w", err)
	}
	if record.UserID == 0 {
		return 0, domain.ErrSessionNotFound
	}

	return domain.UserID(record.UserID), nil
}
