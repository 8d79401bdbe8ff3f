package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mbeoliero/deskline/pkg/constant"
)

const defaultPresenceTTL = 2 * time.Minute

// PresenceRepo mirrors agent presence status to Redis so other services can read it.
// A nil Redis client turns every call into a no-op.
type PresenceRepo struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPresenceRepo creates a new PresenceRepo
func NewPresenceRepo(rdb *redis.Client) *PresenceRepo {
	return &PresenceRepo{rdb: rdb, ttl: defaultPresenceTTL}
}

// SetStatus stores the participant's status with a TTL. Offline deletes the key.
func (r *PresenceRepo) SetStatus(ctx context.Context, participantId, status string) error {
	if r.rdb == nil {
		return nil
	}

	key := fmt.Sprintf(constant.RedisKeyPresence(), participantId)
	if status == constant.StatusOffline {
		return r.rdb.Del(ctx, key).Err()
	}
	ttl := r.ttl
	if ttl <= 0 {
		ttl = defaultPresenceTTL
	}
	return r.rdb.Set(ctx, key, status, ttl).Err()
}

// GetStatus reads the participant's mirrored status, offline if absent
func (r *PresenceRepo) GetStatus(ctx context.Context, participantId string) (string, error) {
	if r.rdb == nil {
		return constant.StatusOffline, nil
	}

	key := fmt.Sprintf(constant.RedisKeyPresence(), participantId)
	status, err := r.rdb.Get(ctx, key).Result()
	if errors.Is(err, redis.Nil) {
		return constant.StatusOffline, nil
	}
	if err != nil {
		return "", err
	}
	return status, nil
}

// Refresh extends the TTL of the participant's status
func (r *PresenceRepo) Refresh(ctx context.Context, participantId string) error {
	if r.rdb == nil {
		return nil
	}
	key := fmt.Sprintf(constant.RedisKeyPresence(), participantId)
	return r.rdb.Expire(ctx, key, r.ttl).Err()
}
