// Package idempotency implements the dedup gate described in the
// normalizer pipeline: every inbound notification is checked against
// (app, platform, notification-uuid) before any subscription or
// transaction state is touched. A Redis cache sits in front of the
// Postgres witness table so a hot replay storm (providers re-sending
// the same notification before a webhook ack) doesn't round-trip to
// the relational store on every attempt.
package idempotency

import (
	"context"
	"fmt"
	"time"

	"paycat.dev/gateway/internal/config"
	"paycat.dev/gateway/internal/database"
	"paycat.dev/gateway/internal/models"
	"paycat.dev/gateway/pkg/logging"
)

// Result is the outcome of CheckAndReserve.
type Result int

const (
	Fresh Result = iota
	Duplicate
)

func cacheKey(appID string, platform models.Platform, notificationUUID string) string {
	return fmt.Sprintf("idempotency:%s:%s:%s", appID, platform, notificationUUID)
}

// CheckAndReserve reports whether this notification has been seen
// before. Callers proceed to process on Fresh and must call
// MarkProcessed once the state write succeeds; on Duplicate callers
// short-circuit without touching subscription/transaction state.
func CheckAndReserve(appID string, platform models.Platform, notificationUUID string) (Result, error) {
	if notificationUUID == "" {
		// No dedup key available; every caller in this codebase supplies
		// one (it's required per provider adapter), so this only occurs
		// for malformed input — treat conservatively as fresh so the
		// request still gets a response rather than silently vanishing.
		return Fresh, nil
	}

	key := cacheKey(appID, platform, notificationUUID)
	if rdb := database.GetRedis(); rdb != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		exists, err := rdb.Exists(ctx, key).Result()
		cancel()
		if err == nil && exists > 0 {
			return Duplicate, nil
		}
		if err != nil {
			logging.Warnf("idempotency: redis lookup failed for %s, falling back to database: %v", key, err)
		}
	}

	seen, err := database.IsNotificationProcessed(appID, platform, notificationUUID)
	if err != nil {
		return Fresh, err
	}
	if seen {
		return Duplicate, nil
	}
	return Fresh, nil
}

// MarkProcessed commits the idempotency witness. Failure here is
// non-fatal: the caller logs and continues, because a replay of an
// already-applied notification is itself idempotent (deterministic
// writes, see internal/normalizer).
func MarkProcessed(appID string, platform models.Platform, notificationUUID, notificationType string) {
	if notificationUUID == "" {
		return
	}
	if err := database.MarkNotificationProcessed(appID, platform, notificationUUID, notificationType); err != nil {
		logging.Warnf("idempotency: failed to mark notification processed (app=%s platform=%s uuid=%s): %v",
			appID, platform, notificationUUID, err)
	}

	if rdb := database.GetRedis(); rdb != nil {
		ttl := time.Duration(config.AppConfig.IdempotencyCacheTTLSeconds) * time.Second
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		key := cacheKey(appID, platform, notificationUUID)
		if err := rdb.Set(ctx, key, notificationType, ttl).Err(); err != nil {
			logging.Warnf("idempotency: failed to cache witness for %s: %v", key, err)
		}
	}
}
