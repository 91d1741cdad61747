package messages

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// dedupTTL is how long a seen message ID is remembered. Webhook
	// providers stop retrying well inside this window.
	dedupTTL = 24 * time.Hour

	dedupKeyPrefix = "ledgerchat:seen:"
)

// DedupFilter is an advisory Redis fast path in front of the Postgres
// upsert. It short-circuits obvious webhook retries; the upsert remains the
// authoritative dedup mechanism, so losing Redis only loses the shortcut.
type DedupFilter struct {
	rdb    *redis.Client
	logger *slog.Logger
	ttl    time.Duration
}

// NewDedupFilter creates a dedup filter. A nil client disables the fast
// path; every call then reports the message as new.
func NewDedupFilter(log *slog.Logger, rdb *redis.Client) *DedupFilter {
	if log == nil {
		log = slog.Default()
	}
	return &DedupFilter{
		rdb:    rdb,
		logger: log.With(slog.String("component", "dedup")),
		ttl:    dedupTTL,
	}
}

// IsNew reports whether the message ID has not been seen before, marking it
// seen atomically (SETNX). Redis errors degrade to "new" so the pipeline
// never depends on Redis availability.
func (f *DedupFilter) IsNew(ctx context.Context, messageID string) bool {
	if f == nil || f.rdb == nil {
		return true
	}
	key := fmt.Sprintf("%s%s", dedupKeyPrefix, messageID)
	set, err := f.rdb.SetNX(ctx, key, 1, f.ttl).Result()
	if err != nil {
		f.logger.Warn("dedup SETNX failed", slog.String("message_id", messageID), slog.Any("error", err))
		return true
	}
	return set
}

// Release forgets a message ID that never reached the authoritative upsert,
// so the platform's retry is processed instead of being swallowed as a
// duplicate.
func (f *DedupFilter) Release(ctx context.Context, messageID string) {
	if f == nil || f.rdb == nil {
		return
	}
	key := fmt.Sprintf("%s%s", dedupKeyPrefix, messageID)
	if err := f.rdb.Del(ctx, key).Err(); err != nil {
		f.logger.Warn("dedup release failed", slog.String("message_id", messageID), slog.Any("error", err))
	}
}
