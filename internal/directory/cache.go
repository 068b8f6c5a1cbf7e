package directory

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/pointguardu/pgu-ai/pkg/logging"
)

// CachedDirectory is a read-through Redis cache in front of the DynamoDB
// store. Every webhook resolves the client by line, so the hot path avoids
// a GSI query per inbound call or text. Cache failures degrade to the
// underlying store; they are never surfaced to callers.
type CachedDirectory struct {
	inner  Directory
	redis  *redis.Client
	ttl    time.Duration
	logger *logging.Logger
}

var _ Directory = (*CachedDirectory)(nil)

// NewCachedDirectory wraps a directory with a Redis cache. A nil redis
// client returns the inner directory unchanged.
func NewCachedDirectory(inner Directory, redisClient *redis.Client, ttl time.Duration, logger *logging.Logger) Directory {
	if redisClient == nil {
		return inner
	}
	if logger == nil {
		logger = logging.Default()
	}
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &CachedDirectory{
		inner:  inner,
		redis:  redisClient,
		ttl:    ttl,
		logger: logger,
	}
}

func lineKey(line string) string {
	return fmt.Sprintf("directory:line:%s", line)
}

func idKey(clientID string) string {
	return fmt.Sprintf("directory:client:%s", clientID)
}

// GetByLine resolves a line, consulting the cache first.
func (c *CachedDirectory) GetByLine(ctx context.Context, line string) (*ClientRecord, error) {
	if rec := c.fetch(ctx, lineKey(line)); rec != nil {
		return rec, nil
	}
	rec, err := c.inner.GetByLine(ctx, line)
	if err != nil {
		return nil, err
	}
	c.store(ctx, rec)
	return rec, nil
}

// GetByID resolves a client id, consulting the cache first.
func (c *CachedDirectory) GetByID(ctx context.Context, clientID string) (*ClientRecord, error) {
	if rec := c.fetch(ctx, idKey(clientID)); rec != nil {
		return rec, nil
	}
	rec, err := c.inner.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	c.store(ctx, rec)
	return rec, nil
}

// Invalidate drops cached entries for a client after a write. Safe on
// a nil receiver so callers can hold a CachedDirectory that was never
// configured.
func (c *CachedDirectory) Invalidate(ctx context.Context, rec *ClientRecord) {
	if c == nil || rec == nil {
		return
	}
	if err := c.redis.Del(ctx, idKey(rec.ClientID), lineKey(rec.PhoneLine)).Err(); err != nil {
		c.logger.Warn("directory cache invalidate failed", "error", err, "client_id", rec.ClientID)
	}
}

func (c *CachedDirectory) fetch(ctx context.Context, key string) *ClientRecord {
	data, err := c.redis.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		c.logger.Warn("directory cache read failed", "error", err, "key", key)
		return nil
	}
	var rec ClientRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		c.logger.Warn("directory cache entry corrupt", "error", err, "key", key)
		return nil
	}
	return &rec
}

func (c *CachedDirectory) store(ctx context.Context, rec *ClientRecord) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	pipe := c.redis.TxPipeline()
	pipe.Set(ctx, idKey(rec.ClientID), data, c.ttl)
	pipe.Set(ctx, lineKey(rec.PhoneLine), data, c.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		c.logger.Warn("directory cache write failed", "error", err, "client_id", rec.ClientID)
	}
}
