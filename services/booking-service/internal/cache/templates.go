package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/medibook/medibook/services/booking-service/internal/availability"
	"github.com/redis/go-redis/v9"
)

// TemplateSource is the backing store the cache reads through to.
type TemplateSource interface {
	GetTemplate(ctx context.Context, doctorID string) (availability.Template, error)
	SaveTemplate(ctx context.Context, doctorID string, tpl availability.Template) error
}

// Templates is a read-through Redis cache for availability templates.
// Entries are keyed by a per-doctor generation that SaveTemplate bumps.
// Redis failures degrade to the backing store. Lookup errors, including
// not found, are never cached.
type Templates struct {
	rdb    redis.Cmdable
	source TemplateSource
	ttl    time.Duration
	logger *slog.Logger
}

func NewTemplates(rdb redis.Cmdable, source TemplateSource, ttl time.Duration, logger *slog.Logger) *Templates {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	return &Templates{rdb: rdb, source: source, ttl: ttl, logger: logger}
}

func generationKey(doctorID string) string {
	return "tplgen:" + doctorID
}

func templateKey(doctorID string, gen int64) string {
	return "tpl:" + doctorID + ":" + strconv.FormatInt(gen, 10)
}

// generation returns the doctor's template generation. Every save bumps it, so
// an entry written by a read that raced a save lands under a retired key.
func (c *Templates) generation(ctx context.Context, doctorID string) (int64, error) {
	gen, err := c.rdb.Get(ctx, generationKey(doctorID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (c *Templates) GetTemplate(ctx context.Context, doctorID string) (availability.Template, error) {
	gen, err := c.generation(ctx, doctorID)
	if err != nil {
		c.logger.Warn("template cache read failed", "doctor_id", doctorID, "err", err)
		return c.source.GetTemplate(ctx, doctorID)
	}
	key := templateKey(doctorID, gen)

	raw, err := c.rdb.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		var tpl availability.Template
		if err := json.Unmarshal(raw, &tpl); err == nil {
			return tpl, nil
		}
		c.logger.Warn("template cache entry unreadable", "doctor_id", doctorID)
	case !errors.Is(err, redis.Nil):
		c.logger.Warn("template cache read failed", "doctor_id", doctorID, "err", err)
	}

	tpl, err := c.source.GetTemplate(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	if b, err := json.Marshal(tpl); err == nil {
		if err := c.rdb.Set(ctx, key, b, c.ttl).Err(); err != nil {
			c.logger.Warn("template cache write failed", "doctor_id", doctorID, "err", err)
		}
	}
	return tpl, nil
}

func (c *Templates) SaveTemplate(ctx context.Context, doctorID string, tpl availability.Template) error {
	if err := c.source.SaveTemplate(ctx, doctorID, tpl); err != nil {
		return err
	}
	gen, err := c.rdb.Incr(ctx, generationKey(doctorID)).Result()
	if err != nil {
		c.logger.Warn("template cache invalidation failed", "doctor_id", doctorID, "err", err)
		return nil
	}
	if err := c.rdb.Del(ctx, templateKey(doctorID, gen-1)).Err(); err != nil {
		c.logger.Warn("template cache cleanup failed", "doctor_id", doctorID, "err", err)
	}
	return nil
}

func ReadyCheck(rdb redis.Cmdable) func(context.Context) error {
	return func(ctx context.Context) error {
		return rdb.Ping(ctx).Err()
	}
}
