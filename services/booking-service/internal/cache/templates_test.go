package cache

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/medibook/medibook/services/booking-service/internal/availability"
	"github.com/medibook/medibook/services/booking-service/internal/storage"
	"github.com/redis/go-redis/v9"
)

type countingSource struct {
	*storage.Memory
	gets int
}

func (s *countingSource) GetTemplate(ctx context.Context, doctorID string) (availability.Template, error) {
	s.gets++
	return s.Memory.GetTemplate(ctx, doctorID)
}

func newCache(t *testing.T) (*Templates, *countingSource, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	src := &countingSource{Memory: storage.NewMemory()}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewTemplates(rdb, src, time.Minute, logger), src, mr
}

func TestTemplates_ReadThrough(t *testing.T) {
	ctx := context.Background()
	c, src, mr := newCache(t)
	if err := src.Memory.SaveTemplate(ctx, "d1", availability.Template{time.Monday: {"09:00"}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	for i := 0; i < 3; i++ {
		tpl, err := c.GetTemplate(ctx, "d1")
		if err != nil {
			t.Fatalf("GetTemplate failed: %v", err)
		}
		if !tpl.Offers(time.Monday, "09:00") {
			t.Fatalf("unexpected template %v", tpl)
		}
	}
	if src.gets != 1 {
		t.Fatalf("expected one source read, got %d", src.gets)
	}
	if !mr.Exists("tpl:d1:0") {
		t.Fatal("expected cache entry")
	}
	if ttl := mr.TTL("tpl:d1:0"); ttl != time.Minute {
		t.Fatalf("unexpected ttl %s", ttl)
	}
}

func TestTemplates_SaveInvalidates(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newCache(t)
	if err := c.SaveTemplate(ctx, "d1", availability.Template{time.Monday: {"09:00"}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if _, err := c.GetTemplate(ctx, "d1"); err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if err := c.SaveTemplate(ctx, "d1", availability.Template{time.Friday: {"14:00"}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	if mr.Exists("tpl:d1:1") {
		t.Fatal("expected cache entry to be invalidated")
	}
	tpl, err := c.GetTemplate(ctx, "d1")
	if err != nil || !tpl.Offers(time.Friday, "14:00") || tpl.Offers(time.Monday, "09:00") {
		t.Fatalf("stale template %v %v", tpl, err)
	}
}

func TestTemplates_NotFoundIsNotCached(t *testing.T) {
	ctx := context.Background()
	c, _, mr := newCache(t)
	if _, err := c.GetTemplate(ctx, "ghost"); !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if mr.Exists("tpl:ghost:0") {
		t.Fatal("not found must not be cached")
	}
}

func TestTemplates_RedisDownFallsBack(t *testing.T) {
	ctx := context.Background()
	c, src, mr := newCache(t)
	if err := src.Memory.SaveTemplate(ctx, "d1", availability.Template{time.Monday: {"09:00"}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	mr.Close()
	tpl, err := c.GetTemplate(ctx, "d1")
	if err != nil || !tpl.Offers(time.Monday, "09:00") {
		t.Fatalf("expected fallback to source, got %v %v", tpl, err)
	}
}

// pausingSource holds the first GetTemplate after it has read the store until
// release is closed.
type pausingSource struct {
	*storage.Memory
	once    sync.Once
	read    chan struct{}
	release chan struct{}
}

func (s *pausingSource) GetTemplate(ctx context.Context, doctorID string) (availability.Template, error) {
	tpl, err := s.Memory.GetTemplate(ctx, doctorID)
	s.once.Do(func() {
		close(s.read)
		<-s.release
	})
	return tpl, err
}

func TestTemplates_SaveDuringReadIsNotShadowed(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	src := &pausingSource{Memory: storage.NewMemory(), read: make(chan struct{}), release: make(chan struct{})}
	c := NewTemplates(rdb, src, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if err := src.Memory.SaveTemplate(ctx, "d1", availability.Template{time.Tuesday: {"09:00"}}); err != nil {
		t.Fatalf("seed failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.GetTemplate(ctx, "d1")
		done <- err
	}()
	<-src.read

	if err := c.SaveTemplate(ctx, "d1", availability.Template{time.Tuesday: {"10:00"}}); err != nil {
		t.Fatalf("save failed: %v", err)
	}
	close(src.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight read failed: %v", err)
	}

	tpl, err := c.GetTemplate(ctx, "d1")
	if err != nil {
		t.Fatalf("get failed: %v", err)
	}
	if !tpl.Offers(time.Tuesday, "10:00") || tpl.Offers(time.Tuesday, "09:00") {
		t.Fatalf("stale template served after save: %v", tpl)
	}
}
