package credential

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisStore(t *testing.T) *RedisStore {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewRedisStore(rdb, "test", 0)
}

func newFileStore(t *testing.T) *FileStore {
	t.Helper()

	s, err := OpenFileStore(filepath.Join(t.TempDir(), "nested", "credentials.json"))
	if err != nil {
		t.Fatalf("open file store: %v", err)
	}
	return s
}

func TestStoreContract(t *testing.T) {
	stores := map[string]func(t *testing.T) Store{
		"memory": func(*testing.T) Store { return NewMemoryStore() },
		"redis": func(t *testing.T) Store { return newRedisStore(t) },
		"file": func(t *testing.T) Store { return newFileStore(t) },
	}

	for name, mk := range stores {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := mk(t)

			if _, ok, err := s.Get(ctx, KeyAccessToken); err != nil || ok {
				t.Fatalf("expected missing key, ok=%v err=%v", ok, err)
			}
			if err := s.Set(ctx, KeyAccessToken, "T1"); err != nil {
				t.Fatalf("set failed: %v", err)
			}
			v, ok, err := s.Get(ctx, KeyAccessToken)
			if err != nil || !ok || v != "T1" {
				t.Fatalf("get = (%q, %v, %v), want (T1, true, nil)", v, ok, err)
			}
			if err := s.Set(ctx, KeyAccessToken, "T2"); err != nil {
				t.Fatalf("overwrite failed: %v", err)
			}
			if v, _, _ := s.Get(ctx, KeyAccessToken); v != "T2" {
				t.Fatalf("expected overwritten value T2, got %q", v)
			}
			if err := s.Remove(ctx, KeyAccessToken); err != nil {
				t.Fatalf("remove failed: %v", err)
			}
			if err := s.Remove(ctx, KeyAccessToken); err != nil {
				t.Fatalf("remove of missing key must be idempotent: %v", err)
			}
			if _, ok, _ := s.Get(ctx, KeyAccessToken); ok {
				t.Fatal("expected key removed")
			}
			if err := s.Set(ctx, "", "x"); !errors.Is(err, ErrEmptyKey) {
				t.Fatalf("expected ErrEmptyKey, got %v", err)
			}
		})
	}
}

func TestRedisStorePrefixAndTTL(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	defer mr.Close()
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	s := NewRedisStore(rdb, "market", time.Hour)
	if err := s.Set(context.Background(), KeyRefreshToken, "R1"); err != nil {
		t.Fatalf("set failed: %v", err)
	}

	got, err := mr.Get("market:cred:refreshToken")
	if err != nil || got != "R1" {
		t.Fatalf("expected prefixed key to hold R1, got %q (%v)", got, err)
	}
	if ttl := mr.TTL("market:cred:refreshToken"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %s", ttl)
	}
}

func TestRedisStoreUnavailable(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis run failed: %v", err)
	}
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer rdb.Close()
	s := NewRedisStore(rdb, "", 0)
	mr.Close()

	if _, _, err := s.Get(context.Background(), KeyAccessToken); !errors.Is(err, ErrStoreUnavailable) {
		t.Fatalf("expected ErrStoreUnavailable, got %v", err)
	}
}

func TestFileStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	ctx := context.Background()

	first, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, KeyAccessToken, "T1"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := first.Set(ctx, KeyRefreshToken, "R1"); err != nil {
		t.Fatalf("set: %v", err)
	}

	second, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if v, ok, _ := second.Get(ctx, KeyRefreshToken); !ok || v != "R1" {
		t.Fatalf("expected R1 after reopen, got %q ok=%v", v, ok)
	}
}

func TestOpenFileStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "credentials.json")
	s, err := OpenFileStore(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := s.Set(context.Background(), "k", "v"); err != nil {
		t.Fatalf("set: %v", err)
	}
	if err := writeFile(path, "{not json"); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := OpenFileStore(path); err == nil {
		t.Fatal("expected corrupt file to be rejected")
	}
}
