package cache

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func testProviders(t *testing.T) map[string]Provider {
	t.Helper()
	sqlite, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewSQLiteProvider: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })
	return map[string]Provider{
		"memory": NewMemoryProvider(),
		"sqlite": sqlite,
	}
}

func TestProviderRoundTrip(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if _, err := p.Get(ctx, "missing"); !errors.Is(err, ErrCacheMiss) {
				t.Fatalf("expected ErrCacheMiss, got %v", err)
			}
			if err := p.Set(ctx, "k", []byte("v1"), time.Minute); err != nil {
				t.Fatalf("Set: %v", err)
			}
			got, err := p.Get(ctx, "k")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "v1" {
				t.Errorf("expected v1, got %q", got)
			}
			if err := p.Del(ctx, "k"); err != nil {
				t.Fatalf("Del: %v", err)
			}
			if _, err := p.Get(ctx, "k"); !errors.Is(err, ErrCacheMiss) {
				t.Fatalf("expected ErrCacheMiss after delete, got %v", err)
			}
		})
	}
}

func TestProviderTTLExpiry(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			if err := p.Set(ctx, "short", []byte("x"), 10*time.Millisecond); err != nil {
				t.Fatalf("Set: %v", err)
			}
			time.Sleep(25 * time.Millisecond)
			if _, err := p.Get(ctx, "short"); !errors.Is(err, ErrCacheMiss) {
				t.Fatalf("expected expired entry to miss, got %v", err)
			}
		})
	}
}

func TestProviderSetNX(t *testing.T) {
	for name, p := range testProviders(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			ok, err := p.SetNX(ctx, "lock", []byte("a"), time.Minute)
			if err != nil || !ok {
				t.Fatalf("first SetNX: ok=%v err=%v", ok, err)
			}
			ok, err = p.SetNX(ctx, "lock", []byte("b"), time.Minute)
			if err != nil {
				t.Fatalf("second SetNX: %v", err)
			}
			if ok {
				t.Error("SetNX must not overwrite a live key")
			}
			got, err := p.Get(ctx, "lock")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "a" {
				t.Errorf("expected original value, got %q", got)
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "cache.db")

	first, err := NewSQLiteProvider(path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := first.Set(ctx, "persist", []byte("value"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := first.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	second, err := NewSQLiteProvider(path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer second.Close()

	got, err := second.Get(ctx, "persist")
	if err != nil {
		t.Fatalf("Get after reopen: %v", err)
	}
	if string(got) != "value" {
		t.Errorf("expected persisted value, got %q", got)
	}
}

func TestSQLiteSweepRemovesExpired(t *testing.T) {
	ctx := context.Background()
	p, err := NewSQLiteProvider(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer p.Close()

	if err := p.Set(ctx, "old", []byte("x"), time.Millisecond); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := p.Set(ctx, "live", []byte("y"), time.Hour); err != nil {
		t.Fatalf("Set: %v", err)
	}
	time.Sleep(10 * time.Millisecond)
	if err := p.Sweep(ctx); err != nil {
		t.Fatalf("Sweep: %v", err)
	}
	if _, err := p.Get(ctx, "live"); err != nil {
		t.Errorf("live key swept: %v", err)
	}
}
