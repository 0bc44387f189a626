package valkey

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"
)

// These tests talk to a real server; set MEETPOINT_TEST_VALKEY_ADDR to run them.
func newTestCache(t *testing.T) *Cache {
	t.Helper()
	addr := os.Getenv("MEETPOINT_TEST_VALKEY_ADDR")
	if addr == "" {
		t.Skip("MEETPOINT_TEST_VALKEY_ADDR not set")
	}
	c, err := New(addr)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(c.Close)
	return c
}

func TestCache_RoundTrip(t *testing.T) {
	c := newTestCache(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	key := "meetpoint:test:" + t.Name()
	if err := c.Set(ctx, key, []byte(`{"rows":[[1,null]]}`), 60); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, err := c.Get(ctx, key)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !bytes.Equal(got, []byte(`{"rows":[[1,null]]}`)) {
		t.Errorf("unexpected value %q", got)
	}

	if err := c.Delete(ctx, key); err != nil {
		t.Fatalf("delete: %v", err)
	}
	got, err = c.Get(ctx, key)
	if err != nil || got != nil {
		t.Errorf("expected miss after delete, got %q, %v", got, err)
	}
}

func TestCache_Ping(t *testing.T) {
	c := newTestCache(t)
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}
}
