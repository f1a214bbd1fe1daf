package telephony

import (
	"context"
	"testing"
	"time"
)

func TestMemoryLegMapPutGetDelete(t *testing.T) {
	m := NewMemoryLegMap(time.Hour, time.Hour)
	defer m.Close()
	ctx := context.Background()

	if err := m.Put(ctx, "CA-child", "CA-parent"); err != nil {
		t.Fatalf("put: %v", err)
	}
	parent, ok, err := m.Get(ctx, "CA-child")
	if err != nil || !ok || parent != "CA-parent" {
		t.Fatalf("get = %q, %v, %v", parent, ok, err)
	}

	if err := m.Delete(ctx, "CA-child"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok, _ := m.Get(ctx, "CA-child"); ok {
		t.Fatal("entry should be gone after delete")
	}
}

func TestMemoryLegMapMiss(t *testing.T) {
	m := NewMemoryLegMap(time.Hour, time.Hour)
	defer m.Close()

	parent, ok, err := m.Get(context.Background(), "CA-unknown")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if ok || parent != "" {
		t.Fatalf("miss = %q, %v; want empty, false", parent, ok)
	}
}

func TestMemoryLegMapExpiry(t *testing.T) {
	m := NewMemoryLegMap(10*time.Millisecond, time.Hour)
	defer m.Close()
	ctx := context.Background()

	m.Put(ctx, "CA-child", "CA-parent")
	time.Sleep(25 * time.Millisecond)

	if _, ok, _ := m.Get(ctx, "CA-child"); ok {
		t.Fatal("expired entry should not be returned")
	}
}

func TestMemoryLegMapOverwrite(t *testing.T) {
	m := NewMemoryLegMap(time.Hour, time.Hour)
	defer m.Close()
	ctx := context.Background()

	m.Put(ctx, "CA-child", "CA-old")
	m.Put(ctx, "CA-child", "CA-new")

	parent, ok, _ := m.Get(ctx, "CA-child")
	if !ok || parent != "CA-new" {
		t.Fatalf("get = %q, %v; want CA-new", parent, ok)
	}
}

func TestMemoryLegMapCloseIdempotent(t *testing.T) {
	m := NewMemoryLegMap(time.Hour, time.Hour)
	if err := m.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := m.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}
