package cache

import (
	"context"
	"testing"
	"time"
)

func TestAnnotationCache_PutGet(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	c := store.Annotations()

	if err := c.Put(ctx, "hello", "p1", "<e>hello</e>"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := c.Get(ctx, "hello", "p1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok || got != "<e>hello</e>" {
		t.Errorf("Get = %q, %v; want %q, true", got, ok, "<e>hello</e>")
	}

	if _, ok, err := c.Get(ctx, "hello", "p2"); err != nil || ok {
		t.Errorf("Get with other provider = %v, %v; want miss", ok, err)
	}
	if _, ok, err := c.Get(ctx, "goodbye", "p1"); err != nil || ok {
		t.Errorf("Get with other text = %v, %v; want miss", ok, err)
	}
}

func TestAnnotationCache_UpsertReplaces(t *testing.T) {
	store, clock := newTestStore(t)
	ctx := context.Background()
	c := store.Annotations()

	if err := c.Put(ctx, "hello", "p1", "first"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	before, _, _ := c.Entry(ctx, "hello", "p1")

	clock.Advance(time.Minute)
	if err := c.Put(ctx, "hello", "p1", "second"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := c.Put(ctx, "hello", "p2", "other"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	after, ok, err := c.Entry(ctx, "hello", "p1")
	if err != nil || !ok {
		t.Fatalf("Entry = %v, %v", ok, err)
	}
	if after.AnnotatedText != "second" {
		t.Errorf("AnnotatedText = %q, want %q", after.AnnotatedText, "second")
	}
	if after.ID != before.ID {
		t.Errorf("Upsert created a new row: id %d, was %d", after.ID, before.ID)
	}
	if !after.CreatedAt.Equal(before.CreatedAt) {
		t.Errorf("CreatedAt changed on update: %v -> %v", before.CreatedAt, after.CreatedAt)
	}
	if !after.LastAccessedAt.After(before.LastAccessedAt) {
		t.Errorf("LastAccessedAt not refreshed: %v -> %v", before.LastAccessedAt, after.LastAccessedAt)
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.AnnotationEntries != 2 {
		t.Errorf("AnnotationEntries = %d, want 2", stats.AnnotationEntries)
	}
}

func TestAnnotationCache_HitRefreshesAccessTime(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	c := store.Annotations()

	if err := c.Put(ctx, "hello", "p1", "x"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	// the clock does not move; access time must still increase
	prev, _, _ := c.Entry(ctx, "hello", "p1")
	for i := 0; i < 3; i++ {
		if _, ok, err := c.Get(ctx, "hello", "p1"); err != nil || !ok {
			t.Fatalf("Get = %v, %v", ok, err)
		}
		cur, _, _ := c.Entry(ctx, "hello", "p1")
		if !cur.LastAccessedAt.After(prev.LastAccessedAt) {
			t.Fatalf("hit %d: LastAccessedAt %v not after %v", i, cur.LastAccessedAt, prev.LastAccessedAt)
		}
		prev = cur
	}
}

func TestAnnotationCache_ClosedStore(t *testing.T) {
	store, _ := newTestStore(t)
	_ = store.Close()

	if _, _, err := store.Annotations().Get(context.Background(), "a", "p"); err != ErrStoreClosed {
		t.Errorf("Get on closed store = %v, want ErrStoreClosed", err)
	}
	if _, _, err := store.Annotations().Entry(context.Background(), "a", "p"); err != ErrStoreClosed {
		t.Errorf("Entry on closed store = %v, want ErrStoreClosed", err)
	}
}
