package genstore

import (
	"context"
	"testing"
	"time"
)

func TestLocalNextIsZeroBasedAndIncreasing(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, ok, err := s.Last(ctx, "k"); err != nil || ok {
		t.Fatalf("Last on fresh key: ok=%v err=%v", ok, err)
	}
	for want := uint64(0); want < 3; want++ {
		got, err := s.Next(ctx, "k")
		if err != nil {
			t.Fatal(err)
		}
		if got != want {
			t.Fatalf("Next=%d want %d", got, want)
		}
	}
	last, ok, err := s.Last(ctx, "k")
	if err != nil || !ok || last != 2 {
		t.Fatalf("Last=%d ok=%v err=%v want 2", last, ok, err)
	}
	// other keys are independent
	if g, _ := s.Next(ctx, "other"); g != 0 {
		t.Fatalf("independent key got %d", g)
	}
}

func TestLocalObserveRaisesFloor(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, 0)
	t.Cleanup(func() { _ = s.Close(ctx) })

	if err := s.Observe(ctx, "k", 5); err != nil {
		t.Fatal(err)
	}
	if last, ok, _ := s.Last(ctx, "k"); !ok || last != 5 {
		t.Fatalf("Last after Observe=%d ok=%v", last, ok)
	}
	if g, _ := s.Next(ctx, "k"); g != 6 {
		t.Fatalf("Next after Observe(5)=%d want 6", g)
	}
	// observing an older generation must not lower the floor
	_ = s.Observe(ctx, "k", 1)
	if g, _ := s.Next(ctx, "k"); g != 7 {
		t.Fatalf("Next after stale Observe=%d want 7", g)
	}
}

func TestLocalCleanupPrunesOld(t *testing.T) {
	ctx := context.Background()
	s := NewLocalGenStore(0, time.Second) // retention=1s
	t.Cleanup(func() { _ = s.Close(ctx) })

	if _, err := s.Next(ctx, "old"); err != nil {
		t.Fatal(err)
	}
	time.Sleep(1200 * time.Millisecond)
	s.Cleanup(time.Second)

	if _, ok, err := s.Last(ctx, "old"); err != nil || ok {
		t.Fatalf("expected pruned key, ok=%v err=%v", ok, err)
	}
}

func TestLocalCloseIdempotent(t *testing.T) {
	s := NewLocalGenStore(time.Millisecond, time.Hour)
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(context.Background()); err != nil {
		t.Fatal(err)
	}
}
