package cache

import (
	"testing"
	"time"
)

func TestSetGetRoundTrip(t *testing.T) {
	c := New(time.Hour)
	c.Set("k", "v")
	got, ok := c.Get("k")
	if !ok || got != "v" {
		t.Fatalf("expected (v, true), got (%q, %v)", got, ok)
	}
}

func TestGetMissingKey(t *testing.T) {
	c := New(time.Hour)
	if _, ok := c.Get("missing"); ok {
		t.Fatalf("expected miss for unset key")
	}
}

func TestEntryExpires(t *testing.T) {
	c := New(1 * time.Millisecond)
	c.Set("k", "v")
	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get("k"); ok {
		t.Fatalf("expected entry to have expired")
	}
}

func TestStatsCountsExpiredWithoutSweeping(t *testing.T) {
	c := New(1 * time.Millisecond)
	c.Set("k1", "v1")
	c.Set("k2", "v2")
	time.Sleep(5 * time.Millisecond)

	st := c.Stats()
	if st.Total != 2 || st.Expired != 2 {
		t.Fatalf("expected total=2 expired=2, got %+v", st)
	}
}

func TestClearRemovesEverything(t *testing.T) {
	c := New(time.Hour)
	c.Set("k", "v")
	c.Clear()
	if st := c.Stats(); st.Total != 0 {
		t.Fatalf("expected empty cache after Clear, got %+v", st)
	}
}

func TestClearExpiredOnlySweepsExpired(t *testing.T) {
	c := New(time.Hour)
	c.Set("fresh", "v")
	c.entries["stale"] = entry{value: "v", expiresAt: time.Now().Add(-time.Minute)}

	removed := c.ClearExpired()
	if removed != 1 {
		t.Fatalf("expected to remove 1 stale entry, got %d", removed)
	}
	if _, ok := c.Get("fresh"); !ok {
		t.Fatalf("expected fresh entry to survive ClearExpired")
	}
}

func TestNewDefaultsZeroTTL(t *testing.T) {
	c := New(0)
	if c.ttl != time.Hour {
		t.Fatalf("expected default ttl of 1h, got %v", c.ttl)
	}
}
