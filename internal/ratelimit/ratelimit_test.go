package ratelimit

import (
	"testing"
	"time"
)

func TestAllowPermitsUpToBurst(t *testing.T) {
	l := New(60, 3) // 1 req/sec, burst 3
	for i := 0; i < 3; i++ {
		ok, _ := l.Allow("1.2.3.4", "/api/servers")
		if !ok {
			t.Fatalf("expected request %d to be allowed within burst", i)
		}
	}
	ok, retry := l.Allow("1.2.3.4", "/api/servers")
	if ok {
		t.Fatal("expected 4th immediate request to be denied")
	}
	if retry <= 0 {
		t.Error("expected a positive retry-after duration")
	}
}

func TestAllowKeysByIPAndPathIndependently(t *testing.T) {
	l := New(60, 1)
	ok1, _ := l.Allow("1.2.3.4", "/api/servers")
	ok2, _ := l.Allow("5.6.7.8", "/api/servers")
	if !ok1 || !ok2 {
		t.Fatal("expected independent buckets per source IP")
	}
}

func TestEvictRemovesIdleBuckets(t *testing.T) {
	l := New(60, 1)
	l.idleEvictAfter = time.Millisecond
	l.Allow("1.2.3.4", "/api/health")
	time.Sleep(5 * time.Millisecond)
	l.Evict()

	l.mu.Lock()
	n := len(l.buckets)
	l.mu.Unlock()
	if n != 0 {
		t.Errorf("expected idle bucket to be evicted, got %d remaining", n)
	}
}

func TestSetOverrideAppliesPerPath(t *testing.T) {
	l := New(6000, 100)
	l.SetOverride("/api/servers", Rate{RequestsPerMinute: 60, Burst: 1})
	ok1, _ := l.Allow("9.9.9.9", "/api/servers")
	ok2, _ := l.Allow("9.9.9.9", "/api/servers")
	if !ok1 {
		t.Fatal("expected first request to be allowed")
	}
	if ok2 {
		t.Fatal("expected second immediate request to be denied under the override's burst=1")
	}
}
