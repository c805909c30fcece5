package ratelimiter

import (
	"testing"
	"time"
)

func TestAllowEnforcesBurstPerKey(t *testing.T) {
	l := New(1, 2, time.Minute)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	if !l.Allow("client-a", now) || !l.Allow("client-a", now) {
		t.Fatal("burst tokens must be granted")
	}
	if l.Allow("client-a", now) {
		t.Fatal("third immediate call must be limited")
	}
	if !l.Allow("client-b", now) {
		t.Fatal("a different key has its own bucket")
	}
	if !l.Allow("client-a", now.Add(time.Second)) {
		t.Fatal("token must refill after one second at 1 rps")
	}
}

func TestNilAndEmptyKeysAreUnlimited(t *testing.T) {
	var l *Limiter
	now := time.Now()
	if !l.Allow("any", now) {
		t.Fatal("nil limiter must allow")
	}
	l = New(1, 1, time.Minute)
	for i := 0; i < 10; i++ {
		if !l.Allow("", now) {
			t.Fatal("empty key must never be limited")
		}
	}
}

func TestInvalidConfigYieldsNil(t *testing.T) {
	if New(0, 1, time.Minute) != nil || New(1, 0, time.Minute) != nil {
		t.Fatal("invalid config must yield nil limiter")
	}
}

func TestIdleBucketsAreSwept(t *testing.T) {
	l := New(100, 100, time.Second)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	l.Allow("stale", now)

	later := now.Add(time.Hour)
	for i := 0; i < sweepEvery; i++ {
		l.Allow("busy", later)
	}
	l.mu.Lock()
	_, ok := l.byKey["stale"]
	l.mu.Unlock()
	if ok {
		t.Fatal("stale bucket must be evicted by the sweep")
	}
}
