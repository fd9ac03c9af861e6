package timestamp_test

import (
	"testing"
	"time"

	"mcf/timestamp"
)

func TestOrdering(t *testing.T) {
	a := timestamp.Timestamp(100)
	b := timestamp.Timestamp(200)

	if !a.Before(b) {
		t.Fatalf("expected %v before %v", a, b)
	}
	if !b.After(a) {
		t.Fatalf("expected %v after %v", b, a)
	}
	if a.Before(a) {
		t.Fatalf("timestamp must not be before itself")
	}
}

func TestAddSub(t *testing.T) {
	a := timestamp.Timestamp(1_000_000) // 1s past epoch
	b := a.Add(500 * time.Millisecond)

	if got, want := b.Sub(a), 500*time.Millisecond; got != want {
		t.Fatalf("Sub() = %v, want %v", got, want)
	}
}

func TestFromTimeRoundTrip(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Microsecond)
	ts := timestamp.FromTime(now)

	if got := ts.Time(); !got.Equal(now) {
		t.Fatalf("round trip mismatch: got %v, want %v", got, now)
	}
}

func TestZero(t *testing.T) {
	var t0 timestamp.Timestamp
	if !t0.IsZero() {
		t.Fatalf("zero value must report IsZero")
	}
	if timestamp.Now().IsZero() {
		t.Fatalf("Now() must not be zero")
	}
}
