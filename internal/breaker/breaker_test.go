package breaker

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterThreshold(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(Options{Threshold: 3, Window: 10 * time.Second, OpenFor: 5 * time.Second})
	b.now = func() time.Time { return now }

	if b.Failure("asst_1") || b.Failure("asst_1") {
		t.Fatal("opened before threshold")
	}
	if !b.Allow("asst_1") {
		t.Fatal("blocked before threshold")
	}
	if !b.Failure("asst_1") {
		t.Fatal("third failure did not open")
	}
	if b.Allow("asst_1") {
		t.Fatal("open breaker allowed a call")
	}
	if !b.Allow("asst_2") {
		t.Fatal("keys are not independent")
	}

	now = now.Add(5 * time.Second)
	if !b.Allow("asst_1") {
		t.Fatal("breaker did not half-open after OpenFor")
	}
}

func TestBreakerWindowAndSuccessReset(t *testing.T) {
	now := time.Unix(1000, 0)
	b := New(Options{Threshold: 2, Window: time.Second, OpenFor: time.Minute})
	b.now = func() time.Time { return now }

	b.Failure("k")
	now = now.Add(2 * time.Second)
	if b.Failure("k") {
		t.Fatal("failure outside window counted toward threshold")
	}

	b.Success("k")
	if b.Failure("k") {
		t.Fatal("success did not reset the counter")
	}
	if !b.Failure("k") {
		t.Fatal("expected open")
	}
}
