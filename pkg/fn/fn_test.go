package fn

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestResult_OkErr(t *testing.T) {
	ok := Ok(42)
	if !ok.IsOk() || ok.IsErr() {
		t.Fatal("Ok result misreported")
	}
	v, err := ok.Unwrap()
	if v != 42 || err != nil {
		t.Fatalf("Unwrap = %d, %v", v, err)
	}

	boom := errors.New("boom")
	bad := Err[int](boom)
	if bad.IsOk() {
		t.Fatal("Err result misreported")
	}
	if _, err := bad.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("Unwrap err = %v", err)
	}
}

func TestFromPair(t *testing.T) {
	if r := FromPair(1, nil); r.IsErr() {
		t.Fatal("expected ok")
	}
	if r := FromPair(0, errors.New("x")); r.IsOk() {
		t.Fatal("expected err")
	}
}

func TestThen_ShortCircuits(t *testing.T) {
	boom := errors.New("stage one failed")
	first := func(_ context.Context, s string) Result[int] {
		return Err[int](boom)
	}
	called := false
	second := func(_ context.Context, n int) Result[string] {
		called = true
		return Ok("done")
	}
	r := Then(first, second)(context.Background(), "in")
	if r.IsOk() {
		t.Fatal("expected error result")
	}
	if called {
		t.Fatal("second stage ran after failure")
	}
	if _, err := r.Unwrap(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
}

func TestThen_PassesValue(t *testing.T) {
	double := func(_ context.Context, n int) Result[int] { return Ok(n * 2) }
	str := func(_ context.Context, n int) Result[int] { return Ok(n + 1) }
	r := Then(double, str)(context.Background(), 5)
	v, _ := r.Unwrap()
	if v != 11 {
		t.Fatalf("got %d", v)
	}
}

func TestTapStage(t *testing.T) {
	var seen int
	tap := TapStage(func(_ context.Context, n int) { seen = n })
	r := tap(context.Background(), 7)
	v, _ := r.Unwrap()
	if v != 7 || seen != 7 {
		t.Fatalf("tap: v=%d seen=%d", v, seen)
	}
}

func TestRetry_SucceedsAfterFailures(t *testing.T) {
	attempts := 0
	opts := RetryOpts{MaxAttempts: 3, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	r := Retry(context.Background(), opts, func(_ context.Context) Result[string] {
		attempts++
		if attempts < 3 {
			return Errf[string]("attempt %d", attempts)
		}
		return Ok("ok")
	})
	if r.IsErr() {
		t.Fatal("expected eventual success")
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d", attempts)
	}
}

func TestRetry_Exhausted(t *testing.T) {
	opts := RetryOpts{MaxAttempts: 2, InitialWait: time.Millisecond, MaxWait: time.Millisecond}
	r := Retry(context.Background(), opts, func(_ context.Context) Result[int] {
		return Errf[int]("always fails")
	})
	if r.IsOk() {
		t.Fatal("expected failure")
	}
}

func TestRetry_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	opts := RetryOpts{MaxAttempts: 5, InitialWait: time.Hour, MaxWait: time.Hour}
	r := Retry(ctx, opts, func(_ context.Context) Result[int] {
		return Errf[int]("fail")
	})
	if _, err := r.Unwrap(); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}
