package utils

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestRetryOnce(t *testing.T) {
	boom := errors.New("boom")

	calls := 0
	err := RetryOnce(context.Background(), 0, nil, func(context.Context) error {
		calls++
		if calls == 1 {
			return boom
		}
		return nil
	})
	if err != nil || calls != 2 {
		t.Fatalf("expected success on second call, got err=%v calls=%d", err, calls)
	}

	calls = 0
	err = RetryOnce(context.Background(), 0, nil, func(context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrTryAgain) || !errors.Is(err, boom) || calls != 2 {
		t.Fatalf("expected wrapped failure after two calls, got err=%v calls=%d", err, calls)
	}

	calls = 0
	permanent := errors.New("permanent")
	err = RetryOnce(context.Background(), 0, func(err error) bool { return !errors.Is(err, permanent) }, func(context.Context) error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) || errors.Is(err, ErrTryAgain) || calls != 1 {
		t.Fatalf("permanent errors must not retry, got err=%v calls=%d", err, calls)
	}
}

func TestRetryOnceStopsOnCancelledContext(t *testing.T) {
	boom := errors.New("boom")
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := RetryOnce(ctx, time.Hour, nil, func(context.Context) error {
		calls++
		cancel()
		return boom
	})
	if !errors.Is(err, ErrTryAgain) || !errors.Is(err, boom) || calls != 1 {
		t.Fatalf("expected one call and a wrapped failure, got err=%v calls=%d", err, calls)
	}
}
