package infra

import (
	"context"
	"time"
)

// Clock supplies the current time and context-aware suspension so that
// signing and job polling can run against a fake clock in tests.
type Clock interface {
	Now() time.Time
	// Sleep suspends for d or until ctx is done, whichever comes first.
	Sleep(ctx context.Context, d time.Duration) error
}

// SystemClock is the wall-clock implementation of Clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

func (SystemClock) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
