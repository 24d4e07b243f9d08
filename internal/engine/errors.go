package engine

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrNoURLs is returned when a run is started without any URL.
var ErrNoURLs = errors.New("no URLs to measure")

// URLLoadError is a failed navigation, including a page that never
// became complete.
type URLLoadError struct {
	URL string
	Err error
}

func (e *URLLoadError) Error() string {
	return fmt.Sprintf("failed to load %s: %v", e.URL, e.Err)
}

func (e *URLLoadError) Unwrap() error {
	return e.Err
}

// TimeoutError is an operation that lost the race against its timer.
type TimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Op, e.Timeout)
}

// BrowserError is a failure to start or talk to the browser.
type BrowserError struct {
	Op  string
	Err error
}

func (e *BrowserError) Error() string {
	return fmt.Sprintf("browser %s: %v", e.Op, e.Err)
}

func (e *BrowserError) Unwrap() error {
	return e.Err
}

// runWithTimeout races fn against a timer. When the timer wins, fn's
// context is cancelled and a *TimeoutError is returned without waiting
// for fn; cleanup of whatever fn started is left to the caller. A zero
// timeout runs fn directly.
func runWithTimeout(ctx context.Context, op string, timeout time.Duration, fn func(context.Context) error) error {
	if timeout <= 0 {
		return fn(ctx)
	}

	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errc := make(chan error, 1)
	go func() {
		errc <- fn(opCtx)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-errc:
		return err
	case <-timer.C:
		return &TimeoutError{Op: op, Timeout: timeout}
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sleep waits for d or until ctx ends.
func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
