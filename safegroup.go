package upgrademgr

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// NewSafeGroup creates a SafeGroup backed by errgroup.WithContext. The
// derived context is canceled on parent cancellation or the first non-nil
// worker error.
func NewSafeGroup(ctx context.Context) *SafeGroup {
	if ctx == nil {
		ctx = context.Background()
	}
	group, groupCtx := errgroup.WithContext(ctx)
	return &SafeGroup{Group: group, ctx: groupCtx, parent: ctx}
}

// SafeGroup is an errgroup.Group with safer defaults for long-running
// workers: panic recovery with restart backoff, and interruptible waits.
type SafeGroup struct {
	*errgroup.Group
	ctx context.Context
	// parent is the caller-provided context (typically signal.NotifyContext).
	// WaitOrInterrupt uses it so "group canceled because a worker failed" is
	// kept as a real error instead of being normalized to context.Canceled.
	parent context.Context
}

// GoSafe runs fn in a group goroutine, recovers panics, and restarts the
// worker with exponential backoff. Panics do not cancel siblings; returned
// errors keep errgroup semantics and cancel the derived context.
//
// Panics are reported to stderr rather than the structured logger: the
// logger itself may be what panicked.
func (sg *SafeGroup) GoSafe(name string, fn func(context.Context) error) {
	if sg == nil || sg.Group == nil || fn == nil {
		return
	}
	sg.Group.Go(func() (err error) {
		backoff := 200 * time.Millisecond
		const maxBackoff = 30 * time.Second
		for {
			select {
			case <-sg.ctx.Done():
				return nil
			default:
			}

			panicked := false
			var recovered any
			func() {
				defer func() {
					if r := recover(); r != nil {
						panicked = true
						recovered = r
					}
				}()
				err = fn(sg.ctx)
			}()

			if !panicked {
				return err
			}

			_, _ = fmt.Fprintf(os.Stderr, "WARN: %s panicked: %v\n%s\n", name, recovered, debug.Stack())

			jitter := time.Duration(0)
			if max := backoff / 2; max > 0 {
				jitter = time.Duration(time.Now().UnixNano() % int64(max))
			}
			time.Sleep(backoff + jitter)
			if backoff *= 2; backoff > maxBackoff {
				backoff = maxBackoff
			}
		}
	})
}

// WaitOrInterrupt waits for the group to finish, returning early with the
// parent context's error once it is canceled and the grace period elapses.
func (sg *SafeGroup) WaitOrInterrupt(gracePeriod time.Duration) error {
	if sg == nil || sg.Group == nil {
		return nil
	}
	waitCh := make(chan error, 1)
	go func() { waitCh <- sg.Group.Wait() }()

	select {
	case err := <-waitCh:
		return normalizeInterruptError(sg.parent, err)
	case <-sg.parent.Done():
		if gracePeriod <= 0 {
			return sg.parent.Err()
		}
		select {
		case err := <-waitCh:
			return normalizeInterruptError(sg.parent, err)
		case <-time.After(gracePeriod):
			return sg.parent.Err()
		}
	}
}

func normalizeInterruptError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}
