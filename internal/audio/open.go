package audio

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// errOpenAbandoned means an open did not return within its deadline. The host
// call is still running; its stream, if any, is closed when it arrives.
var errOpenAbandoned = errors.New("open abandoned")

// opener bounds host opens and keeps count of the ones it walked away from,
// so callers can wait for the host to be quiet before opening again.
type opener struct {
	timeout time.Duration
	log     zerolog.Logger

	mu        sync.Mutex
	abandoned int
	idle      chan struct{} // closed when abandoned drops back to zero
}

func newOpener(timeout time.Duration, log zerolog.Logger) *opener {
	return &opener{timeout: timeout, log: log}
}

// open runs fn and gives up after the timeout or when ctx is done.
func (o *opener) open(ctx context.Context, fn func() (Stream, error)) (Stream, error) {
	if o.timeout <= 0 {
		return fn()
	}
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	type result struct {
		s   Stream
		err error
	}
	done := make(chan result, 1)
	go func() {
		s, err := fn()
		done <- result{s, err}
	}()

	select {
	case r := <-done:
		return r.s, r.err
	case <-ctx.Done():
	}

	release := o.abandon()
	go func() {
		defer release()
		r := <-done
		if r.err != nil {
			return
		}
		if err := r.s.Close(); err != nil {
			o.log.Warn().Err(err).Msg("Failed to close late stream")
		}
	}()
	return nil, fmt.Errorf("%w: %w", errOpenAbandoned, ctx.Err())
}

func (o *opener) abandon() (release func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.abandoned == 0 {
		o.idle = make(chan struct{})
	}
	o.abandoned++
	return func() {
		o.mu.Lock()
		defer o.mu.Unlock()
		o.abandoned--
		if o.abandoned == 0 {
			close(o.idle)
		}
	}
}

// settle waits until every abandoned open has returned and its stream, if
// any, is closed.
func (o *opener) settle(ctx context.Context) error {
	o.mu.Lock()
	if o.abandoned == 0 {
		o.mu.Unlock()
		return nil
	}
	idle := o.idle
	o.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// pending reports how many abandoned opens have not returned yet.
func (o *opener) pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.abandoned
}

func closeQuietly(s Stream, log zerolog.Logger) {
	if err := s.Close(); err != nil {
		log.Warn().Err(err).Msg("Failed to close stream")
	}
}
