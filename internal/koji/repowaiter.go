package koji

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how often task and repository state is
// polled.
const DefaultPollInterval = 20 * time.Second

// RepoWaiter waits for a tag's repository to be regenerated at or
// after a given event. Concurrent waiters share a single in-flight
// poll of the hub; when the poll observes a new repository event,
// every waiter whose threshold is met is released at once.
type RepoWaiter struct {
	session  Session
	tag      string
	interval time.Duration

	mu        sync.Mutex
	lastEvent int64
	// pollDone is non-nil while a poll goroutine is running and is
	// closed when it publishes a result.
	pollDone chan struct{}
	pollErr  error
}

// NewRepoWaiter returns a waiter for tag's repository.
func NewRepoWaiter(session Session, tag string, interval time.Duration) *RepoWaiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	return &RepoWaiter{
		session:   session,
		tag:       tag,
		interval:  interval,
		lastEvent: -1,
	}
}

// WaitForEvent blocks until the repository's create event is at or
// after event. Satisfied waits never start a poll.
func (w *RepoWaiter) WaitForEvent(ctx context.Context, event int64) error {
	for {
		w.mu.Lock()
		if w.lastEvent >= event {
			w.mu.Unlock()
			return nil
		}
		done := w.pollDone
		if done == nil {
			done = make(chan struct{})
			w.pollDone = done
			go w.poll(ctx, w.lastEvent, done)
		}
		w.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}

		w.mu.Lock()
		err := w.pollErr
		w.mu.Unlock()
		if err != nil {
			return err
		}
	}
}

// poll queries the repository event until it differs from the value
// known when the poll started, then publishes the result and exits.
func (w *RepoWaiter) poll(ctx context.Context, since int64, done chan struct{}) {
	for {
		event, err := w.session.RepoCreateEvent(ctx, w.tag)
		if err == nil && event == since {
			select {
			case <-ctx.Done():
				err = ctx.Err()
			case <-time.After(w.interval):
				continue
			}
		}

		w.mu.Lock()
		if err == nil {
			w.lastEvent = event
		}
		w.pollErr = err
		w.pollDone = nil
		w.mu.Unlock()
		close(done)
		return
	}
}
