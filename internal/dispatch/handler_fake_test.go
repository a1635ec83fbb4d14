package dispatch

import (
	"context"
	"sync"
)

// fakeHandler fails the first failures calls of OnReminderDue with err.
type fakeHandler struct {
	mu        sync.Mutex
	failures  int
	err       error
	due       []string
	exhausted []string
	causes    []error
	fired     chan string
}

func newFakeHandler(failures int, err error) *fakeHandler {
	return &fakeHandler{failures: failures, err: err, fired: make(chan string, 16)}
}

func (f *fakeHandler) OnReminderDue(_ context.Context, id string) error {
	f.mu.Lock()
	f.due = append(f.due, id)
	fail := len(f.due) <= f.failures
	f.mu.Unlock()

	f.fired <- id
	if fail {
		return f.err
	}
	return nil
}

func (f *fakeHandler) OnDeliveryExhausted(_ context.Context, id string, cause error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.exhausted = append(f.exhausted, id)
	f.causes = append(f.causes, cause)
	return nil
}

func (f *fakeHandler) snapshot() (due, exhausted []string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.due...), append([]string(nil), f.exhausted...)
}
