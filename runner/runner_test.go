package runner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/e-dreyer/discussbot/dispatch"
	"github.com/e-dreyer/discussbot/mastodon"

	"github.com/stretchr/testify/assert"
)

var quietLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

type fakeEvents struct {
	notifs []mastodon.Notification
	err    error
}

func (f *fakeEvents) Notifications(ctx context.Context, limit int) ([]mastodon.Notification, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.notifs, nil
}

type recordingHandler struct {
	lk  sync.Mutex
	ids []string
}

func (h *recordingHandler) Handle(ctx context.Context, evt dispatch.Event) dispatch.Outcome {
	h.lk.Lock()
	defer h.lk.Unlock()
	h.ids = append(h.ids, evt.ID)
	return dispatch.Outcome{EventID: evt.ID, Kind: evt.Kind, Dispatched: true, Acked: true}
}

type cycleFunc func(ctx context.Context) error

func (f cycleFunc) RunCycle(ctx context.Context) error {
	return f(ctx)
}

func TestPollEventsOldestFirst(t *testing.T) {
	assert := assert.New(t)

	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	events := &fakeEvents{notifs: []mastodon.Notification{
		{ID: "3", Type: "mention", CreatedAt: base.Add(3 * time.Minute)},
		{ID: "2", Type: "follow", CreatedAt: base.Add(2 * time.Minute)},
		{ID: "1", Type: "favourite", CreatedAt: base.Add(1 * time.Minute)},
	}}
	h := &recordingHandler{}
	r := NewRunner(events, h, nil, Config{Logger: quietLogger})

	n, err := r.PollEvents(context.Background())
	assert.NoError(err)
	assert.Equal(3, n)
	assert.Equal([]string{"1", "2", "3"}, h.ids)
}

func TestPollEventsFetchFailure(t *testing.T) {
	assert := assert.New(t)

	h := &recordingHandler{}
	r := NewRunner(&fakeEvents{err: errors.New("502")}, h, nil, Config{Logger: quietLogger})

	n, err := r.PollEvents(context.Background())
	assert.NoError(err)
	assert.Equal(0, n)
	assert.Empty(h.ids)
}

func TestRunRestartsAfterFailure(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var cycles atomic.Int32
	ing := cycleFunc(func(ctx context.Context) error {
		switch cycles.Add(1) {
		case 1:
			return errors.New("store unavailable")
		case 2:
			panic("unexpected")
		default:
			cancel()
			return nil
		}
	})
	events := &fakeEvents{}
	h := &recordingHandler{}
	r := NewRunner(events, h, ing, Config{
		EventInterval:  time.Millisecond,
		IngestInterval: time.Hour,
		RestartBackoff: 5 * time.Millisecond,
		Logger:         quietLogger,
	})

	done := make(chan error)
	go func() {
		done <- r.Run(ctx)
	}()

	select {
	case err := <-done:
		assert.NoError(err)
	case <-time.After(5 * time.Second):
		t.Fatal("supervisor did not stop")
	}
	assert.Equal(int32(3), cycles.Load())
}

func TestRunStopsOnCancel(t *testing.T) {
	assert := assert.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	r := NewRunner(&fakeEvents{}, &recordingHandler{}, cycleFunc(func(ctx context.Context) error { return nil }), Config{
		EventInterval:  time.Millisecond,
		IngestInterval: time.Millisecond,
		Logger:         quietLogger,
	})
	assert.NoError(r.Run(ctx))
}

func TestRunNothingConfigured(t *testing.T) {
	assert := assert.New(t)

	r := NewRunner(nil, nil, nil, Config{Logger: quietLogger})
	assert.Error(r.Run(context.Background()))
}
