package subjects

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"github.com/orrery-dev/orrery/pkg/query"
)

// Event is one subject-change notification from the backend's live feed.
type Event struct {
	// Type is "created", "updated" or "deleted".
	Type string `json:"type"`

	// ID is the affected subject's id.
	ID string `json:"id"`
}

// Feed subscribes to the backend's websocket change feed and invalidates
// the affected cache entries, so edits made by other sessions reconcile
// into the local cache without a user-initiated refetch.
type Feed struct {
	url    string
	store  *query.Store[Subject]
	logger *slog.Logger

	// reconnectWait is the delay between reconnect attempts.
	reconnectWait time.Duration

	// onEvent, when set, observes every decoded event (test hook and
	// UI-toast hook).
	onEvent func(Event)
}

// FeedOption configures a Feed.
type FeedOption func(*Feed)

// WithFeedLogger sets the feed's logger. Default: slog.Default().
func WithFeedLogger(logger *slog.Logger) FeedOption {
	return func(f *Feed) {
		f.logger = logger
	}
}

// WithReconnectWait sets the delay between reconnect attempts.
func WithReconnectWait(d time.Duration) FeedOption {
	return func(f *Feed) {
		f.reconnectWait = d
	}
}

// WithEventObserver registers a callback invoked for every event after the
// cache invalidation is scheduled.
func WithEventObserver(fn func(Event)) FeedOption {
	return func(f *Feed) {
		f.onEvent = fn
	}
}

// NewFeed creates a live feed reading from wsURL (a ws:// or wss:// URL)
// and reconciling store.
func NewFeed(wsURL string, store *query.Store[Subject], opts ...FeedOption) *Feed {
	f := &Feed{
		url:           wsURL,
		store:         store,
		logger:        slog.Default(),
		reconnectWait: 2 * time.Second,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Run connects and processes events until ctx is cancelled, reconnecting
// after connection failures. It always returns ctx.Err().
func (f *Feed) Run(ctx context.Context) error {
	for {
		if err := f.connectAndRead(ctx); err != nil && ctx.Err() == nil {
			f.logger.Warn("subjects feed disconnected", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(f.reconnectWait):
		}
	}
}

// connectAndRead runs one connection's read loop.
func (f *Feed) connectAndRead(ctx context.Context) error {
	dialer := websocket.DefaultDialer
	conn, _, err := dialer.DialContext(ctx, f.url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	// Close the connection when the context ends so ReadMessage unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var event Event
		if err := json.Unmarshal(data, &event); err != nil {
			f.logger.Warn("subjects feed: undecodable event", "error", err)
			continue
		}
		f.handle(event)
	}
}

// handle invalidates every cached subject list; which filtered lists a
// change lands in is only known server-side, so all of them reconcile.
func (f *Feed) handle(event Event) {
	for _, key := range f.store.Keys(Collection) {
		f.store.Invalidate(key)
	}
	if f.onEvent != nil {
		f.onEvent(event)
	}
}
