package outbox

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubStore struct {
	mu      sync.Mutex
	events  map[uuid.UUID]Event
	unsent  []Event
	marked  []uuid.UUID
	markErr error
}

func (s *stubStore) FetchByID(ctx context.Context, id uuid.UUID) (*Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok {
		return nil, errors.New("outbox event not found or already sent")
	}
	return &e, nil
}

func (s *stubStore) FetchUnsent(ctx context.Context, limit int32) ([]Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.unsent, nil
}

func (s *stubStore) MarkSent(ctx context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.markErr != nil {
		return s.markErr
	}
	s.marked = append(s.marked, id)
	return nil
}

func (s *stubStore) markedIDs() []uuid.UUID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]uuid.UUID(nil), s.marked...)
}

// stubPublisher fails the first failures calls per event, then succeeds.
type stubPublisher struct {
	mu       sync.Mutex
	failures map[uuid.UUID]int
	attempts map[uuid.UUID]int
}

func newStubPublisher() *stubPublisher {
	return &stubPublisher{
		failures: make(map[uuid.UUID]int),
		attempts: make(map[uuid.UUID]int),
	}
}

func (p *stubPublisher) Publish(ctx context.Context, event Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.attempts[event.ID]++
	if p.failures[event.ID] > 0 {
		p.failures[event.ID]--
		return errors.New("nats unavailable")
	}
	return nil
}

func (p *stubPublisher) attemptCount(id uuid.UUID) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts[id]
}

func newTestListener(store *stubStore, pub Publisher) *Listener {
	cfg := DefaultListenerConfig()
	cfg.MaxRetries = 2
	cfg.RetryDelay = time.Millisecond
	return &Listener{repo: store, publisher: pub, cfg: cfg}
}

func testEvent() Event {
	return Event{
		ID:        uuid.New(),
		SessionID: uuid.New(),
		EventType: EventCompletionRecorded,
		Payload:   []byte(`{"mode":"work"}`),
		CreatedAt: time.Now(),
	}
}

func TestPublishWithRetryMarksSentOnlyAfterSuccess(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		failures     int
		wantErr      bool
		wantMarked   int
		wantAttempts int
	}{
		{name: "immediate success", failures: 0, wantMarked: 1, wantAttempts: 1},
		{name: "success after retries", failures: 2, wantMarked: 1, wantAttempts: 3},
		{name: "exhausted retries leave row unsent", failures: 10, wantErr: true, wantMarked: 0, wantAttempts: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			event := testEvent()
			store := &stubStore{}
			pub := newStubPublisher()
			pub.failures[event.ID] = tt.failures
			l := newTestListener(store, pub)

			err := l.publishWithRetry(context.Background(), event)
			if tt.wantErr {
				require.Error(t, err)
			} else {
				require.NoError(t, err)
			}
			assert.Len(t, store.markedIDs(), tt.wantMarked)
			assert.Equal(t, tt.wantAttempts, pub.attemptCount(event.ID))
		})
	}
}

func TestPublishWithRetryMarksExactlyOnce(t *testing.T) {
	t.Parallel()
	event := testEvent()
	store := &stubStore{}
	pub := newStubPublisher()
	pub.failures[event.ID] = 1
	l := newTestListener(store, pub)

	require.NoError(t, l.publishWithRetry(context.Background(), event))
	require.Equal(t, []uuid.UUID{event.ID}, store.markedIDs())
}

func TestPublishWithRetryPropagatesMarkSentError(t *testing.T) {
	t.Parallel()
	event := testEvent()
	markErr := errors.New("connection reset")
	store := &stubStore{markErr: markErr}
	pub := newStubPublisher()
	l := newTestListener(store, pub)

	err := l.publishWithRetry(context.Background(), event)
	require.ErrorIs(t, err, markErr)
	assert.Empty(t, store.markedIDs())
}

func TestPublishWithRetryStopsOnCancelledContext(t *testing.T) {
	t.Parallel()
	event := testEvent()
	store := &stubStore{}
	pub := newStubPublisher()
	pub.failures[event.ID] = 10
	l := newTestListener(store, pub)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := l.publishWithRetry(ctx, event)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, pub.attemptCount(event.ID))
	assert.Empty(t, store.markedIDs())
}

func TestHandleNotificationPublishesFetchedEvent(t *testing.T) {
	t.Parallel()
	event := testEvent()
	store := &stubStore{events: map[uuid.UUID]Event{event.ID: event}}
	pub := newStubPublisher()
	l := newTestListener(store, pub)

	require.NoError(t, l.handleNotification(context.Background(), event.ID.String()))
	assert.Equal(t, []uuid.UUID{event.ID}, store.markedIDs())
}

func TestHandleNotificationRejectsBadID(t *testing.T) {
	t.Parallel()
	store := &stubStore{}
	l := newTestListener(store, newStubPublisher())

	err := l.handleNotification(context.Background(), "not-a-uuid")
	require.Error(t, err)
	assert.Empty(t, store.markedIDs())
}

func TestProcessUnsentContinuesPastFailures(t *testing.T) {
	t.Parallel()
	broken := testEvent()
	healthy := testEvent()
	store := &stubStore{unsent: []Event{broken, healthy}}
	pub := newStubPublisher()
	pub.failures[broken.ID] = 10
	l := newTestListener(store, pub)

	require.NoError(t, l.processUnsent(context.Background()))
	assert.Equal(t, []uuid.UUID{healthy.ID}, store.markedIDs())
}
