package gateway

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jdev09/woodshed/internal/timer/protocol"
)

func testConnection(cm *ConnectionManager, sessionID uuid.UUID) *Connection {
	return &Connection{
		ID:        uuid.New().String(),
		SessionID: sessionID,
		Send:      make(chan []byte, 256),
		done:      make(chan struct{}),
		Manager:   cm,
	}
}

func testWireEvent(sessionID uuid.UUID, seq uint64) WireEvent {
	return WireEvent{
		SessionID: sessionID.String(),
		Timestamp: time.Now(),
		Envelope:  protocol.Envelope{Type: protocol.TypeTick, Seq: seq},
	}
}

func TestBroadcastRacingDisconnectDoesNotPanic(t *testing.T) {
	t.Parallel()
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	sessionID := uuid.New()
	conn := testConnection(cm, sessionID)
	cm.register(conn)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			cm.handleBroadcast(testWireEvent(sessionID, uint64(i+1)))
		}
	}()
	go func() {
		defer wg.Done()
		cm.unregister(conn)
	}()
	wg.Wait()

	total, sessions := cm.Stats()
	assert.Zero(t, total)
	assert.Zero(t, sessions)
}

func TestUnregisterIsIdempotent(t *testing.T) {
	t.Parallel()
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	conn := testConnection(cm, uuid.New())
	cm.register(conn)

	cm.unregister(conn)
	cm.unregister(conn)

	select {
	case <-conn.done:
	default:
		t.Fatal("done not closed after unregister")
	}
	total, _ := cm.Stats()
	assert.Zero(t, total)
}

func TestBroadcastReachesEveryConnectionOnSession(t *testing.T) {
	t.Parallel()
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	sessionID := uuid.New()
	a := testConnection(cm, sessionID)
	b := testConnection(cm, sessionID)
	other := testConnection(cm, uuid.New())
	cm.register(a)
	cm.register(b)
	cm.register(other)

	cm.handleBroadcast(testWireEvent(sessionID, 1))

	require.Len(t, a.Send, 1)
	require.Len(t, b.Send, 1)
	assert.Empty(t, other.Send)
}

func TestBroadcastSkipsDisconnectingConnection(t *testing.T) {
	t.Parallel()
	cm := NewConnectionManager(DefaultConnectionConfig(), nil)
	sessionID := uuid.New()
	staying := testConnection(cm, sessionID)
	leaving := testConnection(cm, sessionID)
	cm.register(staying)
	cm.register(leaving)
	cm.unregister(leaving)

	cm.handleBroadcast(testWireEvent(sessionID, 1))

	require.Len(t, staying.Send, 1)
}
