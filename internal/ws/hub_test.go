package ws

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/creditflow/creditflow/internal/token"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type fakeVerifier struct {
	userID int64
	err    error
}

func (v *fakeVerifier) Verify(string) (int64, error) {
	if v.err != nil {
		return 0, v.err
	}
	return v.userID, nil
}

func newTestHub(v token.Verifier) *Hub {
	return NewHub(v, zap.NewNop())
}

// addClient registers a connectionless client. The pumps are never
// started, so the nil conn is never touched.
func addClient(h *Hub) *Client {
	client := newClient(h, nil)
	h.mu.Lock()
	h.clients[client] = struct{}{}
	h.mu.Unlock()
	return client
}

func nextFrame(t *testing.T, c *Client) Message {
	t.Helper()
	select {
	case raw := <-c.send:
		var msg Message
		require.NoError(t, json.Unmarshal(raw, &msg))
		return msg
	default:
		t.Fatal("no frame queued")
		return Message{}
	}
}

func noFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case raw := <-c.send:
		t.Fatalf("unexpected frame: %s", raw)
	default:
	}
}

func TestAuthenticateBindsUser(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})
	client := addClient(hub)

	hub.authenticate(client, "Bearer sometoken")

	msg := nextFrame(t, client)
	assert.Equal(t, "authenticated", msg.Type)
	var payload authenticatedPayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.True(t, payload.Success)
	assert.Empty(t, payload.Error)

	hub.mu.RLock()
	bound := hub.bindings[7]
	hub.mu.RUnlock()
	assert.Same(t, client, bound)
}

func TestAuthenticateFailureReasons(t *testing.T) {
	cases := []struct {
		err    error
		reason string
	}{
		{token.ErrMalformedToken, "malformed token"},
		{token.ErrInvalidToken, "invalid token"},
		{errors.New("verifier exploded"), "authentication failed"},
	}

	for _, tc := range cases {
		hub := newTestHub(&fakeVerifier{err: tc.err})
		client := addClient(hub)

		hub.authenticate(client, "whatever")

		msg := nextFrame(t, client)
		assert.Equal(t, "authenticated", msg.Type)
		var payload authenticatedPayload
		require.NoError(t, json.Unmarshal(msg.Data, &payload))
		assert.False(t, payload.Success)
		assert.Equal(t, tc.reason, payload.Error)

		// The connection survives a failed authentication attempt.
		assert.Equal(t, 1, hub.ClientCount())
		hub.mu.RLock()
		assert.Empty(t, hub.bindings)
		hub.mu.RUnlock()
	}
}

func TestLatestConnectionWinsDelivery(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})
	first := addClient(hub)
	second := addClient(hub)

	hub.authenticate(first, "t1")
	hub.authenticate(second, "t2")
	nextFrame(t, first)  // authenticated ack
	nextFrame(t, second) // authenticated ack

	hub.CreditUpdate(7, 41)

	noFrame(t, first)
	msg := nextFrame(t, second)
	assert.Equal(t, "credit_update", msg.Type)
	var payload creditUpdatePayload
	require.NoError(t, json.Unmarshal(msg.Data, &payload))
	assert.Equal(t, int64(41), payload.Credits)
}

func TestDeliverWithoutBindingDrops(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})

	// No bound connection: the event is silently dropped.
	hub.CreditUpdate(7, 41)
	hub.SessionEnd(7)
}

func TestUnregisterDisplacedConnection(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})
	first := addClient(hub)
	second := addClient(hub)

	hub.authenticate(first, "t1")
	hub.authenticate(second, "t2")

	// The displaced connection closing must not tear down the newer
	// connection's binding.
	hub.unregister(first)

	hub.mu.RLock()
	bound := hub.bindings[7]
	hub.mu.RUnlock()
	assert.Same(t, second, bound)
	assert.Equal(t, 1, hub.ClientCount())

	hub.unregister(second)
	hub.mu.RLock()
	assert.Empty(t, hub.bindings)
	hub.mu.RUnlock()
	assert.Zero(t, hub.ClientCount())
}

func TestUnregisterIsIdempotent(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})
	client := addClient(hub)

	hub.unregister(client)
	hub.unregister(client)

	assert.Zero(t, hub.ClientCount())
}

func TestSendAfterUnregisterDropsSilently(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})
	client := addClient(hub)
	hub.authenticate(client, "t")
	nextFrame(t, client)

	// Interleave a delivery with a disconnect: look the client up the
	// way deliver does, unregister it, then finish the send. The frame
	// must be dropped, not panic on the closed channel.
	hub.mu.RLock()
	bound := hub.bindings[7]
	hub.mu.RUnlock()
	require.Same(t, client, bound)

	hub.unregister(client)
	bound.sendJSON("credit_update", creditUpdatePayload{Credits: 1})
}

func TestDeliveryRacingDisconnect(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})

	for i := 0; i < 500; i++ {
		client := addClient(hub)
		hub.authenticate(client, "t")

		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			hub.CreditUpdate(7, 41)
			hub.SessionEnd(7)
		}()
		go func() {
			defer wg.Done()
			hub.unregister(client)
		}()
		wg.Wait()

		hub.mu.RLock()
		assert.Empty(t, hub.bindings)
		hub.mu.RUnlock()
	}
	assert.Zero(t, hub.ClientCount())
}

func TestSessionEndFrame(t *testing.T) {
	hub := newTestHub(&fakeVerifier{userID: 7})
	client := addClient(hub)
	hub.authenticate(client, "t")
	nextFrame(t, client)

	hub.BroadcastSessionEnd(7)

	msg := nextFrame(t, client)
	assert.Equal(t, "session_end", msg.Type)
}
