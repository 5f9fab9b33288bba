package ws

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/sidebet/relayer/internal/domain"
)

// fakeBus is an in-memory domain.EventBus for hub tests: Publish fans a
// payload out to every channel currently subscribed via Subscribe.
type fakeBus struct {
	mu   sync.Mutex
	subs map[string][]chan []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{subs: map[string][]chan []byte{}}
}

func (b *fakeBus) Publish(ctx context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs[channel] {
		ch <- payload
	}
	return nil
}

func (b *fakeBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, 8)
	b.mu.Lock()
	b.subs[channel] = append(b.subs[channel], ch)
	b.mu.Unlock()
	go func() {
		<-ctx.Done()
		close(ch)
	}()
	return ch, nil
}

var _ domain.EventBus = (*fakeBus)(nil)

func TestHubRegisterTracksClient(t *testing.T) {
	hub := NewHub(newFakeBus(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	c := &client{send: make(chan []byte, 1)}
	hub.register <- c

	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c]
	}, time.Second, 5*time.Millisecond)
}

func TestHubUnregisterClosesSendChannel(t *testing.T) {
	hub := NewHub(newFakeBus(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	c := &client{send: make(chan []byte, 1)}
	hub.register <- c
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c]
	}, time.Second, 5*time.Millisecond)

	hub.unregister <- c

	require.Eventually(t, func() bool {
		_, ok := <-c.send
		return !ok
	}, time.Second, 5*time.Millisecond)
}

func TestHubRelaysBusMessagesToClients(t *testing.T) {
	bus := newFakeBus()
	hub := NewHub(bus, slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	c := &client{send: make(chan []byte, 1)}
	hub.register <- c
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c]
	}, time.Second, 5*time.Millisecond)

	// Give relayChannel goroutines time to subscribe before publishing.
	require.Eventually(t, func() bool {
		bus.mu.Lock()
		defer bus.mu.Unlock()
		return len(bus.subs["market:status"]) > 0
	}, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), "market:status", []byte(`{"market":"0xabc"}`)))

	select {
	case msg := <-c.send:
		require.Equal(t, `{"market":"0xabc"}`, string(msg))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for relayed message")
	}
}

func TestHubDropsMessageForSlowClientWithoutBlocking(t *testing.T) {
	hub := NewHub(newFakeBus(), slog.Default())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go hub.Run(ctx)

	c := &client{send: make(chan []byte)} // unbuffered: always "full"
	hub.register <- c
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c]
	}, time.Second, 5*time.Millisecond)

	hub.broadcast <- []byte("first")
	hub.broadcast <- []byte("second")

	// A second register proves the hub's select loop kept processing
	// instead of blocking on the slow client's full send channel.
	c2 := &client{send: make(chan []byte, 1)}
	hub.register <- c2
	require.Eventually(t, func() bool {
		hub.mu.RLock()
		defer hub.mu.RUnlock()
		return hub.clients[c2]
	}, time.Second, 5*time.Millisecond)
}
