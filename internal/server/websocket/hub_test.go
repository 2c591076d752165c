package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startHub(t *testing.T) (*Hub, context.CancelFunc) {
	t.Helper()
	logger := zerolog.Nop()
	hub := NewHub(&logger)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	go hub.Run(ctx)
	t.Cleanup(cancel)
	return hub, cancel
}

func TestHub_BroadcastToRegisteredClients(t *testing.T) {
	hub, _ := startHub(t)

	c1 := NewClient("a", hub, nil)
	c2 := NewClient("b", hub, nil)
	hub.Register(c1)
	hub.Register(c2)
	require.Eventually(t, func() bool { return hub.ClientCount() == 2 }, time.Second, 5*time.Millisecond)

	hub.Broadcast(Message{Type: "surface.data", Timestamp: time.Now()})

	for _, c := range []*Client{c1, c2} {
		select {
		case m := <-c.send:
			assert.Equal(t, "surface.data", m.Type)
		case <-time.After(time.Second):
			t.Fatalf("client %s did not receive message", c.ID())
		}
	}
}

func TestHub_MessageOrdering(t *testing.T) {
	hub, _ := startHub(t)
	c := NewClient("ordered", hub, nil)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	types := []string{"events.changed", "markers.rendered", "surface.data", "status.changed"}
	for _, typ := range types {
		hub.Broadcast(Message{Type: typ})
	}
	for _, want := range types {
		select {
		case m := <-c.send:
			assert.Equal(t, want, m.Type)
		case <-time.After(time.Second):
			t.Fatalf("missing %s", want)
		}
	}
}

func TestHub_SlowClientDisconnected(t *testing.T) {
	hub, _ := startHub(t)
	c := NewClient("slow", hub, nil)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	for i := 0; i < cap(c.send)+1; i++ {
		hub.Broadcast(Message{Type: "surface.data"})
	}
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
}

func TestHub_ShutdownClosesClients(t *testing.T) {
	hub, cancel := startHub(t)
	c := NewClient("a", hub, nil)
	hub.Register(c)
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	cancel()
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, time.Second, 5*time.Millisecond)
	_, open := <-c.send
	assert.False(t, open)
}

func TestClient_Queue(t *testing.T) {
	logger := zerolog.Nop()
	c := NewClient("q", NewHub(&logger), nil)
	for i := 0; i < cap(c.send); i++ {
		require.True(t, c.Queue(Message{Type: "x"}))
	}
	assert.False(t, c.Queue(Message{Type: "x"}))
}

func TestHub_EndToEnd(t *testing.T) {
	hub, _ := startHub(t)
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		c := NewClient("e2e", hub, conn)
		hub.Register(c)
		go c.WritePump()
		go c.ReadPump()
	}))
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)
	hub.Broadcast(Message{Type: "status.changed", Data: "completed"})

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	var got Message
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "status.changed", got.Type)
	assert.Equal(t, "completed", got.Data)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.ClientCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}
