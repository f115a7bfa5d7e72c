package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type received struct {
	msgType string
	data    json.RawMessage
}

func startHub(t *testing.T, opts ...Option) (*Hub, *websocket.Conn) {
	t.Helper()
	hub := NewHub(opts...)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)

	srv := httptest.NewServer(hub)
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 5*time.Millisecond)
	return hub, conn
}

func TestHubBroadcastsEnvelope(t *testing.T) {
	hub, conn := startHub(t)

	hub.Send("state", map[string]string{"status": "Playing"})

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	var msg Message
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "state", msg.Type)
	assert.JSONEq(t, `{"status":"Playing"}`, string(msg.Data))
}

func TestHubDeliversClientMessages(t *testing.T) {
	got := make(chan received, 1)
	_, conn := startHub(t, WithMessageHandler(func(msgType string, data json.RawMessage) {
		got <- received{msgType, data}
	}))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("not json")))
	require.NoError(t, conn.WriteJSON(Message{Type: "engine.started", Data: json.RawMessage(`{"utterance":"s1"}`)}))

	select {
	case r := <-got:
		assert.Equal(t, "engine.started", r.msgType)
		assert.JSONEq(t, `{"utterance":"s1"}`, string(r.data))
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
}

func TestHubConnectHandlerAndDisconnect(t *testing.T) {
	connected := make(chan struct{}, 1)
	hub, conn := startHub(t, WithConnectHandler(func() { connected <- struct{}{} }))

	select {
	case <-connected:
	case <-time.After(time.Second):
		t.Fatal("connect handler not called")
	}

	conn.Close()
	require.Eventually(t, func() bool { return hub.Clients() == 0 }, time.Second, 5*time.Millisecond)
}

func TestSendAfterStopDoesNotBlock(t *testing.T) {
	hub := NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()
	cancel()
	<-done

	finished := make(chan struct{})
	go func() {
		hub.Send("state", "late")
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		t.Fatal("Send blocked on a stopped hub")
	}
}
