package websocket

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gorillaws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"rewardkit/core"
	"rewardkit/realtime"
)

func TestHandlerStreamsEvents(t *testing.T) {
	hub := realtime.NewHub()
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Give the server goroutine a moment to register its subscription.
	time.Sleep(50 * time.Millisecond)
	hub.Broadcast(context.Background(), core.NewLevelUp("tech-1", 3))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev core.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	require.Equal(t, core.EventLevelUp, ev.Type)
	require.Equal(t, core.UserID("tech-1"), ev.UserID)
	require.Equal(t, 3, ev.Level)
}

func TestHandlerUserFilter(t *testing.T) {
	hub := realtime.NewHub()
	srv := httptest.NewServer(Handler(hub))
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "?user=tech-1"
	conn, _, err := gorillaws.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()

	time.Sleep(50 * time.Millisecond)
	hub.Broadcast(context.Background(), core.NewLevelUp("someone-else", 2))
	hub.Broadcast(context.Background(), core.NewLevelUp("tech-1", 4))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, msg, err := conn.ReadMessage()
	require.NoError(t, err)

	var ev core.Event
	require.NoError(t, json.Unmarshal(msg, &ev))
	require.Equal(t, core.UserID("tech-1"), ev.UserID)
}
