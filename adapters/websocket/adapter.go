package websocket

import (
	"net/http"
	"time"

	gorillaws "github.com/gorilla/websocket"

	"rewardkit/core"
	"rewardkit/realtime"
)

// Handler returns an http.Handler that upgrades to WebSocket and streams
// engine events from the hub. A ?user= query parameter scopes the stream to
// a single user's events.
func Handler(hub *realtime.Hub) http.Handler {
	upgrader := gorillaws.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var (
			id int
			ch <-chan core.Event
		)
		if user := r.URL.Query().Get("user"); user != "" {
			id, ch = hub.SubscribeUser(core.UserID(user), 256)
		} else {
			id, ch = hub.Subscribe(256)
		}
		defer hub.Unsubscribe(id)

		for ev := range ch {
			_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(gorillaws.TextMessage, realtime.MarshalJSON(ev)); err != nil {
				return
			}
		}
	})
}
