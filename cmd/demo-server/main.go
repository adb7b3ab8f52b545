package main

import (
	"log/slog"
	"net/http"
	"os"
	"time"

	"rewardkit/api/httpapi"
	"rewardkit/auth"
	"rewardkit/engine"
	"rewardkit/leaderboard"
	"rewardkit/realtime"
	"rewardkit/reward"
)

// Demo server: in-memory storage, a couple of hardcoded tokens, full API on
// :8080. Try:
//
//	curl -X POST localhost:8080/events \
//	  -H 'Authorization: Bearer demo-token' \
//	  -d '{"event_type":"clock_in","idempotency_key":"demo-1"}'
//	curl -H 'Authorization: Bearer demo-token' localhost:8080/profile
//	websocat ws://localhost:8080/ws?user=demo
func main() {
	// Use readable text logging for development/demo
	textHandler := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	})
	slog.SetDefault(slog.New(textHandler))

	hub := realtime.NewHub()
	board := leaderboard.NewSkipList()
	svc := reward.New(
		reward.WithRealtime(hub),
		reward.WithLeaderboard(board),
		reward.WithDispatchMode(engine.DispatchAsync),
	)
	defer svc.Close()

	provider := auth.StaticTokens{
		"demo-token":  "demo",
		"demo-token2": "demo2",
	}

	handler := httpapi.NewMux(svc, hub, provider, board, httpapi.Options{
		AllowCORSOrigin: "*",
	})

	slog.Info("starting demo server on :8080")

	srv := &http.Server{
		Addr:              ":8080",
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		slog.Error("demo server crashed", "error", err)
		os.Exit(1)
	}
}
