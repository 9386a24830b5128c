package app

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/Bagi4-source/Mirotok/internal/logging"
)

type healthInfo struct {
	Status     string `json:"status"`
	Uptime     string `json:"uptime"`
	Goroutines int    `json:"goroutines"`
	Alloc      string `json:"alloc"`
	Sys        string `json:"sys"`
	Time       string `json:"time"`
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	gor, alloc, _, sys := runtimeStats()
	info := healthInfo{
		Status:     "ok",
		Uptime:     formatDuration(time.Since(logging.StartedAt())),
		Goroutines: gor,
		Alloc:      formatBytes(alloc),
		Sys:        formatBytes(sys),
		Time:       time.Now().Format(time.RFC3339),
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(info)
}

func startHealthServer(ctx context.Context, addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", healthHandler)
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Printf("✅ Health endpoint: %s/health", addr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Printf("⚠️ Health server stopped: %v", err)
	}
}
