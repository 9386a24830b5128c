// Package api is the REST backend: users, reading scores, payment
// requests, tariffs and static texts.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"

	"github.com/Bagi4-source/Mirotok/internal/store"
)

const (
	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

type Handler struct {
	repo      store.Repository
	validate  *validator.Validate
	now       func() time.Time
	startedAt time.Time
}

func NewHandler(repo store.Repository) *Handler {
	return &Handler{
		repo:      repo,
		validate:  validator.New(),
		now:       time.Now,
		startedAt: time.Now(),
	}
}

// Router mounts every endpoint with the standard middleware chain.
func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/registration", func(r chi.Router) {
		r.Get("/", h.listUsers)
		r.Post("/", h.register)
	})
	r.Route("/results", func(r chi.Router) {
		r.Get("/", h.listResults)
		r.Post("/", h.addResult)
	})
	r.Route("/request", func(r chi.Router) {
		r.Get("/", h.listRequests)
		r.Post("/", h.createRequest)
	})
	r.Route("/admin-request", func(r chi.Router) {
		r.Get("/", h.listPending)
		r.Get("/{id}/", h.getRequest)
		r.Put("/{id}/", h.resolveRequest)
	})
	r.Route("/tariffs", func(r chi.Router) {
		r.Get("/", h.listTariffs)
		r.Post("/", h.createTariff)
		r.Get("/{id}/", h.getTariff)
		r.Delete("/{id}/", h.deleteTariff)
	})
	r.Route("/messages", func(r chi.Router) {
		r.Get("/", h.getMessage)
		r.Put("/{tag}/", h.putMessage)
	})
	r.Get("/health", h.health)
	return r
}

// Run serves handler on addr until ctx is cancelled, then shuts down
// gracefully.
func Run(ctx context.Context, addr string, handler http.Handler) error {
	server := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("✅ API server started at %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Printf("🛑 API server stopped")
	return <-errCh
}

func (h *Handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":     "ok",
		"started_at": h.startedAt.UTC(),
		"uptime":     time.Since(h.startedAt).Round(time.Second).String(),
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]any{
		"error": message,
	})
}

// fail maps repository errors onto HTTP statuses.
func fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, store.ErrAlreadyResolved):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Printf("❌ %s %s: %v", r.Method, r.URL.Path, err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request format")
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "validation error: "+err.Error())
		return false
	}
	return true
}
