// Package api exposes the schedule store over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/hray3182/chime/internal/models"
	"github.com/hray3182/chime/internal/store"
)

// ScheduleStore is the store surface the handlers use.
type ScheduleStore interface {
	List() []models.Schedule
	Get(id string) (models.Schedule, error)
	Add(in store.Input) (models.Schedule, error)
	AddMany(inputs []store.Input) ([]models.Schedule, error)
	Update(id string, u store.Update) (models.Schedule, error)
	Remove(id string) error
}

type Server struct {
	store       ScheduleStore
	leadMinutes int
	now         func() time.Time
	router      *mux.Router
}

func NewServer(st ScheduleStore, leadMinutes int, now func() time.Time) *Server {
	if now == nil {
		now = time.Now
	}
	s := &Server{
		store:       st,
		leadMinutes: leadMinutes,
		now:         now,
		router:      mux.NewRouter(),
	}
	s.registerRoutes()
	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/health", s.handleHealth).Methods("GET")
	s.router.HandleFunc("/upcoming", s.handleUpcoming).Methods("GET")
	s.router.HandleFunc("/schedules.ics", s.handleICS).Methods("GET")

	r := s.router.PathPrefix("/schedules").Subrouter()
	r.HandleFunc("", s.handleList).Methods("GET")
	r.HandleFunc("", s.handleCreate).Methods("POST")
	r.HandleFunc("/{id}", s.handleGet).Methods("GET")
	r.HandleFunc("/{id}", s.handlePatch).Methods("PATCH")
	r.HandleFunc("/{id}", s.handleDelete).Methods("DELETE")
}

// Run serves on addr until ctx is cancelled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logrus.WithField("listen", addr).Info("HTTP API listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "ok",
		"schedules": len(s.store.List()),
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logrus.WithError(err).Error("Failed to write JSON response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}

// writeStoreError maps store errors onto status codes.
func writeStoreError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, "schedule not found")
	case errors.Is(err, store.ErrInvalidSchedule):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		logrus.WithError(err).Error("Store operation failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
