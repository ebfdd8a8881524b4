package status

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/fonix232/caddy/internal/domain"
	"github.com/fonix232/caddy/internal/ports"
)

// Tracker holds the snapshot of the most recent run for the status
// endpoint.
type Tracker struct {
	mu   sync.Mutex
	last *domain.RunRecord
}

var _ ports.RunObserver = (*Tracker)(nil)

// NewTracker builds an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{}
}

// Observe stores the finished run.
func (t *Tracker) Observe(rec domain.RunRecord) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.last = &rec
}

// Last returns the most recent run, if any.
func (t *Tracker) Last() (domain.RunRecord, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.last == nil {
		return domain.RunRecord{}, false
	}
	return *t.last, true
}

// Server exposes daemon-mode health and status over HTTP.
type Server struct {
	httpServer *http.Server
	tracker    *Tracker
	store      ports.RunStore
	logger     *slog.Logger
}

// NewServer wires the chi router. store may be nil; /status then omits
// history.
func NewServer(addr string, tracker *Tracker, store ports.RunStore, log *slog.Logger) *Server {
	s := &Server{tracker: tracker, store: store, logger: log}

	r := chi.NewRouter()
	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if s.logger != nil {
		s.logger.Info("status server listening", "addr", s.httpServer.Addr)
	}
	err := s.httpServer.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

type statusRun struct {
	ID         string    `json:"id"`
	Tag        string    `json:"tag"`
	NeedsBuild bool      `json:"needs_build"`
	Reason     string    `json:"reason"`
	Registries []string  `json:"registries,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
}

type statusResponse struct {
	Last   *statusRun  `json:"last"`
	Recent []statusRun `json:"recent,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	var resp statusResponse

	if s.tracker != nil {
		if rec, ok := s.tracker.Last(); ok {
			run := toStatusRun(rec)
			resp.Last = &run
		}
	}

	if s.store != nil {
		records, err := s.store.RecentRuns(r.Context(), 20)
		if err != nil {
			if s.logger != nil {
				s.logger.Warn("cannot load run history", "error", err)
			}
		} else {
			for _, rec := range records {
				resp.Recent = append(resp.Recent, toStatusRun(rec))
			}
		}
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil && s.logger != nil {
		s.logger.Warn("cannot encode status response", "error", err)
	}
}

func toStatusRun(rec domain.RunRecord) statusRun {
	return statusRun{
		ID:         rec.ID,
		Tag:        rec.Tag,
		NeedsBuild: rec.NeedsBuild,
		Reason:     rec.Reason,
		Registries: rec.Registries,
		StartedAt:  rec.StartedAt,
		FinishedAt: rec.FinishedAt,
	}
}
