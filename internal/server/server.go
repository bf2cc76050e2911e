// Package server is the liveness HTTP endpoint the hosting platform pings
// to keep the process alive and to see when the next stock check runs.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"pvb-stock-bot/internal/config"
)

// Status is what the poller reports about itself.
type Status struct {
	BotName   string
	Running   bool
	NextCheck time.Time
}

// StatusSource answers "is the bot alive and when does it check next".
type StatusSource interface {
	Status() Status
}

// Server wraps the HTTP listener around the status routes.
type Server struct {
	cfg    config.ServerConfig
	loc    *time.Location
	source StatusSource
	logger *slog.Logger

	now func() time.Time
}

// New builds the liveness server. loc is the display timezone used for the
// human-readable timestamp.
func New(cfg config.ServerConfig, loc *time.Location, source StatusSource, logger *slog.Logger) *Server {
	return &Server{
		cfg:    cfg,
		loc:    loc,
		source: source,
		logger: logger.With("component", "server"),
		now:    time.Now,
	}
}

// Handler assembles the router. Split from Run so tests can hit it directly.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Use(Recovery(s.logger))
	r.Use(RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "HEAD", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	// Uptime monitors probe with HEAD as often as GET; every route answers
	// both with 200.
	r.Get("/", s.handleStatus)
	r.Head("/", s.handleStatus)
	r.Get("/health", s.handleStatus)
	r.Head("/health", s.handleStatus)
	r.Get("/ping", s.handlePing)
	r.Head("/ping", s.handlePing)

	return r
}

// Run serves until the context is cancelled, then drains within the
// configured shutdown timeout.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:         s.cfg.Address(),
		Handler:      s.Handler(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()
	s.logger.Info("liveness server listening", "address", s.cfg.Address())

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	shutCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

type statusPayload struct {
	Status    string `json:"status"`
	Time      string `json:"time"`
	LocalTime string `json:"moscow_time"`
	NextCheck string `json:"next_check"`
	Bot       string `json:"bot"`
	IsRunning bool   `json:"is_running"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.source.Status()
	now := s.now()

	text := "Bot is stopped"
	if st.Running {
		text = "Bot is running"
	}

	next := ""
	if !st.NextCheck.IsZero() {
		next = st.NextCheck.In(s.loc).Format("15:04:05")
	}

	writeJSON(w, http.StatusOK, statusPayload{
		Status:    text,
		Time:      now.UTC().Format(time.RFC3339),
		LocalTime: now.In(s.loc).Format("15:04:05 02.01.2006"),
		NextCheck: next,
		Bot:       st.BotName,
		IsRunning: st.Running,
	})
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodHead {
		w.WriteHeader(http.StatusOK)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"ping": "pong"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		// Too late for an error status; the connection is what it is.
		return
	}
}
