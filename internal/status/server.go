// Package status serves the watcher's last run over HTTP.
package status

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	json "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/recovery-warden/api/schemas"
)

// Snapshot is the JSON body of /status. It never carries credentials.
type Snapshot struct {
	TaskID          string    `json:"task_id"`
	Runs            int       `json:"runs"`
	LastRunID       string    `json:"last_run_id,omitempty"`
	Account         string    `json:"account,omitempty"`
	StartedAt       time.Time `json:"started_at,omitempty"`
	FinishedAt      time.Time `json:"finished_at,omitempty"`
	Entered         bool      `json:"entered"`
	Success         bool      `json:"success"`
	PasswordChanged bool      `json:"password_changed"`
	TwoFactor       bool      `json:"two_factor"`
	Reason          string    `json:"reason,omitempty"`
	Warnings        []string  `json:"warnings,omitempty"`
	NextRunAt       time.Time `json:"next_run_at,omitempty"`
}

// Server keeps the latest run report and exposes it.
type Server struct {
	taskID string
	logger *zap.Logger
	secret []byte

	mu   sync.RWMutex
	snap Snapshot
}

var _ schemas.RunObserver = (*Server)(nil)

// Option customizes a Server.
type Option func(*Server)

// WithTokenSecret protects /status with HMAC-signed bearer tokens.
// /healthz stays open.
func WithTokenSecret(secret string) Option {
	return func(s *Server) {
		if secret != "" {
			s.secret = []byte(secret)
		}
	}
}

// NewServer creates the status surface for taskID.
func NewServer(taskID string, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{taskID: taskID, logger: logger.Named("status"), snap: Snapshot{TaskID: taskID}}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// RunCompleted records report as the latest run.
func (s *Server) RunCompleted(_ context.Context, report schemas.RunReport) {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		TaskID:          s.taskID,
		Runs:            s.snap.Runs + 1,
		LastRunID:       report.RunID,
		Account:         report.Account,
		StartedAt:       report.StartedAt,
		FinishedAt:      report.FinishedAt,
		Entered:         report.Entered,
		Success:         report.Outcome.Success,
		PasswordChanged: report.Outcome.PasswordChanged,
		TwoFactor:       report.Outcome.TwoFactor,
	}
	if report.Entered && !report.Outcome.Success {
		snap.Reason = report.Outcome.Reason.String()
	}
	for _, w := range report.Outcome.Warnings {
		snap.Warnings = append(snap.Warnings, w.String())
	}
	if !report.FinishedAt.IsZero() {
		snap.NextRunAt = report.FinishedAt.Add(report.Schedule.Delay())
	}
	s.snap = snap
}

// Snapshot returns a copy of the latest state.
func (s *Server) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.snap
	snap.Warnings = append([]string(nil), s.snap.Warnings...)
	return snap
}

// Handler builds the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Recoverer)
	r.Get("/healthz", s.health)
	r.Group(func(r chi.Router) {
		if s.secret != nil {
			r.Use(requireBearer(s.secret, s.logger))
		}
		r.Get("/status", s.status)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) status(w http.ResponseWriter, _ *http.Request) {
	body, err := json.Marshal(s.Snapshot())
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(body)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{Handler: s.Handler(), ReadHeaderTimeout: 5 * time.Second}
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("Status endpoint listening.", zap.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
