package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/config"
	"sendwatch/internal/customers"
	"sendwatch/internal/dashboard"
	"sendwatch/internal/domain"
	"sendwatch/internal/logging"
	"sendwatch/internal/metrics"
	"sendwatch/internal/models"
	"sendwatch/internal/tasklist"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Sessions is the operator session surface of the console.
type Sessions interface {
	Login(ctx context.Context, email, password string) (*models.Session, error)
	Logout(ctx context.Context) error
	Current() (*models.Session, error)
}

// HealthFunc reports a failing dependency.
type HealthFunc func(ctx context.Context) error

// Deps are the collaborators served over HTTP. Customer routes are only
// mounted when Customers is set.
type Deps struct {
	Board     *dashboard.Board
	Customers *customers.Service
	Sessions  Sessions
	Journal   domain.Journal
	Health    HealthFunc
}

// HTTPServer exposes the dashboard to the operator console.
type HTTPServer struct {
	cfg    config.ConsoleConfig
	deps   Deps
	server *http.Server
	auth   *HTTPAuth
	logger zerolog.Logger
	routes map[string]struct{}
}

func NewHTTPServer(cfg config.ConsoleConfig, deps Deps, logger *zerolog.Logger) *HTTPServer {
	l := logging.Component(logger, "http")

	mux := http.NewServeMux()
	srv := &HTTPServer{cfg: cfg, deps: deps, logger: l, routes: make(map[string]struct{})}
	srv.auth = NewHTTPAuth(cfg)
	handle := func(path string, h http.HandlerFunc) {
		srv.routes[path] = struct{}{}
		mux.HandleFunc(path, h)
	}

	handle("/healthz", srv.handleHealth)
	handle("/api/v1/session/login", srv.handleLogin)
	handle("/api/v1/session/logout", srv.handleLogout)
	handle("/api/v1/session", srv.handleSession)
	handle("/api/v1/tasks", srv.handleTasks)
	handle("/api/v1/tasks/today", srv.handleToday)
	handle("/api/v1/tasks/summary", srv.handleSummary)
	handle("/api/v1/tasks/refresh", srv.handleRefresh)
	handle("/api/v1/tasks/check", srv.handleCheckTasks)
	handle("/api/v1/stats/refresh", srv.handleRefreshStats)
	handle("/api/v1/stats/refresh-today-created", srv.handleTodayCreated)
	handle("/api/v1/selection", srv.handleSelection)
	handle("/api/v1/export.xlsx", srv.handleExport)
	handle("/api/v1/journal", srv.handleJournal)
	srv.routeCustomers(handle)

	handler := srv.loggingMiddleware(srv.auth.Wrap(mux))

	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      2 * time.Minute,
	}

	return srv
}

// Handler is the fully wrapped request handler.
func (s *HTTPServer) Handler() http.Handler {
	return s.server.Handler
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("console API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Health != nil {
		if err := s.deps.Health(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// filterFromQuery reads the table filter from the query string.
func filterFromQuery(r *http.Request) tasklist.Filter {
	q := r.URL.Query()
	return tasklist.Filter{
		Search:      strings.TrimSpace(q.Get("search")),
		TodayOnly:   parseBool(q.Get("today")),
		ExpiredOnly: parseBool(q.Get("expired")),
		State:       models.ParseTodayState(q.Get("state")),
	}
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	return err == nil && v
}

func parseInt(raw string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return def
	}
	return v
}

func decodeBody(r *http.Request, v any) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	return decoder.Decode(v)
}

// statusFor maps an operation failure to an HTTP status.
func statusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindEmptyInput:
		return http.StatusUnprocessableEntity
	case apperr.KindDeclined:
		return http.StatusPreconditionRequired
	case apperr.KindUnauthenticated:
		return http.StatusUnauthorized
	case apperr.KindCancelled, apperr.KindBusy:
		return http.StatusConflict
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindApplication, apperr.KindTransport:
		return http.StatusBadGateway
	}
	if apperr.IsCancelled(err) {
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// messageFor is the operator-facing text of err. Silent kinds still need a
// reason in an HTTP response.
func messageFor(err error) string {
	switch apperr.KindOf(err) {
	case apperr.KindDeclined:
		return "confirmation required"
	case apperr.KindCancelled:
		return "superseded by a newer request"
	}
	if msg := apperr.UserMessage(err); msg != "" {
		return msg
	}
	return "superseded by a newer request"
}

func writeFailure(w http.ResponseWriter, err error) {
	writeError(w, statusFor(err), messageFor(err))
}

func (s *HTTPServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if requestID == "" {
			requestID = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, requestID)

		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)
		dur := time.Since(start)

		route := r.URL.Path
		if _, ok := s.routes[route]; !ok {
			route = "other"
		}
		metrics.IncHTTP(route)
		s.logger.Info().
			Str("request_id", requestID).
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", recorder.status).
			Dur("duration", dur).
			Msg("http request")
	})
}

const requestIDHeader = "X-Request-Id"

func writeJSON(w http.ResponseWriter, statusCode int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, statusCode int, message string) {
	writeJSON(w, statusCode, map[string]string{"error": message})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}
