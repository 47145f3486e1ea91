package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/dashboard"
	"sendwatch/internal/export"
	"sendwatch/internal/models"
	"sendwatch/internal/statsync"
	"sendwatch/internal/tasklist"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionResponse struct {
	SessionID string          `json:"session_id"`
	Operator  models.Operator `json:"operator"`
	CreatedAt time.Time       `json:"created_at"`
}

func toSessionResponse(s *models.Session) sessionResponse {
	return sessionResponse{SessionID: s.ID, Operator: s.Operator, CreatedAt: s.CreatedAt}
}

func (s *HTTPServer) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body loginRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	sess, err := s.deps.Sessions.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeFailure(w, err)
		return
	}

	// a new operator gets a fresh view
	s.deps.Board.Reset()
	if err := s.deps.Board.Refresh(r.Context()); err != nil && !apperr.Silent(err) {
		s.logger.Warn().Err(err).Msg("initial refresh after login failed")
	}

	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *HTTPServer) handleLogout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	s.deps.Board.Reset()
	if s.deps.Customers != nil {
		s.deps.Customers.Teardown()
	}
	if err := s.deps.Sessions.Logout(r.Context()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to clear session")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleSession(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	sess, err := s.deps.Sessions.Current()
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(sess))
}

func (s *HTTPServer) handleTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()
	view := s.deps.Board.Tasks(dashboard.Query{
		Filter:   filterFromQuery(r),
		Page:     parseInt(q.Get("page"), 0),
		PageSize: parseInt(q.Get("page_size"), 0),
	})
	writeJSON(w, http.StatusOK, view)
}

func (s *HTTPServer) handleToday(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	snap := s.deps.Board.Snapshot()
	writeJSON(w, http.StatusOK, map[string]any{
		"tasks":   snap.TodayTasks(),
		"summary": snap.Summary(),
	})
}

func (s *HTTPServer) handleSummary(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Board.Summary())
}

func (s *HTTPServer) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	if err := s.deps.Board.Refresh(r.Context()); err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.deps.Board.Tasks(dashboard.Query{}))
}

type confirmRequest struct {
	Confirm bool `json:"confirm"`
}

type statsRequest struct {
	IDs     []string      `json:"ids"`
	Target  string        `json:"target"`
	Filter  filterRequest `json:"filter"`
	Confirm bool          `json:"confirm"`
}

type filterRequest struct {
	Search  string `json:"search"`
	Today   bool   `json:"today"`
	Expired bool   `json:"expired"`
	State   string `json:"state"`
}

func (f filterRequest) toFilter() tasklist.Filter {
	return tasklist.Filter{
		Search:      strings.TrimSpace(f.Search),
		TodayOnly:   f.Today,
		ExpiredOnly: f.Expired,
		State:       models.ParseTodayState(f.State),
	}
}

// actionResponse carries the result of a bulk action. A partial result
// accompanies the first chunk error.
type actionResponse struct {
	Result  *statsync.Result `json:"result,omitempty"`
	Message string           `json:"message,omitempty"`
	Error   string           `json:"error,omitempty"`
}

func writeAction(w http.ResponseWriter, res *statsync.Result, err error) {
	if err != nil {
		writeJSON(w, statusFor(err), actionResponse{Result: res, Error: messageFor(err)})
		return
	}
	resp := actionResponse{Result: res}
	if res.UpToDate() {
		resp.Message = "all tasks are already up to date"
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *HTTPServer) handleCheckTasks(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body confirmRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.deps.Board.CheckTasks(r.Context(), statsync.Answer(body.Confirm))
	writeAction(w, res, err)
}

func (s *HTTPServer) handleRefreshStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body statsRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	confirm := statsync.Answer(body.Confirm)
	if len(body.IDs) > 0 {
		res, err := s.deps.Board.RefreshStatsOf(r.Context(), body.IDs, confirm)
		writeAction(w, res, err)
		return
	}

	target := dashboard.Target(strings.TrimSpace(body.Target))
	switch target {
	case "":
		target = dashboard.TargetSelection
	case dashboard.TargetSelection, dashboard.TargetToday, dashboard.TargetAll:
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown target: %s", target))
		return
	}

	res, err := s.deps.Board.RefreshStats(r.Context(), target, body.Filter.toFilter(), confirm)
	writeAction(w, res, err)
}

func (s *HTTPServer) handleTodayCreated(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body confirmRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	res, err := s.deps.Board.RefreshTodayCreated(r.Context(), statsync.Answer(body.Confirm))
	writeAction(w, res, err)
}

type selectionRequest struct {
	Op       string   `json:"op"`
	IDs      []string `json:"ids"`
	AllPages bool     `json:"all_pages"`
}

func (s *HTTPServer) handleSelection(w http.ResponseWriter, r *http.Request) {
	sel := s.deps.Board.Selection()

	switch r.Method {
	case http.MethodGet:
		writeJSON(w, http.StatusOK, sel.State())
		return
	case http.MethodPost:
	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body selectionRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// only loaded tasks can be selected; remove still accepts stale ids
	loaded := s.deps.Board.Loaded(body.IDs)
	switch strings.TrimSpace(body.Op) {
	case "toggle":
		for _, id := range loaded {
			sel.Toggle(id)
		}
	case "add":
		sel.Add(loaded...)
	case "remove":
		sel.Remove(body.IDs...)
	case "replace":
		sel.Replace(loaded)
	case "all_pages":
		sel.SetAllPages(body.AllPages)
	case "reset":
		sel.Reset()
	default:
		writeError(w, http.StatusBadRequest, "op must be one of toggle, add, remove, replace, all_pages, reset")
		return
	}

	writeJSON(w, http.StatusOK, sel.State())
}

func (s *HTTPServer) handleExport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	now := time.Now()
	opts := export.Options{
		Filter:      filterFromQuery(r),
		Highlighted: s.deps.Board.Highlighted(),
		Now:         now,
	}

	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName(now)))
	if err := export.Write(w, s.deps.Board.Snapshot(), opts); err != nil {
		s.logger.Error().Err(err).Msg("export failed")
		writeError(w, http.StatusInternalServerError, "export failed")
	}
}

func (s *HTTPServer) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.deps.Journal == nil {
		writeJSON(w, http.StatusOK, map[string]any{"sessions": []*models.RefreshSession{}})
		return
	}

	sessions, err := s.deps.Journal.Recent(r.Context(), parseInt(r.URL.Query().Get("limit"), 50))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to read journal")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}
