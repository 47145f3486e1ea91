package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"sendwatch/internal/customers"
	"sendwatch/internal/models"
	"sendwatch/internal/statsync"
)

type deleteCustomersRequest struct {
	Names   []string `json:"names"`
	Confirm bool     `json:"confirm"`
}

type passwordRequest struct {
	Name        string `json:"customer_name"`
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

type assignRequest struct {
	Name string   `json:"customer_name"`
	IDs  []string `json:"ids"`
}

type downloadRequest struct {
	Task     string          `json:"task"`
	Selected []string        `json:"selected"`
	Query    models.LogQuery `json:"query"`
}

func (s *HTTPServer) routeCustomers(handle func(string, http.HandlerFunc)) {
	if s.deps.Customers == nil {
		return
	}
	handle("/api/v1/customers", s.handleCustomers)
	handle("/api/v1/customers/password", s.handleCustomerPassword)
	handle("/api/v1/customers/tasks", s.handleCustomerTasks)
	handle("/api/v1/tasks/detail", s.handleTaskDetail)
	handle("/api/v1/tasks/logs", s.handleSendLog)
	handle("/api/v1/tasks/logs.csv", s.handleSendLogCSV)
}

func (s *HTTPServer) handleCustomers(w http.ResponseWriter, r *http.Request) {
	svc := s.deps.Customers

	switch r.Method {
	case http.MethodGet:
		list, err := svc.List(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customers": list})

	case http.MethodPost:
		var body models.NewCustomer
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		name, err := svc.Create(r.Context(), body)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, map[string]string{"customer_name": name})

	case http.MethodDelete:
		var body deleteCustomersRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := svc.Delete(r.Context(), body.Names, statsync.Answer(body.Confirm)); err != nil {
			writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleCustomerPassword(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body passwordRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.deps.Customers.UpdatePassword(r.Context(), body.Name, body.OldPassword, body.NewPassword); err != nil {
		writeFailure(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleCustomerTasks lists the tasks of one customer (GET ?name=) or
// replaces them (POST).
func (s *HTTPServer) handleCustomerTasks(w http.ResponseWriter, r *http.Request) {
	svc := s.deps.Customers

	switch r.Method {
	case http.MethodGet:
		name := strings.TrimSpace(r.URL.Query().Get("name"))
		if name == "" {
			writeError(w, http.StatusBadRequest, "name is required")
			return
		}
		list, err := svc.List(r.Context())
		if err != nil {
			writeFailure(w, err)
			return
		}
		var ids []string
		found := false
		for _, c := range list {
			if c.Name == name {
				ids, found = c.TaskUUIDs, true
				break
			}
		}
		if !found {
			writeError(w, http.StatusNotFound, fmt.Sprintf("customer not found: %s", name))
			return
		}
		tasks, err := svc.Tasks(r.Context(), ids)
		if err != nil {
			writeFailure(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"customer_name": name, "tasks": tasks})

	case http.MethodPost:
		var body assignRequest
		if err := decodeBody(r, &body); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		if err := svc.AssignTasks(r.Context(), body.Name, body.IDs); err != nil {
			writeFailure(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *HTTPServer) handleTaskDetail(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	detail, err := s.deps.Customers.Detail(r.Context(), r.URL.Query().Get("task"))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) handleSendLog(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	page, err := s.deps.Customers.Logs(r.Context(), r.URL.Query().Get("task"), logQueryFromURL(r))
	if err != nil {
		writeFailure(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (s *HTTPServer) handleSendLogCSV(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body downloadRequest
	if err := decodeBody(r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	data, err := s.deps.Customers.DownloadCSV(r.Context(), body.Task, body.Selected, body.Query)
	if err != nil {
		writeFailure(w, err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", customers.FileName(strings.TrimSpace(body.Task), time.Now())))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// logQueryFromURL reads a send-log query from the query string.
func logQueryFromURL(r *http.Request) models.LogQuery {
	q := r.URL.Query()
	return models.LogQuery{
		Page:         parseInt(q.Get("page"), 0),
		SearchText:   q.Get("search"),
		DateFrom:     strings.TrimSpace(q.Get("date_from")),
		DateTo:       strings.TrimSpace(q.Get("date_to")),
		ResultType:   strings.TrimSpace(q.Get("result")),
		OnlyAccessed: parseBool(q.Get("accessed")),
		OnlyClicked:  parseBool(q.Get("clicked")),
		OnlyFiled:    parseBool(q.Get("filed")),
		SortBy:       strings.TrimSpace(q.Get("sort_by")),
		RowsPerPage:  parseInt(q.Get("rows"), 0),
		Sort:         strings.TrimSpace(q.Get("sort")),
	}
}
