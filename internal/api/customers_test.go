package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"sendwatch/internal/apperr"
	"sendwatch/internal/config"
	"sendwatch/internal/customers"
	"sendwatch/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCustomerBackend keeps customer accounts in memory.
type fakeCustomerBackend struct {
	mu        sync.Mutex
	customers []models.Customer
	deleted   []string
	assigned  map[string][]string
	lastQuery models.LogQuery
}

func (f *fakeCustomerBackend) Customers(context.Context, string) ([]models.Customer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Customer(nil), f.customers...), nil
}

func (f *fakeCustomerBackend) CreateCustomer(_ context.Context, _ string, in models.NewCustomer) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.customers {
		if c.Name == in.Name {
			return "", apperr.Application("create_customer", "customer already exists")
		}
	}
	f.customers = append(f.customers, models.Customer{Name: in.Name, FullName: in.FullName})
	return in.Name, nil
}

func (f *fakeCustomerBackend) DeleteCustomers(_ context.Context, names []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, names...)
	return nil
}

func (f *fakeCustomerBackend) UpdateCustomerPassword(context.Context, string, string, string) error {
	return nil
}

func (f *fakeCustomerBackend) UpdateCustomerTasks(_ context.Context, name string, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.assigned[name] = ids
	return nil
}

func (f *fakeCustomerBackend) CustomerTasks(_ context.Context, ids []string) ([]models.Task, error) {
	out := make([]models.Task, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.Task{UUID: id, Label: "Task " + id})
	}
	return out, nil
}

func (f *fakeCustomerBackend) GetStatistics(_ context.Context, ids []string) ([]models.TaskStatistics, error) {
	out := make([]models.TaskStatistics, 0, len(ids))
	for _, id := range ids {
		out = append(out, models.TaskStatistics{TaskUUID: id, TotalPlanned: 4, TotalSent: 2, TotalSucceeded: 2, TotalTriggered: 1})
	}
	return out, nil
}

func (f *fakeCustomerBackend) SendLogDetail(_ context.Context, _ string, q models.LogQuery) (*models.LogPage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastQuery = q
	return &models.LogPage{Logs: []models.SendLog{{UUID: "r1"}}, Total: 1, Page: q.Page, Rows: q.RowsPerPage}, nil
}

func (f *fakeCustomerBackend) MailTemplates(context.Context) ([]models.MailTemplate, error) {
	return []models.MailTemplate{{UUID: "m1", Title: "Invoice"}}, nil
}

func (f *fakeCustomerBackend) DownloadSendLogCSV(context.Context, string, []string, models.LogQuery) ([]byte, error) {
	return []byte("uuid\nr1\n"), nil
}

type fixedAccount struct{}

func (fixedAccount) AccountID(context.Context) (string, error) { return "acct-1", nil }

func newCustomerServer(t *testing.T) (*fakeCustomerBackend, *httptest.Server) {
	t.Helper()
	backend := &fakeCustomerBackend{
		customers: []models.Customer{{Name: "acme", FullName: "Acme Corp", TaskUUIDs: []string{"t1", "t2"}}},
		assigned:  make(map[string][]string),
	}
	svc := customers.New(backend, fixedAccount{})
	server := NewHTTPServer(config.ConsoleConfig{}, Deps{Customers: svc}, nil)
	ts := httptest.NewServer(server.Handler())
	t.Cleanup(ts.Close)
	return backend, ts
}

func send(t *testing.T, ts *httptest.Server, method, path string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, ts.URL+path, &buf)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestCustomerAccounts(t *testing.T) {
	backend, ts := newCustomerServer(t)

	resp := send(t, ts, http.MethodGet, "/api/v1/customers", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decode[struct {
		Customers []models.Customer `json:"customers"`
	}](t, resp)
	require.Len(t, list.Customers, 1)
	assert.Equal(t, "acme", list.Customers[0].Name)

	resp = send(t, ts, http.MethodPost, "/api/v1/customers", models.NewCustomer{Name: "beta", FullName: "Beta Ltd", Password: "pw"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "beta", decode[map[string]string](t, resp)["customer_name"])

	resp = send(t, ts, http.MethodPost, "/api/v1/customers", models.NewCustomer{Name: "beta", FullName: "Beta Ltd", Password: "pw"})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "customer already exists", decode[map[string]string](t, resp)["error"])

	resp = send(t, ts, http.MethodPost, "/api/v1/customers", models.NewCustomer{Name: "gamma"})
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)
	assert.Equal(t, "customer full name is required", decode[map[string]string](t, resp)["error"])

	resp = send(t, ts, http.MethodDelete, "/api/v1/customers", deleteCustomersRequest{Names: []string{"beta"}})
	assert.Equal(t, http.StatusPreconditionRequired, resp.StatusCode)
	assert.Empty(t, backend.deleted)

	resp = send(t, ts, http.MethodDelete, "/api/v1/customers", deleteCustomersRequest{Names: []string{"beta"}, Confirm: true})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"beta"}, backend.deleted)

	resp = send(t, ts, http.MethodPost, "/api/v1/customers/password", passwordRequest{Name: "acme", OldPassword: "a", NewPassword: "a"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = send(t, ts, http.MethodPost, "/api/v1/customers/password", passwordRequest{Name: "acme", OldPassword: "a", NewPassword: "b"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestCustomerTaskAssignment(t *testing.T) {
	backend, ts := newCustomerServer(t)

	resp := send(t, ts, http.MethodGet, "/api/v1/customers/tasks?name=acme", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[struct {
		Tasks []models.CustomerTask `json:"tasks"`
	}](t, resp)
	require.Len(t, body.Tasks, 2)
	assert.Equal(t, models.ProgressActive, body.Tasks[0].Progress)

	resp = send(t, ts, http.MethodGet, "/api/v1/customers/tasks?name=nobody", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = send(t, ts, http.MethodGet, "/api/v1/customers/tasks", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = send(t, ts, http.MethodPost, "/api/v1/customers/tasks", assignRequest{Name: "acme", IDs: []string{"t3"}})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, []string{"t3"}, backend.assigned["acme"])
}

func TestTaskDrillDown(t *testing.T) {
	backend, ts := newCustomerServer(t)

	resp := send(t, ts, http.MethodGet, "/api/v1/tasks/detail?task=t1", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	detail := decode[models.TaskDetail](t, resp)
	assert.InDelta(t, 50.0, detail.TriggerRate, 0.001)
	assert.Len(t, detail.Templates, 1)

	resp = send(t, ts, http.MethodGet, "/api/v1/tasks/logs?task=t1&page=2&result=failed&clicked=true&rows=50", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	page := decode[models.LogPage](t, resp)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, models.ResultFailed, backend.lastQuery.ResultType)
	assert.True(t, backend.lastQuery.OnlyClicked)
	assert.Equal(t, 50, backend.lastQuery.RowsPerPage)

	resp = send(t, ts, http.MethodGet, "/api/v1/tasks/logs?task=t1&rows=7", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = send(t, ts, http.MethodGet, "/api/v1/tasks/logs", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = send(t, ts, http.MethodPost, "/api/v1/tasks/logs.csv", downloadRequest{Task: "t1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/csv")
	assert.Contains(t, resp.Header.Get("Content-Disposition"), "sendlog_t1_")
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "uuid\nr1\n", string(raw))
}

func TestCustomerRoutesNeedService(t *testing.T) {
	env := newTestEnv(t, config.ConsoleConfig{})
	resp := env.do(t, http.MethodGet, "/api/v1/customers", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
