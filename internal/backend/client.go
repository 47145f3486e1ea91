package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/config"
	"sendwatch/internal/metrics"
	"sendwatch/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

const maxResponseBytes = 32 << 20

// TokenSource supplies the bearer token of the current operator session.
type TokenSource interface {
	Token() string
}

// Client calls the send-task backend REST API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	tokens     TokenSource
	logger     zerolog.Logger
}

// NewClient constructs a client from backend config.
func NewClient(cfg config.BackendConfig, logger *zerolog.Logger) *Client {
	limit := rate.Inf
	burst := 1
	if cfg.RateLimit.RPS > 0 {
		limit = rate.Limit(cfg.RateLimit.RPS)
		burst = cfg.RateLimit.Burst
		if burst < 1 {
			burst = 1
		}
	}

	l := zerolog.Nop()
	if logger != nil {
		l = logger.With().Str("component", "backend").Logger()
	}

	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		logger:     l,
	}
}

// UseTokenSource configures where the bearer token is read from.
func (c *Client) UseTokenSource(ts TokenSource) {
	c.tokens = ts
}

// envelope is the common top-level shape of backend responses.
type envelope struct {
	Status  string          `json:"status"`
	Message string          `json:"message"`
	Msg     string          `json:"msg"`
	Data    json.RawMessage `json:"data"`
}

func (e envelope) message() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Msg
}

type wireUser struct {
	ID       string   `json:"id"`
	AcctUUID string   `json:"acct_uuid"`
	Email    string   `json:"email"`
	Name     string   `json:"name"`
	Role     string   `json:"role"`
	Orgs     []string `json:"orgs"`
}

func (u wireUser) operator() models.Operator {
	orgs := u.Orgs
	if orgs == nil {
		orgs = []string{}
	}
	id := u.AcctUUID
	if id == "" {
		id = u.ID
	}
	return models.Operator{ID: id, Email: u.Email, Name: u.Name, Role: u.Role, Orgs: orgs}
}

// Login exchanges credentials for an access token and operator identity.
func (c *Client) Login(ctx context.Context, email, password string) (string, *models.Operator, error) {
	const op = "login"
	body := map[string]string{"email": email, "password": password}

	var resp struct {
		AccessToken string    `json:"accessToken"`
		User        *wireUser `json:"user"`
	}
	if err := c.doPost(ctx, op, "/api/auth/login", body, strict, &resp); err != nil {
		return "", nil, err
	}
	if resp.AccessToken == "" || resp.User == nil {
		return "", nil, apperr.Application(op, "login response is missing token or user")
	}
	operator := resp.User.operator()
	return resp.AccessToken, &operator, nil
}

// Profile resolves the operator behind token.
func (c *Client) Profile(ctx context.Context, token string) (*models.Operator, error) {
	const op = "profile"
	req, err := c.newRequest(ctx, http.MethodGet, "/api/auth/profile", nil)
	if err != nil {
		return nil, apperr.Classify(ctx, op, err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	var resp struct {
		User *wireUser `json:"user"`
	}
	if err := c.do(ctx, op, req, lenient, &resp); err != nil {
		return nil, err
	}
	if resp.User == nil {
		return nil, apperr.New(apperr.KindUnauthenticated, op, "user data not found")
	}
	operator := resp.User.operator()
	return &operator, nil
}

// ListTasks returns the tasks visible to orgs. An empty list is valid.
func (c *Client) ListTasks(ctx context.Context, orgs []string) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.doData(ctx, "get_sendtasks", "/api/get_sendtasks", orgsBody(orgs), &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

// GetStatistics returns statistics for ids. Unknown ids are simply absent.
func (c *Client) GetStatistics(ctx context.Context, ids []string) ([]models.TaskStatistics, error) {
	var stats []models.TaskStatistics
	if err := c.doData(ctx, "get_sendlog_stats", "/api/get_sendlog_stats", uuidsBody(ids), &stats); err != nil {
		return nil, err
	}
	return stats, nil
}

// RefreshStatistics asks the backend to recompute statistics for ids and
// returns the per-id changed/unchanged status.
func (c *Client) RefreshStatistics(ctx context.Context, ids []string) (map[string]string, error) {
	var resp struct {
		Status map[string]string `json:"sendlog_stats_status"`
	}
	if err := c.doPost(ctx, "refresh_sendlog_stats", "/api/refresh_sendlog_stats", uuidsBody(ids), lenient, &resp); err != nil {
		return nil, err
	}
	if resp.Status == nil {
		resp.Status = map[string]string{}
	}
	return resp.Status, nil
}

// CheckTasks reconciles the upstream task set and reports the drift.
func (c *Client) CheckTasks(ctx context.Context, orgs []string) (*models.TaskDiff, error) {
	var diff models.TaskDiff
	if err := c.doData(ctx, "check_sendtasks", "/api/check_sendtasks", orgsBody(orgs), &diff); err != nil {
		return nil, err
	}
	return &diff, nil
}

// RefreshTodayCreated recomputes statistics of tasks created today.
func (c *Client) RefreshTodayCreated(ctx context.Context, orgs []string) (map[string]string, error) {
	var status map[string]string
	if err := c.doData(ctx, "refresh_today_create_task", "/api/refresh_today_create_task", orgsBody(orgs), &status); err != nil {
		return nil, err
	}
	if status == nil {
		status = map[string]string{}
	}
	return status, nil
}

func orgsBody(orgs []string) any {
	if orgs == nil {
		orgs = []string{}
	}
	return map[string][]string{"orgs": orgs}
}

func uuidsBody(ids []string) any {
	if ids == nil {
		ids = []string{}
	}
	return map[string][]string{"sendtask_uuids": ids}
}

type statusPolicy int

const (
	// strict requires status == "success".
	strict statusPolicy = iota
	// lenient accepts a response without a status field.
	lenient
)

// doData posts body and decodes the envelope's data field into out.
func (c *Client) doData(ctx context.Context, op, path string, body, out any) error {
	var env envelope
	if err := c.doPost(ctx, op, path, body, strict, &env); err != nil {
		return err
	}
	if len(env.Data) == 0 || bytes.Equal(env.Data, []byte("null")) {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return apperr.Wrap(apperr.KindTransport, op, err, "decode response data")
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, op, path string, body any, policy statusPolicy, out any) error {
	data, err := jsonBody(body)
	if err != nil {
		return apperr.Wrap(apperr.KindUnknown, op, err, "encode request")
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, data)
	if err != nil {
		return apperr.Classify(ctx, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.addHeaders(req)
	return c.do(ctx, op, req, policy, out)
}

func jsonBody(v any) (io.Reader, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	return req, nil
}

func (c *Client) do(ctx context.Context, op string, req *http.Request, policy statusPolicy, out any) (err error) {
	defer c.observe(op, time.Now(), &err)

	raw, _, err := c.roundTrip(ctx, op, req)
	if err != nil {
		return err
	}
	return decodeEnvelope(op, raw, policy, out)
}

// doRaw returns the response body as is. A JSON body is still checked for a
// failure envelope.
func (c *Client) doRaw(ctx context.Context, op string, req *http.Request) (raw []byte, err error) {
	defer c.observe(op, time.Now(), &err)

	raw, header, err := c.roundTrip(ctx, op, req)
	if err != nil {
		return nil, err
	}
	if strings.HasPrefix(header.Get("Content-Type"), "application/json") {
		if err := decodeEnvelope(op, raw, strict, nil); err != nil {
			return nil, err
		}
	}
	return raw, nil
}

func (c *Client) observe(op string, start time.Time, errp *error) {
	err := *errp
	outcome := "ok"
	if err != nil {
		outcome = string(apperr.KindOf(err))
	}
	metrics.ObserveBackend(op, outcome, time.Since(start))
	if err != nil && !apperr.Silent(err) {
		c.logger.Warn().Err(err).Str("op", op).Dur("elapsed", time.Since(start)).Msg("backend request failed")
	}
}

func (c *Client) roundTrip(ctx context.Context, op string, req *http.Request) ([]byte, http.Header, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, apperr.Classify(ctx, op, err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, nil, apperr.Classify(ctx, op, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, nil, apperr.Classify(ctx, op, err)
	}

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, nil, apperr.New(apperr.KindUnauthenticated, op, fmt.Sprintf("http %d", resp.StatusCode))
	}
	if resp.StatusCode >= 400 {
		return nil, nil, apperr.Transport(op, fmt.Errorf("http %d", resp.StatusCode))
	}
	return raw, resp.Header, nil
}

func decodeEnvelope(op string, raw []byte, policy statusPolicy, out any) error {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return apperr.Wrap(apperr.KindTransport, op, err, "decode response")
	}
	if env.Status != models.StatusSuccess && (policy == strict || env.Status != "") {
		return apperr.Application(op, env.message())
	}

	if out == nil {
		return nil
	}
	if e, ok := out.(*envelope); ok {
		*e = env
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return apperr.Wrap(apperr.KindTransport, op, err, "decode response")
	}
	return nil
}

func (c *Client) addHeaders(req *http.Request) {
	if c.tokens == nil {
		return
	}
	if token := c.tokens.Token(); token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
