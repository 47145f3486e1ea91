// Package customers manages the end-customer accounts of an operator and the
// per-task send-log drill-down those customers are shown.
package customers

import (
	"context"
	"strings"
	"time"

	"sendwatch/internal/apperr"
	"sendwatch/internal/lifecycle"
	"sendwatch/internal/models"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

const (
	opCreate   = "create customer"
	opDelete   = "delete customers"
	opPassword = "update customer password"
	opAssign   = "assign customer tasks"
	opTasks    = "customer tasks"
	opLogs     = "send log"
	opDetail   = "task detail"
	opDownload = "download send log"
)

// PromptDeleteCustomers is asked before customer accounts are removed.
const PromptDeleteCustomers = "Delete the selected customer accounts? This cannot be undone."

// Backend is the part of the backend API the service calls.
type Backend interface {
	Customers(ctx context.Context, acctUUID string) ([]models.Customer, error)
	CreateCustomer(ctx context.Context, acctUUID string, in models.NewCustomer) (string, error)
	DeleteCustomers(ctx context.Context, names []string) error
	UpdateCustomerPassword(ctx context.Context, name, oldPassword, newPassword string) error
	UpdateCustomerTasks(ctx context.Context, name string, ids []string) error
	CustomerTasks(ctx context.Context, ids []string) ([]models.Task, error)
	GetStatistics(ctx context.Context, ids []string) ([]models.TaskStatistics, error)
	SendLogDetail(ctx context.Context, taskUUID string, q models.LogQuery) (*models.LogPage, error)
	MailTemplates(ctx context.Context) ([]models.MailTemplate, error)
	DownloadSendLogCSV(ctx context.Context, taskUUID string, selected []string, q models.LogQuery) ([]byte, error)
}

// AccountProvider resolves the account id of the logged-in operator.
type AccountProvider interface {
	AccountID(ctx context.Context) (string, error)
}

// Confirmer is the yes/no gate in front of destructive actions.
type Confirmer interface {
	Confirm(ctx context.Context, prompt string) (bool, error)
}

type Service struct {
	backend  Backend
	accounts AccountProvider
	list     *lifecycle.Guard
	logs     *lifecycle.Guard
	logger   zerolog.Logger
}

// Option configures optional collaborators.
type Option func(*Service)

func WithLogger(l *zerolog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l.With().Str("component", "customers").Logger()
		}
	}
}

func New(backend Backend, accounts AccountProvider, opts ...Option) *Service {
	s := &Service{
		backend:  backend,
		accounts: accounts,
		list:     lifecycle.NewGuard("customers"),
		logs:     lifecycle.NewGuard("send_log"),
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// List returns the operator's customer accounts. A newer call supersedes an
// older one still in flight.
func (s *Service) List(ctx context.Context) ([]models.Customer, error) {
	acct, err := s.accounts.AccountID(ctx)
	if err != nil {
		return nil, err
	}

	h := s.list.Begin(ctx)
	customers, err := s.backend.Customers(h.Context(), acct)
	if err != nil {
		err = apperr.Classify(h.Context(), "customers", err)
		h.Retire()
		return nil, err
	}
	if !s.list.Commit(h, nil) {
		return nil, apperr.Cancelled("customers", nil)
	}
	return customers, nil
}

// Create validates in and creates the account. It returns the stored name.
func (s *Service) Create(ctx context.Context, in models.NewCustomer) (string, error) {
	in = in.Normalize()
	switch {
	case in.Name == "":
		return "", apperr.New(apperr.KindEmptyInput, opCreate, "customer name is required")
	case in.FullName == "":
		return "", apperr.New(apperr.KindEmptyInput, opCreate, "customer full name is required")
	case in.Password == "":
		return "", apperr.New(apperr.KindEmptyInput, opCreate, "password is required")
	}

	acct, err := s.accounts.AccountID(ctx)
	if err != nil {
		return "", err
	}
	name, err := s.backend.CreateCustomer(ctx, acct, in)
	if err != nil {
		return "", apperr.Classify(ctx, opCreate, err)
	}
	s.logger.Info().Str("customer", name).Msg("customer created")
	return name, nil
}

// Delete removes customer accounts after confirmation.
func (s *Service) Delete(ctx context.Context, names []string, confirm Confirmer) error {
	names = dedupe(names)
	if len(names) == 0 {
		return apperr.New(apperr.KindEmptyInput, opDelete, "no customers selected")
	}
	if confirm == nil {
		return apperr.ErrDeclined
	}
	ok, err := confirm.Confirm(ctx, PromptDeleteCustomers)
	if err != nil {
		return apperr.Classify(ctx, opDelete, err)
	}
	if !ok {
		return apperr.ErrDeclined
	}

	if err := s.backend.DeleteCustomers(ctx, names); err != nil {
		return apperr.Classify(ctx, opDelete, err)
	}
	s.logger.Info().Strs("customers", names).Msg("customers deleted")
	return nil
}

// UpdatePassword changes a customer's password.
func (s *Service) UpdatePassword(ctx context.Context, name, oldPassword, newPassword string) error {
	name = strings.TrimSpace(name)
	switch {
	case name == "":
		return apperr.New(apperr.KindEmptyInput, opPassword, "customer name is required")
	case oldPassword == "" || newPassword == "":
		return apperr.New(apperr.KindEmptyInput, opPassword, "old and new password are required")
	case oldPassword == newPassword:
		return apperr.Invalid(opPassword, "new password must differ from the old one")
	}

	if err := s.backend.UpdateCustomerPassword(ctx, name, oldPassword, newPassword); err != nil {
		return apperr.Classify(ctx, opPassword, err)
	}
	return nil
}

// AssignTasks replaces the tasks a customer may see. An empty list revokes
// every task.
func (s *Service) AssignTasks(ctx context.Context, name string, ids []string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return apperr.New(apperr.KindEmptyInput, opAssign, "customer name is required")
	}
	ids = dedupe(ids)
	if err := s.backend.UpdateCustomerTasks(ctx, name, ids); err != nil {
		return apperr.Classify(ctx, opAssign, err)
	}
	s.logger.Info().Str("customer", name).Int("tasks", len(ids)).Msg("customer tasks assigned")
	return nil
}

// Tasks joins the tasks behind ids with their statistics, in task order.
func (s *Service) Tasks(ctx context.Context, ids []string) ([]models.CustomerTask, error) {
	ids = dedupe(ids)
	if len(ids) == 0 {
		return []models.CustomerTask{}, nil
	}

	var (
		tasks []models.Task
		stats []models.TaskStatistics
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tasks, err = s.backend.CustomerTasks(gctx, ids)
		return err
	})
	g.Go(func() error {
		var err error
		stats, err = s.backend.GetStatistics(gctx, ids)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Classify(ctx, opTasks, err)
	}

	byID := make(map[string]models.TaskStatistics, len(stats))
	for _, st := range stats {
		byID[st.TaskUUID] = st
	}

	out := make([]models.CustomerTask, 0, len(tasks))
	for _, t := range tasks {
		row := models.CustomerTask{Task: t, End: t.EffectiveEnd(), Progress: models.ProgressPending}
		if st, ok := byID[t.UUID]; ok {
			st := st
			row.Stats = &st
			row.Failed = st.Failed()
			row.TodayFailed = st.TodayFailed()
			row.Progress = st.Progress()
		}
		out = append(out, row)
	}
	return out, nil
}

// Logs returns one page of a task's send log. A newer call supersedes an
// older one still in flight.
func (s *Service) Logs(ctx context.Context, taskUUID string, q models.LogQuery) (*models.LogPage, error) {
	taskUUID = strings.TrimSpace(taskUUID)
	if taskUUID == "" {
		return nil, apperr.New(apperr.KindEmptyInput, opLogs, "task id is required")
	}
	q, err := q.Normalize()
	if err != nil {
		return nil, apperr.Invalid(opLogs, err.Error())
	}

	h := s.logs.Begin(ctx)
	page, err := s.backend.SendLogDetail(h.Context(), taskUUID, q)
	if err != nil {
		err = apperr.Classify(h.Context(), opLogs, err)
		h.Retire()
		return nil, err
	}
	if !s.logs.Commit(h, nil) {
		return nil, apperr.Cancelled(opLogs, nil)
	}
	return page, nil
}

// Detail loads the header of a task drill-down: its statistics, trigger
// rate and the templates its log refers to.
func (s *Service) Detail(ctx context.Context, taskUUID string) (*models.TaskDetail, error) {
	taskUUID = strings.TrimSpace(taskUUID)
	if taskUUID == "" {
		return nil, apperr.New(apperr.KindEmptyInput, opDetail, "task id is required")
	}

	var (
		stats     []models.TaskStatistics
		templates []models.MailTemplate
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		stats, err = s.backend.GetStatistics(gctx, []string{taskUUID})
		return err
	})
	g.Go(func() error {
		var err error
		templates, err = s.backend.MailTemplates(gctx)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, apperr.Classify(ctx, opDetail, err)
	}

	detail := &models.TaskDetail{TaskUUID: taskUUID, Templates: templates}
	for _, st := range stats {
		if st.TaskUUID == taskUUID {
			st := st
			detail.Stats = &st
			detail.TriggerRate = st.TriggerRate()
			break
		}
	}
	return detail, nil
}

// DownloadCSV exports a task's send log. Selected rows win over the query
// filter when given.
func (s *Service) DownloadCSV(ctx context.Context, taskUUID string, selected []string, q models.LogQuery) ([]byte, error) {
	taskUUID = strings.TrimSpace(taskUUID)
	if taskUUID == "" {
		return nil, apperr.New(apperr.KindEmptyInput, opDownload, "task id is required")
	}
	q, err := q.Normalize()
	if err != nil {
		return nil, apperr.Invalid(opDownload, err.Error())
	}

	data, err := s.backend.DownloadSendLogCSV(ctx, taskUUID, dedupe(selected), q)
	if err != nil {
		return nil, apperr.Classify(ctx, opDownload, err)
	}
	s.logger.Debug().Str("task", taskUUID).Int("bytes", len(data)).Msg("send log exported")
	return data, nil
}

// FileName is the download name of a task's send-log export.
func FileName(taskUUID string, now time.Time) string {
	return "sendlog_" + taskUUID + "_" + now.Format("20060102_150405") + ".csv"
}

// Teardown aborts in-flight list and log requests.
func (s *Service) Teardown() {
	s.list.Teardown()
	s.logs.Teardown()
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
