package backend

import (
	"context"
	"net/http"

	"sendwatch/internal/apperr"
	"sendwatch/internal/models"
)

// Customers lists the customer accounts owned by an operator account.
func (c *Client) Customers(ctx context.Context, acctUUID string) ([]models.Customer, error) {
	var customers []models.Customer
	body := map[string]string{"acct_uuid": acctUUID}
	if err := c.doData(ctx, "get_customers", "/api/get_customers", body, &customers); err != nil {
		return nil, err
	}
	if customers == nil {
		customers = []models.Customer{}
	}
	return customers, nil
}

// CreateCustomer creates a customer account under acctUUID and returns the
// name the backend stored it as.
func (c *Client) CreateCustomer(ctx context.Context, acctUUID string, in models.NewCustomer) (string, error) {
	body := map[string]string{
		"customer_name":      in.Name,
		"customer_full_name": in.FullName,
		"password":           in.Password,
		"acct_uuid":          acctUUID,
	}
	var resp struct {
		Name string `json:"customer_name"`
	}
	if err := c.doPost(ctx, "create_customer", "/api/create_customer", body, strict, &resp); err != nil {
		return "", err
	}
	if resp.Name == "" {
		resp.Name = in.Name
	}
	return resp.Name, nil
}

// DeleteCustomers removes customer accounts by name.
func (c *Client) DeleteCustomers(ctx context.Context, names []string) error {
	body := map[string][]string{"del_customer_names": names}
	return c.doPost(ctx, "delete_customer", "/api/delete_customer", body, strict, nil)
}

// UpdateCustomerPassword changes a customer's password. The backend verifies
// the old one.
func (c *Client) UpdateCustomerPassword(ctx context.Context, name, oldPassword, newPassword string) error {
	body := map[string]string{
		"customer_name": name,
		"old_password":  oldPassword,
		"new_password":  newPassword,
	}
	return c.doPost(ctx, "update_customer_password", "/api/update_customer_password", body, strict, nil)
}

// UpdateCustomerTasks sets the send tasks a customer may see.
func (c *Client) UpdateCustomerTasks(ctx context.Context, name string, ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	body := map[string]any{"customer_name": name, "sendtask_uuids": ids}
	return c.doPost(ctx, "update_customer_sendtasks", "/api/update_customer_sendtasks", body, strict, nil)
}

// CustomerTasks returns the tasks behind ids without an organization scope.
func (c *Client) CustomerTasks(ctx context.Context, ids []string) ([]models.Task, error) {
	var tasks []models.Task
	if err := c.doData(ctx, "customer_get_sendtasks", "/api/customer_get_sendtasks", uuidsBody(ids), &tasks); err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	return tasks, nil
}

type sendLogRequest struct {
	TaskUUID string `json:"sendtask_uuid"`
	models.LogQuery
}

type downloadRequest struct {
	sendLogRequest
	Selected []string `json:"selected_uuids"`
}

// SendLogDetail returns one page of a task's send log.
func (c *Client) SendLogDetail(ctx context.Context, taskUUID string, q models.LogQuery) (*models.LogPage, error) {
	var resp struct {
		Data  []models.SendLog `json:"data"`
		Total int              `json:"total_count"`
	}
	body := sendLogRequest{TaskUUID: taskUUID, LogQuery: q}
	if err := c.doPost(ctx, "get_sendlog_detail", "/api/get_sendlog_detail", body, strict, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []models.SendLog{}
	}
	return &models.LogPage{Logs: resp.Data, Total: resp.Total, Page: q.Page, Rows: q.RowsPerPage}, nil
}

// MailTemplates lists the message templates referenced by send logs.
func (c *Client) MailTemplates(ctx context.Context) ([]models.MailTemplate, error) {
	const op = "get_mtmpl"
	req, err := c.newRequest(ctx, http.MethodGet, "/api/get_mtmpl", nil)
	if err != nil {
		return nil, apperr.Classify(ctx, op, err)
	}
	c.addHeaders(req)

	var resp struct {
		Data []models.MailTemplate `json:"data"`
	}
	if err := c.do(ctx, op, req, strict, &resp); err != nil {
		return nil, err
	}
	if resp.Data == nil {
		resp.Data = []models.MailTemplate{}
	}
	return resp.Data, nil
}

// DownloadSendLogCSV exports a task's send log as CSV. An empty selection
// exports every row matching q.
func (c *Client) DownloadSendLogCSV(ctx context.Context, taskUUID string, selected []string, q models.LogQuery) ([]byte, error) {
	const op = "download_sendlog_csv"
	if selected == nil {
		selected = []string{}
	}
	body := downloadRequest{sendLogRequest: sendLogRequest{TaskUUID: taskUUID, LogQuery: q}, Selected: selected}

	data, err := jsonBody(body)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindUnknown, op, err, "encode request")
	}
	req, err := c.newRequest(ctx, http.MethodPost, "/api/download_sendlog_csv", data)
	if err != nil {
		return nil, apperr.Classify(ctx, op, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "text/csv, application/json")
	c.addHeaders(req)
	return c.doRaw(ctx, op, req)
}
