package jobs

import (
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIntegrityCheck compares materialized balances with posted lines.
	TaskIntegrityCheck = "ledger:integrity_check"
	// TaskPostInvoicePayment posts an invoice payment through the producers.
	TaskPostInvoicePayment = "ledger:post_invoice_payment"
	// TaskPostPayrollRun posts a completed payroll run through the producers.
	TaskPostPayrollRun = "ledger:post_payroll_run"
)

// IntegrityCheckPayload optionally narrows the check to one tenant.
type IntegrityCheckPayload struct {
	TenantID string `json:"tenant_id,omitempty"`
}

// InvoicePaymentPayload carries an invoice payment event for a tenant.
type InvoicePaymentPayload struct {
	TenantID string                             `json:"tenant_id"`
	Event    integration.InvoicePaymentReceived `json:"event"`
}

// PayrollRunPayload carries a payroll run event for a tenant.
type PayrollRunPayload struct {
	TenantID string                          `json:"tenant_id"`
	Event    integration.PayrollRunCompleted `json:"event"`
}

// NewIntegrityCheckTask builds the integrity task. An empty tenant checks every tenant.
func NewIntegrityCheckTask(tenantID string) (*asynq.Task, error) {
	data, err := json.Marshal(IntegrityCheckPayload{TenantID: tenantID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIntegrityCheck, data), nil
}

// NewPostInvoicePaymentTask builds a producer task keyed by payment id.
func NewPostInvoicePaymentTask(tenant shared.Tenant, evt integration.InvoicePaymentReceived) (*asynq.Task, error) {
	if err := tenant.Require(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(InvoicePaymentPayload{TenantID: tenant.String(), Event: evt})
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s:%s:%s", integration.SourceInvoicePayment, tenant, evt.PaymentID)
	return asynq.NewTask(TaskPostInvoicePayment, data, asynq.TaskID(id)), nil
}

// NewPostPayrollRunTask builds a producer task keyed by run id.
func NewPostPayrollRunTask(tenant shared.Tenant, evt integration.PayrollRunCompleted) (*asynq.Task, error) {
	if err := tenant.Require(); err != nil {
		return nil, err
	}
	data, err := json.Marshal(PayrollRunPayload{TenantID: tenant.String(), Event: evt})
	if err != nil {
		return nil, err
	}
	id := fmt.Sprintf("%s:%s:%s", integration.SourcePayroll, tenant, evt.RunID)
	return asynq.NewTask(TaskPostPayrollRun, data, asynq.TaskID(id)), nil
}
