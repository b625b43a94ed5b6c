package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/integration"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Producer is the posting side used by producer tasks.
type Producer interface {
	PostInvoicePayment(ctx context.Context, tenant shared.Tenant, evt integration.InvoicePaymentReceived) (journals.JournalEntry, error)
	PostPayrollRun(ctx context.Context, tenant shared.Tenant, evt integration.PayrollRunCompleted) (journals.JournalEntry, error)
}

// ProducerJob handles the producer task types.
type ProducerJob struct {
	producer Producer
	logger   *slog.Logger
	metrics  *jobmetrics.Metrics
}

// NewProducerJob constructs the producer task handlers.
func NewProducerJob(producer Producer, logger *slog.Logger, metrics *jobmetrics.Metrics) *ProducerJob {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProducerJob{producer: producer, logger: logger, metrics: metrics}
}

// HandleInvoicePayment processes TaskPostInvoicePayment.
func (j *ProducerJob) HandleInvoicePayment(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.metrics.Track(TaskPostInvoicePayment)
	defer func() { err = tracker.End(err) }()

	var payload InvoicePaymentPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tenant, err := shared.ParseTenant(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	entry, err := j.producer.PostInvoicePayment(ctx, tenant, payload.Event)
	if err != nil {
		return j.classify(TaskPostInvoicePayment, tenant, err)
	}
	j.logger.Info("invoice payment posted", slog.String("tenant", tenant.String()),
		slog.String("payment_id", payload.Event.PaymentID), slog.Int64("entry_id", entry.ID))
	return nil
}

// HandlePayrollRun processes TaskPostPayrollRun.
func (j *ProducerJob) HandlePayrollRun(ctx context.Context, t *asynq.Task) (err error) {
	tracker := j.metrics.Track(TaskPostPayrollRun)
	defer func() { err = tracker.End(err) }()

	var payload PayrollRunPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode payload: %v: %w", err, asynq.SkipRetry)
	}
	tenant, err := shared.ParseTenant(payload.TenantID)
	if err != nil {
		return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
	}
	entry, err := j.producer.PostPayrollRun(ctx, tenant, payload.Event)
	if err != nil {
		return j.classify(TaskPostPayrollRun, tenant, err)
	}
	j.logger.Info("payroll run posted", slog.String("tenant", tenant.String()),
		slog.String("run_id", payload.Event.RunID), slog.Int64("entry_id", entry.ID))
	return nil
}

// classify lets asynq retry concurrency and infrastructure failures only.
func (j *ProducerJob) classify(task string, tenant shared.Tenant, err error) error {
	var missing *shared.MissingAccountsError
	if errors.As(err, &missing) {
		j.logger.Error("ledger posting blocked by missing accounts", slog.String("task", task),
			slog.String("tenant", tenant.String()), slog.Any("codes", missing.Codes))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	}
	switch {
	case errors.Is(err, shared.ErrConcurrency):
		return err
	case errors.Is(err, shared.ErrValidation), errors.Is(err, shared.ErrPrecondition),
		errors.Is(err, shared.ErrConflict), errors.Is(err, shared.ErrNotFound):
		j.logger.Error("ledger posting rejected", slog.String("task", task),
			slog.String("tenant", tenant.String()), slog.Any("error", err))
		return fmt.Errorf("%w: %w", err, asynq.SkipRetry)
	default:
		return err
	}
}
