package journals

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// AuditPort records ledger events for compliance.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// LedgerObserver is told when a committed transaction changed balances.
type LedgerObserver interface {
	LedgerChanged(ctx context.Context, tenant shared.Tenant) error
}

// MetricsRecorder receives ledger counters.
type MetricsRecorder interface {
	ObserveJournal(status string)
	ObserveValidationFailure(reason string)
	ObserveBalanceConflict()
}

// Service is the ledger writer.
type Service struct {
	repo       Repository
	validator  *Validator
	aggregator *balances.Aggregator
	audit      AuditPort
	observers  []LedgerObserver
	metrics    MetricsRecorder
	logger     *slog.Logger
	now        func() time.Time
}

// NewService constructs the ledger writer. audit may be nil.
func NewService(repo Repository, validator *Validator, aggregator *balances.Aggregator, audit AuditPort, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, validator: validator, aggregator: aggregator, audit: audit, logger: logger, now: time.Now}
}

// WithNow overrides the clock for testing.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// WithMetrics attaches Prometheus counters.
func (s *Service) WithMetrics(m MetricsRecorder) {
	s.metrics = m
}

// AddObserver registers a post-commit listener for balance changes.
func (s *Service) AddObserver(o LedgerObserver) {
	if o != nil {
		s.observers = append(s.observers, o)
	}
}

// CreateJournalEntry validates and stores a new entry. Posted entries update
// account balances in the same transaction.
func (s *Service) CreateJournalEntry(ctx context.Context, tenant shared.Tenant, in CreateInput) (JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return JournalEntry{}, err
	}
	in, err := normalizeHeader(in)
	if err != nil {
		s.rejected(err)
		return JournalEntry{}, err
	}
	res, err := s.validator.Validate(ctx, tenant, in.Lines)
	if err != nil {
		s.rejected(err)
		return JournalEntry{}, err
	}
	in.Lines = res.Lines

	var entry JournalEntry
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		inserted, err := tx.InsertJournalEntry(ctx, tenant, in)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, tenant, inserted.ID, in.Lines); err != nil {
			return err
		}
		if in.Status == StatusPosted {
			if err := s.aggregator.ApplyPosting(ctx, tx, tenant, inserted.ID); err != nil {
				return err
			}
		}
		entry, err = tx.GetJournalWithLines(ctx, tenant, inserted.ID)
		return err
	})
	if err != nil {
		s.failed(err)
		return JournalEntry{}, err
	}
	s.committed(ctx, tenant, entry, "journal.create", actorOf(in.CreatedBy), map[string]any{
		"status":    string(entry.Status),
		"source":    entry.Source,
		"source_id": entry.SourceID,
		"reference": entry.Reference,
	})
	return entry, nil
}

// PostJournal moves a draft to posted and aggregates it exactly once. A second
// attempt fails with ErrAlreadyPosted.
func (s *Service) PostJournal(ctx context.Context, tenant shared.Tenant, id int64, in PostInput) (JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetJournalWithLines(ctx, tenant, id)
		if err != nil {
			return err
		}
		if current.Status == StatusPosted {
			return acctshared.ErrAlreadyPosted
		}
		if err := tx.MarkPosted(ctx, tenant, id, in.ApprovedBy, s.now().UTC()); err != nil {
			return err
		}
		if err := s.aggregator.ApplyPosting(ctx, tx, tenant, id); err != nil {
			return err
		}
		entry, err = tx.GetJournalWithLines(ctx, tenant, id)
		return err
	})
	if err != nil {
		s.failed(err)
		return JournalEntry{}, err
	}
	s.committed(ctx, tenant, entry, "journal.post", actorOf(in.ApprovedBy), nil)
	return entry, nil
}

// ReverseJournal posts a new entry that offsets a posted one. The original is
// left untouched; a second reversal hits the source idempotency key.
func (s *Service) ReverseJournal(ctx context.Context, tenant shared.Tenant, id int64, in ReverseInput) (JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return JournalEntry{}, err
	}
	var reversal JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		original, err := tx.GetJournalWithLines(ctx, tenant, id)
		if err != nil {
			return err
		}
		if original.Status != StatusPosted {
			return fmt.Errorf("%w: only posted entries can be reversed", acctshared.ErrInvalidStatus)
		}
		create := reversalOf(original, in)
		res, err := CheckLines(create.Lines)
		if err != nil {
			return err
		}
		create.Lines = res.Lines
		inserted, err := tx.InsertJournalEntry(ctx, tenant, create)
		if err != nil {
			return err
		}
		if err := tx.InsertJournalLines(ctx, tenant, inserted.ID, create.Lines); err != nil {
			return err
		}
		if err := s.aggregator.ApplyPosting(ctx, tx, tenant, inserted.ID); err != nil {
			return err
		}
		reversal, err = tx.GetJournalWithLines(ctx, tenant, inserted.ID)
		return err
	})
	if err != nil {
		s.failed(err)
		return JournalEntry{}, err
	}
	s.committed(ctx, tenant, reversal, "journal.reverse", actorOf(in.CreatedBy), map[string]any{
		"reversed_id": id,
	})
	return reversal, nil
}

// FindBySource returns the entry linked to an origin document.
func (s *Service) FindBySource(ctx context.Context, tenant shared.Tenant, source, sourceID string) (JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return JournalEntry{}, err
	}
	var entry JournalEntry
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		entry, err = tx.FindBySource(ctx, tenant, source, sourceID)
		return err
	})
	return entry, err
}

// Get returns an entry with its lines.
func (s *Service) Get(ctx context.Context, tenant shared.Tenant, id int64) (JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return JournalEntry{}, err
	}
	return s.repo.Get(ctx, tenant, id)
}

// List returns entry headers matching the filter, newest first.
func (s *Service) List(ctx context.Context, tenant shared.Tenant, filter ListFilter) ([]JournalEntry, error) {
	if err := tenant.Require(); err != nil {
		return nil, err
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", acctshared.ErrInvalidEntry, filter.Status)
	}
	if filter.From != nil && filter.To != nil && filter.To.Before(*filter.From) {
		return nil, fmt.Errorf("%w: date range is inverted", acctshared.ErrInvalidEntry)
	}
	filter.Page = shared.NewPage(filter.Page.Limit, filter.Page.Offset)
	return s.repo.List(ctx, tenant, filter)
}

func (s *Service) committed(ctx context.Context, tenant shared.Tenant, entry JournalEntry, action string, actor int64, meta map[string]any) {
	if s.metrics != nil {
		s.metrics.ObserveJournal(string(entry.Status))
	}
	if entry.Status == StatusPosted {
		for _, o := range s.observers {
			if err := o.LedgerChanged(ctx, tenant); err != nil {
				s.logger.Warn("ledger observer", slog.String("tenant", tenant.String()), slog.Any("error", err))
			}
		}
	}
	if s.audit == nil {
		return
	}
	if meta == nil {
		meta = map[string]any{}
	}
	debit, _ := entry.Totals()
	meta["total"] = debit.StringFixed(2)
	if err := s.audit.Record(ctx, shared.AuditLog{
		Tenant:   tenant,
		ActorID:  actor,
		Action:   action,
		Entity:   "journal_entry",
		EntityID: strconv.FormatInt(entry.ID, 10),
		Meta:     meta,
		At:       s.now(),
	}); err != nil {
		s.logger.Warn("audit journal", slog.String("action", action), slog.Int64("entry_id", entry.ID), slog.Any("error", err))
	}
}

func (s *Service) rejected(err error) {
	if s.metrics != nil {
		s.metrics.ObserveValidationFailure(rejectionReason(err))
	}
}

func (s *Service) failed(err error) {
	if s.metrics != nil && errors.Is(err, shared.ErrConcurrency) {
		s.metrics.ObserveBalanceConflict()
	}
}

func normalizeHeader(in CreateInput) (CreateInput, error) {
	in.Reference = strings.TrimSpace(in.Reference)
	in.Description = strings.TrimSpace(in.Description)
	in.Source = strings.TrimSpace(in.Source)
	in.SourceID = strings.TrimSpace(in.SourceID)
	in.Status = Status(strings.ToLower(strings.TrimSpace(string(in.Status))))
	if !in.Status.Valid() {
		return CreateInput{}, fmt.Errorf("%w: status must be draft or posted", acctshared.ErrInvalidEntry)
	}
	if in.EntryDate.IsZero() {
		return CreateInput{}, fmt.Errorf("%w: entry date required", acctshared.ErrInvalidEntry)
	}
	in.EntryDate = time.Date(in.EntryDate.Year(), in.EntryDate.Month(), in.EntryDate.Day(), 0, 0, 0, 0, time.UTC)
	return in, nil
}

func reversalOf(original JournalEntry, in ReverseInput) CreateInput {
	date := original.EntryDate
	if !in.EntryDate.IsZero() {
		date = in.EntryDate
	}
	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = fmt.Sprintf("Reversal of journal %d", original.ID)
	}
	lines := make([]LineInput, 0, len(original.Lines))
	for _, line := range original.Lines {
		lines = append(lines, LineInput{
			AccountID:   line.AccountID,
			Debit:       line.Credit,
			Credit:      line.Debit,
			Description: line.Description,
		})
	}
	return CreateInput{
		Reference:   original.Reference,
		Description: description,
		EntryDate:   time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC),
		Status:      StatusPosted,
		Source:      SourceReversal,
		SourceID:    strconv.FormatInt(original.ID, 10),
		Metadata:    map[string]string{"reversed_journal_id": strconv.FormatInt(original.ID, 10)},
		CreatedBy:   in.CreatedBy,
		Lines:       lines,
	}
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, acctshared.ErrInsufficientLines):
		return "insufficient_lines"
	case errors.Is(err, acctshared.ErrInvalidLine):
		return "invalid_line"
	case errors.Is(err, acctshared.ErrUnbalanced):
		return "unbalanced"
	case errors.Is(err, acctshared.ErrInvalidAccount):
		return "invalid_account"
	case errors.Is(err, acctshared.ErrInvalidEntry):
		return "invalid_entry"
	default:
		return "other"
	}
}

func actorOf(id *int64) int64 {
	if id == nil {
		return 0
	}
	return *id
}
