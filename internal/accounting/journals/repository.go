package journals

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/db"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Repository encapsulates journal persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, tenant shared.Tenant, id int64) (JournalEntry, error)
	List(ctx context.Context, tenant shared.Tenant, filter ListFilter) ([]JournalEntry, error)
}

// TxRepository exposes the operations available inside a ledger transaction.
// It doubles as the balance store so aggregation shares the transaction.
type TxRepository interface {
	balances.Store
	InsertJournalEntry(ctx context.Context, tenant shared.Tenant, in CreateInput) (JournalEntry, error)
	InsertJournalLines(ctx context.Context, tenant shared.Tenant, entryID int64, lines []LineInput) error
	GetJournalWithLines(ctx context.Context, tenant shared.Tenant, id int64) (JournalEntry, error)
	// MarkPosted flips a draft to posted. It returns ErrAlreadyPosted when the
	// row was no longer a draft.
	MarkPosted(ctx context.Context, tenant shared.Tenant, id int64, approvedBy *int64, at time.Time) error
	FindBySource(ctx context.Context, tenant shared.Tenant, source, sourceID string) (JournalEntry, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository returns the Postgres implementation.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

func (r *repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	err := db.WithTx(ctx, r.db, pgx.ReadCommitted, func(tx pgx.Tx) error {
		return fn(ctx, &txRepository{q: tx})
	})
	if err != nil && db.IsRetryable(err) {
		return fmt.Errorf("%w: %v", acctshared.ErrBalanceConflict, err)
	}
	return err
}

func (r *repository) Get(ctx context.Context, tenant shared.Tenant, id int64) (JournalEntry, error) {
	return getJournalWithLines(ctx, r.db, tenant, id)
}

func (r *repository) List(ctx context.Context, tenant shared.Tenant, filter ListFilter) ([]JournalEntry, error) {
	conds := []string{"tenant_id=$1"}
	args := []any{tenant.ID()}
	add := func(cond string, value any) {
		args = append(args, value)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if filter.Status != "" {
		add("status=$%d", filter.Status)
	}
	if filter.Source != "" {
		add("source=$%d", filter.Source)
	}
	if filter.From != nil {
		add("entry_date >= $%d", *filter.From)
	}
	if filter.To != nil {
		add("entry_date <= $%d", *filter.To)
	}
	page := filter.Page
	if page.Limit == 0 {
		page = shared.NewPage(0, 0)
	}
	args = append(args, page.Limit, page.Offset)
	query := `SELECT ` + entryColumns + ` FROM journal_entries WHERE ` + strings.Join(conds, " AND ") +
		fmt.Sprintf(` ORDER BY entry_date DESC, id DESC LIMIT $%d OFFSET $%d`, len(args)-1, len(args))
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("accounting/journals: list: %w", err)
	}
	defer rows.Close()
	var entries []JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepository struct {
	q pgx.Tx
}

const entryColumns = `id, tenant_id, reference, description, entry_date, status, source, source_id, metadata, created_by, approved_by, posted_at, created_at, updated_at`

func scanEntry(row pgx.Row) (JournalEntry, error) {
	var (
		e    JournalEntry
		meta []byte
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.Reference, &e.Description, &e.EntryDate, &e.Status, &e.Source, &e.SourceID, &meta,
		&e.CreatedBy, &e.ApprovedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return JournalEntry{}, err
	}
	metadata, err := decodeMetadata(meta)
	if err != nil {
		return JournalEntry{}, err
	}
	e.Metadata = metadata
	return e, nil
}

func (r *txRepository) InsertJournalEntry(ctx context.Context, tenant shared.Tenant, in CreateInput) (JournalEntry, error) {
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return JournalEntry{}, err
	}
	row := r.q.QueryRow(ctx, `INSERT INTO journal_entries (tenant_id, reference, description, entry_date, status, source, source_id, metadata, created_by, posted_at)
VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9, CASE WHEN $5 = 'posted' THEN NOW() END) RETURNING `+entryColumns,
		tenant.ID(), in.Reference, in.Description, in.EntryDate, in.Status, in.Source, in.SourceID, meta, in.CreatedBy)
	entry, err := scanEntry(row)
	if err != nil {
		if db.IsUniqueViolation(err, "uq_journal_entries_source") {
			return JournalEntry{}, fmt.Errorf("%w: %s/%s", acctshared.ErrSourceAlreadyLinked, in.Source, in.SourceID)
		}
		return JournalEntry{}, fmt.Errorf("accounting/journals: insert entry: %w", err)
	}
	return entry, nil
}

func (r *txRepository) InsertJournalLines(ctx context.Context, tenant shared.Tenant, entryID int64, lines []LineInput) error {
	rows := make([][]any, 0, len(lines))
	for _, line := range lines {
		meta, err := encodeMetadata(line.Metadata)
		if err != nil {
			return err
		}
		rows = append(rows, []any{entryID, tenant.ID(), line.AccountID, line.Debit, line.Credit, line.Description, meta})
	}
	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(`INSERT INTO journal_lines (journal_id, tenant_id, account_id, debit, credit, description, metadata)
VALUES ($1,$2,$3,$4,$5,$6,$7)`, row...)
	}
	results := r.q.SendBatch(ctx, batch)
	for range rows {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return fmt.Errorf("accounting/journals: insert lines: %w", err)
		}
	}
	return results.Close()
}

func (r *txRepository) GetJournalWithLines(ctx context.Context, tenant shared.Tenant, id int64) (JournalEntry, error) {
	return getJournalWithLines(ctx, r.q, tenant, id)
}

func (r *txRepository) MarkPosted(ctx context.Context, tenant shared.Tenant, id int64, approvedBy *int64, at time.Time) error {
	cmd, err := r.q.Exec(ctx, `UPDATE journal_entries SET status='posted', approved_by=COALESCE($3, approved_by), posted_at=$4, updated_at=NOW()
WHERE tenant_id=$1 AND id=$2 AND status='draft'`, tenant.ID(), id, approvedBy, at)
	if err != nil {
		return fmt.Errorf("accounting/journals: mark posted: %w", err)
	}
	if cmd.RowsAffected() == 0 {
		return acctshared.ErrAlreadyPosted
	}
	return nil
}

func (r *txRepository) FindBySource(ctx context.Context, tenant shared.Tenant, source, sourceID string) (JournalEntry, error) {
	var id int64
	err := r.q.QueryRow(ctx, `SELECT id FROM journal_entries WHERE tenant_id=$1 AND source=$2 AND source_id=$3`, tenant.ID(), source, sourceID).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, acctshared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	return getJournalWithLines(ctx, r.q, tenant, id)
}

func (r *txRepository) PostingLines(ctx context.Context, tenant shared.Tenant, entryID int64) (time.Time, []balances.PostingLine, error) {
	var date time.Time
	err := r.q.QueryRow(ctx, `SELECT entry_date FROM journal_entries WHERE tenant_id=$1 AND id=$2 AND status='posted'`, tenant.ID(), entryID).Scan(&date)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, nil, acctshared.ErrJournalNotFound
		}
		return time.Time{}, nil, err
	}
	rows, err := r.q.Query(ctx, `SELECT account_id, debit, credit FROM journal_lines WHERE tenant_id=$1 AND journal_id=$2 ORDER BY id`, tenant.ID(), entryID)
	if err != nil {
		return time.Time{}, nil, err
	}
	defer rows.Close()
	var lines []balances.PostingLine
	for rows.Next() {
		var line balances.PostingLine
		if err := rows.Scan(&line.AccountID, &line.Debit, &line.Credit); err != nil {
			return time.Time{}, nil, err
		}
		lines = append(lines, line)
	}
	return date, lines, rows.Err()
}

// AddToBalance upserts the balance row. The conflict branch takes the row lock
// and holds it until commit, so concurrent postings to one key serialize.
func (r *txRepository) AddToBalance(ctx context.Context, tenant shared.Tenant, key balances.Key, debit, credit decimal.Decimal) error {
	_, err := r.q.Exec(ctx, `INSERT INTO account_balances (tenant_id, account_id, fiscal_year, period, debit, credit, balance)
VALUES ($1,$2,$3,$4,$5,$6,$5::numeric - $6::numeric)
ON CONFLICT (tenant_id, account_id, fiscal_year, period) DO UPDATE SET
    debit = account_balances.debit + EXCLUDED.debit,
    credit = account_balances.credit + EXCLUDED.credit,
    balance = account_balances.balance + EXCLUDED.debit - EXCLUDED.credit,
    updated_at = NOW()`, tenant.ID(), key.AccountID, key.FiscalYear, key.Period, debit, credit)
	if err != nil {
		if db.IsRetryable(err) {
			return fmt.Errorf("%w: %v", acctshared.ErrBalanceConflict, err)
		}
		return fmt.Errorf("accounting/journals: add to balance: %w", err)
	}
	return nil
}

func getJournalWithLines(ctx context.Context, q querier, tenant shared.Tenant, id int64) (JournalEntry, error) {
	entry, err := scanEntry(q.QueryRow(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=$1 AND id=$2`, tenant.ID(), id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return JournalEntry{}, acctshared.ErrJournalNotFound
		}
		return JournalEntry{}, err
	}
	rows, err := q.Query(ctx, `SELECT l.id, l.journal_id, l.tenant_id, l.account_id, l.debit, l.credit, l.description, l.metadata, l.created_at,
       a.id, a.tenant_id, a.code, a.name, a.type, a.category, a.parent_id, a.is_active, a.created_at, a.updated_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.tenant_id=$1 AND l.journal_id=$2 ORDER BY l.id`, tenant.ID(), id)
	if err != nil {
		return JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line JournalLine
			acct accounts.Account
			meta []byte
		)
		if err := rows.Scan(&line.ID, &line.JournalID, &line.TenantID, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &meta, &line.CreatedAt,
			&acct.ID, &acct.TenantID, &acct.Code, &acct.Name, &acct.Type, &acct.Category, &acct.ParentID, &acct.IsActive, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return JournalEntry{}, err
		}
		if line.Metadata, err = decodeMetadata(meta); err != nil {
			return JournalEntry{}, err
		}
		line.Account = &acct
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

func encodeMetadata(meta map[string]string) ([]byte, error) {
	if len(meta) == 0 {
		return []byte("{}"), nil
	}
	return json.Marshal(meta)
}

func decodeMetadata(raw []byte) (map[string]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var meta map[string]string
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("accounting/journals: decode metadata: %w", err)
	}
	if len(meta) == 0 {
		return nil, nil
	}
	return meta, nil
}
