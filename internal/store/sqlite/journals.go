package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	acctshared "github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	"github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Journals implements journals.Repository.
type Journals struct {
	s *Store
}

// Journals returns the journal repository.
func (s *Store) Journals() journals.Repository {
	return &Journals{s: s}
}

func (r *Journals) WithTx(ctx context.Context, fn func(context.Context, journals.TxRepository) error) error {
	return r.s.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, &journalTx{q: tx, now: r.s.now})
	})
}

func (r *Journals) Get(ctx context.Context, tenant shared.Tenant, id int64) (journals.JournalEntry, error) {
	return getJournalWithLines(ctx, r.s.db, tenant, id)
}

func (r *Journals) List(ctx context.Context, tenant shared.Tenant, filter journals.ListFilter) ([]journals.JournalEntry, error) {
	conds := []string{"tenant_id=?"}
	args := []any{tenant.String()}
	if filter.Status != "" {
		conds = append(conds, "status=?")
		args = append(args, string(filter.Status))
	}
	if filter.Source != "" {
		conds = append(conds, "source=?")
		args = append(args, filter.Source)
	}
	if filter.From != nil {
		conds = append(conds, "entry_date >= ?")
		args = append(args, filter.From.Format(dateLayout))
	}
	if filter.To != nil {
		conds = append(conds, "entry_date <= ?")
		args = append(args, filter.To.Format(dateLayout))
	}
	page := filter.Page
	if page.Limit == 0 {
		page = shared.NewPage(0, 0)
	}
	args = append(args, page.Limit, page.Offset)
	rows, err := r.s.db.QueryContext(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE `+strings.Join(conds, " AND ")+
		` ORDER BY entry_date DESC, id DESC LIMIT ? OFFSET ?`, args...)
	if err != nil {
		return nil, fmt.Errorf("store/sqlite: list journals: %w", err)
	}
	defer rows.Close()
	var entries []journals.JournalEntry
	for rows.Next() {
		entry, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

type journalTx struct {
	q   *sql.Tx
	now func() time.Time
}

const entryColumns = `id, tenant_id, reference, description, entry_date, status, source, source_id, metadata, created_by, approved_by, posted_at, created_at, updated_at`

func scanEntry(row scanner) (journals.JournalEntry, error) {
	var (
		e      journals.JournalEntry
		status string
		meta   string
	)
	if err := row.Scan(&e.ID, &e.TenantID, &e.Reference, &e.Description, &e.EntryDate, &status, &e.Source, &e.SourceID, &meta,
		&e.CreatedBy, &e.ApprovedBy, &e.PostedAt, &e.CreatedAt, &e.UpdatedAt); err != nil {
		return journals.JournalEntry{}, err
	}
	e.Status = journals.Status(status)
	metadata, err := decodeMetadata(meta)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	e.Metadata = metadata
	return e, nil
}

func (r *journalTx) InsertJournalEntry(ctx context.Context, tenant shared.Tenant, in journals.CreateInput) (journals.JournalEntry, error) {
	meta, err := encodeMetadata(in.Metadata)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	now := r.now()
	var postedAt *time.Time
	if in.Status == journals.StatusPosted {
		postedAt = &now
	}
	res, err := r.q.ExecContext(ctx, `INSERT INTO journal_entries (tenant_id, reference, description, entry_date, status, source, source_id, metadata, created_by, posted_at, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		tenant.String(), in.Reference, in.Description, in.EntryDate.Format(dateLayout), string(in.Status), in.Source, in.SourceID, meta, in.CreatedBy, postedAt, now, now)
	if err != nil {
		if isUniqueViolation(err, "journal_entries.source") {
			return journals.JournalEntry{}, fmt.Errorf("%w: %s/%s", acctshared.ErrSourceAlreadyLinked, in.Source, in.SourceID)
		}
		return journals.JournalEntry{}, fmt.Errorf("store/sqlite: insert entry: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return journals.JournalEntry{}, err
	}
	return scanEntry(r.q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE id=?`, id))
}

func (r *journalTx) InsertJournalLines(ctx context.Context, tenant shared.Tenant, entryID int64, lines []journals.LineInput) error {
	stmt, err := r.q.PrepareContext(ctx, `INSERT INTO journal_lines (journal_id, tenant_id, account_id, debit, credit, description, metadata, created_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store/sqlite: prepare lines: %w", err)
	}
	defer stmt.Close()
	now := r.now()
	for _, line := range lines {
		meta, err := encodeMetadata(line.Metadata)
		if err != nil {
			return err
		}
		if _, err := stmt.ExecContext(ctx, entryID, tenant.String(), line.AccountID, line.Debit.String(), line.Credit.String(), line.Description, meta, now); err != nil {
			return fmt.Errorf("store/sqlite: insert line: %w", err)
		}
	}
	return nil
}

func (r *journalTx) GetJournalWithLines(ctx context.Context, tenant shared.Tenant, id int64) (journals.JournalEntry, error) {
	return getJournalWithLines(ctx, r.q, tenant, id)
}

func (r *journalTx) MarkPosted(ctx context.Context, tenant shared.Tenant, id int64, approvedBy *int64, at time.Time) error {
	res, err := r.q.ExecContext(ctx, `UPDATE journal_entries SET status='posted', approved_by=COALESCE(?, approved_by), posted_at=?, updated_at=?
WHERE tenant_id=? AND id=? AND status='draft'`, approvedBy, at.UTC(), r.now(), tenant.String(), id)
	if err != nil {
		return fmt.Errorf("store/sqlite: mark posted: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return acctshared.ErrAlreadyPosted
	}
	return nil
}

func (r *journalTx) FindBySource(ctx context.Context, tenant shared.Tenant, source, sourceID string) (journals.JournalEntry, error) {
	var id int64
	err := r.q.QueryRowContext(ctx, `SELECT id FROM journal_entries WHERE tenant_id=? AND source=? AND source_id=?`, tenant.String(), source, sourceID).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return journals.JournalEntry{}, acctshared.ErrJournalNotFound
		}
		return journals.JournalEntry{}, err
	}
	return getJournalWithLines(ctx, r.q, tenant, id)
}

func (r *journalTx) PostingLines(ctx context.Context, tenant shared.Tenant, entryID int64) (time.Time, []balances.PostingLine, error) {
	var date time.Time
	err := r.q.QueryRowContext(ctx, `SELECT entry_date FROM journal_entries WHERE tenant_id=? AND id=? AND status='posted'`, tenant.String(), entryID).Scan(&date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, nil, acctshared.ErrJournalNotFound
		}
		return time.Time{}, nil, err
	}
	rows, err := r.q.QueryContext(ctx, `SELECT account_id, debit, credit FROM journal_lines WHERE tenant_id=? AND journal_id=? ORDER BY id`, tenant.String(), entryID)
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

// AddToBalance reads and rewrites the row. The transaction already holds the
// database write lock, so no other writer can interleave.
func (r *journalTx) AddToBalance(ctx context.Context, tenant shared.Tenant, key balances.Key, debit, credit decimal.Decimal) error {
	var (
		id                  int64
		curDebit, curCredit decimal.Decimal
	)
	err := r.q.QueryRowContext(ctx, `SELECT id, debit, credit FROM account_balances
WHERE tenant_id=? AND account_id=? AND fiscal_year=? AND period=?`, tenant.String(), key.AccountID, key.FiscalYear, key.Period).Scan(&id, &curDebit, &curCredit)
	now := r.now()
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = r.q.ExecContext(ctx, `INSERT INTO account_balances (tenant_id, account_id, fiscal_year, period, debit, credit, balance, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`, tenant.String(), key.AccountID, key.FiscalYear, key.Period,
			debit.String(), credit.String(), debit.Sub(credit).String(), now, now)
	case err == nil:
		newDebit, newCredit := curDebit.Add(debit), curCredit.Add(credit)
		_, err = r.q.ExecContext(ctx, `UPDATE account_balances SET debit=?, credit=?, balance=?, updated_at=? WHERE id=?`,
			newDebit.String(), newCredit.String(), newDebit.Sub(newCredit).String(), now, id)
	}
	if err != nil {
		return fmt.Errorf("store/sqlite: add to balance: %w", mapError(err))
	}
	return nil
}

func getJournalWithLines(ctx context.Context, q execer, tenant shared.Tenant, id int64) (journals.JournalEntry, error) {
	entry, err := scanEntry(q.QueryRowContext(ctx, `SELECT `+entryColumns+` FROM journal_entries WHERE tenant_id=? AND id=?`, tenant.String(), id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return journals.JournalEntry{}, acctshared.ErrJournalNotFound
		}
		return journals.JournalEntry{}, err
	}
	rows, err := q.QueryContext(ctx, `SELECT l.id, l.journal_id, l.tenant_id, l.account_id, l.debit, l.credit, l.description, l.metadata, l.created_at,
       a.id, a.tenant_id, a.code, a.name, a.type, a.category, a.parent_id, a.is_active, a.created_at, a.updated_at
FROM journal_lines l JOIN accounts a ON a.id = l.account_id
WHERE l.tenant_id=? AND l.journal_id=? ORDER BY l.id`, tenant.String(), id)
	if err != nil {
		return journals.JournalEntry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			line journals.JournalLine
			acct accounts.Account
			meta string
		)
		if err := rows.Scan(&line.ID, &line.JournalID, &line.TenantID, &line.AccountID, &line.Debit, &line.Credit, &line.Description, &meta, &line.CreatedAt,
			&acct.ID, &acct.TenantID, &acct.Code, &acct.Name, &acct.Type, &acct.Category, &acct.ParentID, &acct.IsActive, &acct.CreatedAt, &acct.UpdatedAt); err != nil {
			return journals.JournalEntry{}, err
		}
		if line.Metadata, err = decodeMetadata(meta); err != nil {
			return journals.JournalEntry{}, err
		}
		line.Account = &acct
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}
