package accounts

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/shared"
	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

// Service is the account registry.
type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// CreateAccount registers a chart-of-accounts entry for the tenant.
func (s *Service) CreateAccount(ctx context.Context, tenant internalShared.Tenant, in CreateInput) (Account, error) {
	if err := tenant.Require(); err != nil {
		return Account{}, err
	}
	in.Code = strings.TrimSpace(in.Code)
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Code == "" || in.Name == "" {
		return Account{}, fmt.Errorf("%w: code and name required", shared.ErrInvalidAccountInput)
	}
	if !in.Type.Valid() {
		return Account{}, fmt.Errorf("%w: %q", shared.ErrInvalidAccountType, in.Type)
	}
	return s.repo.Create(ctx, tenant, in)
}

// Get returns one account of the tenant.
func (s *Service) Get(ctx context.Context, tenant internalShared.Tenant, id int64) (Account, error) {
	if err := tenant.Require(); err != nil {
		return Account{}, err
	}
	return s.repo.Get(ctx, tenant, id)
}

// FindByCode resolves a well-known account by its configured code.
func (s *Service) FindByCode(ctx context.Context, tenant internalShared.Tenant, code string) (Account, error) {
	if err := tenant.Require(); err != nil {
		return Account{}, err
	}
	return s.repo.FindByCode(ctx, tenant, strings.TrimSpace(code))
}

// FindByCodes resolves every code or returns a MissingAccountsError naming the
// absent ones. Blank codes are reported as missing.
func (s *Service) FindByCodes(ctx context.Context, tenant internalShared.Tenant, codes []string) (map[string]Account, error) {
	if err := tenant.Require(); err != nil {
		return nil, err
	}
	wanted := uniqueStrings(codes)
	found, err := s.repo.FindByCodes(ctx, tenant, wanted)
	if err != nil {
		return nil, err
	}
	byCode := make(map[string]Account, len(found))
	for _, account := range found {
		byCode[account.Code] = account
	}
	var missing []string
	if hasBlank(codes) {
		missing = append(missing, blankCode)
	}
	for _, code := range wanted {
		if _, ok := byCode[code]; !ok {
			missing = append(missing, code)
		}
	}
	if err := internalShared.NewMissingAccountsError(missing); err != nil {
		return nil, err
	}
	return byCode, nil
}

// FindByIDs returns the subset of ids owned by the tenant, keyed by id.
func (s *Service) FindByIDs(ctx context.Context, tenant internalShared.Tenant, ids []int64) (map[int64]Account, error) {
	if err := tenant.Require(); err != nil {
		return nil, err
	}
	found, err := s.repo.FindByIDs(ctx, tenant, uniqueIDs(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[int64]Account, len(found))
	for _, account := range found {
		if account.TenantID != tenant.ID() {
			continue
		}
		out[account.ID] = account
	}
	return out, nil
}

// List returns the tenant's chart of accounts ordered by code.
func (s *Service) List(ctx context.Context, tenant internalShared.Tenant) ([]Account, error) {
	if err := tenant.Require(); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, tenant)
}

// Summary counts accounts grouped by type. Types without accounts are reported as zero.
func (s *Service) Summary(ctx context.Context, tenant internalShared.Tenant) (Summary, error) {
	if err := tenant.Require(); err != nil {
		return Summary{}, err
	}
	counts, err := s.repo.CountByType(ctx, tenant)
	if err != nil {
		return Summary{}, err
	}
	summary := Summary{ByType: make([]TypeCount, 0, len(AccountTypes))}
	for _, t := range AccountTypes {
		summary.ByType = append(summary.ByType, TypeCount{Type: t, Count: counts[t]})
		summary.Total += counts[t]
	}
	return summary, nil
}

// Update applies a partial patch. Codes referenced by posted lines are immutable.
func (s *Service) Update(ctx context.Context, tenant internalShared.Tenant, id int64, in UpdateInput) (Account, error) {
	if err := tenant.Require(); err != nil {
		return Account{}, err
	}
	current, err := s.repo.Get(ctx, tenant, id)
	if err != nil {
		return Account{}, err
	}
	if in.Type != nil && !in.Type.Valid() {
		return Account{}, fmt.Errorf("%w: %q", shared.ErrInvalidAccountType, *in.Type)
	}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return Account{}, fmt.Errorf("%w: name cannot be blank", shared.ErrInvalidAccountInput)
		}
		in.Name = &name
	}
	if in.ParentID != nil {
		if *in.ParentID == id {
			return Account{}, fmt.Errorf("%w: account cannot be its own parent", shared.ErrInvalidAccountInput)
		}
		if _, err := s.repo.Get(ctx, tenant, *in.ParentID); err != nil {
			return Account{}, err
		}
	}
	if in.Code != nil {
		code := strings.TrimSpace(*in.Code)
		if code == "" {
			return Account{}, fmt.Errorf("%w: code cannot be blank", shared.ErrInvalidAccountInput)
		}
		if code == current.Code {
			in.Code = nil
		} else {
			referenced, err := s.repo.HasPostedLines(ctx, tenant, id)
			if err != nil {
				return Account{}, err
			}
			if referenced {
				return Account{}, shared.ErrAccountCodeLocked
			}
			in.Code = &code
		}
	}
	if in.IsEmpty() {
		return current, nil
	}
	return s.repo.Update(ctx, tenant, id, in)
}

const blankCode = "<blank>"

func hasBlank(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) == "" {
			return true
		}
	}
	return false
}

func uniqueStrings(values []string) []string {
	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

func uniqueIDs(values []int64) []int64 {
	seen := make(map[int64]struct{}, len(values))
	out := make([]int64, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
