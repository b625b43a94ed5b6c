package shared

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// TenantHeader carries the pre-validated tenant identifier on API requests.
const TenantHeader = "X-Tenant-ID"

// ErrTenantRequired indicates a missing or malformed tenant identifier.
var ErrTenantRequired = fmt.Errorf("%w: tenant identifier required", ErrValidation)

// Tenant scopes every ledger read and write. The zero value is never valid.
type Tenant struct {
	id uuid.UUID
}

// NewTenant wraps a tenant id.
func NewTenant(id uuid.UUID) (Tenant, error) {
	if id == uuid.Nil {
		return Tenant{}, ErrTenantRequired
	}
	return Tenant{id: id}, nil
}

// ParseTenant parses the textual tenant identifier.
func ParseTenant(raw string) (Tenant, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Tenant{}, ErrTenantRequired
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return Tenant{}, fmt.Errorf("%w: %v", ErrTenantRequired, err)
	}
	return NewTenant(id)
}

// MustTenant is intended for tests and seed scripts.
func MustTenant(raw string) Tenant {
	t, err := ParseTenant(raw)
	if err != nil {
		panic(err)
	}
	return t
}

// ID returns the tenant uuid.
func (t Tenant) ID() uuid.UUID {
	return t.id
}

// IsZero reports whether the tenant was never set.
func (t Tenant) IsZero() bool {
	return t.id == uuid.Nil
}

func (t Tenant) String() string {
	return t.id.String()
}

// Require returns ErrTenantRequired for the zero tenant.
func (t Tenant) Require() error {
	if t.IsZero() {
		return ErrTenantRequired
	}
	return nil
}

type tenantContextKey struct{}

// ContextWithTenant stores the tenant in context.
func ContextWithTenant(ctx context.Context, tenant Tenant) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, tenant)
}

// TenantFromContext extracts the tenant stored by the API middleware.
func TenantFromContext(ctx context.Context) (Tenant, error) {
	tenant, ok := ctx.Value(tenantContextKey{}).(Tenant)
	if !ok || tenant.IsZero() {
		return Tenant{}, ErrTenantRequired
	}
	return tenant, nil
}

// TenantFromRequest parses the tenant header.
func TenantFromRequest(r *http.Request) (Tenant, error) {
	return ParseTenant(r.Header.Get(TenantHeader))
}
