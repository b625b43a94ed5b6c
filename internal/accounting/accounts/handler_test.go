package accounts

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	internalShared "github.com/odyssey-erp/odyssey-ledger/internal/shared"
)

func newTestRouter() http.Handler {
	h := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), NewService(newMemRepo()))
	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if tenant, err := internalShared.TenantFromRequest(r); err == nil {
				r = r.WithContext(internalShared.ContextWithTenant(r.Context(), tenant))
			}
			next.ServeHTTP(w, r)
		})
	})
	h.MountRoutes(r)
	return r
}

func doRequest(t *testing.T, h http.Handler, method, path, body string, tenant internalShared.Tenant) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if !tenant.IsZero() {
		req.Header.Set(internalShared.TenantHeader, tenant.String())
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandlerCreateAndFetch(t *testing.T) {
	router := newTestRouter()

	rec := doRequest(t, router, http.MethodPost, "/accounts", `{"code":"1110","name":"Cash","type":"Asset"}`, tenantA)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created Account
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))
	assert.Equal(t, AccountTypeAsset, created.Type)

	rec = doRequest(t, router, http.MethodGet, "/accounts/by-code/1110", "", tenantA)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/accounts/by-code/1110", "", tenantB)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/accounts", `{"code":"1110","name":"Cash","type":"asset"}`, tenantA)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestHandlerRejectsBadInput(t *testing.T) {
	router := newTestRouter()

	rec := doRequest(t, router, http.MethodPost, "/accounts", `{"code":"1110","name":"Cash","type":"bank"}`, tenantA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/accounts", `{"code":"1110","name":"Cash","type":"asset","extra":1}`, tenantA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/accounts", `{"name":"Cash","type":"asset"}`, tenantA)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/accounts", "", internalShared.Tenant{})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandlerSummary(t *testing.T) {
	router := newTestRouter()
	doRequest(t, router, http.MethodPost, "/accounts", `{"code":"4100","name":"Sales","type":"income"}`, tenantA)

	rec := doRequest(t, router, http.MethodGet, "/accounts/summary", "", tenantA)
	require.Equal(t, http.StatusOK, rec.Code)
	var summary Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 1, summary.Total)
}
