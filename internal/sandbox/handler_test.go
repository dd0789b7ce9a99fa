package sandbox

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const prefix = "/api/book-keeper/v1"

func serve(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerRoutes(t *testing.T) {
	e, _ := newTestEngine(t)
	router := NewHandler(e, nil).Router(prefix)

	rr := serve(t, router, http.MethodPost, prefix+"/accounts",
		`{"tenant_id":"t1","accounts":[{"code":"src","name":"Source","type":"liability"},{"code":"lim","name":"Limiter","type":"asset","flags":512}]}`)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"created":2}`, rr.Body.String())

	rr = serve(t, router, http.MethodPost, prefix+"/admin/limiter-accounts/refill",
		`{"tenant_id":"t1","source_of_funds_account_code":"src","accounts_to_refill":[{"account_code":"lim","amount":5,"currency":"CALLS"}]}`)
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.Empty(t, rr.Body.String())

	rr = serve(t, router, http.MethodGet, prefix+"/accounts/balances?tenant_id=t1&account_codes=lim&account_codes=src", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `"account_code":"lim"`)
	assert.Contains(t, rr.Body.String(), `"account_code":"src"`)

	rr = serve(t, router, http.MethodPost, prefix+"/journal-entries",
		`{"tenant_id":"t1","entry_date":"2024-01-01","debit_legs":[{"account_code":"1001","amount":3,"currency":"USD"}],"credit_legs":[{"account_code":"4001","amount":3,"currency":"USD"}]}`)
	require.Equal(t, http.StatusCreated, rr.Code)
	assert.Contains(t, rr.Body.String(), `"journal_id":"j`)
}

func TestHandlerRejectsMalformedJSON(t *testing.T) {
	e, _ := newTestEngine(t)
	router := NewHandler(e, nil).Router(prefix)

	rr := serve(t, router, http.MethodPost, prefix+"/pending-journal-entries", `{`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.JSONEq(t, `{"error":"Invalid JSON"}`, rr.Body.String())
}

func TestHandlerUnknownAction(t *testing.T) {
	e, _ := newTestEngine(t)
	router := NewHandler(e, nil).Router(prefix)

	rr := serve(t, router, http.MethodPost, prefix+"/pending-journal-entries/j1/approve", `{"tenant_id":"t1"}`)
	assert.Equal(t, http.StatusNotFound, rr.Code)
}
