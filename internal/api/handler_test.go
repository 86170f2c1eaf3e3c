package api_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/martegra/divrecon/internal/api"
	"github.com/martegra/divrecon/internal/config"
	"github.com/martegra/divrecon/internal/engine"
)

func newTestHandler(t *testing.T) http.Handler {
	t.Helper()
	path := filepath.Join(t.TempDir(), "reconcile.yaml")
	if err := os.WriteFile(path, []byte("version: v1\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	loader, err := config.NewLoader(path)
	if err != nil {
		t.Fatalf("NewLoader error: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	eng, err := engine.New(ctx, loader.Config(), nil)
	if err != nil {
		t.Fatalf("engine.New error: %v", err)
	}
	t.Cleanup(func() {
		eng.Shutdown()
		cancel()
	})
	return api.New(eng, loader, nil)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) (kind, msg string) {
	t.Helper()
	var env struct {
		Error string `json:"error"`
		Kind  string `json:"kind"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
		t.Fatalf("error envelope not JSON: %v: %s", err, rec.Body.String())
	}
	return env.Kind, env.Error
}

func TestReconcileEndpoint(t *testing.T) {
	h := newTestHandler(t)
	body := `{
		"nbim": [{"isin":"US0378331005","custodian":"CUST_A","ex_date":"2024-02-09","pay_date":"2024-02-15","gross_amount":"1000.00","net_amount":"850.00","tax_rate":"0.15","currency":"USD","quantity":"500"}],
		"custody": [{"isin":"US0378331005","custodian":"CUST_A","ex_date":"2024-02-09","pay_date":"2024-02-15","gross_amount":"950.00","net_amount":"807.50","tax_rate":"0.15","currency":"USD","quantity":"500"}]
	}`
	rec := do(t, h, http.MethodPost, "/v1/reconcile", body)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var res struct {
		RunID  string            `json:"run_id"`
		Breaks []json.RawMessage `json:"breaks"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatalf("response not JSON: %v", err)
	}
	if res.RunID == "" || len(res.Breaks) != 1 {
		t.Errorf("run_id = %q breaks = %d", res.RunID, len(res.Breaks))
	}
}

func TestReconcileEndpoint_BadJSON(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/v1/reconcile", "{not json")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
	if kind, _ := decodeError(t, rec); kind != "bad_request" {
		t.Errorf("kind = %q, want bad_request", kind)
	}
}

func TestSafeguardEndpoint_UnknownRun(t *testing.T) {
	h := newTestHandler(t)
	rec := do(t, h, http.MethodPost, "/v1/runs/no-such-run/safeguard", `{"proposals":[{"break_id":1}]}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	if kind, _ := decodeError(t, rec); kind != "unknown_run" {
		t.Errorf("kind = %q, want unknown_run", kind)
	}
}
