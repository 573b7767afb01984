package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/lemonberrylabs/rulekit/pkg/expr"
	"github.com/lemonberrylabs/rulekit/pkg/metrics"
	"github.com/lemonberrylabs/rulekit/pkg/ruleset"
	"github.com/lemonberrylabs/rulekit/pkg/store"
	"github.com/lemonberrylabs/rulekit/pkg/types"
)

func newTestServer() *Server {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store.New(), expr.New(), metrics.New(), logger, nil)
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) (*http.Response, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatal(err)
		}
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := srv.App().Test(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}

	var decoded map[string]any
	raw, _ := io.ReadAll(resp.Body)
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &decoded); err != nil {
			t.Fatalf("%s %s: invalid response %q: %v", method, path, raw, err)
		}
	}
	return resp, decoded
}

func errorField(t *testing.T, body map[string]any, key string) any {
	t.Helper()
	errObj, ok := body["error"].(map[string]any)
	if !ok {
		t.Fatalf("no error object in %v", body)
	}
	return errObj[key]
}

func TestParseEndpoint(t *testing.T) {
	srv := newTestServer()

	resp, body := doJSON(t, srv, "POST", "/v1/parse", map[string]any{
		"expression": "1 + 2 * price",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}
	if body["resultType"] != "float" {
		t.Errorf("resultType = %v, want float", body["resultType"])
	}
	symbols, _ := body["symbols"].([]any)
	if len(symbols) != 1 || symbols[0] != "price" {
		t.Errorf("symbols = %v, want [price]", body["symbols"])
	}
	if body["ast"] == nil {
		t.Error("no ast in response")
	}
}

func TestParseEndpointFoldsConstants(t *testing.T) {
	srv := newTestServer()

	resp, body := doJSON(t, srv, "POST", "/v1/parse", map[string]any{
		"expression": "2 ** 8",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}

	ast, _ := body["ast"].(map[string]any)
	root, _ := ast["expression"].(map[string]any)
	if root["kind"] != "float" || root["value"] != 256.0 {
		t.Errorf("root = %v, want folded float 256", root)
	}
}

func TestParseEndpointErrors(t *testing.T) {
	tests := []struct {
		name     string
		request  map[string]any
		wantKind string
		wantLine bool
	}{
		{"syntax error", map[string]any{"expression": "1 +"}, "syntax_error", true},
		{"lexical error", map[string]any{"expression": "1 @ 2"}, "lexical_error", true},
		{"semantic error", map[string]any{"expression": "1 + 'a'"}, "semantic_error", false},
		{"typed field misuse", map[string]any{
			"expression": "name + 1",
			"fields":     map[string]string{"name": "string"},
		}, "semantic_error", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer()
			resp, body := doJSON(t, srv, "POST", "/v1/parse", tt.request)
			if resp.StatusCode != 400 {
				t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
			}
			if kind := errorField(t, body, "kind"); kind != tt.wantKind {
				t.Errorf("kind = %v, want %s", kind, tt.wantKind)
			}
			_, hasLine := body["error"].(map[string]any)["line"]
			if hasLine != tt.wantLine {
				t.Errorf("line present = %v, want %v", hasLine, tt.wantLine)
			}
		})
	}
}

func TestParseEndpointBadRequests(t *testing.T) {
	srv := newTestServer()

	resp, _ := doJSON(t, srv, "POST", "/v1/parse", map[string]any{})
	if resp.StatusCode != 400 {
		t.Errorf("empty expression: status = %d, want 400", resp.StatusCode)
	}

	resp, body := doJSON(t, srv, "POST", "/v1/parse", map[string]any{
		"expression": "a",
		"fields":     map[string]string{"a": "tuple"},
	})
	if resp.StatusCode != 400 {
		t.Errorf("unknown field type: status = %d, body = %v", resp.StatusCode, body)
	}
}

func TestRuleLifecycle(t *testing.T) {
	srv := newTestServer()

	resp, created := doJSON(t, srv, "POST", "/v1/rules", map[string]any{
		"id":          "big-order",
		"expression":  "price * quantity > 1000",
		"description": "review threshold",
	})
	if resp.StatusCode != 200 {
		t.Fatalf("create: status = %d, body = %v", resp.StatusCode, created)
	}
	if created["state"] != "ACTIVE" || created["revisionId"] == "" {
		t.Errorf("created = %v", created)
	}

	resp, body := doJSON(t, srv, "POST", "/v1/rules", map[string]any{
		"id": "big-order", "expression": "1",
	})
	if resp.StatusCode != 409 {
		t.Errorf("duplicate: status = %d, want 409", resp.StatusCode)
	}
	if status := errorField(t, body, "status"); status != "ALREADY_EXISTS" {
		t.Errorf("status = %v, want ALREADY_EXISTS", status)
	}

	resp, body = doJSON(t, srv, "GET", "/v1/rules/big-order", nil)
	if resp.StatusCode != 200 || body["expression"] != "price * quantity > 1000" {
		t.Errorf("get: status = %d, body = %v", resp.StatusCode, body)
	}

	resp, body = doJSON(t, srv, "GET", "/v1/rules", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("list: status = %d", resp.StatusCode)
	}
	if rules, _ := body["rules"].([]any); len(rules) != 1 {
		t.Errorf("list = %v, want one rule", body["rules"])
	}

	resp, body = doJSON(t, srv, "PATCH", "/v1/rules/big-order", map[string]any{
		"expression": "total > 500",
	})
	if resp.StatusCode != 200 || body["expression"] != "total > 500" {
		t.Errorf("update: status = %d, body = %v", resp.StatusCode, body)
	}
	if body["revisionId"] == created["revisionId"] {
		t.Error("update did not refresh revision id")
	}

	resp, body = doJSON(t, srv, "DELETE", "/v1/rules/big-order", nil)
	if resp.StatusCode != 200 || body["deleted"] != "big-order" {
		t.Errorf("delete: status = %d, body = %v", resp.StatusCode, body)
	}

	resp, _ = doJSON(t, srv, "GET", "/v1/rules/big-order", nil)
	if resp.StatusCode != 404 {
		t.Errorf("get after delete: status = %d, want 404", resp.StatusCode)
	}
}

func TestCreateRuleRejectsInvalidInput(t *testing.T) {
	srv := newTestServer()

	tests := []struct {
		name    string
		request map[string]any
	}{
		{"invalid id", map[string]any{"id": "Bad Id", "expression": "1"}},
		{"missing expression", map[string]any{"id": "ok-id"}},
		{"bad expression", map[string]any{"id": "ok-id", "expression": "1 +"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := doJSON(t, srv, "POST", "/v1/rules", tt.request)
			if resp.StatusCode != 400 {
				t.Errorf("status = %d, body = %v", resp.StatusCode, body)
			}
		})
	}
}

func TestInvalidExpressionsAreNeverStored(t *testing.T) {
	srv := newTestServer()

	resp, body := doJSON(t, srv, "POST", "/v1/rules", map[string]any{
		"id": "bad-rule", "expression": "1 + 'a'",
	})
	if resp.StatusCode != 400 {
		t.Fatalf("create: status = %d, body = %v", resp.StatusCode, body)
	}
	if kind := errorField(t, body, "kind"); kind != "semantic_error" {
		t.Errorf("kind = %v, want semantic_error", kind)
	}
	resp, _ = doJSON(t, srv, "GET", "/v1/rules/bad-rule", nil)
	if resp.StatusCode != 404 {
		t.Errorf("rejected rule was stored: get status = %d, want 404", resp.StatusCode)
	}

	// a failed update must leave the stored expression untouched
	if resp, body := doJSON(t, srv, "POST", "/v1/rules", map[string]any{
		"id": "good-rule", "expression": "total > 1",
	}); resp.StatusCode != 200 {
		t.Fatalf("create: status = %d, body = %v", resp.StatusCode, body)
	}
	resp, _ = doJSON(t, srv, "PATCH", "/v1/rules/good-rule", map[string]any{
		"expression": "total >",
	})
	if resp.StatusCode != 400 {
		t.Fatalf("update: status = %d, want 400", resp.StatusCode)
	}
	resp, body = doJSON(t, srv, "GET", "/v1/rules/good-rule", nil)
	if resp.StatusCode != 200 || body["expression"] != "total > 1" {
		t.Errorf("stored rule changed after rejected update: %v", body)
	}
}

func TestUpdateMissingRule(t *testing.T) {
	srv := newTestServer()
	resp, _ := doJSON(t, srv, "PATCH", "/v1/rules/ghost", map[string]any{"description": "x"})
	if resp.StatusCode != 404 {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestApplyRuleset(t *testing.T) {
	srv := newTestServer()

	rs, err := ruleset.Parse([]byte(`
fields:
  name: string
rules:
  - id: named
    expression: name == 'x'
`), expr.New())
	if err != nil {
		t.Fatalf("parse ruleset: %v", err)
	}
	srv.ApplyRuleset(rs)

	resp, body := doJSON(t, srv, "GET", "/v1/rules/named", nil)
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
	}

	if srv.fieldHints()["name"] != types.String {
		t.Error("field hints not adopted")
	}
	// adopted hints now reject type misuse on the validate path
	resp, errBody := doJSON(t, srv, "POST", "/v1/rules", map[string]any{
		"id": "bad", "expression": "name + 1",
	})
	if resp.StatusCode != 400 {
		t.Errorf("status = %d, body = %v", resp.StatusCode, errBody)
	}
}

func TestApplyRulesetConcurrentWithRequests(t *testing.T) {
	srv := newTestServer()

	rs, err := ruleset.Parse([]byte(`
fields:
  price: float
rules:
  - id: priced
    expression: price > 1
`), expr.New())
	if err != nil {
		t.Fatalf("parse ruleset: %v", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			srv.ApplyRuleset(rs)
		}
	}()

	for i := 0; i < 50; i++ {
		resp, body := doJSON(t, srv, "POST", "/v1/parse", map[string]any{
			"expression": "price > 10",
		})
		if resp.StatusCode != 200 {
			t.Fatalf("status = %d, body = %v", resp.StatusCode, body)
		}
	}
	<-done
}

func TestHealthAndMetrics(t *testing.T) {
	srv := newTestServer()

	resp, body := doJSON(t, srv, "GET", "/healthz", nil)
	if resp.StatusCode != 200 || body["status"] != "ok" {
		t.Errorf("healthz: status = %d, body = %v", resp.StatusCode, body)
	}

	// exercise the parse counter, then scrape
	for i := 0; i < 3; i++ {
		doJSON(t, srv, "POST", "/v1/parse", map[string]any{"expression": fmt.Sprintf("%d + 1", i)})
	}

	req := httptest.NewRequest("GET", "/metrics", nil)
	scrape, err := srv.App().Test(req)
	if err != nil {
		t.Fatal(err)
	}
	if scrape.StatusCode != 200 {
		t.Fatalf("metrics: status = %d", scrape.StatusCode)
	}
	raw, _ := io.ReadAll(scrape.Body)
	if !strings.Contains(string(raw), "rulekit_parses_total") {
		t.Error("scrape does not expose rulekit_parses_total")
	}
}
