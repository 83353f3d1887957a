package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/adriacb/enact/internal/breaker"
	"github.com/adriacb/enact/internal/config"
	"github.com/adriacb/enact/internal/engine"
	"github.com/adriacb/enact/internal/model"
	"github.com/adriacb/enact/internal/oversight"
	"github.com/adriacb/enact/internal/policy"
	"github.com/adriacb/enact/internal/quota"
	"github.com/adriacb/enact/internal/ratelimit"
	"github.com/adriacb/enact/internal/registry"
)

const testToken = "test-bearer-token-0123456789abcdef"

func newTestRouter(t *testing.T) (*httptest.Server, *RouterDeps) {
	t.Helper()

	reg := registry.New()
	if err := reg.RegisterTool(model.ToolEntry{Name: "tool", Policy: policy.AllowAll{}}); err != nil {
		t.Fatal(err)
	}

	rl := ratelimit.New(ratelimit.Config{MaxPerMinute: 600, BurstSize: 100})
	qm := quota.New(quota.Config{MaxActions: 1000, WindowHours: 1})
	br := breaker.New(breaker.Config{FailureThreshold: 5, SuccessThreshold: 2})
	ks := oversight.NewKillSwitch(nil)
	ap := oversight.NewApprovalWorkflow(nil, nil, nil)

	eng := engine.New(engine.Config{Registry: reg, RateLimiter: rl, Quota: qm, Breaker: br, KillSwitch: ks, Approval: ap})

	h := &Handlers{Engine: eng, Registry: reg, RateLimit: rl, Quota: qm, Breaker: br, KillSwitch: ks, Approval: ap}
	deps := &RouterDeps{Handlers: h}

	cfg := &config.Config{
		Server: config.ServerConfig{CORSOrigins: []string{"*"}},
		Auth:   config.AuthConfig{BearerToken: testToken},
	}

	router := NewRouter(cfg, deps)
	srv := httptest.NewServer(router)
	t.Cleanup(func() {
		srv.Close()
		if deps.StopRateLimiter != nil {
			deps.StopRateLimiter()
		}
	})
	return srv, deps
}

func authedRequest(t *testing.T, method, url string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, url, &buf)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Authorization", "Bearer "+testToken)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestHealthCheckRequiresNoAuth(t *testing.T) {
	srv, _ := newTestRouter(t)
	resp, err := http.Get(srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

func TestAPIRejectsMissingBearerToken(t *testing.T) {
	srv, _ := newTestRouter(t)
	resp, err := http.Get(srv.URL + "/api/v1/tools")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a bearer token, got %d", resp.StatusCode)
	}
}

func TestEvaluateEndpointAllows(t *testing.T) {
	srv, _ := newTestRouter(t)
	req := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/evaluate", map[string]any{
		"agent_id":      "a1",
		"tool_name":     "tool",
		"function_name": "run",
	})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var dec model.GovernanceDecision
	if err := json.NewDecoder(resp.Body).Decode(&dec); err != nil {
		t.Fatal(err)
	}
	if !dec.Allow {
		t.Fatalf("expected allow-all policy to allow, got %+v", dec)
	}
}

func TestEvaluateEndpointRejectsMissingFields(t *testing.T) {
	srv, _ := newTestRouter(t)
	req := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/evaluate", map[string]any{"tool_name": "tool"})
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for a missing agent_id, got %d", resp.StatusCode)
	}
}

func TestKillSwitchEndpointsRoundTrip(t *testing.T) {
	srv, _ := newTestRouter(t)

	activate := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/kill-switch/activate", map[string]any{
		"activated_by": "ops",
		"reason":       "incident",
	})
	resp, err := http.DefaultClient.Do(activate)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 activating kill-switch, got %d", resp.StatusCode)
	}

	// With the kill-switch active, evaluate must deny regardless of policy.
	eval := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/evaluate", map[string]any{
		"agent_id":  "a1",
		"tool_name": "tool",
	})
	resp, err = http.DefaultClient.Do(eval)
	if err != nil {
		t.Fatal(err)
	}
	var dec model.GovernanceDecision
	json.NewDecoder(resp.Body).Decode(&dec)
	resp.Body.Close()
	if dec.Allow {
		t.Fatalf("expected deny while kill-switch active, got %+v", dec)
	}

	deactivate := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/kill-switch/deactivate", nil)
	resp, err = http.DefaultClient.Do(deactivate)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 deactivating kill-switch, got %d", resp.StatusCode)
	}
}

func TestRegisterAndListTools(t *testing.T) {
	srv, _ := newTestRouter(t)

	register := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/tools", map[string]any{"name": "new-tool"})
	resp, err := http.DefaultClient.Do(register)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201 registering a new tool, got %d", resp.StatusCode)
	}

	list, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/api/v1/tools?agent_id=anyone", nil))
	if err != nil {
		t.Fatal(err)
	}
	defer list.Body.Close()
	var body struct {
		Tools []string `json:"tools"`
	}
	if err := json.NewDecoder(list.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	found := false
	for _, name := range body.Tools {
		if name == "new-tool" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected new-tool to be listed, got %v", body.Tools)
	}
}

func TestRateLimitAndQuotaAndBreakerStatusEndpoints(t *testing.T) {
	srv, _ := newTestRouter(t)

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/api/v1/limits/rate/a1/tool", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from rate limit status, got %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/api/v1/limits/quota/a1", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from quota status, got %d", resp.StatusCode)
	}

	resp, err = http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/api/v1/limits/breaker/tool", nil))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 from breaker status, got %d", resp.StatusCode)
	}
}

func TestApprovalEndpointLifecycle(t *testing.T) {
	srv, deps := newTestRouter(t)

	ticket := deps.Handlers.Approval.RequestApproval(model.GovernanceRequest{AgentID: "a1", ToolName: "tool"}, "high_risk")

	resp, err := http.DefaultClient.Do(authedRequest(t, http.MethodGet, srv.URL+"/api/v1/approvals/"+ticket.ID, nil))
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 fetching the ticket, got %d", resp.StatusCode)
	}

	approve := authedRequest(t, http.MethodPost, srv.URL+"/api/v1/approvals/"+ticket.ID+"/approve", map[string]any{
		"approver": "bob",
	})
	resp, err = http.DefaultClient.Do(approve)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200 approving the ticket, got %d", resp.StatusCode)
	}
}
