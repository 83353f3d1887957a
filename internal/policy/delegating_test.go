package policy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/adriacb/enact/internal/model"
)

func TestDelegatingUsesAllowField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"allow": true, "reason": "remote says ok"})
	}))
	defer srv.Close()

	p := NewDelegating(srv.URL, "/decide", nil, time.Second, false)
	dec, err := p.Evaluate(model.GovernanceRequest{AgentID: "a1", ToolName: "t", FunctionName: "f"})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allow || dec.Reason != "remote says ok" {
		t.Fatalf("unexpected decision: %+v", dec)
	}
}

func TestDelegatingUsesResultField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"result": false})
	}))
	defer srv.Close()

	p := NewDelegating(srv.URL, "/decide", nil, time.Second, true)
	dec, err := p.Evaluate(model.GovernanceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allow {
		t.Fatalf("expected deny from result:false, got %+v", dec)
	}
}

func TestDelegatingFailsToDefaultOnNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	p := NewDelegating(srv.URL, "/decide", nil, time.Second, false)
	dec, err := p.Evaluate(model.GovernanceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if dec.Allow || dec.Reason != "decision service unavailable" {
		t.Fatalf("expected fail-closed decision-service-unavailable, got %+v", dec)
	}
}

func TestDelegatingFailsToDefaultOnUnreachable(t *testing.T) {
	p := NewDelegating("http://127.0.0.1:1", "/decide", nil, 50*time.Millisecond, true)
	dec, err := p.Evaluate(model.GovernanceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	if !dec.Allow || dec.Reason != "decision service unavailable" {
		t.Fatalf("expected default_allow fallback, got %+v", dec)
	}
}
