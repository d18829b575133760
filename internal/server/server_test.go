package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/gigboard/gigboard/internal/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// testConfig returns a minimal in-memory config for testing
func testConfig() *config.Config {
	return &config.Config{
		Port:                "0",
		Env:                 "development",
		LogLevel:            "error",
		LogFormat:           "text",
		PostingFee:          "1.00",
		CommissionRate:      "0.05",
		CancellationPenalty: "0.25",
		SweepInterval:       time.Second,
		ReviewDeadline:      time.Hour,
		PoolMaxSize:         4,
		PoolMinWarm:         0,
	}
}

func newTestServer(t *testing.T) *Server {
	t.Helper()
	s, err := New(testConfig())
	if err != nil {
		t.Fatalf("Failed to create server: %v", err)
	}
	return s
}

func (s *Server) do(method, path, principal string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("X-Principal", principal)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// Health and info endpoints
// ---------------------------------------------------------------------------

func TestLivenessEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/health/live", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestReadinessBeforeStart(t *testing.T) {
	s := newTestServer(t)

	// Run has not been called, so the server must not report ready
	w := s.do("GET", "/health/ready", "", nil)
	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("Expected 503, got %d", w.Code)
	}
}

func TestInfoEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/api", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}

	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("Failed to parse response: %v", err)
	}
	if resp["name"] != "Gigboard" {
		t.Errorf("Unexpected name: %v", resp["name"])
	}
}

func TestMetricsEndpoint(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/metrics", "", nil)
	if w.Code != http.StatusOK {
		t.Errorf("Expected 200, got %d", w.Code)
	}
}

func TestRequestIDHeader(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/api", "", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("Expected X-Request-ID response header")
	}

	// A caller-supplied request ID is echoed back
	req := httptest.NewRequest("GET", "/api", nil)
	req.Header.Set("X-Request-ID", "req_custom")
	w = httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	if got := w.Header().Get("X-Request-ID"); got != "req_custom" {
		t.Errorf("Expected req_custom, got %q", got)
	}
}

func TestSecurityHeaders(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/api", "", nil)
	if got := w.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q", got)
	}
}

// ---------------------------------------------------------------------------
// End-to-end gig flow through the wired router
// ---------------------------------------------------------------------------

func TestGigFlowThroughServer(t *testing.T) {
	s := newTestServer(t)

	// Fund the poster
	w := s.do("POST", "/v1/principals/alice/deposit", "alice", map[string]string{"amount": "250.00"})
	if w.Code != http.StatusOK {
		t.Fatalf("deposit: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Post a gig
	w = s.do("POST", "/v1/gigs", "alice", map[string]string{
		"posterId": "alice",
		"title":    "Transcribe interview",
		"payment":  "200.00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("post: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var posted struct {
		Gig struct {
			ID string `json:"id"`
		} `json:"gig"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &posted); err != nil {
		t.Fatalf("parse posted gig: %v", err)
	}

	// Claim, submit, approve
	if w = s.do("POST", "/v1/gigs/"+posted.Gig.ID+"/claim", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w = s.do("POST", "/v1/gigs/"+posted.Gig.ID+"/submit", "bob", nil); w.Code != http.StatusOK {
		t.Fatalf("submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if w = s.do("POST", "/v1/gigs/"+posted.Gig.ID+"/approve", "alice", nil); w.Code != http.StatusOK {
		t.Fatalf("approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Worker received the payment minus commission
	w = s.do("GET", "/v1/principals/bob/balance", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("balance: expected 200, got %d", w.Code)
	}
	var bal struct {
		Balance struct {
			Available string `json:"available"`
		} `json:"balance"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &bal); err != nil {
		t.Fatalf("parse balance: %v", err)
	}
	if bal.Balance.Available != "190.00" {
		t.Errorf("Expected worker balance 190.00, got %s", bal.Balance.Available)
	}
}

func TestInvalidPrincipalParamRejected(t *testing.T) {
	s := newTestServer(t)

	w := s.do("GET", "/v1/principals/NOT%20OK/balance", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
