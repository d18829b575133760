package gig

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
)

func setupHandlerTestRouter(t *testing.T) (*gin.Engine, *Service, *mockLedger) {
	gin.SetMode(gin.TestMode)

	store := NewMemoryStore()
	ml := newMockLedger()
	svc := newTestService(store, ml)
	handler := NewHandler(svc)

	r := gin.New()
	v1 := r.Group("/v1")
	handler.RegisterRoutes(v1)

	return r, svc, ml
}

func doJSON(t *testing.T, router *gin.Engine, method, path, principal string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if principal != "" {
		req.Header.Set("X-Principal", principal)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func decodeGig(t *testing.T, w *httptest.ResponseRecorder) *Gig {
	t.Helper()
	var resp struct {
		Gig *Gig `json:"gig"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("parse response: %v (%s)", err, w.Body.String())
	}
	return resp.Gig
}

func TestHandler_FullLifecycle(t *testing.T) {
	router, _, ml := setupHandlerTestRouter(t)
	ml.deposit(t, "alice", "250.00")

	// Post
	w := doJSON(t, router, "POST", "/v1/gigs", "alice", PostRequest{
		PosterID: "alice", Title: "translate a document", Payment: "200.00",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("Post: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	g := decodeGig(t, w)
	if g.Status != StatusOpen {
		t.Errorf("Expected open, got %s", g.Status)
	}

	// Claim
	w = doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/claim", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Claim: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	// Submit
	w = doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/submit", "bob", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Submit: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeGig(t, w).Status != StatusPendingApproval {
		t.Error("Expected pending_approval after submit")
	}

	// Approve
	w = doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/approve", "alice", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Approve: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeGig(t, w).Status != StatusCompleted {
		t.Error("Expected completed after approve")
	}

	if got := ml.balance("bob"); got != cents(t, "190.00") {
		t.Errorf("Expected bob paid 190.00, got %d cents", got)
	}
}

func TestHandler_PostValidation(t *testing.T) {
	router, _, ml := setupHandlerTestRouter(t)
	ml.deposit(t, "alice", "10.00")

	// Missing required fields
	w := doJSON(t, router, "POST", "/v1/gigs", "alice", map[string]string{"posterId": "alice"})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing fields, got %d", w.Code)
	}

	// Caller must match the poster
	w = doJSON(t, router, "POST", "/v1/gigs", "mallory", PostRequest{
		PosterID: "alice", Title: "t", Payment: "5.00",
	})
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for mismatched principal, got %d", w.Code)
	}

	// Insufficient funds
	w = doJSON(t, router, "POST", "/v1/gigs", "alice", PostRequest{
		PosterID: "alice", Title: "t", Payment: "500.00",
	})
	if w.Code != http.StatusPaymentRequired {
		t.Errorf("Expected 402 for insufficient funds, got %d: %s", w.Code, w.Body.String())
	}
}

func TestHandler_ErrorMapping(t *testing.T) {
	router, svc, ml := setupHandlerTestRouter(t)
	ml.deposit(t, "alice", "250.00")

	g, err := svc.Post(context.Background(), PostRequest{
		PosterID: "alice", Title: "t", Payment: "200.00",
	})
	if err != nil {
		t.Fatalf("Post failed: %v", err)
	}

	// 404 for unknown gig
	w := doJSON(t, router, "POST", "/v1/gigs/gig_ghost/claim", "bob", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404 for unknown gig, got %d", w.Code)
	}

	// 400 without a principal header
	w = doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/claim", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing principal, got %d", w.Code)
	}

	// 403 for poster claiming their own gig
	w = doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/claim", "alice", nil)
	if w.Code != http.StatusForbidden {
		t.Errorf("Expected 403 for self-claim, got %d", w.Code)
	}

	// 409 for an out-of-order transition
	w = doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/approve", "alice", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("Expected 409 for approve on open gig, got %d", w.Code)
	}

	var resp struct {
		Error string `json:"error"`
	}
	json.Unmarshal(w.Body.Bytes(), &resp)
	if resp.Error != "invalid_state" {
		t.Errorf("Expected error code invalid_state, got %s", resp.Error)
	}
}

func TestHandler_RejectRequiresReason(t *testing.T) {
	router, svc, ml := setupHandlerTestRouter(t)
	ml.deposit(t, "alice", "250.00")
	ctx := context.Background()

	g, _ := svc.Post(ctx, PostRequest{PosterID: "alice", Title: "t", Payment: "200.00"})
	svc.Claim(ctx, g.ID, "bob")
	svc.Submit(ctx, g.ID, "bob")

	w := doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/reject", "alice", map[string]string{})
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for missing reason, got %d", w.Code)
	}

	w = doJSON(t, router, "POST", "/v1/gigs/"+g.ID+"/reject", "alice", RejectRequest{Reason: "redo it"})
	if w.Code != http.StatusOK {
		t.Fatalf("Reject: expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if decodeGig(t, w).Status != StatusInProgress {
		t.Error("Expected in_progress after reject")
	}
}

func TestHandler_Listings(t *testing.T) {
	router, svc, ml := setupHandlerTestRouter(t)
	ml.deposit(t, "alice", "500.00")
	ctx := context.Background()

	g1, _ := svc.Post(ctx, PostRequest{PosterID: "alice", Title: "a", Payment: "100.00"})
	g2, _ := svc.Post(ctx, PostRequest{PosterID: "alice", Title: "b", Payment: "100.00"})
	svc.Claim(ctx, g2.ID, "bob")

	// Default listing returns open gigs
	w := doJSON(t, router, "GET", "/v1/gigs", "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("List: expected 200, got %d", w.Code)
	}
	var listResp struct {
		Gigs  []*Gig `json:"gigs"`
		Count int    `json:"count"`
	}
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Count != 1 || listResp.Gigs[0].ID != g1.ID {
		t.Errorf("Expected only %s open, got %+v", g1.ID, listResp)
	}

	// Filter by status
	w = doJSON(t, router, "GET", "/v1/gigs?status=in_progress", "", nil)
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Count != 1 || listResp.Gigs[0].ID != g2.ID {
		t.Errorf("Expected only %s in progress, got %+v", g2.ID, listResp)
	}

	// Unknown status rejected
	w = doJSON(t, router, "GET", "/v1/gigs?status=bogus", "", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 for unknown status, got %d", w.Code)
	}

	// By principal covers both roles
	w = doJSON(t, router, "GET", "/v1/principals/bob/gigs", "", nil)
	json.Unmarshal(w.Body.Bytes(), &listResp)
	if listResp.Count != 1 || listResp.Gigs[0].ID != g2.ID {
		t.Errorf("Expected bob's claimed gig, got %+v", listResp)
	}
}

func TestHandler_GetGig(t *testing.T) {
	router, svc, ml := setupHandlerTestRouter(t)
	ml.deposit(t, "alice", "250.00")
	ctx := context.Background()

	g, _ := svc.Post(ctx, PostRequest{PosterID: "alice", Title: "t", Payment: "200.00"})

	w := doJSON(t, router, "GET", "/v1/gigs/"+g.ID, "", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d", w.Code)
	}
	if decodeGig(t, w).ID != g.ID {
		t.Error("Expected the posted gig")
	}

	w = doJSON(t, router, "GET", "/v1/gigs/gig_ghost", "", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", w.Code)
	}
}
