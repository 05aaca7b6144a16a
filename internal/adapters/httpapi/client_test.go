package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/reviewlab/syncward/internal/domain"
	"github.com/reviewlab/syncward/internal/ports"
)

func TestClient_PostSuccess(t *testing.T) {
	var gotBody []byte
	var gotAuth, gotContentType string

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret-key", srv.Client(), nil)
	err := c.Post(context.Background(), "/v1/sessions/s1/cells", []byte(`{"cells":[]}`))
	if err != nil {
		t.Fatalf("Post() error = %v", err)
	}

	if gotAuth != "Bearer secret-key" {
		t.Errorf("Authorization = %q, want Bearer secret-key", gotAuth)
	}
	if gotContentType != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", gotContentType)
	}
	if string(gotBody) != `{"cells":[]}` {
		t.Errorf("body = %q", gotBody)
	}
}

func TestClient_PostClassifiesResponses(t *testing.T) {
	tests := []struct {
		name      string
		code      int
		retryable bool
		conflict  bool
	}{
		{"server error", 500, true, false},
		{"rate limited", 429, true, false},
		{"conflict", 409, false, true},
		{"bad request", 400, false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				http.Error(w, "nope", tt.code)
			}))
			defer srv.Close()

			c := NewClient(srv.URL, "", srv.Client(), nil)
			err := c.Post(context.Background(), "/x", []byte("{}"))
			if err == nil {
				t.Fatal("Post() = nil, want error")
			}

			var se *domain.SendError
			if !errors.As(err, &se) {
				t.Fatalf("error %T is not a SendError", err)
			}
			if se.StatusCode != tt.code {
				t.Errorf("StatusCode = %d, want %d", se.StatusCode, tt.code)
			}
			if domain.IsRetryable(err) != tt.retryable {
				t.Errorf("IsRetryable = %v, want %v", domain.IsRetryable(err), tt.retryable)
			}
			if domain.IsConflict(err) != tt.conflict {
				t.Errorf("IsConflict = %v, want %v", domain.IsConflict(err), tt.conflict)
			}
		})
	}
}

func TestClient_TransportFailureIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close() // refuse connections

	c := NewClient(srv.URL, "", http.DefaultClient, nil)
	err := c.Post(context.Background(), "/x", []byte("{}"))
	if err == nil {
		t.Fatal("Post() = nil against a closed server")
	}
	if !domain.IsNetworkError(err) {
		t.Errorf("IsNetworkError = false for %v", err)
	}
}

func TestClient_FetchReviewState(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			t.Errorf("method = %s, want GET", r.Method)
		}
		if r.URL.Path != ports.ReviewStatusEndpoint("sess-1") {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"review_status":         "returned",
			"review_round":          2,
			"max_rounds":            3,
			"can_submit_for_review": false,
			"can_resubmit":          true,
			"review_feedback":       "needs more detail",
		})
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	state, err := c.FetchReviewState(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("FetchReviewState() error = %v", err)
	}

	if state.Status != domain.ReviewReturned {
		t.Errorf("Status = %v, want returned", state.Status)
	}
	if state.Round != 2 || state.MaxRounds != 3 {
		t.Errorf("rounds = %d/%d, want 2/3", state.Round, state.MaxRounds)
	}
	if !state.CanResubmit || state.CanSubmit {
		t.Errorf("can flags = submit:%v resubmit:%v", state.CanSubmit, state.CanResubmit)
	}
	if state.Feedback != "needs more detail" {
		t.Errorf("Feedback = %q", state.Feedback)
	}
}

func TestClient_FetchReviewStateErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", srv.Client(), nil)
	_, err := c.FetchReviewState(context.Background(), "sess-1")

	var se *domain.SendError
	if !errors.As(err, &se) || se.StatusCode != 404 {
		t.Errorf("error = %v, want SendError 404", err)
	}
}
