package analysis

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/your-org/dermascan/internal/config"
	"github.com/your-org/dermascan/internal/profile"
)

func newTestClient(url string) *Client {
	return NewClient(config.AnalysisConfig{BaseURL: url})
}

func TestAnalyzeSuccess(t *testing.T) {
	var got Request
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/analyze" {
			t.Errorf("Expected POST /analyze, got %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"analysis":{"safe":true,"total_ingredients_checked":5},
			"product_info":{"title":"Gentle Cleanser","brand":"Acme"},"ingredients_analyzed":["water","glycerin"]}`))
	}))
	defer server.Close()

	p := &profile.Profile{AgeGroup: profile.Age18To32, Gender: profile.GenderFemale, SkinType: profile.SkinDry}
	out, err := newTestClient(server.URL).Analyze(context.Background(), Request{Barcode: "0036000291452", UserProfile: p})
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if out.Kind != Success {
		t.Fatalf("Expected Success, got %s (%s)", out.Kind, out.Message)
	}
	if !out.Result.Safe {
		t.Error("Expected result.safe to be true")
	}
	if out.Result.TotalIngredientsChecked != 5 {
		t.Errorf("Expected 5 ingredients checked, got %d", out.Result.TotalIngredientsChecked)
	}
	if out.Product == nil || out.Product.Title != "Gentle Cleanser" {
		t.Errorf("Expected product info, got %+v", out.Product)
	}
	if len(out.Ingredients) != 2 {
		t.Errorf("Expected 2 analyzed ingredients, got %v", out.Ingredients)
	}
	if len(out.Result.Raw) == 0 {
		t.Error("Expected raw payload to be kept")
	}

	if got.Barcode != "0036000291452" {
		t.Errorf("Expected barcode sent unmodified, got '%s'", got.Barcode)
	}
	if got.UserProfile == nil || got.UserProfile.SkinType != profile.SkinDry {
		t.Errorf("Expected user profile in body, got %+v", got.UserProfile)
	}
}

func TestAnalyzeFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		req      Request
		wantErr  error
		contains []string
	}{
		{
			name:     "SoftFailureWithMessage",
			status:   http.StatusOK,
			body:     `{"success":false,"error":"No ingredients found"}`,
			req:      Request{Ingredients: "water"},
			wantErr:  ErrSoftFailure,
			contains: []string{"No ingredients found"},
		},
		{
			name:     "SoftFailureGeneric",
			status:   http.StatusOK,
			body:     `{"success":false}`,
			req:      Request{Ingredients: "water"},
			wantErr:  ErrSoftFailure,
			contains: []string{"Analysis failed"},
		},
		{
			name:     "NotFound",
			status:   http.StatusNotFound,
			body:     `{"error":"Product not found in either UPCItemDB or INCI Beauty"}`,
			req:      Request{Barcode: "0123456789012"},
			wantErr:  ErrNotFound,
			contains: []string{"0123456789012", "not found"},
		},
		{
			name:     "BadRequestWithMessage",
			status:   http.StatusBadRequest,
			body:     `{"error":"No ingredients found to analyze"}`,
			req:      Request{Barcode: "12345678"},
			wantErr:  ErrInvalidInput,
			contains: []string{"Invalid input", "No ingredients found to analyze"},
		},
		{
			name:     "BadRequestNoBody",
			status:   http.StatusBadRequest,
			body:     ``,
			req:      Request{Ingredients: "water"},
			wantErr:  ErrInvalidInput,
			contains: []string{"Invalid data provided"},
		},
		{
			name:     "ServerError",
			status:   http.StatusInternalServerError,
			body:     `{"error":"Internal server error"}`,
			req:      Request{Barcode: "12345678"},
			wantErr:  ErrServerError,
			contains: []string{"500"},
		},
		{
			name:     "BadGatewayHTML",
			status:   http.StatusBadGateway,
			body:     `<html>bad gateway</html>`,
			req:      Request{Barcode: "12345678"},
			wantErr:  ErrServerError,
			contains: []string{"502"},
		},
		{
			name:     "UnparseableSuccess",
			status:   http.StatusOK,
			body:     `not json`,
			req:      Request{Barcode: "12345678"},
			wantErr:  ErrServerError,
			contains: []string{"200"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			out, err := newTestClient(server.URL).Analyze(context.Background(), tt.req)
			if err != nil {
				t.Fatalf("Expected an outcome, got error %v", err)
			}
			if out.Kind != Failure {
				t.Fatalf("Expected Failure, got %s", out.Kind)
			}
			if !errors.Is(out.Err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, out.Err)
			}
			for _, s := range tt.contains {
				if !strings.Contains(out.Message, s) {
					t.Errorf("Expected message to contain '%s', got '%s'", s, out.Message)
				}
			}
		})
	}
}

func TestAnalyzeUnreachable(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := ln.Addr().String()
	ln.Close()

	out, err := newTestClient("http://"+addr).Analyze(context.Background(), Request{Barcode: "12345678"})
	if err != nil {
		t.Fatalf("Expected an outcome, got error %v", err)
	}
	if out.Kind != Failure || !errors.Is(out.Err, ErrUnreachable) {
		t.Errorf("Expected unreachable failure, got %s %v", out.Kind, out.Err)
	}
	if !strings.Contains(out.Message, "Cannot reach") {
		t.Errorf("Expected reachability message, got '%s'", out.Message)
	}
}

func TestAnalyzeTimeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	c := NewClient(config.AnalysisConfig{BaseURL: server.URL, Timeout: 50 * time.Millisecond})
	out, err := c.Analyze(context.Background(), Request{Barcode: "12345678"})
	if err != nil {
		t.Fatalf("Expected an outcome, got error %v", err)
	}
	if !errors.Is(out.Err, ErrUnreachable) {
		t.Errorf("Expected a timeout to count as unreachable, got %v", out.Err)
	}
}

func TestAnalyzeInvalidRequest(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	for _, req := range []Request{
		{},
		{Barcode: "123", Ingredients: "water"},
		{Barcode: "   "},
		{Ingredients: "\n\t"},
	} {
		if _, err := c.Analyze(context.Background(), req); !errors.Is(err, ErrInvalidRequest) {
			t.Errorf("Expected ErrInvalidRequest for %+v, got %v", req, err)
		}
	}
	if n := calls.Load(); n != 0 {
		t.Errorf("Expected no network calls, got %d", n)
	}
}

func TestAnalyzeBusy(t *testing.T) {
	var calls atomic.Int32
	entered := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			close(entered)
		}
		<-release
		_, _ = w.Write([]byte(`{"success":true,"analysis":{"safe":false}}`))
	}))
	defer server.Close()

	c := newTestClient(server.URL)
	done := make(chan error, 1)
	go func() {
		_, err := c.Analyze(context.Background(), Request{Barcode: "12345678"})
		done <- err
	}()

	<-entered
	if !c.Busy() {
		t.Error("Expected client to report busy")
	}
	if _, err := c.Analyze(context.Background(), Request{Ingredients: "water"}); !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got %v", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Expected first call to succeed, got %v", err)
	}
	if n := calls.Load(); n != 1 {
		t.Errorf("Expected 1 network call, got %d", n)
	}

	// The slot frees up once the first call returns.
	if _, err := c.Analyze(context.Background(), Request{Ingredients: "water"}); err != nil {
		t.Errorf("Expected call after completion to go through, got %v", err)
	}
}

func TestAnalyzeCanceled(t *testing.T) {
	entered := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// The server only notices a client disconnect once the body is consumed.
		_, _ = io.Copy(io.Discard, r.Body)
		close(entered)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-entered
		cancel()
	}()

	out, err := newTestClient(server.URL).Analyze(ctx, Request{Barcode: "12345678"})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("Expected context.Canceled, got %v", err)
	}
	if out != nil {
		t.Errorf("Expected stale result to be discarded, got %+v", out)
	}
}

func TestHealth(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(`{"status":"healthy"}`))
	}))
	defer server.Close()

	if err := newTestClient(server.URL + "/").Health(context.Background()); err != nil {
		t.Errorf("Expected healthy, got %v", err)
	}

	down := newTestClient("http://127.0.0.1:1")
	if err := down.Health(context.Background()); !errors.Is(err, ErrUnreachable) {
		t.Errorf("Expected ErrUnreachable, got %v", err)
	}
}
