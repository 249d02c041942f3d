package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSignalingClient_Exchange(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s, want POST", r.Method)
		}
		if ct := r.Header.Get("Content-Type"); ct != "application/json" {
			t.Errorf("content type = %q", ct)
		}
		var req SignalRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.Type != "offer" || req.SDP == "" {
			t.Errorf("request = %+v", req)
		}
		_ = json.NewEncoder(w).Encode(SignalResponse{SDP: "v=0", Type: "answer", PeerID: "p1"})
	}))
	defer srv.Close()

	c := NewSignalingClient(srv.URL, nil)
	resp, err := c.Exchange(context.Background(), SignalRequest{SDP: "v=0 offer", Type: "offer"})
	if err != nil {
		t.Fatalf("Exchange: %v", err)
	}
	if resp.SDP != "v=0" || resp.PeerID != "p1" {
		t.Errorf("response = %+v", resp)
	}
}

func TestSignalingClient_ExchangeErrors(t *testing.T) {
	t.Parallel()

	t.Run("non-200 status", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "session limit reached", http.StatusTooManyRequests)
		}))
		defer srv.Close()

		c := NewSignalingClient(srv.URL, nil)
		_, err := c.Exchange(context.Background(), SignalRequest{SDP: "v=0", Type: "offer"})
		if err == nil {
			t.Fatal("expected error for non-200 response")
		}
		if !strings.Contains(err.Error(), "session limit reached") {
			t.Errorf("error lacks response body snippet: %v", err)
		}
	})

	t.Run("empty answer sdp", func(t *testing.T) {
		t.Parallel()
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_ = json.NewEncoder(w).Encode(SignalResponse{Type: "answer"})
		}))
		defer srv.Close()

		c := NewSignalingClient(srv.URL, nil)
		_, err := c.Exchange(context.Background(), SignalRequest{SDP: "v=0", Type: "offer"})
		if err == nil {
			t.Fatal("expected error for empty answer SDP")
		}
	})

	t.Run("unreachable endpoint", func(t *testing.T) {
		t.Parallel()
		c := NewSignalingClient("http://127.0.0.1:1", nil)
		_, err := c.Exchange(context.Background(), SignalRequest{SDP: "v=0", Type: "offer"})
		if err == nil {
			t.Fatal("expected error for unreachable endpoint")
		}
	})
}
