package transport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// signalingTimeout bounds the SDP exchange round trip.
const signalingTimeout = 10 * time.Second

// SignalRequest is the POST body for the signaling endpoint: the local SDP
// offer plus the peer identifier from a previous connection, if any, so the
// server can associate the reconnection with the same session.
type SignalRequest struct {
	SDP    string `json:"sdp"`
	Type   string `json:"type"`
	PeerID string `json:"peerId,omitempty"`
}

// SignalResponse is the endpoint's answer: the remote SDP and the
// server-assigned peer identifier.
type SignalResponse struct {
	SDP    string `json:"sdp"`
	Type   string `json:"type"`
	PeerID string `json:"peerId,omitempty"`
}

// SignalingClient exchanges SDP descriptions with the signaling endpoint
// over HTTP POST.
type SignalingClient struct {
	endpoint string
	client   *http.Client
}

// NewSignalingClient creates a client for the given endpoint URL. A nil
// httpClient selects a default with a bounded timeout.
func NewSignalingClient(endpoint string, httpClient *http.Client) *SignalingClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: signalingTimeout}
	}
	return &SignalingClient{endpoint: endpoint, client: httpClient}
}

// Exchange posts the offer and returns the answer. The request is bound to
// ctx, so an explicit disconnect cancels an in-flight exchange.
func (c *SignalingClient) Exchange(ctx context.Context, req SignalRequest) (*SignalResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("transport: marshal signal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("transport: build signal request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("transport: signal %q: %w", c.endpoint, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("transport: signal %q: status %d: %s", c.endpoint, resp.StatusCode, snippet)
	}

	var out SignalResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("transport: decode signal response: %w", err)
	}
	if out.SDP == "" {
		return nil, fmt.Errorf("transport: signal response missing sdp")
	}
	return &out, nil
}
