package protocol

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
)

// startBackend runs a websocket server that replies to every received
// envelope with the frames in replies, then records what it received on
// the returned channel.
func startBackend(t *testing.T, replies [][]byte) (url string, received <-chan []byte) {
	t.Helper()

	recv := make(chan []byte, 16)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "")

		ctx := r.Context()
		for _, rep := range replies {
			if err := conn.Write(ctx, websocket.MessageText, rep); err != nil {
				return
			}
		}
		for {
			_, data, err := conn.Read(ctx)
			if err != nil {
				return
			}
			recv <- data
		}
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http"), recv
}

func TestSocket_SendDeliversEnvelope(t *testing.T) {
	t.Parallel()

	url, received := startBackend(t, nil)

	e := NewEngine(EngineConfig{})
	sock, err := DialSocket(context.Background(), url, e)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	t.Cleanup(func() { _ = sock.Close() })

	env, err := e.SessionStart(InferenceConfig{})
	if err != nil {
		t.Fatalf("SessionStart: %v", err)
	}
	if err := sock.Send(env); err != nil {
		t.Fatalf("Send: %v", err)
	}

	select {
	case data := <-received:
		var decoded map[string]map[string]json.RawMessage
		if err := json.Unmarshal(data, &decoded); err != nil {
			t.Fatalf("backend received invalid JSON: %v", err)
		}
		if _, ok := decoded["event"]["sessionStart"]; !ok {
			t.Errorf("backend received %s, want a sessionStart envelope", data)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for envelope at backend")
	}
}

func TestSocket_InboundReachesEngine(t *testing.T) {
	t.Parallel()

	pcm := base64.StdEncoding.EncodeToString([]byte{0x00, 0x40})
	reply := []byte(`{"event":{"audioOutput":{"content":"` + pcm + `"}}}`)
	url, _ := startBackend(t, [][]byte{reply})

	fr := &fakeRenderer{}
	pushed := make(chan struct{}, 1)
	e := NewEngine(EngineConfig{Renderer: notifyingRenderer{fr, pushed}})

	sock, err := DialSocket(context.Background(), url, e)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	t.Cleanup(func() { _ = sock.Close() })

	select {
	case <-pushed:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for inbound audio to reach the renderer")
	}
}

func TestSocket_SendAfterCloseFails(t *testing.T) {
	t.Parallel()

	url, _ := startBackend(t, nil)

	e := NewEngine(EngineConfig{})
	sock, err := DialSocket(context.Background(), url, e)
	if err != nil {
		t.Fatalf("DialSocket: %v", err)
	}
	if err := sock.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	_ = sock.Close() // idempotent

	env, _ := e.SessionStart(InferenceConfig{})
	if err := sock.Send(env); err == nil {
		t.Error("Send after Close succeeded, want error")
	}
}

// notifyingRenderer signals a channel on the first push so tests can wait
// without polling.
type notifyingRenderer struct {
	inner  *fakeRenderer
	pushed chan struct{}
}

func (n notifyingRenderer) Push(samples []float32) {
	n.inner.Push(samples)
	select {
	case n.pushed <- struct{}{}:
	default:
	}
}

func (n notifyingRenderer) Clear() { n.inner.Clear() }
