package api

import (
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"

	"golang.org/x/net/websocket"

	"keyprint/internal/identify"
	"keyprint/internal/keystroke"
)

func dialStream(t *testing.T, h *httptest.Server, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.URL, "http") + "/capture/stream"
	config, err := websocket.NewConfig(url, "http://localhost/")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if token != "" {
		config.Header.Set("Authorization", "Bearer "+token)
	}
	ws, err := websocket.DialConfig(config)
	if err != nil {
		t.Fatalf("DialConfig: %v", err)
	}
	t.Cleanup(func() { ws.Close() })
	return ws
}

func sendEvents(t *testing.T, ws *websocket.Conn, events []keystroke.KeyEvent) {
	t.Helper()
	for _, e := range events {
		frame := streamFrame{
			Key:       e.Key,
			Code:      e.Code,
			Timestamp: e.Timestamp,
			Modifiers: e.Modifiers,
		}
		if err := websocket.JSON.Send(ws, frame); err != nil {
			t.Fatalf("sending frame: %v", err)
		}
	}
}

func TestCaptureStream_DecisionAfterBatch(t *testing.T) {
	handler, mgr := setupAppHandler(t, testToken)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	events := typedEvents(pangram, 100, 80)
	p, err := mgr.Enroll("alice", events)
	if err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	ws := dialStream(t, srv, testToken)
	sendEvents(t, ws, events[:mgr.MinEvents()])

	var resp PredictResponse
	if err := websocket.JSON.Receive(ws, &resp); err != nil {
		t.Fatalf("receiving decision: %v", err)
	}
	if resp.Match == nil {
		t.Fatalf("Match = nil, want profile (band %q, confidence %v)", resp.Band, resp.Confidence)
	}
	if resp.Match.ProfileID != p.ID {
		t.Errorf("matched %q, want %q", resp.Match.ProfileID, p.ID)
	}
}

func TestCaptureStream_ResetClearsBuffer(t *testing.T) {
	handler, mgr := setupAppHandler(t, testToken)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	events := typedEvents(pangram, 100, 80)
	if _, err := mgr.Enroll("bob", events); err != nil {
		t.Fatalf("Enroll: %v", err)
	}

	ws := dialStream(t, srv, testToken)

	// Partial batch, then reset, then a full batch. Only one decision comes
	// back, proving the pre-reset events were discarded.
	sendEvents(t, ws, events[:10])
	if err := websocket.JSON.Send(ws, streamFrame{Reset: true}); err != nil {
		t.Fatalf("sending reset: %v", err)
	}
	sendEvents(t, ws, events[:75])

	var resp PredictResponse
	if err := websocket.JSON.Receive(ws, &resp); err != nil {
		t.Fatalf("receiving decision: %v", err)
	}
	if resp.EventCount != 75 {
		t.Errorf("decision EventCount = %d, want 75", resp.EventCount)
	}
}

func TestCaptureStream_EmptyGallery(t *testing.T) {
	handler, _ := setupAppHandler(t, testToken)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	ws := dialStream(t, srv, testToken)
	sendEvents(t, ws, typedEvents(pangram, 100, 80)[:75])

	var raw json.RawMessage
	if err := websocket.JSON.Receive(ws, &raw); err != nil {
		t.Fatalf("receiving frame: %v", err)
	}
	var resp PredictResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		t.Fatalf("decoding frame %s: %v", raw, err)
	}
	if resp.Match != nil || resp.Band != identify.BandNone {
		t.Errorf("frame = %s, want no-match decision", raw)
	}
}

func TestCaptureStream_RequiresAuth(t *testing.T) {
	handler, _ := setupAppHandler(t, testToken)
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/capture/stream"
	config, err := websocket.NewConfig(url, "http://localhost/")
	if err != nil {
		t.Fatalf("NewConfig: %v", err)
	}
	if _, err := websocket.DialConfig(config); err == nil {
		t.Fatal("dial without token succeeded, want handshake failure")
	}
}
