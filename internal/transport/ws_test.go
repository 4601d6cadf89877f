package transport

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

func TestHandleWS_PushesUntilTerminal(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()

	rec := postJSON(t, srv.Mux(), "/v1/start_conversation", startConversationRequest{ConversationID: "ws-1", Prompt: "hi", TargetID: "t1"})
	if rec.Code != 202 {
		t.Fatalf("start status = %d, want 202", rec.Code)
	}

	if err := conn.WriteJSON(wsSubscribeRequest{ConversationID: "ws-1"}); err != nil {
		t.Fatalf("WriteJSON error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var last wsFrame
	for {
		var frame wsFrame
		if err := conn.ReadJSON(&frame); err != nil {
			t.Fatalf("ReadJSON error: %v", err)
		}
		last = frame
		if frame.Type == "error" {
			t.Fatalf("unexpected error frame: %+v", frame)
		}
		if frame.Status == "completed" || frame.Status == "error" {
			break
		}
	}
	if last.FullText != "hello" {
		t.Errorf("FullText = %q, want %q", last.FullText, "hello")
	}
}

func TestHandleWS_RequiresConversationID(t *testing.T) {
	srv := newTestServer(t, nil)
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("Dial error: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(wsSubscribeRequest{}); err != nil {
		t.Fatalf("WriteJSON error: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var frame wsFrame
	if err := conn.ReadJSON(&frame); err != nil {
		t.Fatalf("ReadJSON error: %v", err)
	}
	if frame.Type != "error" {
		t.Errorf("Type = %q, want %q", frame.Type, "error")
	}
}
