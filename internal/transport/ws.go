package transport

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagewarden/warden/internal/agent"
)

// wsPushInterval bounds how often a subscribed connection is polled for new
// chunks. Supplemental to spec §6's request/response get_updates: consumers
// that want push delivery instead of polling can open this socket, grounded
// on the teacher's internal/gateway/ws_control_plane.go's use of
// github.com/gorilla/websocket for a long-lived control connection.
const wsPushInterval = 150 * time.Millisecond

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

type wsSubscribeRequest struct {
	ConversationID string `json:"conversation_id"`
}

type wsFrame struct {
	Type     string              `json:"type"` // "update" | "error"
	Chunks   []agent.StreamChunk `json:"chunks,omitempty"`
	Status   agent.Status        `json:"status,omitempty"`
	FullText string              `json:"full_text,omitempty"`
	Message  string              `json:"message,omitempty"`
}

// HandleWS upgrades the connection, reads one subscribe frame naming a
// conversation, then pushes get_updates-equivalent frames until the
// conversation reaches a terminal status or the client disconnects.
func (s *Server) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("transport: ws upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	var sub wsSubscribeRequest
	if err := conn.ReadJSON(&sub); err != nil {
		return
	}
	if sub.ConversationID == "" {
		_ = conn.WriteJSON(wsFrame{Type: "error", Message: "conversation_id is required"})
		return
	}

	ticker := time.NewTicker(wsPushInterval)
	defer ticker.Stop()

	for range ticker.C {
		chunks, status, fullText, err := s.orchestrator.Poll(sub.ConversationID)
		if err != nil {
			_ = conn.WriteJSON(wsFrame{Type: "error", Message: err.Error()})
			return
		}
		if len(chunks) > 0 || status != agent.StatusStreaming {
			if err := conn.WriteJSON(wsFrame{Type: "update", Chunks: chunks, Status: status, FullText: fullText}); err != nil {
				return
			}
		}
		if status != agent.StatusStreaming {
			return
		}
	}
}
