package deepgram

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/gorilla/websocket"
)

// speakRequest is a single Speak/Flush exchange on a speak socket.
type speakRequest struct {
	ws *websocket.Conn
	mu sync.Mutex

	closed bool
}

type websocketMessage struct {
	Type string `json:"type"`
}

type speakMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

var (
	flushMsg = websocketMessage{Type: "Flush"}
	closeMsg = websocketMessage{Type: "Close"}
)

func speakMsg(text string) speakMessage {
	return speakMessage{Type: "Speak", Text: text}
}

func (r *speakRequest) send(msg any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed || r.ws == nil {
		return fmt.Errorf("websocket connection closed")
	}

	if err := r.ws.WriteJSON(msg); err != nil {
		return fmt.Errorf("failed to write to websocket: %w", err)
	}
	return nil
}

// collect reads audio until the service confirms the flush.
func (r *speakRequest) collect() ([]byte, error) {
	pcm := []byte{}
	for {
		msgType, msg, err := r.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) && len(pcm) > 0 {
				return pcm, nil
			}
			return nil, fmt.Errorf("failed to read from websocket: %w", err)
		}

		switch msgType {
		case websocket.BinaryMessage:
			pcm = append(pcm, msg...)
		case websocket.TextMessage:
			var parsedMsg struct {
				Type        string `json:"type"`
				Description string `json:"description"`
			}
			if err := json.Unmarshal(msg, &parsedMsg); err != nil {
				logger.Debug("failed to unmarshal deepgram message", "error", err)
				continue
			}

			switch parsedMsg.Type {
			case "Flushed":
				return pcm, nil
			case "Warning":
				logger.Warn("deepgram warning", "description", parsedMsg.Description)
			case "Error":
				return nil, fmt.Errorf("deepgram error: %s", parsedMsg.Description)
			}
		}
	}
}

func (r *speakRequest) close() {
	err := r.send(closeMsg)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if closeErr := r.ws.Close(); closeErr != nil && err != nil {
		logger.Debug("failed to close websocket", "error", errors.Join(err, closeErr))
	}
}
