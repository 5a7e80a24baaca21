package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/Sgtscottadams/ab-poller/internal/models"
)

// Stream frame types
const (
	FrameTypeConnected = "connected"
	FrameTypeEvent     = "event"
	FrameTypeClosed    = "closed"
)

const (
	streamWriteTimeout = 10 * time.Second
	streamPingInterval = 30 * time.Second
)

// StreamFrame wraps one message on the monitor event stream
type StreamFrame struct {
	Type      string              `json:"type" msgpack:"type"`
	SessionID string              `json:"session_id,omitempty" msgpack:"session_id,omitempty"`
	Event     *models.ChangeEvent `json:"event,omitempty" msgpack:"event,omitempty"`
	Timestamp int64               `json:"timestamp" msgpack:"timestamp"`
}

// StreamHandler pushes live change events to WebSocket clients
type StreamHandler struct {
	sessions SessionManager
	upgrader websocket.Upgrader
}

// NewStreamHandler creates a new monitor stream handler
func NewStreamHandler(sessions SessionManager) *StreamHandler {
	return &StreamHandler{
		sessions: sessions,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Local tool, same-host frontend
				return true
			},
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
		},
	}
}

// HandleMonitorStream upgrades the connection and relays one session's
// change events until the client leaves or the session ends.
// ?format=msgpack switches frames to binary msgpack encoding.
func (sh *StreamHandler) HandleMonitorStream(c echo.Context) error {
	id := c.Param("id")
	if id == "" {
		return NewValidationError("id")
	}
	useMsgpack := c.QueryParam("format") == "msgpack"

	events, cancel, ok := sh.sessions.Subscribe(id)
	if !ok {
		return NewNotFoundError("monitor session", id)
	}
	defer cancel()

	ws, err := sh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	fmt.Printf("[Stream] Client attached to session %s\n", id)

	if err := sh.writeFrame(ws, useMsgpack, StreamFrame{
		Type:      FrameTypeConnected,
		SessionID: id,
		Timestamp: time.Now().UnixMilli(),
	}); err != nil {
		return nil
	}

	// Drain client messages so close frames and pongs are processed.
	clientGone := make(chan struct{})
	go func() {
		defer close(clientGone)
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(streamPingInterval)
	defer ping.Stop()

	for {
		select {
		case <-clientGone:
			fmt.Printf("[Stream] Client left session %s\n", id)
			return nil
		case <-ping.C:
			ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
			if err := ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return nil
			}
		case ev, open := <-events:
			if !open {
				// Session stopped; tell the client before closing.
				sh.writeFrame(ws, useMsgpack, StreamFrame{
					Type:      FrameTypeClosed,
					SessionID: id,
					Timestamp: time.Now().UnixMilli(),
				})
				fmt.Printf("[Stream] Session %s ended, closing client\n", id)
				return nil
			}
			if err := sh.writeFrame(ws, useMsgpack, StreamFrame{
				Type:      FrameTypeEvent,
				SessionID: id,
				Event:     &ev,
				Timestamp: time.Now().UnixMilli(),
			}); err != nil {
				return nil
			}
		}
	}
}

func (sh *StreamHandler) writeFrame(ws *websocket.Conn, useMsgpack bool, frame StreamFrame) error {
	ws.SetWriteDeadline(time.Now().Add(streamWriteTimeout))
	if useMsgpack {
		data, err := msgpack.Marshal(frame)
		if err != nil {
			return err
		}
		return ws.WriteMessage(websocket.BinaryMessage, data)
	}
	return ws.WriteJSON(frame)
}
