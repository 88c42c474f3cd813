package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/eugenenazirov/metar-view/internal/view"
)

// Live message types.
const (
	MessageTypeView    = "view"    // server -> client: rendered view fragment
	MessageTypeError   = "error"   // server -> client: rejected request
	MessageTypeSelect  = "select"  // client -> server: change selection
	MessageTypeRefresh = "refresh" // client -> server: re-fetch current selection
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
)

// Message is the envelope the server pushes over the live connection.
type Message struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// inboundMessage is a client request; Data is decoded per Type.
type inboundMessage struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type selectPayload struct {
	ICAO string `json:"icao"`
}

type liveClient struct {
	conn       *websocket.Conn
	controller *view.Controller
	renderer   *view.Renderer
	touch      func()
	logger     *zap.Logger
	replies    chan Message
	done       chan struct{}
}

func (h *Handler) handleLive(w http.ResponseWriter, r *http.Request) {
	sessionID, controller, ok := h.session(w, r)
	if !ok {
		return
	}

	// The upgrade response is written by the upgrader, so carry the
	// session cookie and middleware headers over explicitly.
	conn, err := h.upgrader.Upgrade(w, r, w.Header().Clone())
	if err != nil {
		h.logger.Warn("failed to upgrade live connection", zap.Error(err), zap.String("remote_addr", r.RemoteAddr))
		return
	}

	client := &liveClient{
		conn:       conn,
		controller: controller,
		renderer:   h.renderer,
		touch:      func() { h.sessions.Touch(sessionID) },
		logger:     h.logger.With(zap.String("remote_addr", r.RemoteAddr)),
		replies:    make(chan Message, 8),
		done:       make(chan struct{}),
	}
	client.logger.Debug("live connection opened")

	updates, unsubscribe := controller.Subscribe()
	defer unsubscribe()

	go client.readPump()
	client.writePump(updates)
	client.logger.Debug("live connection closed")
}

// readPump handles inbound messages until the connection fails.
func (c *liveClient) readPump() {
	defer close(c.done)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.touch()
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("live read error", zap.Error(err))
			}
			return
		}

		var msg inboundMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			c.reply(errorMessage("malformed message"))
			continue
		}
		c.touch()
		c.handleMessage(msg)
	}
}

func (c *liveClient) handleMessage(msg inboundMessage) {
	switch msg.Type {
	case MessageTypeSelect:
		var payload selectPayload
		if len(msg.Data) == 0 {
			c.reply(errorMessage("select requires data.icao"))
			return
		}
		if err := json.Unmarshal(msg.Data, &payload); err != nil {
			c.reply(errorMessage("malformed select payload: data.icao must be a string"))
			return
		}
		if err := c.controller.Select(payload.ICAO); err != nil {
			c.reply(errorMessage(err.Error()))
		}
	case MessageTypeRefresh:
		c.controller.Refresh()
	default:
		c.reply(errorMessage("unknown message type " + msg.Type))
	}
}

func (c *liveClient) reply(msg Message) {
	select {
	case c.replies <- msg:
	default:
		c.logger.Debug("dropping live reply", zap.String("type", msg.Type))
	}
}

// writePump is the only writer on the connection.
func (c *liveClient) writePump(updates <-chan view.State) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case state, ok := <-updates:
			if !ok {
				_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
				_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "session closed"))
				return
			}
			msg, err := c.viewMessage(state)
			if err != nil {
				c.logger.Error("failed to render live view", zap.Error(err))
				continue
			}
			if err := c.write(msg); err != nil {
				return
			}
		case msg := <-c.replies:
			if err := c.write(msg); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *liveClient) write(msg Message) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(msg)
}

func (c *liveClient) viewMessage(state view.State) (Message, error) {
	var buf bytes.Buffer
	if err := c.renderer.RenderView(&buf, state); err != nil {
		return Message{}, err
	}
	return Message{
		Type: MessageTypeView,
		Data: map[string]any{
			"html":      buf.String(),
			"status":    state.Status.String(),
			"selection": state.Selection,
		},
	}, nil
}

func errorMessage(details string) Message {
	return Message{Type: MessageTypeError, Data: map[string]any{"details": details}}
}
