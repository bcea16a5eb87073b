package server

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"backstage/agents/backstage"
	"backstage/shared/apperror"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
)

type WSHandler struct {
	agent    *backstage.Agent
	log      logrus.FieldLogger
	upgrader websocket.Upgrader
	readWait time.Duration
}

func NewWSHandler(agent *backstage.Agent, log logrus.FieldLogger) *WSHandler {
	return &WSHandler{
		agent:    agent,
		log:      log,
		readWait: pongWait,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

type wsClientMsg struct {
	Type    string `json:"type"`
	Persona string `json:"persona"`
	Content string `json:"content"`
}

type wsServerMsg struct {
	Type     string        `json:"type"`
	Greeting string        `json:"greeting,omitempty"`
	Content  string        `json:"content,omitempty"`
	Code     apperror.Code `json:"code,omitempty"`
	Message  string        `json:"message,omitempty"`
}

type wsConn struct {
	c  *websocket.Conn
	mu sync.Mutex
}

func (w *wsConn) writeJSON(msg wsServerMsg) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	_ = w.c.SetWriteDeadline(time.Now().Add(writeWait))
	return w.c.WriteMessage(websocket.TextMessage, b)
}

func (w *wsConn) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.c.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}

func (w *wsConn) writeError(err error) error {
	return w.writeJSON(wsServerMsg{Type: "error", Code: apperror.CodeOf(err), Message: err.Error()})
}

// Chat upgrades to a websocket carrying the persona conversation. Replies
// stream as delta messages followed by one done message.
func (h *WSHandler) Chat(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// upgrade already wrote the response
		return
	}
	defer conn.Close()

	wc := &wsConn{c: conn}
	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	go h.keepAlive(ctx, wc)

	var replies sync.WaitGroup
	defer replies.Wait()

	extendRead := func() { _ = conn.SetReadDeadline(time.Now().Add(h.readWait)) }
	extendRead()
	conn.SetPongHandler(func(string) error {
		extendRead()
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			cancel()
			return
		}

		var msg wsClientMsg
		if err := json.Unmarshal(data, &msg); err != nil {
			_ = wc.writeJSON(wsServerMsg{Type: "error", Code: apperror.CodeInvalidArgument, Message: "invalid json"})
			continue
		}

		switch msg.Type {
		case "select_persona":
			// Selection may research the persona first. Pongs are not read
			// meanwhile, so the deadline restarts once it returns.
			greeting, err := h.agent.SelectPersona(ctx, msg.Persona)
			extendRead()
			if err != nil {
				_ = wc.writeError(err)
				continue
			}
			_ = wc.writeJSON(wsServerMsg{Type: "ready", Greeting: greeting})

		case "message":
			// Replies run beside the reader so a second message while one
			// streams gets the conflict error instead of queueing.
			replies.Add(1)
			go func(content string) {
				defer replies.Done()
				h.reply(ctx, wc, content)
			}(msg.Content)

		default:
			_ = wc.writeJSON(wsServerMsg{Type: "error", Code: apperror.CodeInvalidArgument, Message: "unknown message type"})
		}
	}
}

func (h *WSHandler) reply(ctx context.Context, wc *wsConn, content string) {
	msg, err := h.agent.Send(ctx, content, func(delta string) {
		_ = wc.writeJSON(wsServerMsg{Type: "delta", Content: delta})
	})
	if err != nil {
		if apperror.CodeOf(err) != apperror.CodeConflict && apperror.CodeOf(err) != apperror.CodeInvalidArgument {
			h.log.WithError(err).Warn("Chat turn failed")
		}
		_ = wc.writeError(err)
		return
	}
	_ = wc.writeJSON(wsServerMsg{Type: "done", Content: msg.Content})
}

func (h *WSHandler) keepAlive(ctx context.Context, wc *wsConn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := wc.ping(); err != nil {
				return
			}
		}
	}
}
