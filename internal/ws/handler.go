package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zetxtech/websole/internal/model"
	"github.com/zetxtech/websole/internal/session"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer. Large enough for a pasted block.
	maxMessageSize = 64 * 1024
)

// Options configures a Handler.
type Options struct {
	// QueueDepth bounds each client's outbound queue.
	QueueDepth int

	// CheckOrigin overrides the upgrader's origin check. Nil accepts any origin.
	CheckOrigin func(r *http.Request) bool
}

// Handler upgrades HTTP requests and attaches the connections to the hub.
type Handler struct {
	hub        *session.Hub
	upgrader   websocket.Upgrader
	queueDepth int
	log        zerolog.Logger
}

// NewHandler creates a new WebSocket handler for hub.
func NewHandler(hub *session.Hub, opts Options) *Handler {
	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}
	return &Handler{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		queueDepth: opts.QueueDepth,
		log:        log.With().Str("module", "ws").Logger(),
	}
}

// ServeHTTP upgrades the connection, replays the scrollback and starts the
// read and write pumps. The optional rows and cols query parameters set the
// window size before attaching, so a lazily started program starts at the
// client's size.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	rows, cols := parseSize(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := NewClient(conn, h.queueDepth)
	logger := h.log.With().Str("client", client.ID()).Str("remote", r.RemoteAddr).Logger()

	if rows > 0 && cols > 0 {
		client.setSize(rows, cols)
		if err := h.hub.RequestResize(rows, cols); err != nil {
			logger.Debug().Err(err).Msg("failed to apply initial size")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())

	go h.writePump(client)

	if err := h.hub.Attach(ctx, client); err != nil {
		logger.Info().Err(err).Msg("failed to attach client")
		cancel()
		client.Close()
		return
	}
	logger.Info().Msg("client connected")

	go h.readPump(ctx, cancel, client, logger)
}

func parseSize(r *http.Request) (uint16, uint16) {
	q := r.URL.Query()
	rows, err := strconv.ParseUint(q.Get("rows"), 10, 16)
	if err != nil {
		return 0, 0
	}
	cols, err := strconv.ParseUint(q.Get("cols"), 10, 16)
	if err != nil {
		return 0, 0
	}
	return uint16(rows), uint16(cols)
}

// readPump pumps messages from the WebSocket connection to the hub.
func (h *Handler) readPump(ctx context.Context, cancel context.CancelFunc, client *Client, logger zerolog.Logger) {
	defer func() {
		cancel()
		h.hub.Detach(client)
		client.Conn().Close()
		rows, cols := client.Size()
		logger.Info().Uint16("rows", rows).Uint16("cols", cols).Msg("client disconnected")
	}()

	client.Conn().SetReadLimit(maxMessageSize)
	client.Conn().SetReadDeadline(time.Now().Add(pongWait))
	client.Conn().SetPongHandler(func(string) error {
		client.Conn().SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		messageType, message, err := client.Conn().ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				logger.Warn().Err(err).Msg("websocket error")
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			h.handleInput(ctx, message, logger)
			continue
		}

		var msg Message
		if err := json.Unmarshal(message, &msg); err != nil {
			logger.Warn().Err(err).Msg("failed to unmarshal message")
			continue
		}
		h.handleMessage(ctx, client, &msg, logger)
	}
}

// handleMessage processes incoming messages from clients.
func (h *Handler) handleMessage(ctx context.Context, client *Client, msg *Message, logger zerolog.Logger) {
	switch msg.Type {
	case MessageTypeInput:
		h.handleInput(ctx, []byte(msg.Data), logger)
	case MessageTypeResize:
		h.handleResize(client, msg, logger)
	case MessageTypeRestart:
		h.handleRestart(ctx, logger)
	case MessageTypePing:
		client.SendMessage(&Message{Type: MessageTypePong})
	default:
		logger.Warn().Str("type", string(msg.Type)).Msg("unknown message type")
	}
}

func (h *Handler) handleInput(ctx context.Context, data []byte, logger zerolog.Logger) {
	if len(data) == 0 {
		return
	}
	err := h.hub.SubmitInput(ctx, data)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrNotRunning), errors.Is(err, context.Canceled):
		logger.Debug().Err(err).Int("bytes", len(data)).Msg("input dropped")
	default:
		logger.Warn().Err(err).Msg("failed to write input")
	}
}

func (h *Handler) handleResize(client *Client, msg *Message, logger zerolog.Logger) {
	if msg.Rows == 0 || msg.Cols == 0 {
		logger.Debug().Uint16("rows", msg.Rows).Uint16("cols", msg.Cols).Msg("ignoring invalid resize")
		return
	}
	client.setSize(msg.Rows, msg.Cols)
	if err := h.hub.RequestResize(msg.Rows, msg.Cols); err != nil {
		logger.Warn().Err(err).Msg("failed to resize")
	}
}

func (h *Handler) handleRestart(ctx context.Context, logger zerolog.Logger) {
	err := h.hub.RequestRestart(ctx)
	switch {
	case err == nil:
	case errors.Is(err, model.ErrRestartNotAllowed):
		logger.Info().Msg("restart requested but not allowed")
	default:
		logger.Warn().Err(err).Msg("restart failed")
	}
}

// writePump pumps frames from the client queue to the WebSocket connection.
func (h *Handler) writePump(client *Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Conn().Close()
	}()

	for {
		select {
		case f, ok := <-client.send:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel
				client.Conn().WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.Conn().WriteMessage(f.messageType, f.data); err != nil {
				return
			}
		case <-ticker.C:
			client.Conn().SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.Conn().WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
