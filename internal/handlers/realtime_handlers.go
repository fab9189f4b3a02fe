package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/realtime"
	"orderbridge/internal/services"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxFrameSize   = 4096
	clientBuffered = 64
)

// subscriptionFrame is sent by clients to manage their order channels
type subscriptionFrame struct {
	Action  string `json:"action"`
	Channel string `json:"channel"`
}

type replyFrame struct {
	Type    string `json:"type"`
	Channel string `json:"channel,omitempty"`
	Message string `json:"message,omitempty"`
}

// RealtimeHandlers upgrades authenticated requests to websocket subscriptions
type RealtimeHandlers struct {
	hub      *realtime.Hub
	orders   services.OrderService
	upgrader websocket.Upgrader
	log      *zap.Logger
}

func NewRealtimeHandlers(hub *realtime.Hub, orders services.OrderService, log *zap.Logger) *RealtimeHandlers {
	return &RealtimeHandlers{
		hub:    hub,
		orders: orders,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log.Named("ws"),
	}
}

// Connect godoc
// @Summary Websocket stream of lock, status and notification events
// @Description Operators join the supervisors channel and every caller joins its user channel.
// @Description Send {"action":"subscribe","channel":"order:<id>"} to watch one order.
// @Tags realtime
// @Router /ws [get]
func (h *RealtimeHandlers) Connect(c echo.Context) error {
	actor, ok := actorFrom(c)
	if !ok {
		return common.SendUnauthorizedError(c)
	}

	conn, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		h.log.Debug("websocket upgrade failed", zap.Error(err))
		return nil
	}

	client := realtime.NewClient(actor.UserID, clientBuffered)
	channels := []string{realtime.UserChannel(actor.UserID)}
	if actor.IsOperator() {
		channels = append(channels, realtime.ChannelSupervisors)
	}
	h.hub.Register(client, channels...)

	go h.writePump(conn, client)
	h.readPump(c.Request().Context(), conn, client, actor)
	h.hub.Unregister(client)
	return nil
}

func (h *RealtimeHandlers) readPump(ctx context.Context, conn *websocket.Conn, client *realtime.Client, actor common.Actor) {
	conn.SetReadLimit(maxFrameSize)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.log.Debug("websocket closed", zap.String("client_id", client.ID.String()), zap.Error(err))
			}
			return
		}
		h.reply(client, h.handleFrame(ctx, client, actor, data))
	}
}

// handleFrame applies one subscription frame and returns the reply for the client.
func (h *RealtimeHandlers) handleFrame(ctx context.Context, client *realtime.Client, actor common.Actor, data []byte) replyFrame {
	var frame subscriptionFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		return replyFrame{Type: "error", Message: "malformed frame"}
	}

	orderID, err := realtime.ParseOrderChannel(frame.Channel)
	if err != nil {
		return replyFrame{Type: "error", Channel: frame.Channel, Message: "only order channels can be joined"}
	}

	switch frame.Action {
	case "subscribe":
		if !actor.IsOperator() {
			if _, err := h.orders.GetOrder(ctx, actor, orderID); err != nil {
				return replyFrame{Type: "error", Channel: frame.Channel, Message: "order not found"}
			}
		}
		h.hub.Join(client, frame.Channel)
		return replyFrame{Type: "subscribed", Channel: frame.Channel}
	case "unsubscribe":
		h.hub.Leave(client, frame.Channel)
		return replyFrame{Type: "unsubscribed", Channel: frame.Channel}
	default:
		return replyFrame{Type: "error", Channel: frame.Channel, Message: "unknown action"}
	}
}

func (h *RealtimeHandlers) reply(client *realtime.Client, frame replyFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		return
	}
	h.hub.Reply(client, data)
}

// writePump is the only writer on conn. It exits when the hub closes the client buffer.
func (h *RealtimeHandlers) writePump(conn *websocket.Conn, client *realtime.Client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case data, ok := <-client.Send():
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
