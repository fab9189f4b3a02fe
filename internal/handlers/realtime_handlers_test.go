package handlers

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"orderbridge/internal/common"
	"orderbridge/internal/models"
	"orderbridge/internal/realtime"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func frame(action, channel string) []byte {
	data, _ := json.Marshal(subscriptionFrame{Action: action, Channel: channel})
	return data
}

func TestRealtimeHandlers_HandleFrame(t *testing.T) {
	orderID := uuid.New()
	channel := realtime.OrderChannel(orderID)
	client := common.Actor{UserID: uuid.New(), CompanyID: uuid.New(), Role: common.RoleClient}
	operator := common.Actor{UserID: uuid.New(), Role: common.RoleOperator}

	tests := []struct {
		name     string
		actor    common.Actor
		data     []byte
		setup    func(*mockOrderService)
		wantType string
		members  int
	}{
		{
			name:     "operator joins any order",
			actor:    operator,
			data:     frame("subscribe", channel),
			wantType: "subscribed",
			members:  1,
		},
		{
			name:  "client joins own order",
			actor: client,
			data:  frame("subscribe", channel),
			setup: func(m *mockOrderService) {
				m.On("GetOrder", mock.Anything, client, orderID).Return(&models.Order{ID: orderID}, nil)
			},
			wantType: "subscribed",
			members:  1,
		},
		{
			name:  "client cannot join foreign order",
			actor: client,
			data:  frame("subscribe", channel),
			setup: func(m *mockOrderService) {
				m.On("GetOrder", mock.Anything, client, orderID).Return(nil, common.NotFound("get order", "order"))
			},
			wantType: "error",
		},
		{name: "supervisors channel is not joinable", actor: operator, data: frame("subscribe", realtime.ChannelSupervisors), wantType: "error"},
		{name: "malformed frame", actor: operator, data: []byte("{"), wantType: "error"},
		{name: "unknown action", actor: operator, data: frame("shout", channel), wantType: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			orders := &mockOrderService{}
			if tt.setup != nil {
				tt.setup(orders)
			}
			hub := realtime.NewHub(zap.NewNop(), nil)
			h := NewRealtimeHandlers(hub, orders, zap.NewNop())
			c := realtime.NewClient(tt.actor.UserID, 4)
			hub.Register(c)

			reply := h.handleFrame(context.Background(), c, tt.actor, tt.data)

			assert.Equal(t, tt.wantType, reply.Type)
			assert.Equal(t, tt.members, hub.Members(channel))
			orders.AssertExpectations(t)
		})
	}
}

func TestRealtimeHandlers_Unsubscribe(t *testing.T) {
	channel := realtime.OrderChannel(uuid.New())
	operator := common.Actor{UserID: uuid.New(), Role: common.RoleOperator}
	hub := realtime.NewHub(zap.NewNop(), nil)
	h := NewRealtimeHandlers(hub, &mockOrderService{}, zap.NewNop())
	c := realtime.NewClient(operator.UserID, 4)
	hub.Register(c, channel)

	reply := h.handleFrame(context.Background(), c, operator, frame("unsubscribe", channel))

	assert.Equal(t, "unsubscribed", reply.Type)
	assert.Equal(t, 0, hub.Members(channel))
}

func TestRealtimeHandlers_ConnectStreamsOrderEvents(t *testing.T) {
	operator := common.Actor{UserID: uuid.New(), Role: common.RoleOperator}
	hub := realtime.NewHub(zap.NewNop(), nil)
	h := NewRealtimeHandlers(hub, &mockOrderService{}, zap.NewNop())

	e := echo.New()
	e.GET("/ws", h.Connect, func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(common.WithActor(c.Request().Context(), operator)))
			return next(c)
		}
	})
	server := httptest.NewServer(e)
	defer server.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))

	channel := realtime.OrderChannel(uuid.New())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, frame("subscribe", channel)))

	var reply replyFrame
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, "subscribed", reply.Type)
	assert.Equal(t, 1, hub.Members(realtime.ChannelSupervisors))

	assert.Equal(t, 1, hub.Deliver(channel, []byte(`{"type":"lock_changed"}`)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"lock_changed"}`, string(data))
}
