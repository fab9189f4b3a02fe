package realtime

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Event types pushed to subscribers
const (
	EventLockChanged   = "order.lock"
	EventStatusChanged = "order.status"
	EventNotification  = "notification"
)

// ChannelSupervisors receives every order event; operators join it on connect.
const ChannelSupervisors = "supervisors"

// Event is the JSON frame delivered to clients. Delivery is at most once.
type Event struct {
	Type    string          `json:"type"`
	Channel string          `json:"channel"`
	OrderID *uuid.UUID      `json:"order_id,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	At      time.Time       `json:"at"`
}

func OrderChannel(orderID uuid.UUID) string {
	return "order:" + orderID.String()
}

func UserChannel(userID uuid.UUID) string {
	return "user:" + userID.String()
}

// ParseOrderChannel extracts the order id from an "order:<uuid>" channel.
func ParseOrderChannel(channel string) (uuid.UUID, error) {
	rest, ok := strings.CutPrefix(channel, "order:")
	if !ok {
		return uuid.Nil, fmt.Errorf("channel %q is not an order channel", channel)
	}
	return uuid.Parse(rest)
}
