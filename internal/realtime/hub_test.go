package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"orderbridge/internal/models"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestHub_DeliversOnlyToMembers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	orderID := uuid.New()
	supervisor := NewClient(uuid.New(), 4)
	watcher := NewClient(uuid.New(), 4)
	bystander := NewClient(uuid.New(), 4)

	hub.Register(supervisor, ChannelSupervisors)
	hub.Register(watcher)
	hub.Join(watcher, OrderChannel(orderID))
	hub.Register(bystander)

	assert.Equal(t, 1, hub.Deliver(OrderChannel(orderID), []byte("x")))
	assert.Equal(t, 1, hub.Deliver(ChannelSupervisors, []byte("y")))

	assert.Equal(t, []byte("x"), <-watcher.Send())
	assert.Equal(t, []byte("y"), <-supervisor.Send())
	assert.Len(t, bystander.Send(), 0)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := NewClient(uuid.New(), 1)
	hub.Register(c, ChannelSupervisors)

	assert.Equal(t, 1, hub.Deliver(ChannelSupervisors, []byte("first")))
	assert.Equal(t, 0, hub.Deliver(ChannelSupervisors, []byte("second")))
}

func TestHub_LeaveAndUnregister(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := NewClient(uuid.New(), 1)
	ch := OrderChannel(uuid.New())
	hub.Register(c, ch, ChannelSupervisors)
	require.Equal(t, 1, hub.Members(ch))

	hub.Leave(c, ch)
	assert.Equal(t, 0, hub.Members(ch))

	hub.Unregister(c)
	assert.Equal(t, 0, hub.Members(ChannelSupervisors))
	_, open := <-c.Send()
	assert.False(t, open)

	// idempotent
	hub.Unregister(c)
	hub.Join(c, ch)
	assert.Equal(t, 0, hub.Members(ch))
}

func TestBroadcaster_LockChangedReachesSupervisorsAndOrderWatchers(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	b := NewBroadcaster(NewLocalBus(hub), zap.NewNop())

	userID := uuid.New()
	since := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	order := &models.Order{ID: uuid.New(), IsEditing: true, EditingByUserID: &userID, EditingStartedAt: &since}

	supervisor := NewClient(uuid.New(), 2)
	watcher := NewClient(uuid.New(), 2)
	hub.Register(supervisor, ChannelSupervisors)
	hub.Register(watcher, OrderChannel(order.ID))

	b.LockChanged(context.Background(), order, "acquired")

	var ev Event
	require.NoError(t, json.Unmarshal(<-watcher.Send(), &ev))
	assert.Equal(t, EventLockChanged, ev.Type)
	assert.Equal(t, OrderChannel(order.ID), ev.Channel)
	assert.Equal(t, order.ID, *ev.OrderID)

	var payload LockPayload
	require.NoError(t, json.Unmarshal(ev.Payload, &payload))
	assert.True(t, payload.IsEditing)
	assert.Equal(t, userID, *payload.EditingByUserID)
	assert.Equal(t, "acquired", payload.Reason)

	require.NoError(t, json.Unmarshal(<-supervisor.Send(), &ev))
	assert.Equal(t, ChannelSupervisors, ev.Channel)
}

type failingBus struct{ *LocalBus }

func (failingBus) Publish(context.Context, string, []byte) error { return errors.New("bus down") }

func TestBroadcaster_SwallowsBusErrors(t *testing.T) {
	b := NewBroadcaster(failingBus{NewLocalBus(NewHub(zap.NewNop(), nil))}, zap.NewNop())
	assert.NotPanics(t, func() {
		b.StatusChanged(context.Background(), &models.Order{ID: uuid.New(), Status: models.OrderStatusValidated}, models.OrderStatusPending)
	})
}

func TestBroadcaster_NotifyTargetsUserChannel(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	b := NewBroadcaster(NewLocalBus(hub), zap.NewNop())
	userID := uuid.New()
	c := NewClient(userID, 1)
	hub.Register(c, UserChannel(userID))

	b.Notify(context.Background(), &models.Notification{ID: uuid.New(), UserID: userID, Type: models.NotificationOrderStatus, Title: "Order validated"})

	var ev Event
	require.NoError(t, json.Unmarshal(<-c.Send(), &ev))
	assert.Equal(t, EventNotification, ev.Type)
	assert.Nil(t, ev.OrderID)
}

func TestSubjectMapping(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, "orderbridge.order."+id.String(), Subject("orderbridge", OrderChannel(id)))
	assert.Equal(t, OrderChannel(id), ChannelFromSubject("orderbridge", Subject("orderbridge", OrderChannel(id))))
	assert.Equal(t, ChannelSupervisors, ChannelFromSubject("orderbridge", Subject("orderbridge", ChannelSupervisors)))
}

func TestParseOrderChannel(t *testing.T) {
	id := uuid.New()
	got, err := ParseOrderChannel(OrderChannel(id))
	assert.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = ParseOrderChannel("supervisors")
	assert.Error(t, err)
	_, err = ParseOrderChannel("order:nope")
	assert.Error(t, err)
}

func TestHub_ReplyOnlyToRegisteredClients(t *testing.T) {
	hub := NewHub(zap.NewNop(), nil)
	c := NewClient(uuid.New(), 1)

	assert.False(t, hub.Reply(c, []byte("early")))

	hub.Register(c)
	assert.True(t, hub.Reply(c, []byte("ack")))
	assert.False(t, hub.Reply(c, []byte("full")))
	assert.Equal(t, []byte("ack"), <-c.Send())
}
