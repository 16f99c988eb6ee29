package gateway

import (
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/metrics"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

// EventFrame is the envelope every outbound frame travels in.
type EventFrame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

func EncodeEvent(event services.Event) []byte {
	frame, err := jsoniter.Marshal(EventFrame{
		Event:   event.EventName(),
		Payload: event,
	})
	if err != nil {
		log.Error().Err(err).Str("event", event.EventName()).Msg("An error occurred when encoding event frame...")
		return nil
	}
	return frame
}

// Dispatcher fans typed events out to subscribed connections. Delivery is
// at-most-once per connection with no retries and no queueing for the
// disconnected; re-join is the resync path.
type Dispatcher struct {
	manager *ConnectionManager
	relay   *Relay
}

// NewDispatcher builds a dispatcher; relay may be nil for single-instance
// deployments.
func NewDispatcher(manager *ConnectionManager, relay *Relay) *Dispatcher {
	return &Dispatcher{manager: manager, relay: relay}
}

func (d *Dispatcher) BroadcastRoom(pollID uint, event services.Event) {
	frame := EncodeEvent(event)
	if frame == nil {
		return
	}

	d.DeliverRoomFrame(pollID, frame)
	metrics.CountDispatch(event.EventName(), 1)

	if d.relay != nil {
		d.relay.Publish(relayScopeRoom, pollID, frame)
	}
}

func (d *Dispatcher) BroadcastUser(accountID uint, event services.Event) {
	frame := EncodeEvent(event)
	if frame == nil {
		return
	}

	d.DeliverUserFrame(accountID, frame)

	if d.relay != nil {
		d.relay.Publish(relayScopeUser, accountID, frame)
	}
}

// DeliverRoomFrame pushes a raw frame to the local members of a room; the
// relay uses it to rebroadcast frames from sibling instances.
func (d *Dispatcher) DeliverRoomFrame(pollID uint, frame []byte) {
	for _, conn := range d.manager.RoomConnections(pollID) {
		conn.Send(frame)
	}
}

func (d *Dispatcher) DeliverUserFrame(accountID uint, frame []byte) {
	for _, conn := range d.manager.AccountConnections(accountID) {
		conn.Send(frame)
	}
}
