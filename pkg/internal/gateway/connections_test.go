package gateway

import (
	"testing"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
	jsoniter "github.com/json-iterator/go"
)

func TestConnectionSendDropsWhenFull(t *testing.T) {
	conn := NewConnection(1, nil)

	for i := 0; i < outboundBuffer; i++ {
		if !conn.Send([]byte("frame")) {
			t.Fatalf("send %d rejected below the buffer bound", i)
		}
	}

	// The queue is full and nothing drains it; the frame is dropped instead
	// of blocking the dispatcher.
	if conn.Send([]byte("overflow")) {
		t.Error("send into a full queue should report a drop")
	}
}

func TestConnectionSendAfterClose(t *testing.T) {
	conn := NewConnection(1, nil)
	close(conn.closed)

	if conn.Send([]byte("frame")) {
		t.Error("send on a closed connection should report a drop")
	}
}

func TestManagerSubscribeIdempotent(t *testing.T) {
	manager := NewConnectionManager()
	conn := NewConnection(1, nil)
	manager.Register(conn)

	if !manager.Subscribe(conn, 7) {
		t.Fatal("first subscription should be new")
	}
	if manager.Subscribe(conn, 7) {
		t.Error("re-subscribing the same room should be a no-op")
	}
	if got := len(manager.RoomConnections(7)); got != 1 {
		t.Errorf("room connections = %d, want 1", got)
	}
}

func TestManagerSubscribeUnregistered(t *testing.T) {
	manager := NewConnectionManager()
	conn := NewConnection(1, nil)

	if manager.Subscribe(conn, 7) {
		t.Error("subscribing an unregistered connection should fail")
	}
}

func TestManagerUnregisterReportsRooms(t *testing.T) {
	manager := NewConnectionManager()
	conn := NewConnection(1, nil)
	manager.Register(conn)
	manager.Subscribe(conn, 7)
	manager.Subscribe(conn, 9)

	left := manager.Unregister(conn)
	if len(left) != 2 {
		t.Errorf("rooms left = %v, want both subscriptions", left)
	}

	if got := len(manager.RoomConnections(7)); got != 0 {
		t.Errorf("room 7 connections after unregister = %d, want 0", got)
	}
	if got := len(manager.AccountConnections(1)); got != 0 {
		t.Errorf("account connections after unregister = %d, want 0", got)
	}

	// A second unregister finds nothing to clean up.
	if left := manager.Unregister(conn); left != nil {
		t.Errorf("repeat unregister = %v, want nil", left)
	}
}

func TestManagerTracksDevicesPerAccount(t *testing.T) {
	manager := NewConnectionManager()
	phone := NewConnection(1, nil)
	laptop := NewConnection(1, nil)
	manager.Register(phone)
	manager.Register(laptop)
	manager.Subscribe(phone, 7)

	if got := len(manager.AccountConnections(1)); got != 2 {
		t.Errorf("account connections = %d, want one per device", got)
	}
	if got := len(manager.RoomConnections(7)); got != 1 {
		t.Errorf("room connections = %d, want only the subscribed device", got)
	}

	manager.Unregister(phone)
	if got := len(manager.AccountConnections(1)); got != 1 {
		t.Errorf("account connections after one device left = %d, want 1", got)
	}
}

func TestDispatcherBroadcastRoom(t *testing.T) {
	manager := NewConnectionManager()
	dispatcher := NewDispatcher(manager, nil)

	member := NewConnection(1, nil)
	outsider := NewConnection(2, nil)
	manager.Register(member)
	manager.Register(outsider)
	manager.Subscribe(member, 7)

	dispatcher.BroadcastRoom(7, services.PollErrorEvent{PollID: 7, Error: "nope", Code: "BAD_REQUEST"})

	select {
	case raw := <-member.out:
		var frame EventFrame
		if err := jsoniter.Unmarshal(raw, &frame); err != nil {
			t.Fatalf("decode frame: %v", err)
		}
		if frame.Event != "pollError" {
			t.Errorf("frame event = %q, want pollError", frame.Event)
		}
	default:
		t.Fatal("subscribed connection received nothing")
	}

	select {
	case <-outsider.out:
		t.Error("unsubscribed connection must not receive room frames")
	default:
	}
}

func TestDispatcherBroadcastUser(t *testing.T) {
	manager := NewConnectionManager()
	dispatcher := NewDispatcher(manager, nil)

	mine := NewConnection(1, nil)
	theirs := NewConnection(2, nil)
	manager.Register(mine)
	manager.Register(theirs)

	dispatcher.BroadcastUser(1, services.ConsensusReachedEvent{PollID: 7, WinningOption: "a"})

	if len(mine.out) != 1 {
		t.Errorf("frames for the target account = %d, want 1", len(mine.out))
	}
	if len(theirs.out) != 0 {
		t.Errorf("frames for another account = %d, want 0", len(theirs.out))
	}
}
