package gateway

import (
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/auth"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/metrics"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
	"github.com/gofiber/contrib/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/rs/zerolog/log"
)

// ClientCommand is the envelope of every inbound frame.
type ClientCommand struct {
	Event   string              `json:"event"`
	Payload jsoniter.RawMessage `json:"payload"`
}

type authenticatePayload struct {
	Token string `json:"token"`
}

type roomPayload struct {
	PollID uint   `json:"poll_id"`
	Reason string `json:"reason,omitempty"`
}

type castVotePayload struct {
	PollID      uint            `json:"poll_id"`
	OptionID    string          `json:"option_id"`
	NewOptionID string          `json:"new_option_id"`
	Type        models.VoteType `json:"type,omitempty"`
	Ranking     []string        `json:"ranking,omitempty"`
	Score       *float64        `json:"score,omitempty"`
	Sentiment   string          `json:"sentiment,omitempty"`
	Comment     string          `json:"comment,omitempty"`
}

type participantStatusPayload struct {
	PollID uint                     `json:"poll_id"`
	Status models.ParticipantStatus `json:"status"`
}

type delegatePayload struct {
	PollID     uint `json:"poll_id"`
	DelegateID uint `json:"delegate_id"`
}

type analyticsPayload struct {
	PollID uint `json:"poll_id"`
	Take   int  `json:"take,omitempty"`
}

type authenticatedEvent struct {
	AccountID uint `json:"account_id"`
}

func (authenticatedEvent) EventName() string { return "authenticated" }

// Handler returns the websocket handler for the gateway endpoint. The first
// frame must be authenticate{token}; a bad token terminates the connection
// instead of emitting pollError.
func Handler(reader *auth.TokenReader, manager *ConnectionManager, registry *services.RoomRegistry) func(*websocket.Conn) {
	return func(ws *websocket.Conn) {
		accountID, ok := expectAuthenticate(reader, ws)
		if !ok {
			metrics.CountAuthFailure()
			_ = ws.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication failed"))
			_ = ws.Close()
			return
		}

		conn := NewConnection(accountID, ws)
		manager.Register(conn)
		go conn.WritePump()

		defer func() {
			conn.Close()
			// Connection and room cleanup run independently and both
			// tolerate a repeat; participant status stays untouched.
			for _, pollID := range manager.Unregister(conn) {
				registry.Leave(pollID, conn.AccountID)
			}
		}()

		conn.Send(EncodeEvent(authenticatedEvent{AccountID: accountID}))

		for {
			_, raw, err := ws.ReadMessage()
			if err != nil {
				return
			}

			var command ClientCommand
			if err := jsoniter.Unmarshal(raw, &command); err != nil {
				conn.Send(EncodeEvent(services.PollErrorEvent{
					Error: "malformed frame",
					Code:  "BAD_REQUEST",
				}))
				continue
			}

			handleCommand(conn, manager, registry, command)
		}
	}
}

func expectAuthenticate(reader *auth.TokenReader, ws *websocket.Conn) (uint, bool) {
	_, raw, err := ws.ReadMessage()
	if err != nil {
		return 0, false
	}

	var command ClientCommand
	if err := jsoniter.Unmarshal(raw, &command); err != nil || command.Event != "authenticate" {
		return 0, false
	}

	var payload authenticatePayload
	if err := jsoniter.Unmarshal(command.Payload, &payload); err != nil {
		return 0, false
	}

	accountID, err := reader.Parse(payload.Token)
	if err != nil {
		return 0, false
	}

	return accountID, true
}

func handleCommand(conn *Connection, manager *ConnectionManager, registry *services.RoomRegistry, command ClientCommand) {
	var pollID uint
	var err error

	switch command.Event {
	case "joinPoll":
		var payload roomPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			err = handleJoin(conn, manager, registry, payload.PollID)
		}
	case "leavePoll":
		var payload roomPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			if manager.Unsubscribe(conn, payload.PollID) {
				registry.Leave(payload.PollID, conn.AccountID)
			}
		}
	case "castVote", "changeVote":
		var payload castVotePayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			optionID := payload.OptionID
			if command.Event == "changeVote" && len(payload.NewOptionID) > 0 {
				optionID = payload.NewOptionID
			}
			_, err = registry.ApplyVote(payload.PollID, conn.AccountID, optionID, services.VoteAttrs{
				Type:      payload.Type,
				Ranking:   payload.Ranking,
				Score:     payload.Score,
				Sentiment: payload.Sentiment,
				Comment:   payload.Comment,
			})
		}
	case "deleteVote":
		var payload roomPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			err = registry.DeleteVote(payload.PollID, conn.AccountID)
		}
	case "updateParticipantStatus":
		var payload participantStatusPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			err = registry.SetParticipantStatus(payload.PollID, conn.AccountID, payload.Status)
		}
	case "delegateVote":
		var payload delegatePayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			err = registry.ApplyDelegation(payload.PollID, conn.AccountID, payload.DelegateID)
		}
	case "revokeDelegation":
		var payload roomPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			err = registry.RevokeDelegation(payload.PollID, conn.AccountID)
		}
	case "pausePoll":
		var payload roomPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			if err = requireCreator(payload.PollID, conn.AccountID); err == nil {
				err = registry.Pause(payload.PollID)
			}
		}
	case "resumePoll":
		var payload roomPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			if err = requireCreator(payload.PollID, conn.AccountID); err == nil {
				err = registry.Resume(payload.PollID)
			}
		}
	case "closePoll":
		var payload roomPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			if err = requireCreator(payload.PollID, conn.AccountID); err == nil {
				err = registry.Close(payload.PollID)
			}
		}
	case "requestAnalytics":
		var payload analyticsPayload
		if err = jsoniter.Unmarshal(command.Payload, &payload); err == nil {
			pollID = payload.PollID
			var current models.ConsensusSnapshot
			var history []models.ConsensusSnapshot
			if current, history, err = registry.Analytics(payload.PollID, payload.Take); err == nil {
				conn.Send(EncodeEvent(services.AnalyticsEvent{
					PollID:  payload.PollID,
					Current: current,
					History: history,
				}))
			}
		}
	default:
		conn.Send(EncodeEvent(services.PollErrorEvent{
			Error: "unknown event",
			Code:  "BAD_REQUEST",
		}))
		return
	}

	if err != nil {
		sendError(conn, pollID, err)
	}
}

func handleJoin(conn *Connection, manager *ConnectionManager, registry *services.RoomRegistry, pollID uint) error {
	var state services.PollState
	var err error

	if manager.Subscribe(conn, pollID) {
		state, err = registry.Join(pollID, conn.AccountID)
		if err != nil {
			manager.Unsubscribe(conn, pollID)
			return err
		}
	} else {
		// Idempotent re-join: no new participant row, no second
		// participantJoined, just a fresh full-state sync.
		if state, err = registry.State(pollID, conn.AccountID); err != nil {
			return err
		}
	}

	conn.Send(EncodeEvent(services.FullStateEvent(state)))
	return nil
}

func requireCreator(pollID, accountID uint) error {
	poll, err := services.GetPoll(pollID)
	if err != nil {
		return err
	}
	if poll.CreatorID != accountID {
		return services.ErrNotAllowed
	}
	return nil
}

// sendError surfaces a failed mutation to the originating connection only;
// the room never hears about it. Codes outside the taxonomy collapse into
// INTERNAL so store internals stay private.
func sendError(conn *Connection, pollID uint, err error) {
	code := services.ErrorCode(err)
	message := err.Error()
	if code == "INTERNAL" {
		log.Error().Err(err).Uint("poll", pollID).Uint("account", conn.AccountID).
			Msg("An error occurred when handling a gateway command...")
		message = "internal error"
	}

	conn.Send(EncodeEvent(services.PollErrorEvent{
		PollID: pollID,
		Error:  message,
		Code:   code,
	}))
}
