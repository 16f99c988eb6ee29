package services

import "github.com/richmwhite1/hangouts-consensus/pkg/internal/models"

// Event is one typed state-change notification. Every payload is a concrete
// struct, so the compiler checks what goes over the wire instead of a string
// keyed registry of untyped maps.
type Event interface {
	EventName() string
}

// EventSink receives events for fan-out. The gateway dispatcher implements
// it; tests substitute a recorder.
type EventSink interface {
	BroadcastRoom(pollID uint, event Event)
	BroadcastUser(accountID uint, event Event)
}

// PollUpdatedEvent carries the poll and its latest snapshot; the full-state
// variant sent to a joining connection fills the remaining fields too, which
// is the resync mechanism for reconnecting clients.
type PollUpdatedEvent struct {
	Poll         models.Poll               `json:"poll"`
	Snapshot     *models.ConsensusSnapshot `json:"snapshot,omitempty"`
	Participants []models.PollParticipant  `json:"participants,omitempty"`
	Delegations  []models.Delegation       `json:"delegations,omitempty"`
	MyVote       *models.PollVote          `json:"my_vote,omitempty"`
}

func (PollUpdatedEvent) EventName() string { return "pollUpdated" }

// FullStateEvent wraps a sync payload as a pollUpdated frame.
func FullStateEvent(state PollState) PollUpdatedEvent {
	return PollUpdatedEvent{
		Poll:         state.Poll,
		Snapshot:     &state.Snapshot,
		Participants: state.Participants,
		Delegations:  state.Delegations,
		MyVote:       state.MyVote,
	}
}

// AnalyticsEvent answers requestAnalytics with the live snapshot plus the
// persisted history series.
type AnalyticsEvent struct {
	PollID  uint                       `json:"poll_id"`
	Current models.ConsensusSnapshot   `json:"current"`
	History []models.ConsensusSnapshot `json:"history"`
}

func (AnalyticsEvent) EventName() string { return "pollAnalytics" }

// VoteEventBody is shared by the cast, changed and deleted notifications.
type VoteEventBody struct {
	PollID         uint    `json:"poll_id"`
	OptionID       string  `json:"option_id"`
	AccountID      uint    `json:"account_id"`
	TallyCount     float64 `json:"tally_count"`
	ConsensusLevel float64 `json:"consensus_level"`
}

type VoteCastEvent struct{ VoteEventBody }

func (VoteCastEvent) EventName() string { return "voteCast" }

type VoteChangedEvent struct{ VoteEventBody }

func (VoteChangedEvent) EventName() string { return "voteChanged" }

type VoteDeletedEvent struct{ VoteEventBody }

func (VoteDeletedEvent) EventName() string { return "voteDeleted" }

type ConsensusProgressEvent struct {
	PollID           uint     `json:"poll_id"`
	ConsensusLevel   float64  `json:"consensus_level"`
	TotalVotes       float64  `json:"total_votes"`
	ParticipantCount int      `json:"participant_count"`
	LeadingOption    string   `json:"leading_option"`
	Velocity         float64  `json:"velocity"`
	TimeToConsensus  *float64 `json:"time_to_consensus,omitempty"`
}

func (ConsensusProgressEvent) EventName() string { return "consensusProgress" }

type ConsensusReachedEvent struct {
	PollID           uint    `json:"poll_id"`
	WinningOption    string  `json:"winning_option"`
	ConsensusLevel   float64 `json:"consensus_level"`
	TotalVotes       float64 `json:"total_votes"`
	ParticipantCount int     `json:"participant_count"`
}

func (ConsensusReachedEvent) EventName() string { return "consensusReached" }

type ParticipantJoinedEvent struct {
	PollID           uint `json:"poll_id"`
	AccountID        uint `json:"account_id"`
	ParticipantCount int  `json:"participant_count"`
}

func (ParticipantJoinedEvent) EventName() string { return "participantJoined" }

type ParticipantLeftEvent struct {
	PollID           uint `json:"poll_id"`
	AccountID        uint `json:"account_id"`
	ParticipantCount int  `json:"participant_count"`
}

func (ParticipantLeftEvent) EventName() string { return "participantLeft" }

type ParticipantStatusChangedEvent struct {
	PollID    uint                     `json:"poll_id"`
	AccountID uint                     `json:"account_id"`
	OldStatus models.ParticipantStatus `json:"old_status"`
	NewStatus models.ParticipantStatus `json:"new_status"`
}

func (ParticipantStatusChangedEvent) EventName() string { return "participantStatusChanged" }

type DelegationCreatedEvent struct {
	PollID      uint `json:"poll_id"`
	DelegatorID uint `json:"delegator_id"`
	DelegateID  uint `json:"delegate_id"`
}

func (DelegationCreatedEvent) EventName() string { return "delegationCreated" }

type DelegationRevokedEvent struct {
	PollID      uint `json:"poll_id"`
	DelegatorID uint `json:"delegator_id"`
	DelegateID  uint `json:"delegate_id"`
}

func (DelegationRevokedEvent) EventName() string { return "delegationRevoked" }

// PollErrorEvent is delivered to the originating connection only, never to
// the whole room.
type PollErrorEvent struct {
	PollID uint   `json:"poll_id"`
	Error  string `json:"error"`
	Code   string `json:"code"`
}

func (PollErrorEvent) EventName() string { return "pollError" }
