package services

import (
	"fmt"
	"sync"
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/metrics"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// PollState is the full sync payload a client receives on join and on
// explicit resync after an error.
type PollState struct {
	Poll         models.Poll              `json:"poll"`
	Snapshot     models.ConsensusSnapshot `json:"snapshot"`
	Participants []models.PollParticipant `json:"participants"`
	Delegations  []models.Delegation      `json:"delegations"`
	MyVote       *models.PollVote         `json:"my_vote,omitempty"`
}

// RoomRegistry owns the in-memory side of every poll room. It is constructed
// in main and injected where needed; nothing here lives in package state, so
// a deployment can shard rooms across instances behind the relay.
type RoomRegistry struct {
	mu    sync.Mutex
	rooms map[uint]*pollRoom
	sink  EventSink
}

// pollRoom serializes every mutating operation for one poll id. The mutex is
// only ever held across one store transaction plus one in-memory recompute.
type pollRoom struct {
	mu      sync.Mutex
	members map[uint]int
	reached bool
}

func NewRoomRegistry(sink EventSink) *RoomRegistry {
	return &RoomRegistry{
		rooms: make(map[uint]*pollRoom),
		sink:  sink,
	}
}

func (r *RoomRegistry) room(pollID uint) *pollRoom {
	r.mu.Lock()
	defer r.mu.Unlock()

	if room, ok := r.rooms[pollID]; ok {
		return room
	}

	room := &pollRoom{members: make(map[uint]int)}

	// Seed the reached flag from the last persisted snapshot so a restart
	// does not refire consensusReached for a poll that already settled.
	var last models.ConsensusSnapshot
	if err := database.C.Where("poll_id = ?", pollID).
		Order("created_at DESC").
		First(&last).Error; err == nil {
		room.reached = last.Reached
	}

	r.rooms[pollID] = room
	metrics.SetOpenRooms(len(r.rooms))
	return room
}

// OpenRooms reports how many poll rooms are currently held in memory.
func (r *RoomRegistry) OpenRooms() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rooms)
}

// evict drops the in-memory room of a closed poll once nobody is connected,
// so the registry does not grow with every poll ever touched. Called with
// room.mu held; a later access simply rebuilds the room from the persisted
// snapshot.
func (r *RoomRegistry) evict(pollID uint, room *pollRoom) {
	if len(room.members) > 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rooms[pollID] == room {
		delete(r.rooms, pollID)
		metrics.SetOpenRooms(len(r.rooms))
	}
}

// Join upserts the caller as an ACTIVE participant and returns the full
// current state for initial sync. Joining twice is idempotent: the second
// join neither duplicates the participant row nor refires participantJoined.
func (r *RoomRegistry) Join(pollID, accountID uint) (PollState, error) {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	var state PollState

	poll, err := GetPoll(pollID)
	if err != nil {
		return state, err
	}

	participant, created, err := UpsertParticipant(database.C, pollID, accountID)
	if err != nil {
		return state, err
	}

	// The roster only counts the connection once the state build succeeded;
	// a failed join leaves nothing behind for Leave to undo.
	firstConnection := room.members[accountID] == 0

	state, err = r.buildState(poll, accountID)
	if err != nil {
		return state, err
	}
	room.members[accountID]++

	if created || firstConnection {
		r.sink.BroadcastRoom(pollID, ParticipantJoinedEvent{
			PollID:           pollID,
			AccountID:        participant.AccountID,
			ParticipantCount: state.Snapshot.ParticipantCount,
		})
	}

	return state, nil
}

// Leave drops the caller's room membership. The participant record stays;
// presence is tracked apart from voting eligibility, so a disconnect is
// neither a vote nor a forced abstain.
func (r *RoomRegistry) Leave(pollID, accountID uint) {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	if room.members[accountID] == 0 {
		return
	}
	room.members[accountID]--
	if room.members[accountID] > 0 {
		return
	}
	delete(room.members, accountID)

	count, err := CountActiveParticipants(database.C, pollID)
	if err != nil {
		log.Warn().Err(err).Uint("poll", pollID).Msg("Unable to count participants on leave...")
	}

	r.sink.BroadcastRoom(pollID, ParticipantLeftEvent{
		PollID:           pollID,
		AccountID:        accountID,
		ParticipantCount: count,
	})

	if poll, err := GetPoll(pollID); err == nil && poll.Status == models.PollStatusClosed {
		r.evict(pollID, room)
	}
}

// ApplyVote casts or replaces the caller's vote, recomputes consensus and
// broadcasts in commit order.
func (r *RoomRegistry) ApplyVote(pollID, accountID uint, optionID string, attrs VoteAttrs) (models.PollVote, error) {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	var vote models.PollVote

	poll, participant, err := r.mutableContext(pollID, accountID)
	if err != nil {
		return vote, err
	}

	if poll.FindOption(optionID) == nil {
		return vote, fmt.Errorf("%w: poll does not have an option like that", ErrInvalidRequest)
	}
	if !participant.CanVote || participant.Status == models.ParticipantStatusExcluded {
		return vote, ErrCannotVote
	}

	// A delegated vote is cast by the delegate; allowing the delegator to
	// also cast would count their weight twice.
	if outgoing, err := GetLiveOutgoingDelegation(database.C, pollID, accountID); err != nil {
		return vote, err
	} else if outgoing != nil {
		return vote, fmt.Errorf("%w: revoke your delegation before casting a ballot", ErrCannotVote)
	}

	vote, action, err := CastVote(database.C, poll, participant, optionID, attrs)
	if err != nil {
		return vote, err
	}
	metrics.CountVote()

	snapshot, err := r.recompute(poll)
	if err != nil {
		return vote, err
	}

	body := VoteEventBody{
		PollID:         pollID,
		OptionID:       optionID,
		AccountID:      accountID,
		TallyCount:     tallyFor(snapshot, optionID),
		ConsensusLevel: snapshot.Level,
	}
	if action == models.AuditVoteChanged {
		r.sink.BroadcastRoom(pollID, VoteChangedEvent{body})
	} else {
		r.sink.BroadcastRoom(pollID, VoteCastEvent{body})
	}
	r.announceProgress(room, poll, snapshot)

	return vote, nil
}

// DeleteVote withdraws the caller's live vote; their status reverts to
// ACTIVE regardless of what it was before they voted.
func (r *RoomRegistry) DeleteVote(pollID, accountID uint) error {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	poll, participant, err := r.mutableContext(pollID, accountID)
	if err != nil {
		return err
	}

	prior, err := DeleteVote(database.C, poll, participant)
	if err != nil {
		return err
	}

	snapshot, err := r.recompute(poll)
	if err != nil {
		return err
	}

	r.sink.BroadcastRoom(pollID, VoteDeletedEvent{VoteEventBody{
		PollID:         pollID,
		OptionID:       prior.OptionID,
		AccountID:      accountID,
		TallyCount:     tallyFor(snapshot, prior.OptionID),
		ConsensusLevel: snapshot.Level,
	}})
	r.announceProgress(room, poll, snapshot)

	return nil
}

// ApplyDelegation hands the caller's voting weight to another participant,
// one hop at most.
func (r *RoomRegistry) ApplyDelegation(pollID, delegatorID, delegateID uint) error {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	poll, delegator, err := r.mutableContext(pollID, delegatorID)
	if err != nil {
		return err
	}

	delegation, err := CreateDelegation(database.C, poll, delegator, delegateID)
	if err != nil {
		return err
	}

	snapshot, err := r.recompute(poll)
	if err != nil {
		return err
	}

	r.sink.BroadcastRoom(pollID, DelegationCreatedEvent{
		PollID:      pollID,
		DelegatorID: delegation.DelegatorID,
		DelegateID:  delegation.DelegateID,
	})
	r.announceProgress(room, poll, snapshot)

	return nil
}

// RevokeDelegation withdraws the caller's live delegation edge.
func (r *RoomRegistry) RevokeDelegation(pollID, delegatorID uint) error {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	poll, delegator, err := r.mutableContext(pollID, delegatorID)
	if err != nil {
		return err
	}

	delegation, err := RevokeDelegation(database.C, poll, delegator)
	if err != nil {
		return err
	}

	snapshot, err := r.recompute(poll)
	if err != nil {
		return err
	}

	r.sink.BroadcastRoom(pollID, DelegationRevokedEvent{
		PollID:      pollID,
		DelegatorID: delegation.DelegatorID,
		DelegateID:  delegation.DelegateID,
	})
	r.announceProgress(room, poll, snapshot)

	return nil
}

// SetParticipantStatus lets a participant change their own standing. VOTED
// and DELEGATED are derived by the ledger and cannot be set directly.
func (r *RoomRegistry) SetParticipantStatus(pollID, accountID uint, status models.ParticipantStatus) error {
	switch status {
	case models.ParticipantStatusActive, models.ParticipantStatusAbstained, models.ParticipantStatusExcluded:
	default:
		return fmt.Errorf("%w: status %s cannot be set directly", ErrInvalidRequest, status)
	}

	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	_, participant, err := r.mutableContext(pollID, accountID)
	if err != nil {
		return err
	}

	oldStatus := participant.Status
	if oldStatus == status {
		return nil
	}

	if err := database.C.Model(&participant).
		Updates(map[string]any{
			"status":         status,
			"last_active_at": time.Now(),
		}).Error; err != nil {
		return fmt.Errorf("unable to update participant status: %v", err)
	}

	r.sink.BroadcastRoom(pollID, ParticipantStatusChangedEvent{
		PollID:    pollID,
		AccountID: accountID,
		OldStatus: oldStatus,
		NewStatus: status,
	})

	return nil
}

// Pause suspends voting without ending the poll.
func (r *RoomRegistry) Pause(pollID uint) error {
	return r.transition(pollID, models.PollStatusPaused)
}

// Resume reopens a paused poll.
func (r *RoomRegistry) Resume(pollID uint) error {
	return r.transition(pollID, models.PollStatusActive)
}

// Activate moves a draft poll into voting.
func (r *RoomRegistry) Activate(pollID uint) error {
	return r.transition(pollID, models.PollStatusActive)
}

// Close moves the poll to its terminal status; every later mutation fails
// with ErrPollInactive.
func (r *RoomRegistry) Close(pollID uint) error {
	return r.transition(pollID, models.PollStatusClosed)
}

func (r *RoomRegistry) transition(pollID uint, next models.PollStatus) error {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	poll, err := GetPoll(pollID)
	if err != nil {
		return err
	}

	poll, err = TransitionPoll(poll, next)
	if err != nil {
		return err
	}

	snapshot, err := r.currentSnapshot(poll)
	if err != nil {
		return err
	}

	r.sink.BroadcastRoom(pollID, PollUpdatedEvent{Poll: poll, Snapshot: &snapshot})

	if next == models.PollStatusClosed {
		r.evict(pollID, room)
	}

	return nil
}

// Analytics recomputes the live snapshot and returns it alongside the
// persisted history.
func (r *RoomRegistry) Analytics(pollID uint, take int) (models.ConsensusSnapshot, []models.ConsensusSnapshot, error) {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	var snapshot models.ConsensusSnapshot

	poll, err := GetPoll(pollID)
	if err != nil {
		return snapshot, nil, err
	}

	snapshot, err = r.currentSnapshot(poll)
	if err != nil {
		return snapshot, nil, err
	}

	history, err := ListPollSnapshots(pollID, take)
	if err != nil {
		return snapshot, nil, err
	}

	return snapshot, history, nil
}

// State rebuilds the full sync payload without emitting anything; clients
// use it to recover after an error instead of trusting optimistic state.
func (r *RoomRegistry) State(pollID, accountID uint) (PollState, error) {
	room := r.room(pollID)
	room.mu.Lock()
	defer room.mu.Unlock()

	poll, err := GetPoll(pollID)
	if err != nil {
		return PollState{}, err
	}

	return r.buildState(poll, accountID)
}

// mutableContext loads the poll and the caller's participant row, rejecting
// the mutation unless the poll is accepting writes.
func (r *RoomRegistry) mutableContext(pollID, accountID uint) (models.Poll, models.PollParticipant, error) {
	var participant models.PollParticipant

	poll, err := GetPoll(pollID)
	if err != nil {
		return poll, participant, err
	}
	if !poll.IsAcceptingVotes() {
		return poll, participant, ErrPollInactive
	}

	participant, err = GetParticipant(database.C, pollID, accountID)
	if err != nil {
		return poll, participant, err
	}

	return poll, participant, nil
}

// recompute derives a fresh snapshot, appends it to the history and fires
// consensusReached exactly when the poll crosses its target.
func (r *RoomRegistry) recompute(poll models.Poll) (models.ConsensusSnapshot, error) {
	snapshot, err := r.currentSnapshot(poll)
	if err != nil {
		return snapshot, err
	}

	if err := database.C.Create(&snapshot).Error; err != nil {
		return snapshot, fmt.Errorf("unable to persist snapshot: %v", err)
	}

	return snapshot, nil
}

func (r *RoomRegistry) currentSnapshot(poll models.Poll) (models.ConsensusSnapshot, error) {
	var snapshot models.ConsensusSnapshot

	tally, err := CurrentTally(database.C, poll.ID)
	if err != nil {
		return snapshot, err
	}
	count, err := CountActiveParticipants(database.C, poll.ID)
	if err != nil {
		return snapshot, err
	}

	return CalculateConsensus(poll, tally, count, time.Now()), nil
}

func (r *RoomRegistry) announceProgress(room *pollRoom, poll models.Poll, snapshot models.ConsensusSnapshot) {
	r.sink.BroadcastRoom(poll.ID, ConsensusProgressEvent{
		PollID:           poll.ID,
		ConsensusLevel:   snapshot.Level,
		TotalVotes:       snapshot.TotalVotes,
		ParticipantCount: snapshot.ParticipantCount,
		LeadingOption:    snapshot.LeadingOption,
		Velocity:         snapshot.Velocity,
		TimeToConsensus:  snapshot.TimeToConsensus,
	})

	crossed := snapshot.Reached && !room.reached
	room.reached = snapshot.Reached
	if !crossed {
		return
	}

	reached := ConsensusReachedEvent{
		PollID:           poll.ID,
		WinningOption:    snapshot.LeadingOption,
		ConsensusLevel:   snapshot.Level,
		TotalVotes:       snapshot.TotalVotes,
		ParticipantCount: snapshot.ParticipantCount,
	}
	r.sink.BroadcastRoom(poll.ID, reached)

	// Voters also hear about the outcome on their personal channel, so a
	// device outside the room still gets the result.
	var voters []uint
	if err := database.C.Model(&models.PollVote{}).
		Where("poll_id = ?", poll.ID).
		Pluck("account_id", &voters).Error; err != nil {
		log.Warn().Err(err).Uint("poll", poll.ID).Msg("Unable to list voters for consensus notice...")
		return
	}
	for _, accountID := range lo.Uniq(voters) {
		r.sink.BroadcastUser(accountID, reached)
	}
}

func (r *RoomRegistry) buildState(poll models.Poll, accountID uint) (PollState, error) {
	state := PollState{Poll: poll}

	snapshot, err := r.currentSnapshot(poll)
	if err != nil {
		return state, err
	}
	state.Snapshot = snapshot

	if state.Participants, err = ListParticipants(database.C, poll.ID); err != nil {
		return state, err
	}
	if state.Delegations, err = ListLiveDelegations(database.C, poll.ID); err != nil {
		return state, err
	}
	if state.MyVote, err = GetLiveVote(poll.ID, accountID); err != nil {
		return state, err
	}

	return state, nil
}

func tallyFor(snapshot models.ConsensusSnapshot, optionID string) float64 {
	for _, tally := range snapshot.Breakdown {
		if tally.OptionID == optionID {
			return tally.Votes
		}
	}
	return 0
}
