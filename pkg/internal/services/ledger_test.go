package services_test

import (
	"errors"
	"testing"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
)

func seedPoll(t *testing.T) models.Poll {
	t.Helper()

	poll, err := services.NewPoll(models.Poll{
		HangoutID: 1,
		CreatorID: 1,
		Title:     "Where to next weekend",
		Status:    models.PollStatusActive,
		Options: []models.PollOption{
			{ID: "a", Name: "Bowling", Indx: 0},
			{ID: "b", Name: "Karaoke", Indx: 1},
		},
		Config: models.ConsensusConfig{
			Policy:    models.ConsensusMajority,
			Threshold: 60,
		},
	})
	if err != nil {
		t.Fatalf("seed poll: %v", err)
	}
	return poll
}

func seedParticipant(t *testing.T, pollID, accountID uint) models.PollParticipant {
	t.Helper()

	participant, _, err := services.UpsertParticipant(database.C, pollID, accountID)
	if err != nil {
		t.Fatalf("seed participant %d: %v", accountID, err)
	}
	return participant
}

func auditActions(t *testing.T, pollID uint) []models.AuditAction {
	t.Helper()

	var rows []models.VoteAudit
	if err := database.C.Where("poll_id = ?", pollID).Order("id ASC").Find(&rows).Error; err != nil {
		t.Fatalf("read audit: %v", err)
	}

	actions := make([]models.AuditAction, 0, len(rows))
	for _, row := range rows {
		actions = append(actions, row.Action)
	}
	return actions
}

func TestCastVoteThenChange(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)
	participant := seedParticipant(t, poll.ID, 10)

	_, action, err := services.CastVote(database.C, poll, participant, "a", services.VoteAttrs{})
	if err != nil {
		t.Fatalf("cast vote: %v", err)
	}
	if action != models.AuditVoteCast {
		t.Errorf("first cast action = %s, want %s", action, models.AuditVoteCast)
	}

	_, action, err = services.CastVote(database.C, poll, participant, "b", services.VoteAttrs{Sentiment: "excited"})
	if err != nil {
		t.Fatalf("change vote: %v", err)
	}
	if action != models.AuditVoteChanged {
		t.Errorf("second cast action = %s, want %s", action, models.AuditVoteChanged)
	}

	// One live vote per participant per poll, pointing at the new option.
	var votes []models.PollVote
	if err := database.C.Where("poll_id = ?", poll.ID).Find(&votes).Error; err != nil {
		t.Fatalf("read votes: %v", err)
	}
	if len(votes) != 1 {
		t.Fatalf("live votes = %d, want 1", len(votes))
	}
	if votes[0].OptionID != "b" {
		t.Errorf("live vote option = %q, want b", votes[0].OptionID)
	}
	if votes[0].Type != models.VoteTypeSingle {
		t.Errorf("vote type = %q, want default %s", votes[0].Type, models.VoteTypeSingle)
	}

	got := auditActions(t, poll.ID)
	want := []models.AuditAction{models.AuditVoteCast, models.AuditVoteChanged}
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("audit trail = %v, want %v", got, want)
	}

	participant, err = services.GetParticipant(database.C, poll.ID, 10)
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if participant.Status != models.ParticipantStatusVoted {
		t.Errorf("participant status = %s, want %s", participant.Status, models.ParticipantStatusVoted)
	}
}

func TestDeleteVote(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)
	participant := seedParticipant(t, poll.ID, 10)

	if _, _, err := services.CastVote(database.C, poll, participant, "a", services.VoteAttrs{}); err != nil {
		t.Fatalf("cast vote: %v", err)
	}

	prior, err := services.DeleteVote(database.C, poll, participant)
	if err != nil {
		t.Fatalf("delete vote: %v", err)
	}
	if prior.OptionID != "a" {
		t.Errorf("deleted vote option = %q, want a", prior.OptionID)
	}

	if live, err := services.GetLiveVote(poll.ID, 10); err != nil {
		t.Fatalf("get live vote: %v", err)
	} else if live != nil {
		t.Error("live vote should be gone after delete")
	}

	participant, err = services.GetParticipant(database.C, poll.ID, 10)
	if err != nil {
		t.Fatalf("get participant: %v", err)
	}
	if participant.Status != models.ParticipantStatusActive {
		t.Errorf("participant status = %s, want %s", participant.Status, models.ParticipantStatusActive)
	}

	got := auditActions(t, poll.ID)
	if len(got) != 2 || got[1] != models.AuditVoteDeleted {
		t.Errorf("audit trail = %v, want cast then delete", got)
	}

	// A second delete has nothing to remove.
	if _, err := services.DeleteVote(database.C, poll, participant); !errors.Is(err, services.ErrInvalidRequest) {
		t.Errorf("repeat delete error = %v, want ErrInvalidRequest", err)
	}
}

func TestCurrentTallyAppliesDelegationWeight(t *testing.T) {
	useTestDB(t)
	poll := seedPoll(t)

	delegate := seedParticipant(t, poll.ID, 10)
	delegator := seedParticipant(t, poll.ID, 11)
	bystander := seedParticipant(t, poll.ID, 12)

	if _, err := services.CreateDelegation(database.C, poll, delegator, delegate.AccountID); err != nil {
		t.Fatalf("create delegation: %v", err)
	}
	if _, _, err := services.CastVote(database.C, poll, delegate, "a", services.VoteAttrs{}); err != nil {
		t.Fatalf("cast delegate vote: %v", err)
	}
	if _, _, err := services.CastVote(database.C, poll, bystander, "b", services.VoteAttrs{}); err != nil {
		t.Fatalf("cast bystander vote: %v", err)
	}

	tally, err := services.CurrentTally(database.C, poll.ID)
	if err != nil {
		t.Fatalf("current tally: %v", err)
	}
	weights := make(map[uint]float64)
	for _, vote := range tally {
		weights[vote.AccountID] = vote.Weight
	}
	if weights[10] != 2 {
		t.Errorf("delegate weight = %v, want 2", weights[10])
	}
	if weights[12] != 1 {
		t.Errorf("bystander weight = %v, want 1", weights[12])
	}

	// Revoking the edge drops the delegate back to their own single vote.
	if _, err := services.RevokeDelegation(database.C, poll, delegator); err != nil {
		t.Fatalf("revoke delegation: %v", err)
	}
	tally, err = services.CurrentTally(database.C, poll.ID)
	if err != nil {
		t.Fatalf("current tally after revoke: %v", err)
	}
	for _, vote := range tally {
		if vote.AccountID == 10 && vote.Weight != 1 {
			t.Errorf("delegate weight after revoke = %v, want 1", vote.Weight)
		}
	}
}
