package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	jsoniter "github.com/json-iterator/go"
	"gorm.io/gorm"
)

// VoteAttrs carries the optional attributes of a ballot.
type VoteAttrs struct {
	Type      models.VoteType
	Ranking   []string
	Score     *float64
	Sentiment string
	Comment   string
}

func snapshotValue(v any) []byte {
	raw, _ := jsoniter.Marshal(v)
	return raw
}

// CastVote replaces the participant's live vote with a new one. The delete,
// the insert, the audit row and the participant status all commit in one
// transaction, so a concurrent reader never observes zero or two votes for
// the same participant. The unique index on (poll_id, account_id) backs this
// up underneath the room serialization.
func CastVote(tx *gorm.DB, poll models.Poll, participant models.PollParticipant, optionID string, attrs VoteAttrs) (models.PollVote, models.AuditAction, error) {
	vote := models.PollVote{
		PollID:    poll.ID,
		AccountID: participant.AccountID,
		OptionID:  optionID,
		Type:      attrs.Type,
		Ranking:   attrs.Ranking,
		Score:     attrs.Score,
		Weight:    1,
		Sentiment: attrs.Sentiment,
		Comment:   attrs.Comment,
	}
	if len(vote.Type) == 0 {
		vote.Type = models.VoteTypeSingle
	}

	action := models.AuditVoteCast
	err := tx.Transaction(func(tx *gorm.DB) error {
		var prior models.PollVote
		var oldValue []byte

		if err := tx.Where("poll_id = ? AND account_id = ?", poll.ID, participant.AccountID).
			First(&prior).Error; err == nil {
			action = models.AuditVoteChanged
			oldValue = snapshotValue(prior)
			if err := tx.Unscoped().Delete(&prior).Error; err != nil {
				return fmt.Errorf("unable to clear prior vote: %v", err)
			}
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("unable to check prior vote: %v", err)
		}

		if err := tx.Create(&vote).Error; err != nil {
			return fmt.Errorf("unable to record vote: %v", err)
		}

		if err := tx.Model(&models.PollParticipant{}).
			Where("id = ?", participant.ID).
			Updates(map[string]any{
				"status":         models.ParticipantStatusVoted,
				"last_active_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("unable to update participant status: %v", err)
		}

		// The mutation and its audit record commit together or not at all.
		audit := models.VoteAudit{
			PollID:    poll.ID,
			AccountID: participant.AccountID,
			Action:    action,
			OldValue:  oldValue,
			NewValue:  snapshotValue(vote),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("unable to record vote audit: %v", err)
		}

		return nil
	})

	return vote, action, err
}

// DeleteVote removes the participant's live vote and reverts their status to
// ACTIVE; it does not resurrect whatever status they held before voting.
func DeleteVote(tx *gorm.DB, poll models.Poll, participant models.PollParticipant) (models.PollVote, error) {
	var prior models.PollVote
	err := tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("poll_id = ? AND account_id = ?", poll.ID, participant.AccountID).
			First(&prior).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no live vote to delete", ErrInvalidRequest)
			}
			return fmt.Errorf("unable to check prior vote: %v", err)
		}

		if err := tx.Unscoped().Delete(&prior).Error; err != nil {
			return fmt.Errorf("unable to delete vote: %v", err)
		}

		if err := tx.Model(&models.PollParticipant{}).
			Where("id = ?", participant.ID).
			Updates(map[string]any{
				"status":         models.ParticipantStatusActive,
				"last_active_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("unable to update participant status: %v", err)
		}

		audit := models.VoteAudit{
			PollID:    poll.ID,
			AccountID: participant.AccountID,
			Action:    models.AuditVoteDeleted,
			OldValue:  snapshotValue(prior),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("unable to record vote audit: %v", err)
		}

		return nil
	})

	return prior, err
}

// CurrentTally reads the live votes of a poll as calculator input, applying
// the effective weights resolved from the live delegation edges.
func CurrentTally(tx *gorm.DB, pollID uint) ([]TallyVote, error) {
	var votes []models.PollVote
	if err := tx.Where("poll_id = ?", pollID).Find(&votes).Error; err != nil {
		return nil, fmt.Errorf("unable to read tally: %v", err)
	}

	delegations, err := ListLiveDelegations(tx, pollID)
	if err != nil {
		return nil, err
	}
	weights := EffectiveWeights(delegations)

	tally := make([]TallyVote, 0, len(votes))
	for _, vote := range votes {
		tally = append(tally, TallyVote{
			AccountID: vote.AccountID,
			OptionID:  vote.OptionID,
			Weight:    vote.Weight * WeightFor(weights, vote.AccountID),
			CastAt:    vote.CreatedAt,
		})
	}

	return tally, nil
}

// GetLiveVote returns the participant's current vote if one exists.
func GetLiveVote(pollID, accountID uint) (*models.PollVote, error) {
	var vote models.PollVote
	if err := database.C.Where("poll_id = ? AND account_id = ?", pollID, accountID).
		First(&vote).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to get vote: %v", err)
	}
	return &vote, nil
}
