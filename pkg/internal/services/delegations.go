package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"gorm.io/gorm"
)

// ListLiveDelegations returns the non-revoked edges of a poll.
func ListLiveDelegations(tx *gorm.DB, pollID uint) ([]models.Delegation, error) {
	var delegations []models.Delegation
	if err := tx.Where("poll_id = ? AND revoked_at IS NULL", pollID).
		Find(&delegations).Error; err != nil {
		return nil, fmt.Errorf("unable to list delegations: %v", err)
	}
	return delegations, nil
}

// GetLiveOutgoingDelegation returns the delegator's live edge if one exists.
func GetLiveOutgoingDelegation(tx *gorm.DB, pollID, delegatorID uint) (*models.Delegation, error) {
	var delegation models.Delegation
	if err := tx.Where("poll_id = ? AND delegator_id = ? AND revoked_at IS NULL", pollID, delegatorID).
		First(&delegation).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("unable to check delegation: %v", err)
	}
	return &delegation, nil
}

// CreateDelegation adds a single-hop edge. The hop bound is enforced in both
// directions: the prospective delegate must not have an outgoing live edge of
// their own, and the delegator must not be holding delegated weight from
// anyone else. Runs under the poll room lock, so the existence checks and
// the insert cannot interleave with another delegation write.
func CreateDelegation(tx *gorm.DB, poll models.Poll, delegator models.PollParticipant, delegateID uint) (models.Delegation, error) {
	var delegation models.Delegation

	if delegator.AccountID == delegateID {
		return delegation, ErrSelfDelegation
	}
	if !delegator.CanDelegate {
		return delegation, ErrNotAllowed
	}

	err := tx.Transaction(func(tx *gorm.DB) error {
		if existing, err := GetLiveOutgoingDelegation(tx, poll.ID, delegator.AccountID); err != nil {
			return err
		} else if existing != nil {
			return fmt.Errorf("%w: you already delegated your vote in this poll", ErrInvalidRequest)
		}

		if outgoing, err := GetLiveOutgoingDelegation(tx, poll.ID, delegateID); err != nil {
			return err
		} else if outgoing != nil {
			return ErrDelegateAlreadyDelegated
		}

		var inbound int64
		if err := tx.Model(&models.Delegation{}).
			Where("poll_id = ? AND delegate_id = ? AND revoked_at IS NULL", poll.ID, delegator.AccountID).
			Count(&inbound).Error; err != nil {
			return fmt.Errorf("unable to check inbound delegations: %v", err)
		}
		if inbound > 0 {
			return fmt.Errorf("%w: cannot delegate while holding delegated votes from others", ErrInvalidRequest)
		}

		delegation = models.Delegation{
			PollID:      poll.ID,
			DelegatorID: delegator.AccountID,
			DelegateID:  delegateID,
		}
		if err := tx.Create(&delegation).Error; err != nil {
			return fmt.Errorf("unable to create delegation: %v", err)
		}

		if err := tx.Model(&models.PollParticipant{}).
			Where("id = ?", delegator.ID).
			Updates(map[string]any{
				"status":         models.ParticipantStatusDelegated,
				"last_active_at": time.Now(),
			}).Error; err != nil {
			return fmt.Errorf("unable to update participant status: %v", err)
		}

		audit := models.VoteAudit{
			PollID:    poll.ID,
			AccountID: delegator.AccountID,
			Action:    models.AuditDelegationCreated,
			NewValue:  snapshotValue(delegation),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("unable to record delegation audit: %v", err)
		}

		return nil
	})

	return delegation, err
}

// RevokeDelegation marks the delegator's live edge revoked. The weight shift
// takes effect on the next consensus recomputation; historical votes are
// never rewritten.
func RevokeDelegation(tx *gorm.DB, poll models.Poll, delegator models.PollParticipant) (models.Delegation, error) {
	var delegation models.Delegation

	err := tx.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("poll_id = ? AND delegator_id = ? AND revoked_at IS NULL", poll.ID, delegator.AccountID).
			First(&delegation).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("%w: no live delegation to revoke", ErrInvalidRequest)
			}
			return fmt.Errorf("unable to check delegation: %v", err)
		}

		now := time.Now()
		if err := tx.Model(&delegation).Update("revoked_at", now).Error; err != nil {
			return fmt.Errorf("unable to revoke delegation: %v", err)
		}
		delegation.RevokedAt = &now

		if err := tx.Model(&models.PollParticipant{}).
			Where("id = ?", delegator.ID).
			Updates(map[string]any{
				"status":         models.ParticipantStatusActive,
				"last_active_at": now,
			}).Error; err != nil {
			return fmt.Errorf("unable to update participant status: %v", err)
		}

		audit := models.VoteAudit{
			PollID:    poll.ID,
			AccountID: delegator.AccountID,
			Action:    models.AuditDelegationRevoked,
			OldValue:  snapshotValue(delegation),
		}
		if err := tx.Create(&audit).Error; err != nil {
			return fmt.Errorf("unable to record delegation audit: %v", err)
		}

		return nil
	})

	return delegation, err
}
