package services

import (
	"errors"
	"fmt"
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"gorm.io/gorm"
)

// UpsertParticipant creates the participant row on first join, with voting
// and delegation enabled by default. Re-joins only refresh the activity
// timestamp; status is never touched here.
func UpsertParticipant(tx *gorm.DB, pollID, accountID uint) (models.PollParticipant, bool, error) {
	now := time.Now()

	var participant models.PollParticipant
	if err := tx.Where("poll_id = ? AND account_id = ?", pollID, accountID).
		First(&participant).Error; err == nil {
		if err := tx.Model(&participant).Update("last_active_at", now).Error; err != nil {
			return participant, false, fmt.Errorf("unable to refresh participant: %v", err)
		}
		participant.LastActiveAt = &now
		return participant, false, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return participant, false, fmt.Errorf("unable to check participant: %v", err)
	}

	participant = models.PollParticipant{
		PollID:       pollID,
		AccountID:    accountID,
		Status:       models.ParticipantStatusActive,
		CanVote:      true,
		CanDelegate:  true,
		LastActiveAt: &now,
	}
	if err := tx.Create(&participant).Error; err != nil {
		return participant, false, fmt.Errorf("unable to create participant: %v", err)
	}

	return participant, true, nil
}

func GetParticipant(tx *gorm.DB, pollID, accountID uint) (models.PollParticipant, error) {
	var participant models.PollParticipant
	if err := tx.Where("poll_id = ? AND account_id = ?", pollID, accountID).
		First(&participant).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return participant, fmt.Errorf("%w: you are not a participant of this poll", ErrInvalidRequest)
		}
		return participant, fmt.Errorf("unable to get participant: %v", err)
	}
	return participant, nil
}

func ListParticipants(tx *gorm.DB, pollID uint) ([]models.PollParticipant, error) {
	var participants []models.PollParticipant
	if err := tx.Where("poll_id = ?", pollID).
		Order("created_at ASC").
		Find(&participants).Error; err != nil {
		return nil, fmt.Errorf("unable to list participants: %v", err)
	}
	return participants, nil
}

// CountActiveParticipants counts everyone still eligible to influence the
// outcome; excluded participants are out, everyone else counts.
func CountActiveParticipants(tx *gorm.DB, pollID uint) (int, error) {
	var count int64
	if err := tx.Model(&models.PollParticipant{}).
		Where("poll_id = ? AND status <> ?", pollID, models.ParticipantStatusExcluded).
		Count(&count).Error; err != nil {
		return 0, fmt.Errorf("unable to count participants: %v", err)
	}
	return int(count), nil
}
