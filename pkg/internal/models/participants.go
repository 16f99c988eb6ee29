package models

import "time"

type ParticipantStatus = string

const (
	ParticipantStatusActive    ParticipantStatus = "ACTIVE"
	ParticipantStatusVoted     ParticipantStatus = "VOTED"
	ParticipantStatusAbstained ParticipantStatus = "ABSTAINED"
	ParticipantStatusDelegated ParticipantStatus = "DELEGATED"
	ParticipantStatusExcluded  ParticipantStatus = "EXCLUDED"
)

// PollParticipant is upserted on first room join; after creation only the
// status and activity timestamp change.
type PollParticipant struct {
	BaseModel

	PollID    uint `json:"poll_id" gorm:"uniqueIndex:idx_poll_participant"`
	AccountID uint `json:"account_id" gorm:"uniqueIndex:idx_poll_participant"`

	Status       ParticipantStatus `json:"status"`
	CanVote      bool              `json:"can_vote"`
	CanDelegate  bool              `json:"can_delegate"`
	LastActiveAt *time.Time        `json:"last_active_at"`
}
