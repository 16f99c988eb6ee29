package models

import "gorm.io/datatypes"

type VoteType = string

const (
	VoteTypeSingle VoteType = "SINGLE"
	VoteTypeRanked VoteType = "RANKED"
	VoteTypeScored VoteType = "SCORED"
)

// PollVote holds the single live vote of one participant in one poll. The
// composite unique index backs up the per-poll serialization in the room
// coordinator; a replace is a delete-then-insert inside one transaction.
type PollVote struct {
	BaseModel

	PollID    uint   `json:"poll_id" gorm:"uniqueIndex:idx_poll_vote"`
	AccountID uint   `json:"account_id" gorm:"uniqueIndex:idx_poll_vote"`
	OptionID  string `json:"option_id"`

	Type      VoteType                    `json:"type"`
	Ranking   datatypes.JSONSlice[string] `json:"ranking,omitempty"`
	Score     *float64                    `json:"score,omitempty"`
	Weight    float64                     `json:"weight"`
	Sentiment string                      `json:"sentiment,omitempty"`
	Comment   string                      `json:"comment,omitempty"`
}

type AuditAction = string

const (
	AuditVoteCast          AuditAction = "VOTE_CAST"
	AuditVoteChanged       AuditAction = "VOTE_CHANGED"
	AuditVoteDeleted       AuditAction = "VOTE_DELETED"
	AuditDelegationCreated AuditAction = "DELEGATION_CREATED"
	AuditDelegationRevoked AuditAction = "DELEGATION_REVOKED"
)

// VoteAudit rows are append-only and commit in the same transaction as the
// mutation they record.
type VoteAudit struct {
	BaseModel

	PollID    uint           `json:"poll_id" gorm:"index"`
	AccountID uint           `json:"account_id"`
	Action    AuditAction    `json:"action"`
	OldValue  datatypes.JSON `json:"old_value,omitempty"`
	NewValue  datatypes.JSON `json:"new_value,omitempty"`
}
