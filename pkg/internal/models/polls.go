package models

import (
	"time"

	"gorm.io/datatypes"
)

type PollStatus = string

const (
	PollStatusDraft  PollStatus = "DRAFT"
	PollStatusActive PollStatus = "ACTIVE"
	PollStatusPaused PollStatus = "PAUSED"
	PollStatusClosed PollStatus = "CLOSED"
)

type ConsensusPolicy = string

const (
	ConsensusPercentage    ConsensusPolicy = "PERCENTAGE"
	ConsensusAbsolute      ConsensusPolicy = "ABSOLUTE"
	ConsensusMajority      ConsensusPolicy = "MAJORITY"
	ConsensusSupermajority ConsensusPolicy = "SUPERMAJORITY"
	ConsensusQuadratic     ConsensusPolicy = "QUADRATIC"
	ConsensusCondorcet     ConsensusPolicy = "CONDORCET"
	ConsensusCustom        ConsensusPolicy = "CUSTOM"
)

type Poll struct {
	BaseModel

	HangoutID   uint       `json:"hangout_id"`
	CreatorID   uint       `json:"creator_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Status      PollStatus `json:"status"`
	ExpiredAt   *time.Time `json:"expired_at"`

	Options datatypes.JSONSlice[PollOption] `json:"options"`
	Config  ConsensusConfig                 `json:"config" gorm:"embedded;embeddedPrefix:config_"`
}

// IsAcceptingVotes reports whether the poll currently accepts mutations.
func (p Poll) IsAcceptingVotes() bool {
	if p.Status != PollStatusActive {
		return false
	}
	if p.ExpiredAt != nil && time.Now().After(*p.ExpiredAt) {
		return false
	}
	return true
}

// FindOption looks an option up by its id, returning nil when absent.
func (p Poll) FindOption(id string) *PollOption {
	for idx, option := range p.Options {
		if option.ID == id {
			return &p.Options[idx]
		}
	}
	return nil
}

type PollOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Indx        int    `json:"indx"`
}

// ConsensusConfig is attached to a poll at creation and immutable afterwards;
// changing the agreement policy requires a new poll.
type ConsensusConfig struct {
	Policy          ConsensusPolicy `json:"policy"`
	Threshold       float64         `json:"threshold"`
	MinParticipants int             `json:"min_participants"`
	TimeLimit       *int64          `json:"time_limit,omitempty"`
	AllowTies       bool            `json:"allow_ties"`
	TieBreaker      string          `json:"tie_breaker,omitempty"`
}
