package models

import "gorm.io/datatypes"

// OptionTally is one row of the per-option breakdown inside a snapshot.
type OptionTally struct {
	OptionID string  `json:"option_id"`
	Votes    float64 `json:"votes"`
	Percent  float64 `json:"percent"`
}

// ConsensusSnapshot is the derived result of one consensus recomputation.
// Snapshots form an append-only time series per poll and are never rewritten.
type ConsensusSnapshot struct {
	BaseModel

	PollID uint `json:"poll_id" gorm:"index"`

	Level            float64                          `json:"level"`
	TotalVotes       float64                          `json:"total_votes"`
	ParticipantCount int                              `json:"participant_count"`
	LeadingOption    string                           `json:"leading_option"`
	Tie              bool                             `json:"tie"`
	Velocity         float64                          `json:"velocity"`
	TimeToConsensus  *float64                         `json:"time_to_consensus,omitempty"`
	Reached          bool                             `json:"reached"`
	PolicyFallback   bool                             `json:"policy_fallback"`
	Breakdown        datatypes.JSONSlice[OptionTally] `json:"breakdown"`
}
