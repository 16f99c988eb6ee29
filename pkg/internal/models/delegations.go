package models

import "time"

// Delegation is a single-hop edge: a delegator may not point at someone who
// has an outgoing live edge of their own. Uniqueness of the live edge per
// (poll, delegator) is enforced by the room coordinator, which serializes all
// delegation writes for a poll; revoked edges stay behind for history.
type Delegation struct {
	BaseModel

	PollID      uint       `json:"poll_id" gorm:"index:idx_poll_delegation"`
	DelegatorID uint       `json:"delegator_id" gorm:"index:idx_poll_delegation"`
	DelegateID  uint       `json:"delegate_id"`
	RevokedAt   *time.Time `json:"revoked_at"`
}

// IsLive reports whether the edge still contributes voting weight.
func (d Delegation) IsLive() bool {
	return d.RevokedAt == nil
}
