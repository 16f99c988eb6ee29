package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	localCache "github.com/richmwhite1/hangouts-consensus/pkg/internal/cache"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/marshaler"
	"github.com/eko/gocache/lib/v4/store"
	"gorm.io/gorm"
)

func pollCacheKey(id uint) string {
	return fmt.Sprintf("poll#%d", id)
}

// NewPoll materializes a poll from a hangout whose options were finalized.
// The caller supplies the option set and creator id from the owning content;
// this happens once, not on every vote.
func NewPoll(poll models.Poll) (models.Poll, error) {
	if len(poll.Status) == 0 {
		poll.Status = models.PollStatusDraft
	}
	if poll.Config.TimeLimit != nil && poll.ExpiredAt == nil {
		deadline := time.Now().Add(time.Duration(*poll.Config.TimeLimit) * time.Second)
		poll.ExpiredAt = &deadline
	}
	if err := database.C.Create(&poll).Error; err != nil {
		return poll, err
	}
	return poll, nil
}

// GetPoll reads a poll through the local cache; mutating paths must call
// InvalidatePoll after committing.
func GetPoll(id uint) (models.Poll, error) {
	var poll models.Poll

	marshal := marshaler.New(cache.New[any](localCache.S))
	ctx := context.Background()

	if hit, err := marshal.Get(ctx, pollCacheKey(id), new(models.Poll)); err == nil {
		return *hit.(*models.Poll), nil
	}

	if err := database.C.Where("id = ?", id).First(&poll).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return poll, ErrPollNotFound
		}
		return poll, fmt.Errorf("unable to get poll: %v", err)
	}

	_ = marshal.Set(ctx, pollCacheKey(id), poll, store.WithExpiration(5*time.Minute))

	return poll, nil
}

func InvalidatePoll(id uint) {
	marshal := marshaler.New(cache.New[any](localCache.S))
	_ = marshal.Delete(context.Background(), pollCacheKey(id))
}

// pollTransitions is the status machine: DRAFT -> ACTIVE -> {PAUSED <-> ACTIVE}
// -> CLOSED, with CLOSED terminal.
var pollTransitions = map[models.PollStatus][]models.PollStatus{
	models.PollStatusDraft:  {models.PollStatusActive},
	models.PollStatusActive: {models.PollStatusPaused, models.PollStatusClosed},
	models.PollStatusPaused: {models.PollStatusActive, models.PollStatusClosed},
	models.PollStatusClosed: {},
}

// TransitionPoll moves a poll to the next status, rejecting transitions the
// status machine does not permit. Any move out of a closed poll fails with
// ErrPollInactive.
func TransitionPoll(poll models.Poll, next models.PollStatus) (models.Poll, error) {
	if poll.Status == models.PollStatusClosed {
		return poll, ErrPollInactive
	}

	allowed := false
	for _, candidate := range pollTransitions[poll.Status] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		return poll, fmt.Errorf("%w: cannot transition poll from %s to %s", ErrInvalidRequest, poll.Status, next)
	}

	if err := database.C.Model(&models.Poll{}).
		Where("id = ?", poll.ID).
		Update("status", next).Error; err != nil {
		return poll, fmt.Errorf("unable to transition poll: %v", err)
	}

	poll.Status = next
	InvalidatePoll(poll.ID)

	return poll, nil
}

// AddPollOption appends a late option; gated on the poll not being closed.
func AddPollOption(poll models.Poll, option models.PollOption) (models.Poll, error) {
	if poll.Status == models.PollStatusClosed {
		return poll, ErrPollInactive
	}
	if poll.FindOption(option.ID) != nil {
		return poll, fmt.Errorf("%w: poll already has an option with id %s", ErrInvalidRequest, option.ID)
	}

	option.Indx = len(poll.Options)
	poll.Options = append(poll.Options, option)

	if err := database.C.Model(&models.Poll{}).
		Where("id = ?", poll.ID).
		Update("options", poll.Options).Error; err != nil {
		return poll, fmt.Errorf("unable to add poll option: %v", err)
	}

	InvalidatePoll(poll.ID)

	return poll, nil
}

// ListPollSnapshots returns the persisted consensus time series, latest last.
func ListPollSnapshots(pollID uint, take int) ([]models.ConsensusSnapshot, error) {
	if take <= 0 || take > 100 {
		take = 100
	}

	var snapshots []models.ConsensusSnapshot
	if err := database.C.
		Where("poll_id = ?", pollID).
		Order("created_at DESC").
		Limit(take).
		Find(&snapshots).Error; err != nil {
		return snapshots, fmt.Errorf("unable to list snapshots: %v", err)
	}

	for i, j := 0, len(snapshots)-1; i < j; i, j = i+1, j-1 {
		snapshots[i], snapshots[j] = snapshots[j], snapshots[i]
	}

	return snapshots, nil
}

// ListPollAudit returns the append-only audit trail for a poll.
func ListPollAudit(pollID uint, take int) ([]models.VoteAudit, error) {
	if take <= 0 || take > 100 {
		take = 100
	}

	var trail []models.VoteAudit
	if err := database.C.
		Where("poll_id = ?", pollID).
		Order("created_at DESC").
		Limit(take).
		Find(&trail).Error; err != nil {
		return trail, fmt.Errorf("unable to list audit trail: %v", err)
	}

	return trail, nil
}
