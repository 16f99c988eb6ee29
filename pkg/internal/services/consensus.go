package services

import (
	"sort"
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/samber/lo"
)

// velocityWindow is the trailing window used to derive votes-per-minute.
const velocityWindow = time.Minute

// projectionCalibration scales the time-to-consensus estimate. This is a
// rough heuristic over the trailing velocity, not a statistical forecast.
const projectionCalibration = 1.0

// TallyVote is the slice of a persisted vote the calculator needs. Weight is
// the effective weight, already resolved against the live delegation edges.
type TallyVote struct {
	AccountID uint
	OptionID  string
	Weight    float64
	CastAt    time.Time
}

// EffectiveWeights resolves per-account voting weight from the live edges of
// a poll's delegation set: one for yourself plus one per live inbound edge.
func EffectiveWeights(delegations []models.Delegation) map[uint]float64 {
	weights := make(map[uint]float64)
	for _, edge := range delegations {
		if !edge.IsLive() {
			continue
		}
		if _, ok := weights[edge.DelegateID]; !ok {
			weights[edge.DelegateID] = 1
		}
		weights[edge.DelegateID]++
	}
	return weights
}

// WeightFor returns the effective weight of one account, defaulting to 1.
func WeightFor(weights map[uint]float64, accountID uint) float64 {
	if w, ok := weights[accountID]; ok {
		return w
	}
	return 1
}

// CalculateConsensus turns a vote snapshot and the poll's agreement policy
// into a consensus snapshot. It is pure: no I/O, no clock reads beyond the
// caller-supplied now, which keeps it safe to run under the room lock.
func CalculateConsensus(poll models.Poll, votes []TallyVote, participantCount int, now time.Time) models.ConsensusSnapshot {
	snapshot := models.ConsensusSnapshot{
		PollID:           poll.ID,
		ParticipantCount: participantCount,
	}

	if len(votes) == 0 {
		// Terminal state: zero votes, zero level, no leading option.
		return snapshot
	}

	byOption := make(map[string]float64)
	for _, vote := range votes {
		byOption[vote.OptionID] += vote.Weight
		snapshot.TotalVotes += vote.Weight
	}

	breakdown := make([]models.OptionTally, 0, len(poll.Options))
	for _, option := range poll.Options {
		count := byOption[option.ID]
		breakdown = append(breakdown, models.OptionTally{
			OptionID: option.ID,
			Votes:    count,
			Percent:  count / snapshot.TotalVotes * 100,
		})
	}
	snapshot.Breakdown = breakdown

	leading, tied := resolveLeading(poll, byOption)
	snapshot.LeadingOption = leading
	snapshot.Tie = tied && poll.Config.AllowTies

	policy := poll.Config.Policy
	switch policy {
	case models.ConsensusPercentage, models.ConsensusMajority, models.ConsensusSupermajority:
	case models.ConsensusAbsolute:
	default:
		// QUADRATIC, CONDORCET and CUSTOM have no computation yet; degrade
		// to the majority rule and flag the result instead of being
		// silently wrong.
		policy = models.ConsensusMajority
		snapshot.PolicyFallback = true
	}

	leadingCount := byOption[leading]
	if policy == models.ConsensusAbsolute {
		// Raw count against an absolute target, not a share of votes cast.
		if poll.Config.Threshold > 0 {
			snapshot.Level = leadingCount / poll.Config.Threshold * 100
		}
	} else {
		snapshot.Level = leadingCount / snapshot.TotalVotes * 100
	}

	cutoff := now.Add(-velocityWindow)
	snapshot.Velocity = float64(lo.CountBy(votes, func(vote TallyVote) bool {
		return vote.CastAt.After(cutoff)
	}))

	target := reachTarget(poll.Config)
	snapshot.Reached = snapshot.Level >= target &&
		participantCount >= poll.Config.MinParticipants

	if !snapshot.Reached && snapshot.Velocity > 0 && snapshot.Level < target {
		minutes := (target - snapshot.Level) / (snapshot.Velocity * projectionCalibration)
		snapshot.TimeToConsensus = &minutes
	}

	return snapshot
}

// reachTarget is the level at which consensus counts as reached. Percentage
// style policies compare the level against the configured threshold; the
// absolute policy already folds its threshold into the level, so it completes
// at 100.
func reachTarget(config models.ConsensusConfig) float64 {
	if config.Policy == models.ConsensusAbsolute {
		return 100
	}
	return config.Threshold
}

// resolveLeading picks the option with the highest weighted count. Ties go to
// the configured tie breaker when it is part of the tie, otherwise to the
// tied option with the lowest ordering index so recomputations stay stable.
func resolveLeading(poll models.Poll, byOption map[string]float64) (string, bool) {
	var best float64
	for _, count := range byOption {
		if count > best {
			best = count
		}
	}
	if best == 0 {
		return "", false
	}

	contenders := lo.Filter(poll.Options, func(option models.PollOption, _ int) bool {
		return byOption[option.ID] == best
	})
	if len(contenders) == 1 {
		return contenders[0].ID, false
	}

	if !poll.Config.AllowTies && poll.Config.TieBreaker != "" {
		for _, option := range contenders {
			if option.ID == poll.Config.TieBreaker {
				return option.ID, true
			}
		}
	}

	sort.Slice(contenders, func(i, j int) bool {
		return contenders[i].Indx < contenders[j].Indx
	})
	return contenders[0].ID, true
}
