package services

import (
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/rs/zerolog/log"
)

// SweepExpiredPolls closes every poll whose deadline has passed. The expiry
// is a data-level deadline: votes in flight either committed against the
// still-active poll or will fail with ErrPollInactive after this runs.
func SweepExpiredPolls(registry *RoomRegistry) {
	var polls []models.Poll
	if err := database.C.
		Where("status IN ? AND expired_at IS NOT NULL AND expired_at < ?",
			[]models.PollStatus{models.PollStatusActive, models.PollStatusPaused},
			time.Now(),
		).Find(&polls).Error; err != nil {
		log.Error().Err(err).Msg("An error occurred when looking for expired polls...")
		return
	}

	for _, poll := range polls {
		if err := registry.Close(poll.ID); err != nil {
			log.Error().Err(err).Uint("poll", poll.ID).Msg("An error occurred when closing expired poll...")
		} else {
			log.Info().Uint("poll", poll.ID).Msg("Closed an expired poll.")
		}
	}
}

func DoAutoDatabaseCleanup() {
	deadline := time.Now().Add(-30 * 24 * time.Hour)
	log.Debug().Time("deadline", deadline).Msg("Now cleaning up entire database...")

	var count int64
	for _, model := range database.AutoMaintainRange {
		tx := database.C.Unscoped().
			Where("deleted_at IS NOT NULL").
			Where("deleted_at <= ?", deadline).
			Delete(model)
		if tx.Error != nil {
			log.Error().Err(tx.Error).Msg("An error occurred when running auto maintain...")
		}
		count += tx.RowsAffected
	}

	log.Debug().Int64("affected", count).Msg("Clean up entire database accomplished.")
}
