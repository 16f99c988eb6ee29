package database

import (
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"gorm.io/gorm"
)

var AutoMaintainRange = []any{
	&models.Poll{},
	&models.PollParticipant{},
	&models.PollVote{},
	&models.Delegation{},
}

func RunMigration(source *gorm.DB) error {
	if err := source.AutoMigrate(
		append(
			AutoMaintainRange,
			&models.VoteAudit{},
			&models.ConsensusSnapshot{},
		)...,
	); err != nil {
		return err
	}

	return nil
}
