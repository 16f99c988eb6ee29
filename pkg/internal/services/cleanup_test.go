package services_test

import (
	"testing"
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
)

func TestSweepExpiredPolls(t *testing.T) {
	useTestDB(t)

	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	expired, err := services.NewPoll(models.Poll{
		Title:     "Expired",
		Status:    models.PollStatusActive,
		ExpiredAt: &past,
	})
	if err != nil {
		t.Fatalf("seed expired poll: %v", err)
	}
	running, err := services.NewPoll(models.Poll{
		Title:     "Running",
		Status:    models.PollStatusActive,
		ExpiredAt: &future,
	})
	if err != nil {
		t.Fatalf("seed running poll: %v", err)
	}
	endless, err := services.NewPoll(models.Poll{
		Title:  "Endless",
		Status: models.PollStatusActive,
	})
	if err != nil {
		t.Fatalf("seed endless poll: %v", err)
	}

	sink := &recorderSink{}
	services.SweepExpiredPolls(services.NewRoomRegistry(sink))

	for _, check := range []struct {
		id   uint
		want models.PollStatus
	}{
		{expired.ID, models.PollStatusClosed},
		{running.ID, models.PollStatusActive},
		{endless.ID, models.PollStatusActive},
	} {
		poll, err := services.GetPoll(check.id)
		if err != nil {
			t.Fatalf("get poll %d: %v", check.id, err)
		}
		if poll.Status != check.want {
			t.Errorf("poll %d status = %s, want %s", check.id, poll.Status, check.want)
		}
	}

	if got := sink.count("pollUpdated"); got != 1 {
		t.Errorf("pollUpdated broadcasts = %d, want only the expired poll announced", got)
	}
}
