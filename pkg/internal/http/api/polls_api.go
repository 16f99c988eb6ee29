package api

import (
	"errors"
	"time"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/http/exts"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/models"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
)

func getPoll(c *fiber.Ctx) error {
	pollId, _ := c.ParamsInt("pollId")

	poll, err := services.GetPoll(uint(pollId))
	if err != nil {
		if errors.Is(err, services.ErrPollNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	snapshot, _, err := registry.Analytics(poll.ID, 0)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"poll":     poll,
		"snapshot": snapshot,
	})
}

// createPoll materializes a poll from a hangout whose options were just
// finalized; the hangout service supplies the option set and creator in the
// request, once, at creation.
func createPoll(c *fiber.Ctx) error {
	user := accountID(c)

	var data struct {
		HangoutID   uint                   `json:"hangout_id" validate:"required"`
		Title       string                 `json:"title" validate:"required,max=256"`
		Description string                 `json:"description" validate:"max=4096"`
		Options     []models.PollOption    `json:"options" validate:"required,min=2"`
		Config      models.ConsensusConfig `json:"config" validate:"required"`
		ExpiredAt   *time.Time             `json:"expired_at"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	for idx := range data.Options {
		data.Options[idx].Indx = idx
	}

	poll := models.Poll{
		HangoutID:   data.HangoutID,
		CreatorID:   user,
		Title:       data.Title,
		Description: data.Description,
		Options:     data.Options,
		Config:      data.Config,
		ExpiredAt:   data.ExpiredAt,
	}

	var err error
	if poll, err = services.NewPoll(poll); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(poll)
}

func addPollOption(c *fiber.Ctx) error {
	pollId, _ := c.ParamsInt("pollId")
	user := accountID(c)

	var data struct {
		ID          string `json:"id" validate:"required,max=64"`
		Name        string `json:"name" validate:"required,max=256"`
		Description string `json:"description" validate:"max=1024"`
	}

	if err := exts.BindAndValidate(c, &data); err != nil {
		return err
	}

	poll, err := requirePollCreator(uint(pollId), user)
	if err != nil {
		return err
	}

	if poll, err = services.AddPollOption(poll, models.PollOption{
		ID:          data.ID,
		Name:        data.Name,
		Description: data.Description,
	}); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	return c.JSON(poll)
}

func activatePoll(c *fiber.Ctx) error {
	return transitionPoll(c, func(pollId uint) error {
		return registry.Activate(pollId)
	})
}

func pausePoll(c *fiber.Ctx) error {
	return transitionPoll(c, func(pollId uint) error {
		return registry.Pause(pollId)
	})
}

func resumePoll(c *fiber.Ctx) error {
	return transitionPoll(c, func(pollId uint) error {
		return registry.Resume(pollId)
	})
}

func closePoll(c *fiber.Ctx) error {
	return transitionPoll(c, func(pollId uint) error {
		return registry.Close(pollId)
	})
}

func transitionPoll(c *fiber.Ctx, op func(pollId uint) error) error {
	pollId, _ := c.ParamsInt("pollId")
	user := accountID(c)

	if _, err := requirePollCreator(uint(pollId), user); err != nil {
		return err
	}

	if err := op(uint(pollId)); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	poll, err := services.GetPoll(uint(pollId))
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(poll)
}

func getMyVote(c *fiber.Ctx) error {
	pollId, _ := c.ParamsInt("pollId")
	user := accountID(c)

	vote, err := services.GetLiveVote(uint(pollId), user)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if vote == nil {
		return fiber.NewError(fiber.StatusNotFound, "no live vote in this poll")
	}

	return c.JSON(vote)
}

func getPollAnalytics(c *fiber.Ctx) error {
	pollId, _ := c.ParamsInt("pollId")
	take := c.QueryInt("take", 50)

	current, history, err := registry.Analytics(uint(pollId), take)
	if err != nil {
		if errors.Is(err, services.ErrPollNotFound) {
			return fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(fiber.Map{
		"current": current,
		"history": history,
	})
}

func getPollAudit(c *fiber.Ctx) error {
	pollId, _ := c.ParamsInt("pollId")
	user := accountID(c)
	take := c.QueryInt("take", 50)

	if _, err := requirePollCreator(uint(pollId), user); err != nil {
		return err
	}

	trail, err := services.ListPollAudit(uint(pollId), take)
	if err != nil {
		return fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}

	return c.JSON(trail)
}

func requirePollCreator(pollId, user uint) (models.Poll, error) {
	poll, err := services.GetPoll(pollId)
	if err != nil {
		if errors.Is(err, services.ErrPollNotFound) {
			return poll, fiber.NewError(fiber.StatusNotFound, err.Error())
		}
		return poll, fiber.NewError(fiber.StatusInternalServerError, err.Error())
	}
	if poll.CreatorID != user {
		return poll, fiber.NewError(fiber.StatusForbidden, "only the poll creator can do that")
	}
	return poll, nil
}
