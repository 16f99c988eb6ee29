package api

import (
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/auth"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/gateway"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
)

var (
	registry *services.RoomRegistry
	manager  *gateway.ConnectionManager
)

func MapControllers(app *fiber.App, baseURL string, rooms *services.RoomRegistry, conns *gateway.ConnectionManager, tokens *auth.TokenReader) {
	registry = rooms
	manager = conns
	reader = tokens

	api := app.Group(baseURL)
	{
		api.Get("/polls/:pollId", getPoll)
		api.Get("/polls/:pollId/analytics", getPollAnalytics)

		authed := api.Group("", authMiddleware)
		{
			authed.Post("/polls", createPoll)
			authed.Post("/polls/:pollId/options", addPollOption)
			authed.Post("/polls/:pollId/activate", activatePoll)
			authed.Post("/polls/:pollId/pause", pausePoll)
			authed.Post("/polls/:pollId/resume", resumePoll)
			authed.Post("/polls/:pollId/close", closePoll)
			authed.Get("/polls/:pollId/me", getMyVote)
			authed.Get("/polls/:pollId/audit", getPollAudit)
		}
	}

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(gateway.Handler(tokens, conns, rooms)))
}
