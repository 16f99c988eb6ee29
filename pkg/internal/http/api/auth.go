package api

import (
	"strings"

	"github.com/richmwhite1/hangouts-consensus/pkg/internal/auth"
	"github.com/gofiber/fiber/v2"
)

var reader *auth.TokenReader

func authMiddleware(c *fiber.Ctx) error {
	header := c.Get(fiber.HeaderAuthorization)
	token := strings.TrimPrefix(header, "Bearer ")
	if len(token) == 0 || token == header {
		return fiber.NewError(fiber.StatusUnauthorized, "missing bearer token")
	}

	accountID, err := reader.Parse(token)
	if err != nil {
		return fiber.NewError(fiber.StatusUnauthorized, err.Error())
	}

	c.Locals("account_id", accountID)
	return c.Next()
}

func accountID(c *fiber.Ctx) uint {
	if id, ok := c.Locals("account_id").(uint); ok {
		return id
	}
	return 0
}
