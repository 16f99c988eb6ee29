package http

import (
	pkg "github.com/richmwhite1/hangouts-consensus/pkg/internal"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/auth"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/gateway"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/http/api"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type App struct {
	app *fiber.App
}

func NewServer(rooms *services.RoomRegistry, conns *gateway.ConnectionManager, tokens *auth.TokenReader) *App {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		EnableIPValidation:    true,
		ServerHeader:          "HangoutsConsensus",
		AppName:               "Hangouts Consensus v" + pkg.AppVersion,
		JSONEncoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Marshal,
		JSONDecoder:           jsoniter.ConfigCompatibleWithStandardLibrary.Unmarshal,
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))

	api.MapControllers(app, "/api", rooms, conns, tokens)

	return &App{app}
}

func (v *App) Listen() {
	if err := v.app.Listen(viper.GetString("bind")); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when starting server...")
	}
}
