package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	pkg "github.com/richmwhite1/hangouts-consensus/pkg/internal"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/auth"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/cache"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/database"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/gateway"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/http"
	"github.com/richmwhite1/hangouts-consensus/pkg/internal/services"
	"github.com/fatih/color"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func init() {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
}

func main() {
	// Booting screen
	fmt.Println(color.YellowString("  ____\n / ___|___  _ __  ___  ___ _ __  ___ _   _ ___\n| |   / _ \\| '_ \\/ __|/ _ \\ '_ \\/ __| | | / __|\n| |__| (_) | | | \\__ \\  __/ | | \\__ \\ |_| \\__ \\\n \\____\\___/|_| |_|___/\\___|_| |_|___/\\__,_|___/"))
	fmt.Printf("%s v%s\n", color.New(color.FgHiYellow).Add(color.Bold).Sprintf("Hangouts Consensus"), pkg.AppVersion)
	fmt.Printf("The live consensus polling engine of Hangouts\n")
	color.HiBlack("=====================================================\n")

	// Configure settings
	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.SetConfigName("settings")
	viper.SetConfigType("toml")

	// Load settings
	if err := viper.ReadInConfig(); err != nil {
		log.Panic().Err(err).Msg("An error occurred when loading settings.")
	}

	// Local cache
	if err := cache.NewStore(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when initializing cache.")
	}

	// Connect to database
	if err := database.NewGorm(); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connect to database.")
	} else if err := database.RunMigration(database.C); err != nil {
		log.Fatal().Err(err).Msg("An error occurred when running database auto migration.")
	}

	// Gateway wiring: relay is optional, everything else is mandatory
	relay, err := gateway.NewRelay()
	if err != nil {
		log.Fatal().Err(err).Msg("An error occurred when connecting to the relay.")
	}

	manager := gateway.NewConnectionManager()
	dispatcher := gateway.NewDispatcher(manager, relay)
	registry := services.NewRoomRegistry(dispatcher)
	tokens := auth.NewTokenReader()

	relayCtx, stopRelay := context.WithCancel(context.Background())
	defer stopRelay()
	if relay != nil {
		go relay.Listen(relayCtx, dispatcher)
		log.Info().Msg("Relay connected, cross-instance fan-out enabled.")
	}

	// Configure timed tasks
	quartz := cron.New(cron.WithLogger(cron.VerbosePrintfLogger(&log.Logger)))
	quartz.AddFunc("@every 1m", func() { services.SweepExpiredPolls(registry) })
	quartz.AddFunc("@every 60m", services.DoAutoDatabaseCleanup)
	quartz.Start()

	// Server
	go http.NewServer(registry, manager, tokens).Listen()

	// Messages
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	quartz.Stop()
}
