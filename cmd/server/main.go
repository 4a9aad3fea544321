// Package main is the entry point of the application
package main

import (
	"flag"
	"net/http"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/avasile/uttt-server/internal/auth"
	"github.com/avasile/uttt-server/internal/identity"
	"github.com/avasile/uttt-server/internal/outcome"
	"github.com/avasile/uttt-server/pkg/config"
	"github.com/avasile/uttt-server/pkg/events"
	"github.com/avasile/uttt-server/pkg/game"
	"github.com/avasile/uttt-server/pkg/matchmaking"
	"github.com/avasile/uttt-server/pkg/server"
)

// application encapsulates global dependencies
type application struct {
	Auth      auth.Verifier
	Logger    *zap.Logger
	Config    *config.Config
	Publisher *events.Publisher
	Registry  *game.Registry
	Hub       *server.Hub
	Server    *http.Server

	StartTime time.Time
}

func main() {
	debug := flag.Bool("debug", false, "enable debug logging")
	port := flag.String("port", "", "server port (overrides config)")
	configPath := flag.String("config", "", "path to YAML config file")
	flag.Parse()

	// A missing .env file is fine; env vars may come from the environment.
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}
	if *debug {
		cfg.Debug = true
	}
	if *port != "" {
		cfg.Port = *port
	}

	logger := initLogger(cfg.Debug)
	defer logger.Sync()

	publisher := events.NewPublisher()
	reporter := outcome.NewLogReporter(logger)

	registry := game.NewRegistry(
		clockwork.NewRealClock(),
		logger,
		publisher,
		reporter,
		time.Duration(cfg.EvictionGraceSec)*time.Second,
	)

	directory := identity.NewInMemoryDirectory()
	for userID, profile := range cfg.Users {
		directory.Put(userID, identity.Profile{
			Username: profile.Username,
			Rating:   profile.Rating,
		})
	}
	// Every user reachable through a token gets at least a default profile.
	for _, userID := range cfg.Tokens {
		if _, err := directory.PublicProfile(userID); err != nil {
			directory.Put(userID, identity.Profile{Username: userID, Rating: 1200})
		}
	}

	queue := matchmaking.NewQueue(registry, directory, logger)
	hub := server.NewHub(queue, registry, directory, logger)

	publisher.SubscribeAll(func(event events.Event) {
		logger.Debug("event published",
			zap.String("type", string(event.Type)),
			zap.String("session_id", event.SessionID),
		)
	})

	app := &application{
		Auth:      auth.NewStaticTokenVerifier(cfg.Tokens),
		Logger:    logger,
		Config:    cfg,
		Publisher: publisher,
		Registry:  registry,
		Hub:       hub,
		StartTime: time.Now(),
	}

	go app.Hub.Run()

	if err := app.serve(); err != nil {
		logger.Fatal("error serving", zap.Error(err))
	}
}

func initLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	} else {
		cfg = zap.NewProductionConfig()
		cfg.Level = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	}

	logger, err := cfg.Build()
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}

	return logger
}

// Shutdown cleans up resources
func (app *application) Shutdown() {
	if app.Hub != nil {
		app.Hub.Shutdown()
	}

	app.Logger.Info("All components shut down successfully")
}
