package main

import (
	"github.com/xaenox/notekeep/internal/bot"
	"github.com/xaenox/notekeep/internal/broadcast"
	"github.com/xaenox/notekeep/internal/engine"
	"github.com/xaenox/notekeep/internal/files"
	"github.com/xaenox/notekeep/internal/remote"
	"github.com/xaenox/notekeep/internal/scheduler"
	"github.com/xaenox/notekeep/pkg/config"
	"go.uber.org/zap"
)

func main() {
	// Initialize logger
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	// Load configuration
	cfg, err := config.LoadConfig("config.yaml")
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err), zap.String("path", "config.yaml"))
	}

	// Initialize the server of record and the durable timestamp store
	var (
		rem     remote.Remote
		durable broadcast.DurableStore
	)
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory remote")
		mem := remote.NewMemoryRemote()
		rem = mem
		durable = mem
	} else {
		logger.Info("Using PostgreSQL remote")
		pg, err := remote.NewPostgresRemote(remote.DatabaseConfig{
			Host:        cfg.Database.Host,
			Port:        cfg.Database.Port,
			User:        cfg.Database.User,
			Password:    cfg.Database.Password,
			DBName:      cfg.Database.DBName,
			SSLMode:     cfg.Database.SSLMode,
			UseInMemory: cfg.Database.UseInMemory,
		}, logger)
		if err != nil {
			logger.Fatal("Failed to initialize remote", zap.Error(err))
		}
		defer pg.Close()
		rem = pg
		durable = pg
	}

	// Initialize file-content storage
	blobs, err := files.NewDiskStorage(cfg.Files.Dir, cfg.Files.BaseURL)
	if err != nil {
		logger.Fatal("Failed to initialize file storage", zap.Error(err))
	}

	// The bus connects every session in this process
	bus := broadcast.NewProcessBus()
	defer bus.Close()

	factory := func() (*engine.Engine, *scheduler.Scheduler) {
		eng := engine.New(rem, bus, durable, blobs, logger, engine.Options{
			PageSize: cfg.Sync.PageSize,
		})
		sched := scheduler.New(eng, rem, logger, scheduler.Config{
			HeartbeatInterval: cfg.Sync.HeartbeatInterval,
			ProbeInterval:     cfg.Sync.ProbeInterval,
			ProbeRetries:      cfg.Sync.ProbeRetries,
		})
		return eng, sched
	}

	// Initialize bot
	b, err := bot.New(cfg.Telegram.Token, factory, logger)
	if err != nil {
		logger.Fatal("Failed to create bot", zap.Error(err))
	}

	// Start the bot
	if err := b.Start(); err != nil {
		logger.Fatal("Bot error", zap.Error(err))
	}
}
