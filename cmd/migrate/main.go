package main

import (
	"flag"
	"log"

	"go.uber.org/zap"

	"github.com/hackgods/pediatric-clinic-booking/internal/config"
	"github.com/hackgods/pediatric-clinic-booking/internal/db"
	"github.com/hackgods/pediatric-clinic-booking/internal/logging"
)

func main() {
	down := flag.Bool("down", false, "roll back all migrations")
	force := flag.Int("force", -1, "force the schema version and clear the dirty flag")
	showVersion := flag.Bool("version", false, "print the current schema version and exit")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config load error: %v", err)
	}

	logger, err := logging.New(cfg.Env, cfg.LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	m, err := db.NewMigrator(cfg.PostgresDSN)
	if err != nil {
		logger.Fatal("open migrator", zap.Error(err))
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("close migrator", zap.Error(err))
		}
	}()

	switch {
	case *showVersion:
	case *force >= 0:
		err = m.Force(*force)
	case *down:
		err = m.Down()
	default:
		err = m.Up()
	}
	if err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	v, dirty, err := m.Version()
	if err != nil {
		logger.Fatal("read schema version", zap.Error(err))
	}
	logger.Info("schema version", zap.Uint("version", v), zap.Bool("dirty", dirty))
}
