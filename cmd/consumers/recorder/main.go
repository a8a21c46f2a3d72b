package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/carverauto/tagradar/pkg/config"
	"github.com/carverauto/tagradar/pkg/lifecycle"
	"github.com/carverauto/tagradar/pkg/logger"
	"github.com/carverauto/tagradar/pkg/recorder"
)

var (
	errDBPasswordRequired = errors.New("database password is required; set it in config or provide DB_PASSWORD_FILE from a mounted secret")
	errDBPasswordEmpty    = errors.New("database password file is empty")
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/tagradar/recorder.json", "Path to recorder config file")
	flag.Parse()

	ctx := context.Background()

	cfgLoader := config.NewConfig(nil)

	var cfg recorder.Config

	if err := cfgLoader.LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if err := applyDatabasePassword(&cfg); err != nil {
		return err
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	recorderLogger, err := lifecycle.CreateComponentLogger(ctx, "recorder", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	svc, err := recorder.NewService(&cfg, recorderLogger)
	if err != nil {
		return err
	}

	return lifecycle.Run(ctx, &lifecycle.RunOptions{
		ServiceName: "recorder",
		Service:     svc,
		Logger:      recorderLogger,
	})
}

// applyDatabasePassword ensures the database password is sourced from a
// mounted secret file, not env.
func applyDatabasePassword(cfg *recorder.Config) error {
	if cfg.Database.Password != "" {
		return nil
	}

	pwPath := os.Getenv("DB_PASSWORD_FILE")
	if pwPath == "" {
		return errDBPasswordRequired
	}

	data, err := os.ReadFile(pwPath)
	if err != nil {
		return fmt.Errorf("read database password file: %w", err)
	}

	pwd := strings.TrimSpace(string(data))
	if pwd == "" {
		return fmt.Errorf("%w: %s", errDBPasswordEmpty, pwPath)
	}

	cfg.Database.Password = pwd

	return nil
}
