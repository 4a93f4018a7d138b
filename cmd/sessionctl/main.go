package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"sessionbook/internal/config"
	"sessionbook/internal/database"
	"sessionbook/internal/logging"
	"sessionbook/internal/repository"
	"sessionbook/internal/service"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "sessionctl",
	Short: "Operate a sessionbook database",
	Long: `Maintenance commands that work directly on the sessionbook database.

Calendar and notification tasks created here are stored in the outbox and
delivered by the running server.

Examples:
  sessionctl seed --file configs/providers.yaml
  sessionctl autocomplete --provider anna --preview
  sessionctl cancel --booking 42 --provider anna
  sessionctl reconcile --provider anna
  sessionctl clients --provider anna
  sessionctl failed-tasks
  sessionctl task --id 7 --requeue
  sessionctl export anna --from 2026-01-01 --to 2026-01-31 -o january.xlsx`,
	SilenceUsage: true,
}

func init() {
	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", defaultConfig, "path to config.yaml")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// env is everything a command needs; close releases the database.
type env struct {
	cfg       *config.Config
	db        *database.DB
	logger    *zerolog.Logger
	lifecycle *service.LifecycleService
	export    *service.ExportService
}

func openEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Logging.Output = "stderr"
	base, _, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	logger := logging.Component(base, "sessionctl")

	db, err := database.NewDB(cfg.Database.Path, logger)
	if err != nil {
		return nil, err
	}

	var state repository.StateStore = repository.NewMemoryStateRepository()
	if cfg.Redis.Address != "" {
		state = repository.NewFailoverStateRepository(
			repository.NewRedisStateRepository(repository.NewRedisClient(cfg.Redis)), state, logger)
	}

	collab := service.Collaborators{Cache: state, Limiter: state}
	return &env{
		cfg:       cfg,
		db:        db,
		logger:    logger,
		lifecycle: service.NewLifecycleService(db, collab, cfg.AutoComplete.MinInterval, logger),
		export:    service.NewExportService(db, logger),
	}, nil
}

func (e *env) close() {
	_ = e.db.Close()
}

// providerID resolves a slug; an empty slug means every provider.
func (e *env) providerID(ctx context.Context, slug string) (int64, error) {
	if slug == "" {
		return 0, nil
	}
	p, err := e.db.GetProviderBySlug(ctx, slug)
	if err != nil {
		return 0, fmt.Errorf("provider %s: %w", slug, err)
	}
	return p.ID, nil
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return context.WithTimeout(cmd.Context(), 5*time.Minute)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
