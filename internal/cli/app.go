package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mealplanner/pantry/internal/config"
	"github.com/mealplanner/pantry/internal/ident"
	"github.com/mealplanner/pantry/internal/logger"
	"github.com/mealplanner/pantry/internal/search"
	"github.com/mealplanner/pantry/internal/storage"
	"github.com/mealplanner/pantry/internal/validate"
)

// app bundles everything a command needs: configuration, logger, validator,
// search engine, and the selected storage backend.
type app struct {
	cfg       config.Config
	log       *zap.Logger
	validator *validate.Validator
	engine    *search.Engine
	ids       *ident.Generator
	store     storage.Adapter
	backend   string
}

// newApp loads configuration, applies flag overrides, and opens storage.
// Callers must Close the returned app.
func newApp(ctx context.Context, opts *RootOptions) (*app, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "load configuration", err)
	}

	if opts.DBPath != "" {
		cfg.Storage.SQLitePath = opts.DBPath
	}
	if opts.Backend != "" {
		cfg.Storage.Backend = opts.Backend
	}

	log, err := logger.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "build logger", err)
	}

	validator := newValidator(cfg)
	engine := search.New(cfg.Search)
	ids := ident.New()

	// The CLI has no embedding host, so the bridge backend is never a
	// candidate here.
	caps := storage.Capabilities{
		SQLitePath: cfg.Storage.SQLitePath,
		Force:      cfg.Storage.Backend,
	}
	store, backend, err := storage.Open(ctx, caps, log,
		storage.WithValidator(validator),
		storage.WithEngine(engine),
		storage.WithIdentifiers(ids),
	)
	if err != nil {
		log.Sync()
		return nil, WrapExitError(ExitCommandError, "open storage", err)
	}

	return &app{
		cfg:       cfg,
		log:       log,
		validator: validator,
		engine:    engine,
		ids:       ids,
		store:     store,
		backend:   backend,
	}, nil
}

func (a *app) Close() {
	if err := a.store.Close(); err != nil {
		a.log.Warn("close storage", zap.Error(err))
	}
	a.log.Sync()
}

// newValidator builds the recipe validator from configuration.
func newValidator(cfg config.Config) *validate.Validator {
	opts := []validate.Option{}
	if cfg.Validation.WarnTotalTimeMinutes > 0 {
		opts = append(opts, validate.WithWarnTotalTime(cfg.Validation.WarnTotalTimeMinutes))
	}
	return validate.New(opts...)
}

// newFormatter builds the output formatter for a command invocation.
func newFormatter(opts *RootOptions, cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(), // Verbose logs go to stderr to avoid corrupting JSON
		Verbose:   opts.Verbose,
	}
}

// readJSONFile decodes one JSON document from path into a generic value.
// "-" reads standard input.
func readJSONFile(path string) (any, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}
