package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"allocator/internal/config"
	apperrors "allocator/internal/errors"
	"allocator/internal/infrastructure"
	"allocator/internal/ingest"
	"allocator/internal/services"
	"allocator/internal/session"
	"allocator/internal/validation"
	"allocator/pkg/contracts"
	api "allocator/pkg/contracts/api/v1"
)

// cli holds the state shared by every subcommand
type cli struct {
	configFile string
	profile    string
	verbose    bool

	cfg       *config.Config
	logger    *slog.Logger
	validator *validation.FileValidator
	service   *services.AllocationService

	stdout io.Writer
	stderr io.Writer
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}

	root := &cobra.Command{
		Use:   "revise",
		Short: "Filter a sales table and write percentage revisions",
		Long: `revise loads a CSV or Excel sales table, narrows it with cascading
filters and writes a copy with revised numeric columns and a STATUS column.`,
		Version:       contracts.ReadBuildInfo().String(),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.setup()
		},
	}
	root.SetVersionTemplate("{{.Version}}\n")
	root.SetOut(stdout)
	root.SetErr(stderr)

	root.PersistentFlags().StringVar(&c.configFile, "config", "", "config file (default config.yaml or configs/config.yaml)")
	root.PersistentFlags().StringVar(&c.profile, "profile", "", "schema profile, auto or fixed (overrides config)")
	root.PersistentFlags().BoolVarP(&c.verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newInspectCmd(c), newApplyCmd(c))
	return root
}

// setup loads configuration and builds an in-process allocation service
func (c *cli) setup() error {
	if c.configFile != "" {
		if err := os.Setenv(config.EnvPrefix+"_CONFIG_FILE", c.configFile); err != nil {
			return fmt.Errorf("failed to set config file: %w", err)
		}
	}
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	switch c.profile {
	case "":
	case config.ProfileAuto, config.ProfileFixed:
		cfg.Engine.SchemaProfile = c.profile
	default:
		return apperrors.NewInvalidParameterError("unknown schema profile %q", c.profile)
	}
	c.cfg = cfg

	level := slog.LevelInfo
	if c.verbose {
		level = slog.LevelDebug
	}
	c.logger = infrastructure.NewLogger(c.stderr, "text", &slog.HandlerOptions{Level: level}).
		With(slog.String("service", config.AppName+"-cli"))

	c.validator = validation.NewFileValidator(validation.UploadRules{
		MaxBytes:          cfg.Upload.MaxBytes,
		AllowedExtensions: cfg.Upload.AllowedExtensions,
	}, c.logger)

	// one session per invocation, never expired
	store := session.NewStore(session.Options{Max: 1}, c.logger)
	c.service = services.NewAllocationService(services.AllocationDeps{
		Store:     store,
		Ingestor:  ingest.New(ingest.Options{MaxRows: cfg.Engine.MaxRows, MaxColumns: cfg.Engine.MaxColumns}, c.logger),
		Validator: c.validator,
		Engine:    cfg.Engine,
		Export:    cfg.Export,
		Logger:    c.logger,
	})
	return nil
}

// load opens path into a fresh session
func (c *cli) load(ctx context.Context, path, sheet string) (string, api.UploadResponse, error) {
	if err := c.validator.ValidateFile(path); err != nil {
		return "", api.UploadResponse{}, err
	}
	file, err := os.Open(path)
	if err != nil {
		return "", api.UploadResponse{}, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return "", api.UploadResponse{}, fmt.Errorf("failed to stat %s: %w", path, err)
	}

	created, err := c.service.CreateSession(ctx)
	if err != nil {
		return "", api.UploadResponse{}, err
	}
	resp, err := c.service.Upload(ctx, created.ID, services.Upload{
		Name:  filepath.Base(path),
		Size:  info.Size(),
		Body:  file,
		Sheet: sheet,
	})
	if err != nil {
		return "", api.UploadResponse{}, err
	}
	return created.ID, resp, nil
}
