// Package cli implements the tools-tracker command line.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/tools-tracker/internal/app"
	"github.com/joseph-ayodele/tools-tracker/internal/common"
)

// Options are the global flags shared by every subcommand.
type Options struct {
	DSN         string
	LogLevel    string
	AutoMigrate bool
}

// session carries the state built in PersistentPreRunE to the subcommands.
type session struct {
	opts     Options
	app      *app.App
	closeLog func() error
}

// Run executes the command line in args, writing command output to stdout. The database is
// closed before Run returns, also when the command fails.
func Run(ctx context.Context, args []string, stdout io.Writer) error {
	s := &session{}
	defer s.close()

	rootCmd := rootCommand(s)
	rootCmd.SetArgs(args)
	rootCmd.SetOut(stdout)
	return rootCmd.ExecuteContext(ctx)
}

func rootCommand(s *session) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "tools-tracker",
		Short:         "Tool issuance and return reconciliation",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	setupFlags(rootCmd, &s.opts)

	rootCmd.AddCommand(
		migrateCommand(s),
		toolCommand(s),
		orderCommand(s),
		jobCommand(s),
		processCommand(s),
		reconcileCommand(s),
		exportCommand(s),
	)

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		return s.initialize(cmd)
	}

	return rootCmd
}

func setupFlags(rootCmd *cobra.Command, opts *Options) {
	rootCmd.PersistentFlags().StringVar(&opts.DSN, "db", "", "Database URL (overrides DB_URL); use sqlite:<path> for an embedded database")
	rootCmd.PersistentFlags().StringVar(&opts.LogLevel, "log-level", "", "Log level: debug, info, warn, error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().BoolVar(&opts.AutoMigrate, "migrate", false, "Apply schema migrations before running the command")
}

// initialize loads configuration, opens the database and wires the services.
func (s *session) initialize(cmd *cobra.Command) error {
	cfg := common.LoadConfig()
	if s.opts.DSN != "" {
		cfg.Database.DSN = s.opts.DSN
	}
	if s.opts.LogLevel != "" {
		var lvl slog.Level
		if err := lvl.UnmarshalText([]byte(s.opts.LogLevel)); err != nil {
			return fmt.Errorf("invalid --log-level %q: %w", s.opts.LogLevel, err)
		}
		cfg.Log.Level = lvl
	}
	if cfg.Database.DSN == "" {
		return common.NewAppError("CONFIG_ERROR", "DB_URL or --db is required", common.ErrInvalidInput)
	}

	logger, closeLog := common.SetupLogger(cfg.Log.Level, cfg.Log.File)
	s.closeLog = closeLog

	a, err := app.New(cmd.Context(), cfg, logger)
	if err != nil {
		return err
	}
	s.app = a

	if s.opts.AutoMigrate && cmd.Name() != "migrate" {
		return a.Migrate(cmd.Context())
	}
	return nil
}

func (s *session) close() {
	if s.app != nil {
		s.app.Close()
		s.app = nil
	}
	if s.closeLog != nil {
		_ = s.closeLog()
		s.closeLog = nil
	}
}

func badArg(format string, args ...any) error {
	return common.NewAppError("INVALID_ARGUMENT", fmt.Sprintf(format, args...), common.ErrInvalidInput)
}

func parseUUID(field, value string) (uuid.UUID, error) {
	v := common.NewValidator().Field(field, strings.TrimSpace(value), common.Required, common.UUID)
	if err := common.ValidateAndReturnError(v); err != nil {
		return uuid.Nil, err
	}
	return uuid.Parse(strings.TrimSpace(value))
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}
