// Package cmd provides the CLI commands for fuzzysearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/fuzzysearch/internal/app"
	"github.com/Aman-CERP/fuzzysearch/internal/config"
	"github.com/Aman-CERP/fuzzysearch/internal/document"
	"github.com/Aman-CERP/fuzzysearch/internal/logging"
	"github.com/Aman-CERP/fuzzysearch/internal/output"
	"github.com/Aman-CERP/fuzzysearch/internal/profiling"
	"github.com/Aman-CERP/fuzzysearch/pkg/version"
)

// Debug and profiling flags
var (
	debugMode      bool
	profileOpts    profiling.Options
	profileSession *profiling.Session
	loggingCleanup func()
)

// storeFlags are the connection flags shared by the root and import commands.
type storeFlags struct {
	uri        string
	database   string
	collection string
	backend    string
	sqlitePath string
}

func (f *storeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.uri, "uri", config.DefaultURI, "connection string for the MongoDB deployment")
	cmd.Flags().StringVarP(&f.database, "dbName", "d", config.DefaultDatabase, "database name, unless the connection string names one")
	cmd.Flags().StringVarP(&f.collection, "collectionName", "c", config.DefaultCollection, "collection name")
	cmd.Flags().StringVar(&f.backend, "backend", config.DefaultBackend, "document store: mongo or sqlite")
	cmd.Flags().StringVar(&f.sqlitePath, "sqlite-path", "", "database file for the sqlite backend")
}

// apply copies the flags the user set over cfg.
func (f *storeFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("uri") {
		cfg.Store.URI = f.uri
	}
	if flags.Changed("dbName") {
		cfg.Store.Database = f.database
	}
	if flags.Changed("collectionName") {
		cfg.Store.Collection = f.collection
	}
	if flags.Changed("backend") {
		cfg.Store.Backend = strings.ToLower(f.backend)
	}
	if flags.Changed("sqlite-path") {
		cfg.Store.SQLitePath = f.sqlitePath
	}
}

// loadConfig loads the layered configuration for the working directory,
// applies the command's flags and validates the result.
func loadConfig(cmd *cobra.Command, flags *storeFlags) (*config.Config, error) {
	cfg, err := config.Load(".")
	if err != nil {
		return nil, err
	}
	flags.apply(cmd, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// NewRootCmd creates the root command for the fuzzysearch CLI.
func NewRootCmd() *cobra.Command {
	var (
		sf          storeFlags
		fields      []string
		predicates  []string
		createIndex bool
	)

	cmd := &cobra.Command{
		Use:   "fuzzysearch",
		Short: "Phonetic search over MongoDB documents",
		Long: `fuzzysearch adds Soundex codes of selected name fields to each document,
optionally indexes them, and finds documents that sound like a search term.

Phases run in order: ping, backfill (-b), index (-i), search (-s).
The backfill only adds codes, so running it again changes nothing.`,
		Example: `  # Encode the last and first names of every document, then index them
  fuzzysearch -d people -c persons -b names.last -b names.first -i

  # Find people whose name sounds like "Jon"
  fuzzysearch -d people -c persons -s Jon

  # Same against a local SQLite file
  fuzzysearch --backend sqlite -c persons -b names.last -s Smyth`,
		Version:       version.Info().Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, &sf)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("build") {
				cfg.Backfill.Fields = fields
			}
			if cmd.Flags().Changed("search") {
				cfg.Search.Predicates = predicates
			}
			return runFuzzySearch(cmd, cfg, createIndex)
		},
	}

	cmd.SetVersionTemplate("fuzzysearch version {{.Version}}\n")

	sf.register(cmd)
	cmd.Flags().StringArrayVarP(&fields, "build", "b", nil, "array.field path to build codes for; repeat for more fields")
	cmd.Flags().StringArrayVarP(&predicates, "search", "s", nil, "search predicate; repeat for more predicates")
	cmd.Flags().BoolVarP(&createIndex, "index", "i", false, "create the index on the code field")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.fuzzysearch/logs/")
	cmd.PersistentFlags().StringVar(&profileOpts.CPUPath, "profile-cpu", "", "Write CPU profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.HeapPath, "profile-mem", "", "Write memory profile to file")
	cmd.PersistentFlags().StringVar(&profileOpts.TracePath, "profile-trace", "", "Write execution trace to file")
	cmd.PersistentPreRunE = startProfilingAndLogging
	cmd.PersistentPostRunE = stopProfilingAndLogging

	cmd.AddCommand(newImportCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func runFuzzySearch(cmd *cobra.Command, cfg *config.Config, createIndex bool) error {
	paths, err := document.ParseFieldPaths(cfg.Backfill.Fields)
	if err != nil {
		return err
	}

	runner, err := app.NewRunner(app.Dependencies{
		Config: cfg,
		Output: output.New(cmd.OutOrStdout()),
	})
	if err != nil {
		return err
	}

	_, err = runner.Run(cmd.Context(), app.Plan{
		Fields:      paths,
		CreateIndex: createIndex,
		Predicates:  cfg.Search.Predicates,
	})
	return err
}

// startProfilingAndLogging installs the logger and starts any requested
// profiles. File settings come from the logging section of the
// configuration when it loads.
func startProfilingAndLogging(_ *cobra.Command, _ []string) error {
	lc := logging.DebugConfig()
	if cfg, err := config.Load("."); err == nil {
		lc.FilePath = cfg.Logging.FilePath
		lc.MaxSizeMB = cfg.Logging.MaxSizeMB
		lc.MaxFiles = cfg.Logging.MaxFiles
		lc.MaxAgeDays = cfg.Logging.MaxAgeDays
	}

	cleanup, err := logging.Init(debugMode, lc)
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup

	if profileOpts.Enabled() {
		session, err := profiling.Start(profileOpts)
		if err != nil {
			return err
		}
		profileSession = session
	}
	return nil
}

// stopProfilingAndLogging writes the profiles, then closes the log file.
func stopProfilingAndLogging(_ *cobra.Command, _ []string) error {
	var err error
	if profileSession != nil {
		err = profileSession.Stop()
		profileSession = nil
	}
	if loggingCleanup != nil {
		slog.Debug("logging_stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return err
}

// Execute runs the root command. Interrupts cancel the run's context.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := NewRootCmd().ExecuteContext(ctx)
	// PersistentPostRunE is skipped when RunE fails
	if stopErr := stopProfilingAndLogging(nil, nil); err == nil {
		err = stopErr
	}
	return err
}
