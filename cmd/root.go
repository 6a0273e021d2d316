package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/spoofguard/internal/config"
	"github.com/andresmejia3/spoofguard/internal/logger"
	"github.com/andresmejia3/spoofguard/internal/store"
)

// Options holds the flags shared by the pipeline commands.
type Options struct {
	InputDir     string
	OutputDir    string
	ModelDir     string
	ProtocolPath string
	Mode         string
	Workers      int
	Score        bool
	SignPolicy   string
	NoProgress   bool
}

var (
	// Cfg is the resolved configuration, available once PersistentPreRunE ran.
	Cfg *config.Config
	// DB is the results database shared by subcommands. It is nil when no
	// database is configured.
	DB *store.Store

	cfgFile  string
	dbURL    string
	logLevel string
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:   "spoofguard",
	Short: "Face anti-spoofing pipeline: feature extraction, models, scoring and evaluation",
	Long: `spoofguard runs the stages of a face anti-spoofing experiment. Each stage
reads and writes per-video files, so stages can be re-run independently:

  extract        per-frame features through a pool of extractor processes
  mkhistmodel    average real-access histogram of the train split
  cmphistmodels  chi-square scores against that model, EER evaluation
  ldatrain       Fisher LDA training and evaluation
  svmtrain       linear SVM training (and evaluation with --eval)
  svmeval        evaluation with a saved SVM machine`,
	Version:       Version, // This enables the --version flag
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		Cfg, err = config.Load(cfgFile)
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("log-level") {
			Cfg.LogLevel = logLevel
		}
		if err := logger.Init(Cfg.LogLevel); err != nil {
			return err
		}
		if dbURL != "" {
			Cfg.DatabaseURL = dbURL
		}

		if Cfg.DatabaseURL == "" {
			log.Debug().Msg("no results database configured")
			return nil
		}
		// Use the command's context (which will be cancellable) for the connection
		DB, err = store.New(cmd.Context(), Cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		releaseDB()
	},
}

// releaseDB closes the results database. Cobra skips PersistentPostRun when
// RunE fails, so run calls it too.
func releaseDB() {
	if DB != nil {
		// Use Background here because the main context might be cancelled already (due to Ctrl+C)
		// and we still need to send the "Close" command to the DB.
		DB.Close(context.Background())
		DB = nil
	}
}

// run executes the root command and releases the database whatever the outcome.
func run(ctx context.Context) error {
	defer releaseDB()
	return rootCmd.ExecuteContext(ctx)
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "PostgreSQL connection string for the results database (default: $SPOOFGUARD_DATABASE_URL or POSTGRES_* variables)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "INFO", "Log level: DEBUG, INFO, WARN, ERROR or DISABLED")
}

// addPipelineFlags registers the flags every scoring stage shares.
func addPipelineFlags(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVarP(&opts.InputDir, "input-dir", "v", "", "Directory containing the per-video feature files (default: feature_dir from config)")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "d", "", "Directory where results are written (default: result_dir from config)")
	cmd.Flags().StringVar(&opts.ProtocolPath, "protocol", "", "Protocol file listing the videos of each split and class")
	cmd.Flags().StringVar(&opts.Mode, "mode", "mask", "Frame selection: 'mask' (validity masks) or 'valid-only' (deprecated marker filtering)")
	cmd.Flags().IntVar(&opts.Workers, "workers", 0, "Parallel file loaders (default: workers from config)")
	cmd.Flags().BoolVar(&opts.NoProgress, "no-progress", false, "Disable progress bars")
	cmd.MarkFlagRequired("protocol")
}

// addScoreFlag registers -s/--score for stages that can dump per-frame scores.
func addScoreFlag(cmd *cobra.Command, opts *Options) {
	cmd.Flags().BoolVarP(&opts.Score, "score", "s", false, "Dump the per-frame scores of every video into <output-dir>/scores")
}

// addSignFlag registers --sign-policy for classifier-based stages.
func addSignFlag(cmd *cobra.Command, opts *Options) {
	cmd.Flags().StringVar(&opts.SignPolicy, "sign-policy", "auto", "Score polarity: 'auto' negates all scores when genuine devel scores average lower, 'none' keeps them")
}
