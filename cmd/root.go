package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"alttext/internal/app"
	"alttext/internal/config"
)

var logLevelOverride string

var rootCmd = &cobra.Command{
	Use:   "alttext",
	Short: "Generate image alt text with the OpenAI Batch API",
	Long: `alttext encodes a dataset of images into OpenAI batch requests, uploads them,
drives the resulting batch jobs to completion and merges the generated alt text
back into the dataset.`,
	SilenceUsage: true,
	Run: func(cmd *cobra.Command, args []string) {
		// If no subcommand is given, print help.
		cmd.Help()
	},
	// PersistentPreRunE runs before any subcommand's RunE
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "version" || cmd.Name() == "completion" {
			return nil
		}

		// A missing .env file is fine.
		_ = godotenv.Load()

		cfg, err := config.LoadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if logLevelOverride != "" {
			cfg.Logging.Level = logLevelOverride
		}
		if err := configureLogging(cfg.Logging.Level, cfg.Logging.Format); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid config: %w", err)
		}

		appInstance, err := app.NewApp(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize app: %w", err)
		}

		// Store the app instance in the command's context
		ctx := context.WithValue(cmd.Context(), appKey, appInstance)
		cmd.SetContext(ctx)
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if appInstance, err := GetAppFromContext(cmd.Context()); err == nil {
			appInstance.Close()
		}
	},
}

func configureLogging(level, format string) error {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}
	log.SetLevel(lvl)
	log.SetOutput(os.Stderr)
	if format == "json" {
		log.SetFormatter(&log.JSONFormatter{})
	} else {
		log.SetFormatter(&log.TextFormatter{FullTimestamp: true})
	}
	return nil
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// Define a custom type for the context key to avoid collisions.
type contextKey string

const appKey contextKey = "app"

// Helper function to retrieve the app instance from context
func GetAppFromContext(ctx context.Context) (*app.App, error) {
	appInstance, ok := ctx.Value(appKey).(*app.App)
	if !ok || appInstance == nil {
		// This should not happen if PersistentPreRunE ran successfully
		return nil, fmt.Errorf("application instance not found in context")
	}
	return appInstance, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevelOverride, "log-level", "", "Override logging.level (debug, info, warn, error)")
	rootCmd.AddCommand(doctorCmd)
}

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check run store connectivity and OpenAI configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		appInstance, err := GetAppFromContext(ctx)
		if err != nil {
			return fmt.Errorf("failed to get app instance: %w", err)
		}

		fmt.Printf("Checking %s run store connectivity...\n", appInstance.Config.Store.Driver)
		if err := appInstance.RunStore.Ping(ctx); err != nil {
			return fmt.Errorf("run store ping failed: %w", err)
		}
		fmt.Println("Run store connection successful.")

		if !appInstance.BatchAPIProvider.Enabled() {
			return fmt.Errorf("OpenAI API key is not configured (set OPENAI_API_KEY)")
		}
		batches, err := appInstance.BatchAPIProvider.ListBatches(ctx)
		if err != nil {
			return fmt.Errorf("OpenAI batch listing failed: %w", err)
		}
		fmt.Printf("OpenAI reachable, %d batches visible.\n", len(batches))
		return nil
	},
}
