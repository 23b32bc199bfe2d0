package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/andresmejia3/lookout/internal/config"
	"github.com/andresmejia3/lookout/internal/store"
	"github.com/andresmejia3/lookout/internal/utils"
)

// Options holds the flags shared by every command
type Options struct {
	ConfigPath  string
	LogLevel    string
	LogFormat   string
	DBURL       string
	SuspectsDir string
}

var (
	rootOpts Options
	// cfg is the effective configuration, loaded before any subcommand runs
	cfg *config.Config
)

// Version is the application version.
const Version = "0.1.0"

var rootCmd = &cobra.Command{
	Use:     "lookout",
	Short:   "Real-time suspect watch over a live camera feed",
	Version: Version, // This enables the --version flag
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(rootOpts.ConfigPath)
		if err != nil {
			// Nothing can run without a configuration
			utils.Die("Failed to load configuration", err, nil)
		}

		flags := cmd.Flags()
		if flags.Changed("log-level") {
			loaded.Log.Level = rootOpts.LogLevel
		}
		if flags.Changed("log-format") {
			loaded.Log.Format = rootOpts.LogFormat
		}
		if flags.Changed("suspects-dir") {
			loaded.SuspectsDir = rootOpts.SuspectsDir
		}
		loaded.Alerts.Database = resolveDatabaseURL(rootOpts.DBURL, loaded.Alerts.Database, os.Getenv)

		if err := config.Validate(loaded); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
		if err := setupLogging(loaded.Log); err != nil {
			return err
		}
		cfg = loaded
		return nil
	},
}

// resolveDatabaseURL picks the alert database: the --db flag, then the config
// file, then the POSTGRES_* environment. Empty means no database.
func resolveDatabaseURL(flag, configured string, getenv func(string) string) string {
	if flag != "" {
		return flag
	}
	if configured != "" {
		return configured
	}
	if host := getenv("POSTGRES_HOST"); host != "" {
		user := getenv("POSTGRES_USER")
		pass := getenv("POSTGRES_PASSWORD")
		name := getenv("POSTGRES_DB")
		port := getenv("POSTGRES_PORT")
		if port == "" {
			port = "5432"
		}
		return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, pass, host, port, name)
	}
	return ""
}

func setupLogging(lc config.LogConfig) error {
	level, err := zerolog.ParseLevel(strings.ToLower(lc.Level))
	if err != nil {
		return fmt.Errorf("invalid log level %q: %w", lc.Level, err)
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339Nano

	if lc.Format == "json" {
		log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
	} else {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05.000"})
	}
	return nil
}

// openStore connects to the alert database. It returns nil without error when none is configured.
func openStore(ctx context.Context) (*store.Store, error) {
	if cfg.Alerts.Database == "" {
		return nil, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	db, err := store.New(connectCtx, cfg.Alerts.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

func Execute() {
	// Create a context that listens for Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// This tells Cobra not to print the version in the help text, which is cleaner.
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&rootOpts.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
	pf.StringVar(&rootOpts.LogLevel, "log-level", "info", "Log level (trace, debug, info, warn, error)")
	pf.StringVar(&rootOpts.LogFormat, "log-format", "console", "Log format (console, json)")
	pf.StringVar(&rootOpts.DBURL, "db", "", "PostgreSQL connection string for alert history (default: POSTGRES_* env, else in-memory)")
	pf.StringVar(&rootOpts.SuspectsDir, "suspects-dir", "suspects", "Directory of suspect reference photos")
}
