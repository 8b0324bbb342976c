package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/AntonStoeckl/library-circulation-go/library/shell/config"
)

type globalFlags struct {
	store      string
	sqlitePath string
	logLevel   string
}

func newRootCommand() *cobra.Command {
	flags := &globalFlags{}

	root := &cobra.Command{
		Use:           "circulation",
		Short:         "Library book circulation service",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flags.store, "store", "", "record store: postgres-pgx, postgres-sql, postgres-sqlx, sqlite or memory")
	root.PersistentFlags().StringVar(&flags.sqlitePath, "sqlite-path", "", "path of the SQLite database file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn or error")

	root.AddCommand(
		newServeCommand(flags),
		newMigrateCommand(flags),
		newSeedCommand(flags),
	)

	return root
}

// loadConfig reads the environment and applies the flags the user set explicitly.
func loadConfig(cmd *cobra.Command, flags *globalFlags) (config.Config, error) {
	env := map[string]string{}
	for _, key := range []string{
		config.EnvHTTPAddr, config.EnvStore, config.EnvPostgresDSN, config.EnvPostgresReplicaDSN,
		config.EnvSQLitePath, config.EnvRedisAddr, config.EnvLockTTL, config.EnvLogLevel,
		config.EnvOTLPTracesEndpoint, config.EnvOTLPMetricsEndpoint, config.EnvUnconditionalDelete,
		config.EnvShutdownTimeout,
	} {
		if value, ok := os.LookupEnv(key); ok {
			env[key] = value
		}
	}

	override := func(flagName, envKey, value string) {
		if cmd.Flags().Changed(flagName) {
			env[envKey] = value
		}
	}

	override("store", config.EnvStore, flags.store)
	override("sqlite-path", config.EnvSQLitePath, flags.sqlitePath)
	override("log-level", config.EnvLogLevel, flags.logLevel)

	if addr, err := cmd.Flags().GetString("addr"); err == nil && cmd.Flags().Changed("addr") {
		env[config.EnvHTTPAddr] = addr
	}

	return config.FromLookup(func(key string) (string, bool) {
		value, ok := env[key]
		return value, ok
	})
}

func newLogger(cfg config.Config) (*slog.Logger, slog.Handler) {
	handler := slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.LogLevel})

	return slog.New(handler).With("service", cfg.ServiceName), handler
}
