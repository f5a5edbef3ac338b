package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/cwbudde/antcolonytsp/internal/config"
	"github.com/spf13/cobra"
)

var (
	logLevel   string
	configPath string
	appConfig  = config.DefaultConfig()
	logger     *slog.Logger
)

var rootCmd = &cobra.Command{
	Use:   "antcolonytsp",
	Short: "Traveling salesman tours with ant colony optimization",
	Long: `antcolonytsp builds short tours through a set of cities with an ant colony:
ants walk tours guided by pheromone trails that are reinforced along good
tours and evaporate over time. Runs locally or as a job server.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		appConfig = cfg

		// An explicit flag wins over the file
		if cmd.Flags().Changed("log-level") || configPath == "" {
			appConfig.LogLevel = logLevel
		}

		var level slog.Level
		switch appConfig.LogLevel {
		case "debug":
			level = slog.LevelDebug
		case "info":
			level = slog.LevelInfo
		case "warn":
			level = slog.LevelWarn
		case "error":
			level = slog.LevelError
		default:
			return fmt.Errorf("invalid log level %q", appConfig.LogLevel)
		}

		opts := &slog.HandlerOptions{Level: level}
		handler := slog.NewJSONHandler(os.Stdout, opts)
		logger = slog.New(handler)
		slog.SetDefault(logger)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
}
