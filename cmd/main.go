package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	_ "time/tzdata"

	"github.com/spf13/cobra"

	"github.com/victornm/quizbot/internal/config"
	"github.com/victornm/quizbot/internal/server"
	"github.com/victornm/quizbot/internal/telemetry"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:          "quizbot",
		Short:        "WhatsApp trivia quiz bot",
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to YAML config, empty to configure from the environment only")

	cmd.AddCommand(
		newServeCmd(&configPath),
		newJobCmd(&configPath),
		newSeedCmd(&configPath),
	)
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the webhook, the admin channel and the scheduled jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGTERM, os.Interrupt)
			defer stop()

			s, err := initServer(ctx, *configPath)
			if err != nil {
				return err
			}
			defer s.Shutdown()

			return s.Start(ctx)
		},
	}
}

func newJobCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "job <name>",
		Short: "Run one scheduled job now",
		Long:  "Run one scheduled job now: daily-leaderboard, reset-daily, weekly-leaderboard or reset-weekly.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := initServer(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Shutdown()

			status, err := s.RunJob(cmd.Context(), args[0])
			if err != nil {
				return fmt.Errorf("job %s (known: %s): %w", args[0], strings.Join(s.JobNames(), ", "), err)
			}
			cmd.Println(status)
			return nil
		},
	}
}

func newSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <file>",
		Short: "Load questions from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := initServer(cmd.Context(), *configPath)
			if err != nil {
				return err
			}
			defer s.Shutdown()

			n, err := s.Seed(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			cmd.Printf("%d questions seeded\n", n)
			return nil
		},
	}
}

func initServer(ctx context.Context, configPath string) (*server.Server, error) {
	c := server.DefaultConfig()
	if err := config.Load(configPath, &c); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	telemetry.SetupLogging(c.Log.Level, c.Log.Format)

	s, err := server.Init(ctx, c)
	if err != nil {
		log.Printf("Init server failed: %v", err)
		return nil, err
	}
	return s, nil
}
