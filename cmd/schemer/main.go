// Package main is the entry point for the schemer CLI.
package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/buildsense/schemer/internal/config"
	"github.com/buildsense/schemer/pkg/app"
)

// Set by goreleaser ldflags.
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "schemer",
		Short:         "A conversational structural design assistant",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(versionCmd(), serveCmd(), chatCmd(), configCmd())
	return root
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(_ *cobra.Command, _ []string) {
			fmt.Printf("schemer %s (commit: %s, built: %s)\n", version, commit, date)
		},
	}
}

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP gateway and serve conversations",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			return app.Run(app.Params{ConfigPath: cfgPath, Version: version})
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

func chatCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Run an interactive chat session on stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			a, err := app.Build(app.Params{ConfigPath: cfgPath, Version: version})
			if err != nil {
				return err
			}
			defer func() {
				ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				a.Stop(ctx)
			}()

			if a.Worker != nil {
				if err := a.Worker.Start(); err != nil {
					a.Logger.Error("worker failed to start, tools degraded", "error", err)
				}
			}

			return runChat(a, cmd.InOrStdin())
		},
	}
	cmd.Flags().StringP("config", "c", "", "Path to configuration file")
	return cmd
}

// runChat drives one orchestrator session over stdin/stdout until the
// user ends the session or the input closes.
func runChat(a *app.App, in io.Reader) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	session := a.NewSession()
	fmt.Printf("Agent: %s\n", session.StartSession())

	scanner := bufio.NewScanner(in)
	for {
		fmt.Print("You: ")
		if !scanner.Scan() {
			break
		}
		query := strings.TrimSpace(scanner.Text())
		if query == "" {
			continue
		}

		answer := session.ProcessQuery(ctx, query)
		fmt.Printf("Agent: %s\n", answer)

		if !session.Active() {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}

	if session.Active() {
		fmt.Printf("Agent: %s\n", session.EndSession())
	}
	return scanner.Err()
}

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration management",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "check <path>",
		Short: "Validate configuration",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			fmt.Printf("Configuration OK (listen %s, model %s)\n", cfg.Gateway.Listen, cfg.Provider.Model)
			return nil
		},
	})
	return cmd
}
