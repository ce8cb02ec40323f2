package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/dshills/stormcomplete/internal/app"
	"github.com/dshills/stormcomplete/internal/config"
	"github.com/dshills/stormcomplete/internal/logging"
)

type rootFlags struct {
	configPath string
	logLevel   string
}

func newRootCmd() *cobra.Command {
	flags := &rootFlags{}

	root := &cobra.Command{
		Use:   "stormcomplete",
		Short: "Completion retrieval service for editor hosts",
		Long: `stormcomplete merges completions from language servers and Lua scripts,
caches them per buffer line and serves them to the host over stdio.

Examples:
  stormcomplete serve
  stormcomplete serve --config ~/.config/stormcomplete/config.toml
  stormcomplete check --config config.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "path to configuration file")
	root.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "log level override (debug, info, warn, error)")

	root.AddCommand(newServeCmd(flags), newCheckCmd(flags), newVersionCmd())
	return root
}

// settings loads the configuration and applies the log level flag.
func (f *rootFlags) settings() (*config.Settings, error) {
	s, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.logLevel != "" {
		s.Log.Level = f.logLevel
		if err := s.Validate(); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func newServeCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve completions over stdin and stdout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}

			// stdout carries the protocol; logs go to stderr.
			logger := logging.New(logging.Config{
				Level:  s.LogLevel(),
				Output: os.Stderr,
				Prefix: "stormcomplete",
			})

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return app.Serve(ctx, os.Stdin, os.Stdout, app.ServeOptions{
				Settings:   s,
				Logger:     logger,
				ConfigPath: flags.configPath,
			})
		},
	}
}

func newCheckCmd(flags *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Validate the configuration and print the effective settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := flags.settings()
			if err != nil {
				return err
			}
			out, err := toml.Marshal(s)
			if err != nil {
				return fmt.Errorf("encoding settings: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "stormcomplete %s\n", version)
			fmt.Fprintf(w, "Commit: %s\n", commit)
			fmt.Fprintf(w, "Built: %s\n", date)
		},
	}
}

