package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/harunnryd/agrichat/pkg/agrichat"
)

var (
	configPath string
	envFile    string
)

var rootCmd = &cobra.Command{
	Use:   "agrichat",
	Short: "Multilingual agricultural chat service",
	Long: `agrichat answers farmer questions in English, Twi, Ewe, Ga and Hausa.

Replies come from the configured response providers in priority order and
fall back to a built-in localized catalog when none of them answers.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnv(envFile)
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve chat conversations over websockets",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newEngine(cmd.Context(), agrichat.EngineOptions{})
		if err != nil {
			return err
		}
		return app.Run(cmd.Context())
	},
}

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Read messages from stdin and print each turn as a JSON line",
	RunE: func(cmd *cobra.Command, args []string) error {
		// stdout carries turn output only.
		app, err := newEngine(cmd.Context(), agrichat.EngineOptions{
			LogOutput: cmd.ErrOrStderr(),
			Banner:    cmd.ErrOrStderr(),
		})
		if err != nil {
			return err
		}
		defer app.Close()
		conv := app.Hub().Open()
		defer conv.Close()
		return runREPL(cmd.Context(), conv, cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (YAML, JSON or TOML); empty uses defaults")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config is read, if present")
	rootCmd.AddCommand(serveCmd, replCmd)
}

func newEngine(ctx context.Context, opts agrichat.EngineOptions) (*agrichat.Engine, error) {
	cfg, err := agrichat.LoadConfig(configPath)
	if err != nil {
		return nil, err
	}
	opts.Config = cfg
	return agrichat.NewEngine(ctx, opts)
}

// loadEnv loads path into the environment without overriding variables
// that are already set. A missing file is not an error.
func loadEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); err != nil {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
