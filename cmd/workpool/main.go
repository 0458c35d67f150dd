// Package main is the entry point for workpool.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"workpool/internal/config"
	"workpool/internal/logger"
)

var (
	version = "dev"
)

// options はコマンド間で共有するグローバルフラグ
type options struct {
	configFile string
	envFile    string
	logLevel   string

	// PersistentPreRunE で読み込まれる
	cfg *config.FileConfig
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// シグナルハンドリング
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("", "Received interrupt signal, shutting down gracefully...")
		cancel()
	}()

	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		logger.Error("", "%v", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	rootCmd := &cobra.Command{
		Use:   "workpool",
		Short: "Fixed-size worker pool with load scenarios",
		Long: `workpool runs jobs on a fixed set of long-lived workers fed by one shared queue.

It can drive load scenarios against a pool from the command line or serve
pool status, metrics and events over HTTP.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.load(cmd)
		},
	}

	rootCmd.PersistentFlags().StringVar(&opts.configFile, "config", "", "Config file path (YAML/JSON)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", "", "Dotenv file with WORKPOOL_* overrides")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Log level (debug, info, warn, error)")

	rootCmd.AddCommand(
		newRunCommand(opts),
		newPresetsCommand(),
		newServeCommand(opts),
		newVersionCommand(),
	)

	return rootCmd
}

// load は設定を読み込み、ログレベルを反映する
func (o *options) load(cmd *cobra.Command) error {
	if o.envFile != "" {
		if err := config.LoadEnvFile(o.envFile); err != nil {
			return err
		}
	}

	cfg, err := config.Load(o.configFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cmd.Flags().Changed("log-level") {
		cfg.Log.Level = o.logLevel
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	level, err := cfg.LogLevel()
	if err != nil {
		return err
	}
	logger.SetLevel(level)

	o.cfg = cfg
	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "workpool version %s\n", version)
		},
	}
}
