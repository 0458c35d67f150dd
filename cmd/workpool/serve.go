package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"workpool/internal/api"
)

func newServeCommand(opts *options) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve pool status, metrics and events over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().Changed("addr") {
				opts.cfg.Server.Addr = addr
			}

			defaults, err := opts.cfg.ToScenarioConfig()
			if err != nil {
				return fmt.Errorf("build scenario: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "workpool - API Server")
			fmt.Fprintln(out, "========================")
			fmt.Fprintf(out, "Starting server on http://%s\n", opts.cfg.Server.Addr)
			fmt.Fprintln(out, "Press Ctrl+C to stop")
			fmt.Fprintln(out)

			server := api.NewServer(opts.cfg.Server.Addr)
			server.SetDefaultScenario(defaults)
			return server.Start(cmd.Context())
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address (e.g. :8080, 0.0.0.0:3000)")

	return cmd
}
