package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"workpool/internal/scenario"
)

// runFlags は run コマンドのフラグ
type runFlags struct {
	preset      string
	workers     int
	jobs        int
	producers   int
	jobDuration time.Duration
	interval    time.Duration
	panicEvery  int
	faultPolicy string
}

func newRunCommand(opts *options) *cobra.Command {
	flags := &runFlags{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a load scenario against a worker pool",
		Example: `  # プリセットシナリオを実行
  workpool run --preset quick

  # 設定ファイルから実行
  workpool run --config workpool.yaml

  # フラグでカスタマイズ
  workpool run --preset faulty --workers 8 --jobs 5000 --fault-policy restart`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags.apply(cmd, opts)

			cfg, err := opts.cfg.ToScenarioConfig()
			if err != nil {
				return fmt.Errorf("build scenario: %w", err)
			}
			return runScenario(cmd, cfg)
		},
	}

	f := cmd.Flags()
	f.StringVar(&flags.preset, "preset", "", "Preset scenario ("+strings.Join(scenario.ListPresets(), ", ")+")")
	f.IntVar(&flags.workers, "workers", 0, "Number of workers")
	f.IntVar(&flags.jobs, "jobs", 0, "Total number of jobs to submit")
	f.IntVar(&flags.producers, "producers", 0, "Number of concurrent submitters")
	f.DurationVar(&flags.jobDuration, "job-duration", 0, "Time each job sleeps (e.g. 1ms)")
	f.DurationVar(&flags.interval, "interval", 0, "Pause between submissions per producer")
	f.IntVar(&flags.panicEvery, "panic-every", 0, "Make every N-th job panic (0 disables)")
	f.StringVar(&flags.faultPolicy, "fault-policy", "", "Panic handling (isolate, restart, propagate)")

	return cmd
}

// apply は明示されたフラグだけで設定を上書きする
func (r *runFlags) apply(cmd *cobra.Command, opts *options) {
	cfg := opts.cfg
	f := cmd.Flags()

	if f.Changed("preset") {
		cfg.Scenario.Preset = r.preset
	}
	if f.Changed("workers") {
		cfg.Pool.Size = r.workers
	}
	if f.Changed("fault-policy") {
		cfg.Pool.FaultPolicy = r.faultPolicy
	}
	if f.Changed("jobs") {
		cfg.Scenario.Jobs = r.jobs
	}
	if f.Changed("producers") {
		cfg.Scenario.Producers = r.producers
	}
	if f.Changed("job-duration") {
		cfg.Scenario.JobDuration = r.jobDuration.String()
	}
	if f.Changed("interval") {
		cfg.Scenario.Interval = r.interval.String()
	}
	if f.Changed("panic-every") {
		cfg.Scenario.PanicEvery = r.panicEvery
	}
}

// runScenario はシナリオを実行してレポートを出力する
func runScenario(cmd *cobra.Command, cfg scenario.Config) error {
	out := cmd.OutOrStdout()

	fmt.Fprintln(out, "workpool - fixed-size worker pool")
	fmt.Fprintln(out, "====================================================")
	fmt.Fprintf(out, "Scenario: %s\n", cfg.Name)
	fmt.Fprintf(out, "Workers: %d, Policy: %s\n", cfg.Workers, cfg.FaultPolicy)
	fmt.Fprintf(out, "Jobs: %d, Producers: %d, Job duration: %v\n", cfg.Jobs, cfg.Producers, cfg.JobDuration)
	if cfg.PanicEvery > 0 {
		fmt.Fprintf(out, "Panic every: %d jobs\n", cfg.PanicEvery)
	}
	fmt.Fprintln(out, "====================================================")
	fmt.Fprintln(out)

	engine := scenario.New(cfg)
	result, err := engine.Run(cmd.Context())
	if err != nil {
		return err
	}

	fmt.Fprintln(out, result.Report())
	return nil
}

func newPresetsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "presets",
		Short: "List available preset scenarios",
		Args:  cobra.NoArgs,
		// 設定ファイルは不要
		PersistentPreRunE: func(*cobra.Command, []string) error { return nil },
		Run: func(cmd *cobra.Command, _ []string) {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Available preset scenarios:")
			fmt.Fprintln(out)
			for _, p := range scenario.Presets() {
				fmt.Fprintf(out, "  %-10s %-8s workers=%-3d jobs=%-7d %s\n",
					p.Name, p.FaultPolicy, p.Workers, p.Jobs, p.Description)
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Example: workpool run --preset quick")
		},
	}
}
