package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/getsentry/rtprofile/internal/source"
	"github.com/getsentry/rtprofile/internal/tracer"
)

func expensiveFunction(th *source.Thread, d time.Duration) {
	defer th.Enter()()
	time.Sleep(d)
}

func mainWork(th *source.Thread, d time.Duration) {
	defer th.Enter()()
	expensiveFunction(th, d)
	time.Sleep(d / 2)
	expensiveFunction(th, d)
}

func newDemoCommand(o *options) *cobra.Command {
	var sleep time.Duration
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Profile a small instrumented workload and print its call tree",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			inst := source.NewInstrumenter()
			p := tracer.New(inst, tracer.WithMaxDepth(o.config.MaxDepth))
			th := inst.NewThread("main")

			if err := p.Start(); err != nil {
				return err
			}
			mainWork(th, sleep)
			if err := p.Stop(); err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if err := p.WriteCallTree(out); err != nil {
				return err
			}
			functions, err := p.FlatView()
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, functionsTable(functions, 0))
			return nil
		},
	}
	cmd.Flags().DurationVar(&sleep, "sleep", 100*time.Millisecond, "time spent in each call of the expensive function")
	return cmd
}
