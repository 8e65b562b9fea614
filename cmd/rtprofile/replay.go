package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/getsentry/rtprofile/internal/display"
	"github.com/getsentry/rtprofile/internal/pprofutil"
	"github.com/getsentry/rtprofile/internal/source"
	"github.com/getsentry/rtprofile/internal/speedscope"
	"github.com/getsentry/rtprofile/internal/tracer"
)

func newReplayCommand(o *options) *cobra.Command {
	var (
		speedscopePath string
		pprofPath      string
		top            int
	)
	cmd := &cobra.Command{
		Use:   "replay <event-log>",
		Short: "Replay a recorded event log and print its call tree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			l, err := source.ReadLog(f)
			if err != nil {
				return err
			}
			startedAt := l.StartedAt.Time()
			if startedAt.IsZero() {
				startedAt = time.Now()
			}
			r, err := source.Profile(cmd.Context(), l, tracer.WithMaxDepth(o.config.MaxDepth))
			if err != nil {
				return err
			}
			if r.Mismatched > 0 {
				log.Warn().Uint64("mismatched", r.Mismatched).Msg("event log has returns without a matching call")
			}

			out := cmd.OutOrStdout()
			if err := display.RenderTree(out, r.TreeView()); err != nil {
				return err
			}
			fmt.Fprintln(out)
			fmt.Fprintln(out, functionsTable(r.FlatView(), top))

			if speedscopePath != "" {
				doc := speedscope.FromForest(r.Forest, r.ThreadNames, r.StartedNS, r.DurationNS())
				err := writeFile(speedscopePath, func(w io.Writer) error {
					return json.NewEncoder(w).Encode(doc)
				})
				if err != nil {
					return err
				}
			}
			if pprofPath != "" {
				p := pprofutil.FromForest(r.Forest, r.ThreadNames, startedAt, r.DurationNS())
				if err := writeFile(pprofPath, p.Write); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&speedscopePath, "speedscope", "", "write a speedscope document to this path")
	cmd.Flags().StringVar(&pprofPath, "pprof", "", "write a gzipped pprof profile to this path")
	cmd.Flags().IntVar(&top, "top", 20, "number of functions in the flat table, 0 for all")
	return cmd
}

func writeFile(name string, write func(io.Writer) error) error {
	f, err := os.Create(name)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	return f.Close()
}
