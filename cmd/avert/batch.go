package avert

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/soundprediction/avert/pkg/tasks"
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Score a JSONL file of samples",
	Long: `Score every sample of a JSONL file and write one outcome per line.

Each sample carries a response and its reference answers, given either as
"choices" with "target_index", as a numeric "target" with "numeric": true, or
as explicit "correct" and "wrong" lists.`,
	RunE: runBatch,
}

var batchOpts struct {
	input       string
	output      string
	concurrency int
}

func init() {
	rootCmd.AddCommand(batchCmd)

	f := batchCmd.Flags()
	f.StringVarP(&batchOpts.input, "input", "i", "-", "JSONL samples (- for stdin)")
	f.StringVarP(&batchOpts.output, "output", "o", "-", "JSONL outcomes (- for stdout)")
	f.IntVar(&batchOpts.concurrency, "concurrency", 0, "samples scored in parallel (default from config)")
}

func runBatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	in := io.Reader(cmd.InOrStdin())
	if batchOpts.input != "-" {
		f, err := os.Open(batchOpts.input)
		if err != nil {
			return fmt.Errorf("failed to open samples: %w", err)
		}
		defer f.Close()
		in = f
	}
	samples, err := tasks.ReadSamples(in)
	if err != nil {
		return err
	}

	concurrency := st.settings.Concurrency
	if batchOpts.concurrency > 0 {
		concurrency = batchOpts.concurrency
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	st.logger.Info("Scoring samples", "count", len(samples), "concurrency", concurrency)
	outcomes, summary := tasks.Run(ctx, st.engine, samples, tasks.RunOptions{
		Enhance:     st.settings.Enhance,
		Symbols:     st.settings.Symbols,
		MinScore:    st.settings.MinScore,
		Concurrency: concurrency,
	}, st.logger)

	out := io.Writer(cmd.OutOrStdout())
	if batchOpts.output != "-" {
		f, err := os.Create(batchOpts.output)
		if err != nil {
			return fmt.Errorf("failed to create output: %w", err)
		}
		defer f.Close()
		out = f
	}
	if err := tasks.WriteOutcomes(out, outcomes); err != nil {
		return err
	}
	fmt.Fprintln(cmd.ErrOrStderr(), summary.String())
	return nil
}
