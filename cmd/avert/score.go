package avert

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/tasks"
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score one response",
	Long: `Score one response against groups built from its reference answers.

Example:
  avert score --response "The answer is Paris" --correct Paris --wrong Lyon --wrong Nice`,
	RunE: runScore,
}

var scoreOpts struct {
	response    string
	taskID      string
	correct     []string
	wrong       []string
	choices     []string
	targetIndex int
	groups      []string
	trace       bool
	asJSON      bool
}

func init() {
	rootCmd.AddCommand(scoreCmd)

	f := scoreCmd.Flags()
	f.StringVar(&scoreOpts.response, "response", "", "model response to score")
	f.StringVar(&scoreOpts.taskID, "task", "", "task id used to look up the instruction")
	f.StringSliceVar(&scoreOpts.correct, "correct", nil, "correct answer (repeatable)")
	f.StringSliceVar(&scoreOpts.wrong, "wrong", nil, "wrong answer (repeatable)")
	f.StringSliceVar(&scoreOpts.choices, "choice", nil, "multiple-choice option (repeatable, used with --target-index)")
	f.IntVar(&scoreOpts.targetIndex, "target-index", -1, "index of the correct option among --choice")
	f.StringSliceVar(&scoreOpts.groups, "groups", nil, "groups to build, in order (default: all)")
	f.BoolVar(&scoreOpts.trace, "trace", false, "print every candidate with its score")
	f.BoolVar(&scoreOpts.asJSON, "json", false, "print the result as JSON")
	_ = scoreCmd.MarkFlagRequired("response")
}

func runScore(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	st, err := newStack(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	req, target, err := scoreRequest(st.settings.Enhance, st.settings.Symbols)
	if err != nil {
		return err
	}
	res, err := st.engine.Evaluate(context.Background(), scoreOpts.response, req, scoreOpts.taskID)
	if err != nil {
		return err
	}
	verdict := tasks.Judge(scoreOpts.response, target, res.Distribution, res.Scores, st.settings.MinScore)
	return printResult(cmd.OutOrStdout(), res, verdict)
}

// scoreRequest builds the candidate request from the flags and returns the
// expected answer.
func scoreRequest(enhance bool, symbols candidates.SymbolScheme) (candidates.Request, string, error) {
	if len(scoreOpts.choices) > 0 {
		split, err := tasks.MultipleChoice(scoreOpts.targetIndex, scoreOpts.choices)
		if err != nil {
			return candidates.Request{}, "", err
		}
		req := split.Request(enhance, symbols)
		if len(scoreOpts.groups) > 0 {
			req.Groups = scoreOpts.groups
		}
		req.Trace = scoreOpts.trace
		return req, split.Correct[0], nil
	}
	if len(scoreOpts.correct) == 0 {
		return candidates.Request{}, "", fmt.Errorf("either --correct or --choice with --target-index is required")
	}
	return candidates.Request{
		Correct: scoreOpts.correct,
		Wrong:   scoreOpts.wrong,
		Groups:  scoreOpts.groups,
		Enhance: enhance,
		Symbols: symbols,
		Trace:   scoreOpts.trace,
	}, scoreOpts.correct[0], nil
}

func printResult(w io.Writer, res *avert.Result, v tasks.Verdict) error {
	if scoreOpts.asJSON {
		out := map[string]any{
			"distribution": res.Distribution.Map(),
			"best":         res.Best,
			"best_score":   res.BestScore,
			"verdict":      v,
		}
		if scoreOpts.trace {
			out["candidates"] = res.Candidates
			out["scores"] = res.Scores
			out["trace"] = res.Trace
		}
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(out)
	}

	for _, name := range res.Distribution.Names() {
		fmt.Fprintf(w, "%-22s %.4f\n", name, res.Distribution.Get(name))
	}
	fmt.Fprintf(w, "best: %s (%.4f)\n", res.Best, res.BestScore)
	fmt.Fprintln(w, v.String())
	if scoreOpts.trace && res.Trace != nil {
		for i, c := range res.Candidates {
			fmt.Fprintf(w, "%8.4f  %-20s %-36s %q\n", res.Scores[i], res.Trace.Groups[i], res.Trace.Labels[i], c)
		}
	}
	return nil
}
