// Package tasks turns benchmark samples into candidate requests and scored
// results into verdicts.
package tasks

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/types"
)

// Invalid is the filtered form of a response that cannot be read.
const Invalid = "[invalid]"

// DefaultInstruction is the instruction used when a task defines none.
const DefaultInstruction = "Find the document that better represents the meaning in the query. " +
	"Check for any doubts about the question or options. Focus on exact numbers, dates, or symbols."

// DefaultInstructions returns a fresh instruction map holding only
// DefaultInstruction.
func DefaultInstructions() types.InstructionMap {
	return types.InstructionMap{types.DefaultInstructionKey: DefaultInstruction}
}

// Split holds the answers of one question divided into correct and wrong,
// with their positions in the option list.
type Split struct {
	Correct        []string `json:"correct"`
	CorrectIndices []int    `json:"correct_indices"`
	Wrong          []string `json:"wrong"`
	WrongIndices   []int    `json:"wrong_indices"`
}

// MultipleChoice splits choices around the target option.
func MultipleChoice(target int, choices []string) (Split, error) {
	if target < 0 || target >= len(choices) {
		return Split{}, types.NewConfigurationError("target", "target index %d outside %d choices", target, len(choices))
	}
	var s Split
	for i, choice := range choices {
		if i == target {
			s.Correct = append(s.Correct, choice)
			s.CorrectIndices = append(s.CorrectIndices, i)
			continue
		}
		s.Wrong = append(s.Wrong, choice)
		s.WrongIndices = append(s.WrongIndices, i)
	}
	return s, nil
}

// NumericDistractors builds a split for a numeric answer, inventing wrong
// answers at 10%, 50%, 125% and 180% of the target. The answer may carry a
// "#### " prefix, as in GSM8K references.
func NumericDistractors(answer string) (Split, error) {
	raw := answer
	if i := strings.LastIndex(answer, "#### "); i >= 0 {
		raw = answer[i+len("#### "):]
	}
	raw = strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	target, err := strconv.Atoi(raw)
	if err != nil {
		return Split{}, types.NewConfigurationError("answer", "answer %q is not an integer", answer)
	}

	others := []int{
		int(math.Floor(float64(target) * 0.1)),
		int(math.Floor(float64(target) * 0.5)),
		int(math.Ceil(float64(target) * 1.25)),
		int(math.Ceil(float64(target) * 1.8)),
	}
	sort.Ints(others)

	s := Split{Correct: []string{strconv.Itoa(target)}}
	seen := map[int]bool{target: true}
	for _, c := range others {
		if seen[c] {
			continue
		}
		seen[c] = true
		s.Wrong = append(s.Wrong, strconv.Itoa(c))
	}
	return s, nil
}

// Request converts the split into a candidate request over the correct and
// wrong groups. Option mode is used only when the split carries indices.
func (s Split) Request(enhance bool, symbols candidates.SymbolScheme) candidates.Request {
	withOptions := enhance && len(s.CorrectIndices) > 0 && len(s.WrongIndices) > 0
	req := candidates.Request{
		Correct: s.Correct,
		Wrong:   s.Wrong,
		Groups:  []string{types.GroupCorrect, types.GroupWrong},
		Enhance: enhance,
		Symbols: symbols,
	}
	if withOptions {
		req.CorrectIndices = s.CorrectIndices
		req.WrongIndices = s.WrongIndices
		req.WithOptions = true
	}
	return req
}

// FilterResponse keeps the first line of a response with surrounding
// whitespace removed. Responses that are not valid UTF-8 filter to Invalid.
func FilterResponse(pred string) string {
	if !utf8.ValidString(pred) {
		return Invalid
	}
	if i := strings.IndexByte(pred, '\n'); i >= 0 {
		pred = pred[:i]
	}
	return strings.TrimSpace(pred)
}

// Verdict is the outcome of judging one response.
type Verdict struct {
	ExactMatch   bool    `json:"exact_match"`
	CorrectScore float64 `json:"a-vert_correct_score"`
	WrongScore   float64 `json:"a-vert_wrong_score"`
	Match        bool    `json:"a-vert_match"`
	// Valid is false when no candidate reached the minimum similarity.
	Valid bool `json:"valid"`
}

// Judge compares the correct and wrong shares of dist. The response matches
// when correct is at least wrong. With minScore > 0 the verdict is only valid
// when some raw candidate score reaches it.
func Judge(pred, target string, dist types.Distribution, scores []float64, minScore float64) Verdict {
	v := Verdict{
		ExactMatch:   FilterResponse(pred) == target,
		CorrectScore: dist.Get(types.GroupCorrect),
		WrongScore:   dist.Get(types.GroupWrong),
		Valid:        true,
	}
	v.Match = v.CorrectScore >= v.WrongScore
	if minScore > 0 {
		v.Valid = false
		for _, s := range scores {
			if s >= minScore {
				v.Valid = true
				break
			}
		}
	}
	return v
}

// String renders the verdict on one line.
func (v Verdict) String() string {
	return fmt.Sprintf("match=%t exact=%t correct=%.4f wrong=%.4f valid=%t",
		v.Match, v.ExactMatch, v.CorrectScore, v.WrongScore, v.Valid)
}
