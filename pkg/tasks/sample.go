package tasks

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"

	"github.com/soundprediction/avert/pkg/types"
)

// Sample is one line of a batch file: a model response and the reference
// answers it is judged against. The answers come from exactly one of
// Choices with TargetIndex, Numeric with Target, or Correct and Wrong.
type Sample struct {
	ID       string `json:"id"`
	TaskID   string `json:"task_id,omitempty"`
	Response string `json:"response"`
	Target   string `json:"target,omitempty"`

	Choices     []string `json:"choices,omitempty"`
	TargetIndex *int     `json:"target_index,omitempty"`

	Numeric bool `json:"numeric,omitempty"`

	Correct []string `json:"correct,omitempty"`
	Wrong   []string `json:"wrong,omitempty"`
}

// Split divides the sample's answers into correct and wrong.
func (s Sample) Split() (Split, error) {
	switch {
	case len(s.Choices) > 0:
		if s.TargetIndex == nil {
			return Split{}, types.NewConfigurationError("target_index", "sample %s has choices but no target index", s.ID)
		}
		return MultipleChoice(*s.TargetIndex, s.Choices)
	case s.Numeric:
		return NumericDistractors(s.Target)
	case len(s.Correct) > 0:
		return Split{Correct: s.Correct, Wrong: s.Wrong}, nil
	default:
		return Split{}, types.NewConfigurationError("sample", "sample %s has no reference answers", s.ID)
	}
}

// ExpectedText is the text an exact match compares the response with.
func (s Sample) ExpectedText() string {
	if s.Target != "" {
		return s.Target
	}
	if s.TargetIndex != nil && *s.TargetIndex >= 0 && *s.TargetIndex < len(s.Choices) {
		return s.Choices[*s.TargetIndex]
	}
	if len(s.Correct) > 0 {
		return s.Correct[0]
	}
	return ""
}

// maxLine bounds one JSONL record.
const maxLine = 16 * 1024 * 1024

// ReadSamples parses one JSON sample per non-empty line. Samples without an
// id are numbered by line.
func ReadSamples(r io.Reader) ([]Sample, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLine)

	var out []Sample
	line := 0
	for sc.Scan() {
		line++
		raw := sc.Bytes()
		if len(bytes.TrimSpace(raw)) == 0 {
			continue
		}
		var s Sample
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("line-%d", line)
		}
		out = append(out, s)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read samples: %w", err)
	}
	return out, nil
}

