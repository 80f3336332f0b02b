// Package candidates expands raw answer sets into the candidate groups scored
// against a model response.
//
// Four groups are known: correct, wrong, refusal and formulation_mistake.
// Correct and wrong are built from the caller's answers and optionally
// enhanced with paraphrases. In multiple-choice mode the builder also emits
// long-form candidates that walk through every option, once for the correct
// answer and once per wrong answer treated as if it were the target.
package candidates

import (
	"fmt"

	"github.com/soundprediction/avert/pkg/types"
)

// Provenance labels attached to generated candidates.
const (
	labelReference          = "%s_reference"
	labelEnhancement        = "enhancement_%d"
	labelEnhancementOptions = "enhancement_options_%d"
	labelOptionGroups       = "enhancement_options_groups_%d"
	labelRefusal            = "refusal_%d"
	labelFormulation        = "formulation_mistake_%d"
	labelFormulationOptions = "formulation_mistake_options_%d"
)

// Request describes the raw answers of one question.
type Request struct {
	Correct []string
	// CorrectIndices are the positions of Correct in the enumerated option
	// list. Required in option mode, sequential otherwise when omitted.
	CorrectIndices []int
	Wrong          []string
	WrongIndices   []int
	// Groups lists the groups to build, in batch order. Empty selects
	// types.DefaultGroups.
	Groups      []string
	Enhance     bool
	WithOptions bool
	Symbols     SymbolScheme
	// Trace requests a provenance label for every candidate.
	Trace bool
}

// Build validates req and generates the candidate groups. The returned trace
// is nil unless req.Trace is set.
func Build(req Request) (*types.GroupSet, *types.Trace, error) {
	b, err := newBuilder(req)
	if err != nil {
		return nil, nil, err
	}

	set := types.NewGroupSet()
	for _, name := range b.groups {
		texts := b.group(name)
		if err := set.Add(name, texts); err != nil {
			return nil, nil, types.NewConfigurationError("groups", "%v", err)
		}
	}
	if !req.Trace {
		return set, nil, nil
	}
	return set, b.trace, nil
}

type builder struct {
	groups      []string
	correct     []option
	wrong       []option
	enhance     bool
	withOptions bool
	symbols     SymbolScheme
	trace       *types.Trace
}

func newBuilder(req Request) (*builder, error) {
	groups := req.Groups
	if len(groups) == 0 {
		groups = types.DefaultGroups
	}
	seen := make(map[string]struct{}, len(groups))
	for _, name := range groups {
		if _, dup := seen[name]; dup {
			return nil, types.NewConfigurationError("groups", "group names contain duplicated element %q", name)
		}
		seen[name] = struct{}{}
		if !knownGroup(name) {
			return nil, types.NewConfigurationError("groups", "group name %q is not defined", name)
		}
	}

	symbols := req.Symbols
	if req.WithOptions {
		s, err := ParseSymbolScheme(string(symbols))
		if err != nil {
			return nil, err
		}
		symbols = s
		if req.CorrectIndices == nil || req.WrongIndices == nil {
			return nil, types.NewConfigurationError("indices",
				"option mode requires the indices of the correct and wrong answers")
		}
	}

	correct, err := pairOptions("correct", req.Correct, req.CorrectIndices, req.WithOptions)
	if err != nil {
		return nil, err
	}
	wrong, err := pairOptions("wrong", req.Wrong, req.WrongIndices, req.WithOptions)
	if err != nil {
		return nil, err
	}

	if req.WithOptions {
		if err := checkOptionIndices(append(append([]option(nil), correct...), wrong...)); err != nil {
			return nil, err
		}
		if req.Enhance && len(correct) != 1 {
			return nil, types.NewConfigurationError("correct",
				"option enhancement requires exactly one correct answer, got %d", len(correct))
		}
	}

	return &builder{
		groups:      append([]string(nil), groups...),
		correct:     correct,
		wrong:       wrong,
		enhance:     req.Enhance,
		withOptions: req.WithOptions,
		symbols:     symbols,
		trace:       &types.Trace{},
	}, nil
}

func knownGroup(name string) bool {
	for _, g := range types.DefaultGroups {
		if g == name {
			return true
		}
	}
	return false
}

// pairOptions zips texts with their indices. Outside option mode missing
// indices become sequential.
func pairOptions(group string, texts []string, indices []int, withOptions bool) ([]option, error) {
	if indices == nil && !withOptions {
		indices = make([]int, len(texts))
		for i := range indices {
			indices[i] = i
		}
	}
	if len(indices) != len(texts) {
		return nil, types.NewConfigurationError(group+"_indices",
			"got %d indices for %d %s answers", len(indices), len(texts), group)
	}
	out := make([]option, len(texts))
	for i, text := range texts {
		out[i] = option{index: indices[i], text: text}
	}
	return out, nil
}

func checkOptionIndices(opts []option) error {
	seen := make(map[int]struct{}, len(opts))
	for _, o := range opts {
		if o.index < 0 || o.index >= MaxOptions {
			return types.NewConfigurationError("indices",
				"option index %d out of range, symbols exist for positions 0..%d", o.index, MaxOptions-1)
		}
		if _, dup := seen[o.index]; dup {
			return types.NewConfigurationError("indices", "option index %d is used more than once", o.index)
		}
		seen[o.index] = struct{}{}
	}
	return nil
}

func (b *builder) group(name string) []string {
	switch name {
	case types.GroupCorrect:
		return b.correctGroup()
	case types.GroupWrong:
		return b.wrongGroup()
	case types.GroupRefusal:
		return b.emit(name, labelRefusal, refusalTexts)
	case types.GroupFormulationMistake:
		out := b.emit(name, labelFormulation, formulationMistakeTexts)
		if b.withOptions {
			out = append(out, b.emit(name, labelFormulationOptions, formulationMistakeOptionTexts)...)
		}
		return out
	}
	return nil
}

func (b *builder) correctGroup() []string {
	name := types.GroupCorrect
	var out []string
	for _, o := range b.correct {
		out = append(out, b.answer(name, o, b.withOptions)...)
	}
	if b.enhance && b.withOptions {
		target := b.correct[len(b.correct)-1]
		out = append(out, b.emit(name, labelOptionGroups, allOptions(target, b.wrong, b.symbols))...)
	}
	return out
}

func (b *builder) wrongGroup() []string {
	name := types.GroupWrong
	var out []string
	for _, o := range b.wrong {
		out = append(out, b.answer(name, o, false)...)
	}
	if b.enhance && b.withOptions {
		for i, target := range b.wrong {
			distractors := make([]option, 0, len(b.wrong)-1+len(b.correct))
			distractors = append(distractors, b.wrong[:i]...)
			distractors = append(distractors, b.wrong[i+1:]...)
			distractors = append(distractors, b.correct...)
			out = append(out, b.emit(name, labelOptionGroups, allOptions(target, distractors, b.symbols))...)
		}
	}
	return out
}

// answer emits one input answer followed by its enhancements.
func (b *builder) answer(group string, o option, optionLabelled bool) []string {
	out := []string{o.text}
	b.trace.Append(fmt.Sprintf(labelReference, group), group)
	if !b.enhance {
		return out
	}
	out = append(out, b.emit(group, labelEnhancement, paraphrases(o.text))...)
	if optionLabelled {
		symbol, _ := b.symbols.Symbol(o.index)
		out = append(out, b.emit(group, labelEnhancementOptions, optionParaphrases(symbol, o.text))...)
	}
	return out
}

func (b *builder) emit(group, label string, texts []string) []string {
	for i := range texts {
		b.trace.Append(fmt.Sprintf(label, i+1), group)
	}
	return append([]string(nil), texts...)
}
