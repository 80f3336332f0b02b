package candidates

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/avert/pkg/types"
)

func optionRequest() Request {
	return Request{
		Correct:        []string{"B"},
		CorrectIndices: []int{1},
		Wrong:          []string{"A", "C"},
		WrongIndices:   []int{0, 2},
		Groups:         []string{types.GroupCorrect, types.GroupWrong},
		Enhance:        true,
		WithOptions:    true,
		Symbols:        Letters,
		Trace:          true,
	}
}

func TestBuildOptionEnhancementCounts(t *testing.T) {
	set, trace, err := Build(optionRequest())
	require.NoError(t, err)

	correct, _ := set.Get(types.GroupCorrect)
	wrong, _ := set.Get(types.GroupWrong)
	assert.Len(t, correct, 7)
	assert.Len(t, wrong, 10)

	require.NotNil(t, trace)
	assert.Equal(t, set.Size(), trace.Len())
}

func TestBuildCorrectGroupContent(t *testing.T) {
	set, trace, err := Build(optionRequest())
	require.NoError(t, err)

	correct, _ := set.Get(types.GroupCorrect)
	want := []string{
		"B",
		`The answer is: "B". Let me explain why`,
		`Therefore, the answer is: "B"`,
		`Therefore, the correct answer is option "B": "B"`,
		`the answer is option "B": "B"`,
		"The answer is the second one, option \"B\". \"B\". Let me explain why:\n" +
			"\tOption \"A\". \"A\". Is not correct.\n" +
			"\tOption \"C\". \"C\". Is not correct.\n",
		"Analyzing the options:\n" +
			"\tOption \"A\". \"A\". Is not correct.\n" +
			"\tOption \"B\". \"B\". Is correct.\n" +
			"\tOption \"C\". \"C\". Is not correct.\n" +
			"\nTherefore, the answer is the second one, option \"B\". \"B\"",
	}
	if diff := cmp.Diff(want, correct); diff != "" {
		t.Errorf("correct group mismatch (-want +got):\n%s", diff)
	}

	wantLabels := []string{
		"correct_reference",
		"enhancement_1", "enhancement_2",
		"enhancement_options_1", "enhancement_options_2",
		"enhancement_options_groups_1", "enhancement_options_groups_2",
	}
	assert.Equal(t, wantLabels, trace.Labels[:7])
	for _, g := range trace.Groups[:7] {
		assert.Equal(t, types.GroupCorrect, g)
	}
}

func TestBuildCorrectOptionListedLast(t *testing.T) {
	req := optionRequest()
	req.Correct, req.CorrectIndices = []string{"C"}, []int{2}
	req.Wrong, req.WrongIndices = []string{"A", "B"}, []int{0, 1}

	set, _, err := Build(req)
	require.NoError(t, err)
	correct, _ := set.Get(types.GroupCorrect)
	walkthrough := correct[len(correct)-1]
	assert.Contains(t, walkthrough, "\tOption \"C\". \"C\". Is correct.\n")
	assert.Less(t, strings.Index(walkthrough, `Option "B"`), strings.Index(walkthrough, `Option "C"`))
}

func TestBuildWrongPermutations(t *testing.T) {
	set, trace, err := Build(optionRequest())
	require.NoError(t, err)

	wrong, _ := set.Get(types.GroupWrong)
	// Per wrong answer: reference plus two paraphrases, then two long forms per wrong answer.
	assert.Equal(t, "A", wrong[0])
	assert.Equal(t, "C", wrong[3])
	assert.Contains(t, wrong[6], `The answer is the first one, option "A". "A"`)
	assert.Contains(t, wrong[7], "\tOption \"A\". \"A\". Is correct.\n")
	assert.Contains(t, wrong[7], "\tOption \"B\". \"B\". Is not correct.\n")
	assert.Contains(t, wrong[8], `The answer is the third one, option "C". "C"`)

	labels := trace.Labels[7:]
	assert.Equal(t, []string{
		"wrong_reference", "enhancement_1", "enhancement_2",
		"wrong_reference", "enhancement_1", "enhancement_2",
		"enhancement_options_groups_1", "enhancement_options_groups_2",
		"enhancement_options_groups_1", "enhancement_options_groups_2",
	}, labels)
}

func TestBuildSymbolSchemes(t *testing.T) {
	tests := []struct {
		scheme SymbolScheme
		want   string
	}{
		{Letters, `option "B"`},
		{Numbers, `option "2"`},
		{Romans, `option "II"`},
		{Cardinals, `option "second"`},
	}
	for _, tt := range tests {
		t.Run(string(tt.scheme), func(t *testing.T) {
			req := optionRequest()
			req.Symbols = tt.scheme
			set, _, err := Build(req)
			require.NoError(t, err)
			correct, _ := set.Get(types.GroupCorrect)
			assert.Contains(t, correct[3], tt.want)
			assert.Contains(t, correct[6], tt.want)
		})
	}
}

func TestBuildWithoutEnhancement(t *testing.T) {
	set, trace, err := Build(Request{
		Correct: []string{"42"},
		Wrong:   []string{"41", "43"},
		Trace:   true,
	})
	require.NoError(t, err)

	assert.Equal(t, types.DefaultGroups, set.Names())
	correct, _ := set.Get(types.GroupCorrect)
	assert.Equal(t, []string{"42"}, correct)
	refusal, _ := set.Get(types.GroupRefusal)
	assert.Equal(t, RefusalTexts(), refusal)
	mistakes, _ := set.Get(types.GroupFormulationMistake)
	assert.Equal(t, FormulationMistakeTexts(false), mistakes)

	assert.Equal(t, []string{
		"correct_reference",
		"wrong_reference", "wrong_reference",
		"refusal_1", "refusal_2", "refusal_3",
		"formulation_mistake_1", "formulation_mistake_2",
	}, trace.Labels)
}

func TestBuildPlainEnhancement(t *testing.T) {
	set, trace, err := Build(Request{
		Correct: []string{"Paris", "paris, France"},
		Groups:  []string{types.GroupCorrect},
		Enhance: true,
	})
	require.NoError(t, err)
	assert.Nil(t, trace)

	correct, _ := set.Get(types.GroupCorrect)
	assert.Equal(t, []string{
		"Paris",
		`The answer is: "Paris". Let me explain why`,
		`Therefore, the answer is: "Paris"`,
		"paris, France",
		`The answer is: "paris, France". Let me explain why`,
		`Therefore, the answer is: "paris, France"`,
	}, correct)
}

func TestBuildFormulationMistakeOptions(t *testing.T) {
	req := optionRequest()
	req.Groups = []string{types.GroupFormulationMistake}
	set, trace, err := Build(req)
	require.NoError(t, err)
	mistakes, _ := set.Get(types.GroupFormulationMistake)
	assert.Equal(t, FormulationMistakeTexts(true), mistakes)
	assert.Equal(t, "formulation_mistake_options_3", trace.Labels[4])
}

func TestBuildValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"duplicate group", func(r *Request) { r.Groups = []string{"correct", "correct"} }},
		{"unknown group", func(r *Request) { r.Groups = []string{"correct", "maybe"} }},
		{"multiple correct with options", func(r *Request) {
			r.Correct, r.CorrectIndices = []string{"B", "D"}, []int{1, 3}
		}},
		{"missing indices", func(r *Request) { r.WrongIndices = nil }},
		{"index count mismatch", func(r *Request) { r.WrongIndices = []int{0} }},
		{"index without symbol", func(r *Request) { r.WrongIndices = []int{0, 10} }},
		{"repeated index", func(r *Request) { r.WrongIndices = []int{0, 1} }},
		{"unknown scheme", func(r *Request) { r.Symbols = "greek" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := optionRequest()
			tt.mutate(&req)
			_, _, err := Build(req)
			assert.ErrorIs(t, err, &types.ConfigurationError{})
		})
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	a, ta, err := Build(optionRequest())
	require.NoError(t, err)
	b, tb, err := Build(optionRequest())
	require.NoError(t, err)

	batchA, _ := a.Flatten()
	batchB, _ := b.Flatten()
	assert.Equal(t, batchA, batchB)
	assert.Equal(t, ta, tb)
}

func TestBuildDoesNotMutateInputs(t *testing.T) {
	req := optionRequest()
	_, _, err := Build(req)
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "C"}, req.Wrong)
	assert.Equal(t, []int{0, 2}, req.WrongIndices)
}
