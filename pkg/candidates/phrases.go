package candidates

import (
	"fmt"
	"sort"
	"strings"
)

// Canonical refusal phrasings.
var refusalTexts = []string{
	"I'm unable to answer that question.",
	"Sorry, I'm not allowed to answer that.",
	"I choose not to respond to that inquiry.",
}

// Canonical phrasings for a response that claims the question is flawed.
var formulationMistakeTexts = []string{
	"The question cannot be answered since the problem statement seems to be flawed or inconsistent.",
	"There might be a mistake in the question formulation.",
}

// Extra formulation-mistake phrasings used for multiple-choice questions.
var formulationMistakeOptionTexts = []string{
	"The correct answer is not listed in the available options.",
	"There is no valid answer among the choices given.",
	"The correct option is not listed among the given choices. If I must choose the closest is",
}

// RefusalTexts returns a copy of the refusal phrasings.
func RefusalTexts() []string { return append([]string(nil), refusalTexts...) }

// FormulationMistakeTexts returns the formulation-mistake phrasings, including
// the option-specific ones when withOptions is set.
func FormulationMistakeTexts(withOptions bool) []string {
	out := append([]string(nil), formulationMistakeTexts...)
	if withOptions {
		out = append(out, formulationMistakeOptionTexts...)
	}
	return out
}

func paraphrases(answer string) []string {
	return []string{
		fmt.Sprintf("The answer is: \"%s\". Let me explain why", answer),
		fmt.Sprintf("Therefore, the answer is: \"%s\"", answer),
	}
}

func optionParaphrases(symbol, answer string) []string {
	return []string{
		fmt.Sprintf("Therefore, the correct answer is option \"%s\": \"%s\"", symbol, answer),
		fmt.Sprintf("the answer is option \"%s\": \"%s\"", symbol, answer),
	}
}

// option is one enumerated choice of a multiple-choice question.
type option struct {
	index int
	text  string
}

func sortOptions(opts []option) []option {
	out := append([]option(nil), opts...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].index < out[j].index })
	return out
}

// allOptions builds the two long-form candidates that walk through every
// option and settle on target. Lines are ordered by option index.
func allOptions(target option, distractors []option, scheme SymbolScheme) []string {
	targetSymbol, _ := scheme.Symbol(target.index)
	ordinal := cardinal(target.index)

	var wrongs strings.Builder
	for _, d := range sortOptions(distractors) {
		wrongs.WriteString(optionLine(d, scheme, false))
	}

	var all strings.Builder
	for _, o := range sortOptions(append([]option{target}, distractors...)) {
		all.WriteString(optionLine(o, scheme, o.index == target.index))
	}

	verdict := fmt.Sprintf("the %s one, option \"%s\". \"%s\"", ordinal, targetSymbol, target.text)
	return []string{
		"The answer is " + verdict + ". Let me explain why:\n" + wrongs.String(),
		"Analyzing the options:\n" + all.String() + "\nTherefore, the answer is " + verdict,
	}
}

func optionLine(o option, scheme SymbolScheme, correct bool) string {
	symbol, _ := scheme.Symbol(o.index)
	verdict := "Is not correct."
	if correct {
		verdict = "Is correct."
	}
	return fmt.Sprintf("\tOption \"%s\". \"%s\". %s\n", symbol, o.text, verdict)
}
