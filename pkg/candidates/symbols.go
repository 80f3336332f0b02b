package candidates

import (
	"strings"

	"github.com/soundprediction/avert/pkg/types"
)

// SymbolScheme selects how multiple-choice options are labelled.
type SymbolScheme string

const (
	Letters   SymbolScheme = "letters"
	Cardinals SymbolScheme = "cardinals"
	Romans    SymbolScheme = "romans"
	Numbers   SymbolScheme = "numbers"
)

// MaxOptions is the largest number of options any scheme can label.
const MaxOptions = 10

var symbolTables = map[SymbolScheme][MaxOptions]string{
	Letters:   {"A", "B", "C", "D", "E", "F", "G", "H", "I", "J"},
	Cardinals: {"first", "second", "third", "fourth", "fifth", "sixth", "seventh", "eighth", "ninth", "tenth"},
	Romans:    {"I", "II", "III", "IV", "V", "VI", "VII", "VIII", "IX", "X"},
	Numbers:   {"1", "2", "3", "4", "5", "6", "7", "8", "9", "10"},
}

// ParseSymbolScheme validates a scheme name. An empty name selects Letters.
func ParseSymbolScheme(name string) (SymbolScheme, error) {
	s := SymbolScheme(strings.ToLower(strings.TrimSpace(name)))
	if s == "" {
		return Letters, nil
	}
	if _, ok := symbolTables[s]; !ok {
		return "", types.NewConfigurationError("symbols",
			"symbol scheme %q not supported (available: letters, cardinals, romans, numbers)", name)
	}
	return s, nil
}

// Symbol returns the label of the option at zero-based position index.
func (s SymbolScheme) Symbol(index int) (string, bool) {
	table, ok := symbolTables[s]
	if !ok || index < 0 || index >= MaxOptions {
		return "", false
	}
	return table[index], true
}

// cardinal returns the ordinal word used in long-form candidates regardless
// of the symbol scheme.
func cardinal(index int) string {
	s, _ := Cardinals.Symbol(index)
	return s
}
