// Package template resolves the document and query templates sent to the
// similarity backend and injects the task-scoped instruction into them.
package template

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/soundprediction/avert/pkg/logger"
	"github.com/soundprediction/avert/pkg/types"
)

// Placeholders recognised inside templates.
const (
	DocumentPlaceholder    = "{document}"
	QueryPlaceholder       = "{query}"
	InstructionPlaceholder = "{instruction}"
)

// Location tells which template holds the instruction placeholder.
type Location int

const (
	// LocationNone means no template contains the instruction placeholder.
	LocationNone Location = iota
	// LocationDocument means the document template contains it.
	LocationDocument
	// LocationQuery means the query template contains it.
	LocationQuery
)

func (l Location) String() string {
	switch l {
	case LocationDocument:
		return "document template"
	case LocationQuery:
		return "query template"
	default:
		return "none"
	}
}

// MissingInstructionPolicy decides what happens when a template needs an
// instruction but none can be resolved for the task.
type MissingInstructionPolicy string

const (
	// MissingDrop disables the template that holds the placeholder, so the
	// text it would wrap is sent as-is.
	MissingDrop MissingInstructionPolicy = "drop"
	// MissingEmpty substitutes the placeholder with an empty string.
	MissingEmpty MissingInstructionPolicy = "empty"
	// MissingError rejects the request with a ConfigurationError.
	MissingError MissingInstructionPolicy = "error"
)

// ParsePolicy validates a policy name. An empty name selects MissingDrop.
func ParsePolicy(name string) (MissingInstructionPolicy, error) {
	switch p := MissingInstructionPolicy(strings.ToLower(strings.TrimSpace(name))); p {
	case "":
		return MissingDrop, nil
	case MissingDrop, MissingEmpty, MissingError:
		return p, nil
	default:
		return "", types.NewConfigurationError("missing_instruction", "unknown policy %q (available: drop, empty, error)", name)
	}
}

// Templates holds a document and a query template. An empty string means the
// text is passed through unchanged.
type Templates struct {
	Document string `json:"document_template,omitempty" mapstructure:"document_template"`
	Query    string `json:"query_template,omitempty" mapstructure:"query_template"`
}

// Locate reports which template contains the instruction placeholder. Having
// it in both is a configuration error.
func Locate(t Templates) (Location, error) {
	inDoc := strings.Contains(t.Document, InstructionPlaceholder)
	inQuery := strings.Contains(t.Query, InstructionPlaceholder)
	switch {
	case inDoc && inQuery:
		return LocationNone, types.NewConfigurationError("templates",
			"the %s placeholder cannot be present in both the document and query templates", InstructionPlaceholder)
	case inDoc:
		return LocationDocument, nil
	case inQuery:
		return LocationQuery, nil
	default:
		return LocationNone, nil
	}
}

// Validate checks templates against the configured instructions. Supplying
// instructions without a placeholder to receive them is an error.
func Validate(t Templates, instructions types.InstructionMap) error {
	loc, err := Locate(t)
	if err != nil {
		return err
	}
	if loc == LocationNone && hasInstruction(instructions) {
		return types.NewConfigurationError("templates",
			"instructions are configured but the %s placeholder was not found in the document or query template", InstructionPlaceholder)
	}
	return nil
}

func hasInstruction(m types.InstructionMap) bool {
	for _, v := range m {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}

// Resolved is the outcome of instruction injection for one scoring call.
type Resolved struct {
	Templates
	Instruction string
	// Degraded is set when a placeholder was present but no instruction
	// could be found for the task.
	Degraded bool
}

// Resolver injects instructions into templates. It never mutates its inputs.
type Resolver struct {
	policy MissingInstructionPolicy
	logger *slog.Logger
}

// NewResolver creates a Resolver.
func NewResolver(policy MissingInstructionPolicy, log *slog.Logger) *Resolver {
	if policy == "" {
		policy = MissingDrop
	}
	return &Resolver{policy: policy, logger: logger.OrDiscard(log)}
}

// Resolve looks up the instruction for taskID (falling back to the default
// entry) and returns new templates with the placeholder substituted.
func (r *Resolver) Resolve(t Templates, instructions types.InstructionMap, taskID string) (Resolved, error) {
	loc, err := Locate(t)
	if err != nil {
		return Resolved{}, err
	}
	out := Resolved{Templates: t}
	if loc == LocationNone {
		return out, nil
	}
	if instructions == nil {
		instructions = types.InstructionMap{}
	}

	instruction, ok := instructions.Lookup(taskID)
	if !ok {
		r.logger.Warn("No instruction found for task, running in degraded mode",
			"task", taskID, "location", loc.String(), "policy", string(r.policy))
		out.Degraded = true
		switch r.policy {
		case MissingError:
			return Resolved{}, types.NewConfigurationError("instruction_map",
				"no instruction for task %q and no %q entry, but the %s requires one", taskID, types.DefaultInstructionKey, loc)
		case MissingEmpty:
			instruction = ""
		default:
			if loc == LocationDocument {
				out.Document = ""
			} else {
				out.Query = ""
			}
			return out, nil
		}
	}

	out.Instruction = instruction
	if loc == LocationDocument {
		out.Document = strings.ReplaceAll(t.Document, InstructionPlaceholder, instruction)
	} else {
		out.Query = strings.ReplaceAll(t.Query, InstructionPlaceholder, instruction)
	}
	return out, nil
}

// RenderQuery formats the model response with the query template.
func (r Resolved) RenderQuery(query string) string {
	return Render(r.Query, QueryPlaceholder, query)
}

// RenderDocuments formats every candidate with the document template.
func (r Resolved) RenderDocuments(documents []string) []string {
	out := make([]string, len(documents))
	for i, d := range documents {
		out[i] = Render(r.Document, DocumentPlaceholder, d)
	}
	return out
}

// Render substitutes placeholder in tmpl with text. An empty template passes
// the text through.
func Render(tmpl, placeholder, text string) string {
	if tmpl == "" {
		return text
	}
	return strings.ReplaceAll(tmpl, placeholder, text)
}

// ContainsPlaceholder reports whether s still holds a literal instruction
// placeholder.
func ContainsPlaceholder(s string) bool {
	return strings.Contains(s, InstructionPlaceholder)
}

// Truncate keeps the last maxLen whitespace-delimited words of text when
// maxLen is positive and the text is longer. The end of a reasoning trace is
// where the final answer usually is.
func Truncate(text string, maxLen int) string {
	if maxLen <= 0 {
		return text
	}
	words := strings.Fields(text)
	if len(words) <= maxLen {
		return text
	}
	return strings.Join(words[len(words)-maxLen:], " ")
}

// predefined templates selectable by name.
var predefined = map[string]Templates{
	"qwen3-reranker": {
		Document: "<Document>: {document}<|im_end|>\n<|im_start|>assistant\n<think>\n\n</think>\n\n",
		Query:    "<|im_start|>system\nJudge whether the Document meets the requirements based on the Query and the Instruct provided. Note that the answer can only be \"yes\" or \"no\".<|im_end|>\n<|im_start|>user\n <Instruct>: {instruction}\n<Query>: {query}\n",
	},
	"empty": {},
	"embedding-with-instruction": {
		Query: "{instruction}{query}",
	},
}

// Predefined returns a named template pair.
func Predefined(name string) (Templates, error) {
	t, ok := predefined[name]
	if !ok {
		return Templates{}, types.NewConfigurationError("prompt_template",
			"unknown template %q (available: %s)", name, strings.Join(Names(), ", "))
	}
	return t, nil
}

// Names lists the predefined template names in sorted order.
func Names() []string {
	names := make([]string, 0, len(predefined))
	for name := range predefined {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// String renders a short description used by the CLI.
func (t Templates) String() string {
	return fmt.Sprintf("document=%q query=%q", t.Document, t.Query)
}
