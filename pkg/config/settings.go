package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/soundprediction/avert"
	"github.com/soundprediction/avert/pkg/candidates"
	"github.com/soundprediction/avert/pkg/dispatch"
	"github.com/soundprediction/avert/pkg/embedder"
	"github.com/soundprediction/avert/pkg/grouping"
	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/scorer"
	"github.com/soundprediction/avert/pkg/tasks"
	"github.com/soundprediction/avert/pkg/template"
	"github.com/soundprediction/avert/pkg/types"
)

// Settings is a validated Config with every enumerated value parsed.
type Settings struct {
	Method       types.ScoringMethod
	EndpointType types.EndpointType
	Endpoint     string
	Model        string
	APIKey       string
	Timeout      time.Duration

	Templates          template.Templates
	Instructions       types.InstructionMap
	MissingInstruction template.MissingInstructionPolicy

	Grouping    grouping.Method
	Enhance     bool
	Symbols     candidates.SymbolScheme
	BatchSize   int
	MaxLen      int
	MinScore    float64
	Concurrency int

	Cache   *embedder.CacheConfig
	Retry   resilience.RetryConfig
	Breaker resilience.BreakerConfig
}

// Validate checks c and parses it into Settings. All problems are reported
// as a ConfigurationError before any backend is contacted.
func (c *Config) Validate() (*Settings, error) {
	s := &Settings{
		Endpoint:    c.Model.Endpoint,
		Model:       c.Model.Name,
		APIKey:      c.Model.APIKey,
		Timeout:     c.Model.Timeout,
		Enhance:     c.Scoring.Enhance,
		BatchSize:   c.Scoring.BatchSize,
		MaxLen:      c.Scoring.MaxLen,
		MinScore:    c.Scoring.MinScore,
		Concurrency: max(c.Scoring.Concurrency, 1),
		Retry:       c.Retry,
		Breaker:     c.CircuitBreaker,
	}

	var err error
	if c.Model.Method == "" {
		return nil, types.NewConfigurationError("method", "a scoring method is required (AVERT_METHOD: embedding or rerank)")
	}
	if s.Method, err = types.ParseScoringMethod(c.Model.Method); err != nil {
		return nil, err
	}
	if c.Model.EndpointType == "" {
		return nil, types.NewConfigurationError("endpoint_type", "an endpoint type is required (AVERT_ENDPOINT_TYPE)")
	}
	if s.EndpointType, err = types.ParseEndpointType(c.Model.EndpointType); err != nil {
		return nil, err
	}
	if s.Endpoint == "" && s.EndpointType != types.EndpointLocal {
		return nil, types.NewConfigurationError("endpoint", "an endpoint URL is required (AVERT_MODEL_ENDPOINT)")
	}
	if s.Model == "" && s.EndpointType.RequiresModelName() {
		return nil, types.NewConfigurationError("model_name", "a model name is required for %s endpoints (AVERT_MODEL_NAME)", s.EndpointType)
	}
	if s.BatchSize <= 0 {
		return nil, types.NewConfigurationError("batch_size", "batch size must be positive, got %d", s.BatchSize)
	}

	if s.Grouping, err = grouping.Parse(c.Scoring.Grouping); err != nil {
		return nil, err
	}
	if s.Symbols, err = candidates.ParseSymbolScheme(c.Scoring.Symbols); err != nil {
		return nil, err
	}
	if s.MissingInstruction, err = template.ParsePolicy(c.Templates.MissingInstruction); err != nil {
		return nil, err
	}

	if s.Templates, err = c.templates(); err != nil {
		return nil, err
	}
	if s.Instructions, err = c.instructions(); err != nil {
		return nil, err
	}
	loc, err := template.Locate(s.Templates)
	if err != nil {
		return nil, err
	}
	if loc != template.LocationNone && len(s.Instructions) == 0 {
		s.Instructions = tasks.DefaultInstructions()
	}
	if err := template.Validate(s.Templates, s.Instructions); err != nil {
		return nil, err
	}

	if c.Cache.Enabled {
		s.Cache = &embedder.CacheConfig{Dir: c.Cache.Dir}
	}
	return s, nil
}

func (c *Config) templates() (template.Templates, error) {
	if c.Templates.Prompt != "" {
		return template.Predefined(c.Templates.Prompt)
	}
	return template.Templates{Document: c.Templates.Document, Query: c.Templates.Query}, nil
}

// instructions merges the instructions file with inline entries; inline
// entries win.
func (c *Config) instructions() (types.InstructionMap, error) {
	out := types.InstructionMap{}
	if c.Templates.InstructionsFile != "" {
		fromFile, err := LoadInstructions(c.Templates.InstructionsFile)
		if err != nil {
			return nil, err
		}
		for k, v := range fromFile {
			out[k] = v
		}
	}
	for k, v := range c.Templates.Instructions {
		out[k] = v
	}
	return out, nil
}

// LoadInstructions reads a YAML mapping of task id to instruction.
func LoadInstructions(path string) (types.InstructionMap, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read instructions file: %w", err)
	}
	var m map[string]string
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, types.NewConfigurationError("instructions_file", "%s is not a task to instruction mapping: %v", path, err)
	}
	return types.InstructionMap(m).Clone(), nil
}

// EngineConfig returns the engine settings.
func (s *Settings) EngineConfig() *avert.Config {
	return &avert.Config{
		Templates:          s.Templates,
		Instructions:       s.Instructions.Clone(),
		Grouping:           s.Grouping,
		MaxLen:             s.MaxLen,
		MissingInstruction: s.MissingInstruction,
	}
}

// Policy builds the retry and circuit breaking policy for the backend.
func (s *Settings) Policy(log *slog.Logger, onTrip func(name string)) *resilience.Policy {
	retry := s.Retry
	return &resilience.Policy{
		Retrier: resilience.NewRetrier(&retry, log),
		Breaker: resilience.NewBreaker(string(s.EndpointType)+"-"+string(s.Method), s.Breaker, log, onTrip),
	}
}

// ScorerConfig returns the backend settings. policy and observer may be nil.
func (s *Settings) ScorerConfig(policy *resilience.Policy, observer dispatch.Observer) scorer.Config {
	return scorer.Config{
		Method:       s.Method,
		EndpointType: s.EndpointType,
		Endpoint:     s.Endpoint,
		Model:        s.Model,
		APIKey:       s.APIKey,
		BatchSize:    s.BatchSize,
		Timeout:      s.Timeout,
		Policy:       policy,
		Cache:        s.Cache,
		Observer:     observer,
	}
}
