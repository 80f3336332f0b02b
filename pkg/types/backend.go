package types

import "strings"

// ScoringMethod selects the backend family used to score candidates.
type ScoringMethod string

const (
	// MethodEmbedding embeds query and candidates independently and compares
	// them with cosine similarity.
	MethodEmbedding ScoringMethod = "embedding"
	// MethodRerank asks a reranker for query/candidate relevance directly.
	MethodRerank ScoringMethod = "rerank"
)

// ParseScoringMethod validates a scoring method name.
func ParseScoringMethod(name string) (ScoringMethod, error) {
	switch m := ScoringMethod(strings.ToLower(strings.TrimSpace(name))); m {
	case MethodEmbedding, MethodRerank:
		return m, nil
	default:
		return "", NewConfigurationError("method", "scoring method %q not supported (available: embedding, rerank)", name)
	}
}

// EndpointType names the serving stack behind the endpoint URL.
type EndpointType string

const (
	EndpointTEI    EndpointType = "tei"
	EndpointVLLM   EndpointType = "vllm"
	EndpointOpenAI EndpointType = "openai"
	// EndpointLocal runs models in-process instead of calling a server.
	EndpointLocal EndpointType = "local"
)

// ParseEndpointType validates an endpoint type name.
func ParseEndpointType(name string) (EndpointType, error) {
	switch e := EndpointType(strings.ToLower(strings.TrimSpace(name))); e {
	case EndpointTEI, EndpointVLLM, EndpointOpenAI, EndpointLocal:
		return e, nil
	default:
		return "", NewConfigurationError("endpoint_type",
			"endpoint type %q not supported (available: tei, vllm, openai, local)", name)
	}
}

// RequiresModelName reports whether requests to this endpoint type must name
// the served model. Local models fall back to a default.
func (e EndpointType) RequiresModelName() bool {
	return e == EndpointVLLM || e == EndpointOpenAI
}
