package crossencoder

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
	"github.com/sashabaranov/go-openai"

	"github.com/soundprediction/avert/pkg/resilience"
	"github.com/soundprediction/avert/pkg/utils"
)

const rerankSystemPrompt = "You are an expert tasked with determining how well each passage matches the meaning of the query. " +
	"Respond only with a JSON array of objects with the fields \"index\" and \"score\", one per passage, " +
	"where score is a number between 0 and 1."

// OpenAIRerankerClient implements cross-encoder functionality using a chat
// model. All passages of a call are graded in one request and the model's
// JSON answer is repaired before decoding.
type OpenAIRerankerClient struct {
	client *openai.Client
	config Config
}

// NewOpenAIRerankerClient creates a new OpenAI-based reranker client
func NewOpenAIRerankerClient(config Config) *OpenAIRerankerClient {
	if config.Model == "" {
		config.Model = "gpt-4o-mini"
	}
	clientConfig := openai.DefaultConfig(config.APIKey)
	if config.BaseURL != "" {
		baseURL := strings.TrimRight(config.BaseURL, "/")
		if !strings.HasSuffix(baseURL, "/v1") {
			baseURL += "/v1"
		}
		clientConfig.BaseURL = baseURL
	}
	clientConfig.HTTPClient = utils.NewHTTPClient(config.Timeout)

	return &OpenAIRerankerClient{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}
}

// Rank ranks the given passages based on their relevance to the query
func (c *OpenAIRerankerClient) Rank(ctx context.Context, query string, passages []string) ([]RankedPassage, error) {
	if len(passages) == 0 {
		return []RankedPassage{}, nil
	}

	var user strings.Builder
	fmt.Fprintf(&user, "<QUERY>\n%s\n</QUERY>\n", query)
	for i, p := range passages {
		fmt.Fprintf(&user, "<PASSAGE index=%d>\n%s\n</PASSAGE>\n", i, p)
	}

	req := openai.ChatCompletionRequest{
		Model: c.config.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: rerankSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: user.String()},
		},
		Temperature: 0,
	}
	resp, err := resilience.Call(ctx, c.config.Policy, "openai.rerank", func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get response: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat reranker returned no choices")
	}

	ranked, err := parseScores(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, err
	}
	for i := range ranked {
		if ranked[i].Index >= 0 && ranked[i].Index < len(passages) {
			ranked[i].Passage = passages[ranked[i].Index]
		}
	}
	return ranked, nil
}

// parseScores decodes the model answer, tolerating code fences, trailing
// commas and similar damage.
func parseScores(content string) ([]RankedPassage, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	repaired, err := jsonrepair.JSONRepair(content)
	if err != nil {
		return nil, fmt.Errorf("chat reranker returned unparseable JSON: %w", err)
	}

	var list []RankedPassage
	if err := json.Unmarshal([]byte(repaired), &list); err == nil {
		return list, nil
	}
	var wrapped struct {
		Results []RankedPassage `json:"results"`
		Scores  []RankedPassage `json:"scores"`
	}
	if err := json.Unmarshal([]byte(repaired), &wrapped); err != nil {
		return nil, fmt.Errorf("chat reranker returned unexpected JSON: %w", err)
	}
	if wrapped.Results != nil {
		return wrapped.Results, nil
	}
	return wrapped.Scores, nil
}

// Close cleans up any resources used by the client
func (c *OpenAIRerankerClient) Close() error {
	return nil
}
