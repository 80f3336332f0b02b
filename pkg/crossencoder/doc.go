/*
Package crossencoder provides rerank clients that score candidate passages
against a model response for the rerank scoring method.

# Implementations

## TEI (TEIClient)

Calls the /rerank route of a Text-Embeddings-Inference server. The reply
lists {index, score} pairs sorted by score.

	client := crossencoder.NewTEIClient(crossencoder.Config{BaseURL: "http://localhost:8080"})
	results, err := client.Rank(ctx, response, candidates)

## Jina-compatible (RerankerClient)

Calls /v1/rerank with a model name, as served by vLLM, Jina AI and LocalAI.

	client := crossencoder.NewRerankerClient(crossencoder.Config{
		BaseURL: "http://localhost:8000",
		Model:   "Qwen/Qwen3-Reranker-0.6B",
	})

## Chat model (OpenAIRerankerClient)

Asks an OpenAI-compatible chat model to grade every passage in one request.
The answer is repaired with jsonrepair before decoding, so code fences and
trailing commas do not fail the call.

## Local (EmbedEverythingClient)

Runs a cross-encoder in-process through go-embedeverything.

# Result order

Rank results carry the input position of their passage in Index and may be
returned in any order. Callers that need input order must reorder by Index.
*/
package crossencoder
