// Package embedder provides text embedding clients for the embedding scoring
// method.
//
// # Supported Backends
//
//   - TEI: Text-Embeddings-Inference servers (POST /embed)
//   - vLLM and OpenAI: OpenAI-compatible /v1/embeddings routes
//   - Local: in-process models through go-embedeverything
//
// # Usage
//
//	client, err := embedder.NewClient(embedder.ClientConfig{
//	    EndpointType: types.EndpointTEI,
//	    Config:       embedder.Config{BaseURL: "http://localhost:8080"},
//	})
//
//	// Embed text
//	embeddings, err := client.Embed(ctx, []string{"hello world"})
//
// # Caching
//
// CachedClient wraps any Client with a badger store keyed by model and text.
// Only the texts missing from the store reach the wrapped client.
package embedder
