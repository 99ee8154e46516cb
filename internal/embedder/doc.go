// Package embedder turns text into vector embeddings.
//
// Three providers implement the Embedder interface:
//
//   - ollama (default): POST {host}/api/embed on a local Ollama server
//   - openai: the OpenAI embeddings API, or any compatible server via BaseURL
//   - local: an offline feature-hashing embedder, useful without a model server
//
// # Basic Usage
//
//	emb, err := embedder.New(embedder.Config{
//	    Provider:  "ollama",
//	    Model:     "all-minilm",
//	    CacheSize: 1000,
//	})
//	if err != nil {
//	    return err
//	}
//	defer emb.Close()
//
//	result, err := emb.GenerateEmbedding(ctx, embedder.EmbeddingRequest{
//	    Text: "fast animal",
//	})
//
// # Batch Processing
//
// Providers that cap inputs per request implement BatchLimiter (OpenAI takes
// 2048). Ollama and the local provider take any number, so a whole file is
// one request. Embedders without BatchLimit are capped at MaxBatchSize.
// EmbedTexts splits inputs by that limit and guarantees one vector per
// input, in order:
//
//	vectors, err := embedder.EmbedTexts(ctx, emb, texts)
//
// # Caching
//
// With CacheSize > 0 each provider keeps an in-memory LRU of embeddings keyed
// by model and text hash, so repeated texts within a process are embedded
// once. Persistent caching of whole files lives in the cache package.
//
// # Retries
//
// HTTP providers retry transient failures (network errors, 429, 5xx) with
// exponential backoff. Other 4xx responses fail immediately.
package embedder
