package config

// RAGConfig holds settings for the Context/RAG Pipeline. They are loaded,
// defaulted and validated here, but no other package reads them:
// rag.Pipeline takes its limit, embedder and tag generator from its
// constructor and fields.
type RAGConfig struct {
	// Enabled is a switch for the pipeline; it does not turn Augment on
	// or off.
	Enabled bool `yaml:"enabled"`

	// SearchLimit is a per-Augment memory limit; rag.Pipeline uses its own
	// Limit field instead.
	SearchLimit int `yaml:"search_limit"`

	// Embeddings holds embedding-provider settings; no embedding provider
	// is built from them.
	Embeddings RAGEmbeddingsConfig `yaml:"embeddings"`
}

// RAGEmbeddingsConfig configures the embedding provider for RAG.
type RAGEmbeddingsConfig struct {
	Provider string `yaml:"provider"`
	APIKey   string `yaml:"api_key"`
	BaseURL  string `yaml:"base_url"`
	Model    string `yaml:"model"`
}

func applyRAGDefaults(cfg *RAGConfig) {
	if cfg.SearchLimit == 0 {
		cfg.SearchLimit = 5
	}
	if cfg.Embeddings.Model == "" {
		cfg.Embeddings.Model = "text-embedding-3-small"
	}
}

func validateRAG(cfg *RAGConfig) []string {
	var issues []string
	if cfg.SearchLimit < 0 {
		issues = append(issues, "rag.search_limit must be >= 0")
	}
	return issues
}
