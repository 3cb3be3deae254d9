package agrisage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/agrisage/agrisage/llm"
)

// Config holds all configuration for the advisory engine.
type Config struct {
	// DBPath is the full path to the SQLite database file.
	// If empty, defaults to ~/.agrisage/<DBName>.db
	DBPath string `json:"db_path" yaml:"db_path"`

	// DBName is the name for the database (used when DBPath is empty).
	// Defaults to "agrisage".
	DBName string `json:"db_name" yaml:"db_name"`

	// StorageDir controls where the database is created when DBPath is not
	// explicitly set. Options: "home" (default) uses ~/.agrisage/, "local"
	// uses the current working directory.
	StorageDir string `json:"storage_dir" yaml:"storage_dir"`

	// LLM providers
	Generation llm.Config `json:"generation" yaml:"generation"`
	Embedding  llm.Config `json:"embedding" yaml:"embedding"`

	// TopK is the number of documents retrieval returns per query.
	TopK int `json:"top_k" yaml:"top_k"`

	// EmbeddingDim must match the embedding model's output dimension.
	EmbeddingDim int `json:"embedding_dim" yaml:"embedding_dim"`

	// GenerationTimeout bounds a single generation call.
	GenerationTimeout time.Duration `json:"generation_timeout" yaml:"generation_timeout"`
}

// DefaultConfig returns a Config with sensible defaults: Gemini for
// generation, local Ollama for embeddings. Database is stored in
// ~/.agrisage/agrisage.db by default.
func DefaultConfig() Config {
	return Config{
		DBName:     "agrisage",
		StorageDir: "home",
		Generation: llm.Config{
			Provider: "gemini",
			Model:    "gemini-1.5-flash",
		},
		Embedding: llm.Config{
			Provider: "ollama",
			Model:    "nomic-embed-text",
			BaseURL:  "http://localhost:11434",
		},
		TopK:              5,
		EmbeddingDim:      768,
		GenerationTimeout: 30 * time.Second,
	}
}

// ResolveDBPath computes the final database path from config fields.
func (c *Config) ResolveDBPath() string {
	if c.DBPath != "" {
		return c.DBPath
	}

	name := c.DBName
	if name == "" {
		name = "agrisage"
	}

	switch c.StorageDir {
	case "local", "cwd":
		return name + ".db"
	default: // "home" or empty
		home, err := os.UserHomeDir()
		if err != nil {
			return name + ".db" // fallback to cwd
		}
		return filepath.Join(home, ".agrisage", name+".db")
	}
}
