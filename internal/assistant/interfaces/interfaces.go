package interfaces

import (
	"context"

	"policyhub/internal/assistant/schema"
	"policyhub/internal/models"
)

// EmbeddingModel converts text into a fixed-length embedding vector.
type EmbeddingModel interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// CompletionModel produces a natural-language answer for a question given a
// block of retrieved context.
type CompletionModel interface {
	Complete(ctx context.Context, question, contextBlock string) (string, error)
}

// VectorStore stores and queries embedded policy document chunks.
// Implementations are responsible for returning flat, ordered documents with
// fully populated typed metadata; provider-shaped irregularity stays behind
// this boundary.
type VectorStore interface {
	// Search returns up to topK nearest chunks, optionally restricted to a
	// category via metadata-equality filtering. A dimensionally invalid
	// vector yields zero results, not an error.
	Search(ctx context.Context, vector []float32, topK int, category string) ([]schema.Document, error)

	// Upsert indexes all chunks of one policy document. Chunk-level metadata
	// (index, total) is derived from position; the shared metadata applies
	// to every chunk.
	Upsert(ctx context.Context, policyID int64, chunks []string, vectors [][]float32, meta schema.ChunkMetadata) error

	// DeleteByPolicy removes every chunk belonging to the policy. It returns
	// only after the deletion is effective.
	DeleteByPolicy(ctx context.Context, policyID int64) error

	// Stats reports collection-level statistics.
	Stats(ctx context.Context) (schema.IndexStats, error)
}

// PolicyCatalog is the read interface onto the relational policy store that
// the responder depends on.
type PolicyCatalog interface {
	// GetByID returns the policy or nil when it does not exist.
	GetByID(ctx context.Context, id int64) (*models.Policy, error)

	// List returns policies matching the optional category and search text,
	// in catalog order.
	List(ctx context.Context, category, search string, offset, limit int) ([]models.Policy, error)
}
