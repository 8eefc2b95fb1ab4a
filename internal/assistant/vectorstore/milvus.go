package vectorstore

import (
	"context"
	"fmt"
	"strconv"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"policyhub/internal/assistant/interfaces"
	"policyhub/internal/assistant/schema"
	"policyhub/internal/database/milvus"
	"policyhub/pkg/logger"
)

// MilvusStore adapts the Milvus client to the VectorStore interface. All
// provider-shaped results are normalized into flat, ordered schema.Documents
// at this boundary; the responder never sees raw search results.
type MilvusStore struct {
	log        *logger.Logger
	client     client.Client
	collection string
	dim        int
}

// NewMilvusStore creates a MilvusStore adapter over the shared Milvus client.
// It fails fast on an uninitialized client instead of connecting lazily, so
// callers can branch on availability up front.
func NewMilvusStore(milvusClient *milvus.MilvusClient, log *logger.Logger) (*MilvusStore, error) {
	if milvusClient == nil || milvusClient.Client == nil {
		return nil, fmt.Errorf("milvus client is not initialized")
	}
	return &MilvusStore{
		log:        log,
		client:     milvusClient.Client,
		collection: milvusClient.Config.CollectionName,
		dim:        milvusClient.Config.Dim,
	}, nil
}

// chunkID builds the deterministic primary key for a chunk, so replacing a
// document replaces its keys rather than accumulating stale rows.
func chunkID(policyID int64, index int) string {
	return fmt.Sprintf("policy_%d_chunk_%d", policyID, index)
}

// policyExpr builds the boolean expression selecting all chunks of a policy.
func policyExpr(policyID int64) string {
	return fmt.Sprintf("%s == %d", milvus.FieldPolicyID, policyID)
}

// categoryExpr builds the metadata-equality filter expression for a
// normalized category, or "" for no filter.
func categoryExpr(category string) string {
	if category == "" {
		return ""
	}
	return fmt.Sprintf(`%s == "%s"`, milvus.FieldCategory, schema.NormalizeCategory(category))
}

// Search performs a vector similarity search, optionally filtered by
// category. A missing or dimensionally mismatched vector yields zero
// results rather than an error.
func (s *MilvusStore) Search(ctx context.Context, vector []float32, topK int, category string) ([]schema.Document, error) {
	if len(vector) != s.dim {
		s.log.Warn(fmt.Sprintf("Invalid embedding dimension %d (expected %d), returning no results", len(vector), s.dim))
		return nil, nil
	}

	searchParams, _ := entity.NewIndexIvfFlatSearchParam(10)
	outputFields := []string{
		milvus.FieldID, milvus.FieldChunk, milvus.FieldPolicyID, milvus.FieldPolicyName,
		milvus.FieldTitle, milvus.FieldCategory, milvus.FieldChunkIndex, milvus.FieldTotalChunks,
	}
	expr := categoryExpr(category)

	s.log.Info(fmt.Sprintf("Querying collection '%s' (topK=%d, filter='%s')", s.collection, topK, expr))

	searchResults, err := s.client.Search(
		ctx, s.collection, []string{}, expr, outputFields,
		[]entity.Vector{entity.FloatVector(vector)},
		milvus.FieldEmbedding, entity.L2, topK, searchParams,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search in Milvus: %w", err)
	}

	docs := documentsFromResults(searchResults, s.log)
	s.log.Info(fmt.Sprintf("Vector search returned %d results", len(docs)))
	return docs, nil
}

// documentsFromResults flattens Milvus search results into a single ordered
// document slice with typed metadata.
func documentsFromResults(results []client.SearchResult, log *logger.Logger) []schema.Document {
	var docs []schema.Document
	for _, res := range results {
		findColumn := func(name string) entity.Column {
			for _, field := range res.Fields {
				if field.Name() == name {
					return field
				}
			}
			return nil
		}

		idCol, ok := findColumn(milvus.FieldID).(*entity.ColumnVarChar)
		if !ok {
			log.Warn("Search result is missing ID field or has wrong type, skipping.")
			continue
		}

		stringData := func(name string) []string {
			if col, ok := findColumn(name).(*entity.ColumnVarChar); ok {
				return col.Data()
			}
			return nil
		}
		int64Data := func(name string) []int64 {
			if col, ok := findColumn(name).(*entity.ColumnInt64); ok {
				return col.Data()
			}
			return nil
		}

		ids := idCol.Data()
		chunks := stringData(milvus.FieldChunk)
		policyIDs := int64Data(milvus.FieldPolicyID)
		policyNames := stringData(milvus.FieldPolicyName)
		titles := stringData(milvus.FieldTitle)
		categories := stringData(milvus.FieldCategory)
		chunkIndexes := int64Data(milvus.FieldChunkIndex)
		totalChunks := int64Data(milvus.FieldTotalChunks)

		at := func(data []string, i int) string {
			if i < len(data) {
				return data[i]
			}
			return ""
		}
		atInt := func(data []int64, i int) int64 {
			if i < len(data) {
				return data[i]
			}
			return 0
		}

		for i := 0; i < res.ResultCount && i < len(ids); i++ {
			doc := schema.Document{
				ID:   ids[i],
				Text: at(chunks, i),
				Metadata: schema.ChunkMetadata{
					PolicyID:    atInt(policyIDs, i),
					PolicyName:  at(policyNames, i),
					Title:       at(titles, i),
					Category:    schema.NormalizeCategory(at(categories, i)),
					ChunkIndex:  int(atInt(chunkIndexes, i)),
					TotalChunks: int(atInt(totalChunks, i)),
				},
			}
			if i < len(res.Scores) {
				doc.Score = res.Scores[i]
			}
			docs = append(docs, doc)
		}
	}
	return docs
}

// Upsert indexes a policy document's chunks. The shared metadata category is
// normalized once up front so every chunk carries a filter-safe value.
func (s *MilvusStore) Upsert(ctx context.Context, policyID int64, chunks []string, vectors [][]float32, meta schema.ChunkMetadata) error {
	if len(chunks) != len(vectors) {
		return fmt.Errorf("mismatch between number of chunks (%d) and vectors (%d)", len(chunks), len(vectors))
	}
	if len(chunks) == 0 {
		return nil
	}

	category := schema.NormalizeCategory(meta.Category)

	ids := make([]string, len(chunks))
	policyIDs := make([]int64, len(chunks))
	policyNames := make([]string, len(chunks))
	titles := make([]string, len(chunks))
	categories := make([]string, len(chunks))
	chunkIndexes := make([]int64, len(chunks))
	totals := make([]int64, len(chunks))
	effectiveDates := make([]string, len(chunks))
	for i := range chunks {
		ids[i] = chunkID(policyID, i)
		policyIDs[i] = policyID
		policyNames[i] = meta.PolicyName
		titles[i] = meta.Title
		categories[i] = category
		chunkIndexes[i] = int64(i)
		totals[i] = int64(len(chunks))
		effectiveDates[i] = meta.EffectiveDate
	}

	columns := []entity.Column{
		entity.NewColumnVarChar(milvus.FieldID, ids),
		entity.NewColumnVarChar(milvus.FieldChunk, chunks),
		entity.NewColumnFloatVector(milvus.FieldEmbedding, s.dim, vectors),
		entity.NewColumnInt64(milvus.FieldPolicyID, policyIDs),
		entity.NewColumnVarChar(milvus.FieldPolicyName, policyNames),
		entity.NewColumnVarChar(milvus.FieldTitle, titles),
		entity.NewColumnVarChar(milvus.FieldCategory, categories),
		entity.NewColumnInt64(milvus.FieldChunkIndex, chunkIndexes),
		entity.NewColumnInt64(milvus.FieldTotalChunks, totals),
		entity.NewColumnVarChar(milvus.FieldEffectiveDate, effectiveDates),
	}

	if _, err := s.client.Insert(ctx, s.collection, "", columns...); err != nil {
		return fmt.Errorf("failed to insert chunks into Milvus: %w", err)
	}
	// Flush so a search issued after this call observes the new chunks.
	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to flush collection after insert: %w", err)
	}

	s.log.Info(fmt.Sprintf("Indexed %d chunks for policy %d", len(chunks), policyID))
	return nil
}

// DeleteByPolicy removes all chunks of the policy and waits for the deletion
// to become effective before returning. Callers rely on this ordering for
// document replacement: delete completes before new chunks are inserted.
func (s *MilvusStore) DeleteByPolicy(ctx context.Context, policyID int64) error {
	if err := s.client.Delete(ctx, s.collection, "", policyExpr(policyID)); err != nil {
		return fmt.Errorf("failed to delete chunks for policy %d: %w", policyID, err)
	}
	if err := s.client.Flush(ctx, s.collection, false); err != nil {
		return fmt.Errorf("failed to flush collection after delete: %w", err)
	}

	s.log.Info(fmt.Sprintf("Deleted chunks for policy %d", policyID))
	return nil
}

// Stats reports the total number of indexed chunks.
func (s *MilvusStore) Stats(ctx context.Context) (schema.IndexStats, error) {
	stats, err := s.client.GetCollectionStatistics(ctx, s.collection)
	if err != nil {
		return schema.IndexStats{}, fmt.Errorf("failed to get collection statistics: %w", err)
	}
	total, _ := strconv.ParseInt(stats["row_count"], 10, 64)
	return schema.IndexStats{TotalChunks: total}, nil
}

// compile-time check to ensure MilvusStore implements the VectorStore interface
var _ interfaces.VectorStore = (*MilvusStore)(nil)
