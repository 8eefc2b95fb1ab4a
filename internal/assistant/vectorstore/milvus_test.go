package vectorstore

import (
	"context"
	"testing"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"policyhub/internal/database/milvus"
	"policyhub/pkg/logger"
)

func TestChunkID(t *testing.T) {
	if got := chunkID(42, 3); got != "policy_42_chunk_3" {
		t.Errorf("Expected policy_42_chunk_3, but got %q", got)
	}
}

func TestPolicyExpr(t *testing.T) {
	if got := policyExpr(7); got != "policy_id == 7" {
		t.Errorf("Expected policy_id == 7, but got %q", got)
	}
}

func TestCategoryExpr(t *testing.T) {
	if got := categoryExpr(""); got != "" {
		t.Errorf("Expected empty expression for no filter, but got %q", got)
	}
	if got := categoryExpr("IT"); got != `category == "it"` {
		t.Errorf("Expected normalized equality expression, but got %q", got)
	}
}

func TestSearch_DimensionMismatch(t *testing.T) {
	// No client needed: the dimension check short-circuits before any call.
	s := &MilvusStore{log: logger.New("test", ""), dim: 768}

	docs, err := s.Search(context.Background(), []float32{0.1, 0.2}, 10, "")
	if err != nil {
		t.Fatalf("Expected no error for a mismatched vector, but got %v", err)
	}
	if len(docs) != 0 {
		t.Errorf("Expected zero results, but got %d", len(docs))
	}
}

func TestDocumentsFromResults(t *testing.T) {
	results := []client.SearchResult{
		{
			ResultCount: 2,
			Scores:      []float32{0.12, 0.34},
			Fields: []entity.Column{
				entity.NewColumnVarChar(milvus.FieldID, []string{"policy_1_chunk_0", "policy_2_chunk_1"}),
				entity.NewColumnVarChar(milvus.FieldChunk, []string{"first chunk", "second chunk"}),
				entity.NewColumnInt64(milvus.FieldPolicyID, []int64{1, 2}),
				entity.NewColumnVarChar(milvus.FieldPolicyName, []string{"Remote Work", "Annual Leave"}),
				entity.NewColumnVarChar(milvus.FieldTitle, []string{"remote.pdf", "leave.pdf"}),
				entity.NewColumnVarChar(milvus.FieldCategory, []string{"IT", "leave"}),
				entity.NewColumnInt64(milvus.FieldChunkIndex, []int64{0, 1}),
				entity.NewColumnInt64(milvus.FieldTotalChunks, []int64{3, 2}),
			},
		},
	}

	docs := documentsFromResults(results, logger.New("test", ""))

	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, but got %d", len(docs))
	}
	first := docs[0]
	if first.ID != "policy_1_chunk_0" || first.Text != "first chunk" {
		t.Errorf("Unexpected first document: %+v", first)
	}
	if first.Metadata.PolicyID != 1 || first.Metadata.PolicyName != "Remote Work" {
		t.Errorf("Unexpected first metadata: %+v", first.Metadata)
	}
	if first.Metadata.Category != "it" {
		t.Errorf("Expected category normalized to lower case, but got %q", first.Metadata.Category)
	}
	if first.Metadata.ChunkIndex != 0 || first.Metadata.TotalChunks != 3 {
		t.Errorf("Unexpected chunk position metadata: %+v", first.Metadata)
	}
	if first.Score != 0.12 {
		t.Errorf("Expected score 0.12, but got %v", first.Score)
	}
	if docs[1].Metadata.PolicyID != 2 || docs[1].Metadata.Category != "leave" {
		t.Errorf("Unexpected second document metadata: %+v", docs[1].Metadata)
	}
}

func TestDocumentsFromResults_MissingIDColumn(t *testing.T) {
	results := []client.SearchResult{
		{
			ResultCount: 1,
			Fields: []entity.Column{
				entity.NewColumnVarChar(milvus.FieldChunk, []string{"orphan chunk"}),
			},
		},
	}

	docs := documentsFromResults(results, logger.New("test", ""))
	if len(docs) != 0 {
		t.Errorf("Expected results without an ID column to be skipped, but got %d documents", len(docs))
	}
}

func TestDocumentsFromResults_ShortColumns(t *testing.T) {
	// A backend bug could return columns shorter than ResultCount; the
	// accessors must not panic and missing values default to zero.
	results := []client.SearchResult{
		{
			ResultCount: 2,
			Fields: []entity.Column{
				entity.NewColumnVarChar(milvus.FieldID, []string{"policy_1_chunk_0", "policy_1_chunk_1"}),
				entity.NewColumnVarChar(milvus.FieldChunk, []string{"only one"}),
				entity.NewColumnInt64(milvus.FieldPolicyID, []int64{1}),
			},
		},
	}

	docs := documentsFromResults(results, logger.New("test", ""))
	if len(docs) != 2 {
		t.Fatalf("Expected 2 documents, but got %d", len(docs))
	}
	if docs[1].Text != "" || docs[1].Metadata.PolicyID != 0 {
		t.Errorf("Expected zero values for missing column entries, but got %+v", docs[1])
	}
}
