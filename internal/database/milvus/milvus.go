package milvus

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/milvus-io/milvus-sdk-go/v2/client"
	"github.com/milvus-io/milvus-sdk-go/v2/entity"

	"policyhub/internal/config"
)

var (
	instance *MilvusClient
	once     sync.Once
	initErr  error
)

// MilvusClient bundles the Milvus SDK client with its configuration.
type MilvusClient struct {
	Client client.Client
	Config *config.MilvusConfig
}

// GetClient creates and returns a singleton Milvus client instance.
func GetClient(ctx context.Context, cfg *config.MilvusConfig) (*MilvusClient, error) {
	once.Do(func() {
		c, err := client.NewClient(ctx, client.Config{Address: cfg.Address})
		if err != nil {
			initErr = fmt.Errorf("unable to connect to Milvus: %w", err)
			return
		}
		log.Println("✅ Connected to Milvus!")
		instance = &MilvusClient{Client: c, Config: cfg}
	})
	return instance, initErr
}

// Collection field names for the policy chunk collection. The vector store
// adapter filters and reads these, so they are defined alongside the schema.
const (
	FieldID            = "id"
	FieldChunk         = "chunk"
	FieldEmbedding     = "embedding"
	FieldPolicyID      = "policy_id"
	FieldPolicyName    = "policy_name"
	FieldTitle         = "title"
	FieldCategory      = "category"
	FieldChunkIndex    = "chunk_index"
	FieldTotalChunks   = "total_chunks"
	FieldEffectiveDate = "effective_date"
)

// EnsureCollection creates the policy chunk collection and its vector index
// if they do not exist yet, then loads the collection for searching.
func (c *MilvusClient) EnsureCollection(ctx context.Context) error {
	collName := c.Config.CollectionName

	has, err := c.Client.HasCollection(ctx, collName)
	if err != nil {
		return fmt.Errorf("failed to check collection '%s': %w", collName, err)
	}

	if !has {
		schema := entity.NewSchema().
			WithName(collName).
			WithDescription("Policy document chunks with embeddings").
			WithField(entity.NewField().WithName(FieldID).WithDataType(entity.FieldTypeVarChar).WithMaxLength(128).WithIsPrimaryKey(true)).
			WithField(entity.NewField().WithName(FieldChunk).WithDataType(entity.FieldTypeVarChar).WithMaxLength(65535)).
			WithField(entity.NewField().WithName(FieldEmbedding).WithDataType(entity.FieldTypeFloatVector).WithDim(int64(c.Config.Dim))).
			WithField(entity.NewField().WithName(FieldPolicyID).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldPolicyName).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(FieldTitle).WithDataType(entity.FieldTypeVarChar).WithMaxLength(512)).
			WithField(entity.NewField().WithName(FieldCategory).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64)).
			WithField(entity.NewField().WithName(FieldChunkIndex).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldTotalChunks).WithDataType(entity.FieldTypeInt64)).
			WithField(entity.NewField().WithName(FieldEffectiveDate).WithDataType(entity.FieldTypeVarChar).WithMaxLength(64))

		if err := c.Client.CreateCollection(ctx, schema, 2); err != nil {
			return fmt.Errorf("failed to create collection '%s': %w", collName, err)
		}

		idx, err := entity.NewIndexIvfFlat(entity.L2, c.Config.NList)
		if err != nil {
			return fmt.Errorf("failed to build IVF_FLAT index definition: %w", err)
		}
		if err := c.Client.CreateIndex(ctx, collName, FieldEmbedding, idx, false); err != nil {
			return fmt.Errorf("failed to create index on '%s': %w", collName, err)
		}
		log.Printf("✅ Created collection '%s' with IVF_FLAT index.", collName)
	}

	if err := c.Client.LoadCollection(ctx, collName, false); err != nil {
		return fmt.Errorf("failed to load collection '%s': %w", collName, err)
	}
	return nil
}

// HealthCheck verifies the Milvus connection by listing collections.
func (c *MilvusClient) HealthCheck(ctx context.Context) error {
	if c.Client == nil {
		return fmt.Errorf("milvus client is nil")
	}
	if _, err := c.Client.ListCollections(ctx); err != nil {
		return fmt.Errorf("milvus health check failed: %w", err)
	}
	return nil
}

// Close safely closes the Milvus connection.
func (c *MilvusClient) Close() {
	if c.Client != nil {
		c.Client.Close()
		log.Println("ℹ️ Milvus connection closed.")
	}
}
