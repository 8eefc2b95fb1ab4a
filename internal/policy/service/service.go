package service

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/url"
	"path/filepath"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/minio/minio-go/v7"

	"policyhub/internal/assistant/interfaces"
	"policyhub/internal/assistant/loaders"
	"policyhub/internal/assistant/schema"
	"policyhub/internal/assistant/splitters"
	"policyhub/internal/embedding"
	"policyhub/internal/models"
	"policyhub/pkg/logger"
)

const presignExpiry = 15 * time.Minute

// PolicyStore is the mutable catalog interface the service depends on.
type PolicyStore interface {
	interfaces.PolicyCatalog
	Create(ctx context.Context, policy *models.Policy) error
	Update(ctx context.Context, policy *models.Policy) error
	Delete(ctx context.Context, id int64) error
}

// ObjectStore abstracts the document object backend.
type ObjectStore interface {
	Put(ctx context.Context, key string, content []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error)
}

// MinIOObjects adapts a MinIO client and bucket to the ObjectStore interface.
type MinIOObjects struct {
	client *minio.Client
	bucket string
}

// NewMinIOObjects creates a MinIOObjects adapter.
func NewMinIOObjects(client *minio.Client, bucket string) *MinIOObjects {
	return &MinIOObjects{client: client, bucket: bucket}
}

func (o *MinIOObjects) Put(ctx context.Context, key string, content []byte, contentType string) error {
	_, err := o.client.PutObject(ctx, o.bucket, key,
		bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: contentType})
	return err
}

func (o *MinIOObjects) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := o.client.GetObject(ctx, o.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return io.ReadAll(obj)
}

func (o *MinIOObjects) Remove(ctx context.Context, key string) error {
	return o.client.RemoveObject(ctx, o.bucket, key, minio.RemoveObjectOptions{})
}

func (o *MinIOObjects) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	u, err := o.client.PresignedGetObject(ctx, o.bucket, key, expiry, url.Values{})
	if err != nil {
		return "", err
	}
	return u.String(), nil
}

var _ ObjectStore = (*MinIOObjects)(nil)

// PolicyInput carries the fields for creating a policy.
type PolicyInput struct {
	Name          string
	Category      string
	Description   string
	EffectiveDate time.Time
}

// PolicyUpdate carries the optional fields for updating a policy.
type PolicyUpdate struct {
	Name          *string
	Category      *string
	Description   *string
	EffectiveDate *time.Time
}

// Upload is an uploaded policy document.
type Upload struct {
	Filename string
	Content  []byte
}

// Service owns the policy lifecycle: catalog records, document objects, and
// the vector index entries derived from them. It is the only writer of the
// vector index.
type Service struct {
	store    PolicyStore
	vectors  interfaces.VectorStore
	embedder embedding.Embedding
	objects  ObjectStore
	splitter *splitters.WordSplitter
	log      *logger.Logger

	extractText func(content []byte) []string
}

// NewService creates the policy service.
func NewService(
	st PolicyStore,
	vectors interfaces.VectorStore,
	embedder embedding.Embedding,
	objects ObjectStore,
	splitter *splitters.WordSplitter,
	log *logger.Logger,
) *Service {
	return &Service{
		store:       st,
		vectors:     vectors,
		embedder:    embedder,
		objects:     objects,
		splitter:    splitter,
		log:         log,
		extractText: loaders.ExtractPDFText,
	}
}

// Create inserts a new policy and, when a document is attached, stores and
// indexes it. Indexing failures are logged but do not roll back the record:
// a policy may exist without searchable content.
func (s *Service) Create(ctx context.Context, in PolicyInput, upload *Upload) (*models.Policy, error) {
	category := schema.NormalizeCategory(in.Category)
	if !models.IsValidCategory(category) {
		return nil, fmt.Errorf("invalid policy category %q", in.Category)
	}

	policy := &models.Policy{
		Name:          in.Name,
		Category:      models.PolicyCategory(category),
		Description:   in.Description,
		EffectiveDate: in.EffectiveDate,
	}
	if err := s.store.Create(ctx, policy); err != nil {
		return nil, err
	}

	if upload != nil {
		if err := s.ingestDocument(ctx, policy, upload); err != nil {
			s.log.Error(fmt.Sprintf("Failed to ingest document for policy %d: %v", policy.ID, err))
		}
	}

	s.log.Info(fmt.Sprintf("Created policy %d (%s)", policy.ID, policy.Name))
	return policy, nil
}

// Get returns a single policy, or nil when it does not exist.
func (s *Service) Get(ctx context.Context, id int64) (*models.Policy, error) {
	return s.store.GetByID(ctx, id)
}

// List returns policies matching the optional category and search text.
func (s *Service) List(ctx context.Context, category, search string, offset, limit int) ([]models.Policy, error) {
	return s.store.List(ctx, category, search, offset, limit)
}

// Update applies field changes and handles document replacement. When a new
// document is attached, the old chunks are deleted to completion before the
// new ones are inserted, so no search observes a mixed state. When only the
// category changes on a policy with an indexed document, the document is
// re-indexed so chunk metadata stays in agreement with the record.
func (s *Service) Update(ctx context.Context, id int64, update PolicyUpdate, upload *Upload) (*models.Policy, error) {
	policy, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if policy == nil {
		return nil, nil
	}

	categoryChanged := false
	if update.Name != nil {
		policy.Name = *update.Name
	}
	if update.Category != nil {
		category := schema.NormalizeCategory(*update.Category)
		if !models.IsValidCategory(category) {
			return nil, fmt.Errorf("invalid policy category %q", *update.Category)
		}
		categoryChanged = policy.Category != models.PolicyCategory(category)
		policy.Category = models.PolicyCategory(category)
	}
	if update.Description != nil {
		policy.Description = *update.Description
	}
	if update.EffectiveDate != nil {
		policy.EffectiveDate = *update.EffectiveDate
	}
	if err := s.store.Update(ctx, policy); err != nil {
		return nil, err
	}

	switch {
	case upload != nil:
		// Replacement: old chunks must be gone before new ones appear.
		if err := s.vectors.DeleteByPolicy(ctx, id); err != nil {
			return nil, fmt.Errorf("failed to remove old chunks before replacement: %w", err)
		}
		if policy.HasDocument() {
			if err := s.objects.Remove(ctx, policy.DocumentKey); err != nil {
				s.log.Warn(fmt.Sprintf("Failed to remove old document object for policy %d: %v", id, err))
			}
		}
		if err := s.ingestDocument(ctx, policy, upload); err != nil {
			s.log.Error(fmt.Sprintf("Failed to ingest replacement document for policy %d: %v", id, err))
		}
	case categoryChanged && policy.HasDocument():
		if err := s.reindexFromStored(ctx, policy); err != nil {
			s.log.Error(fmt.Sprintf("Failed to re-index policy %d after category change: %v", id, err))
		}
	}

	s.log.Info(fmt.Sprintf("Updated policy %d (%s)", policy.ID, policy.Name))
	return policy, nil
}

// Delete removes a policy, its document object, and all of its vector index
// entries. The chunk deletion is awaited to completion before the record is
// removed; a chunk-deletion failure aborts the whole operation so no
// orphaned chunks can survive.
func (s *Service) Delete(ctx context.Context, id int64) (bool, error) {
	policy, err := s.store.GetByID(ctx, id)
	if err != nil {
		return false, err
	}
	if policy == nil {
		return false, nil
	}

	if err := s.vectors.DeleteByPolicy(ctx, id); err != nil {
		return false, err
	}

	if policy.HasDocument() {
		if err := s.objects.Remove(ctx, policy.DocumentKey); err != nil {
			s.log.Warn(fmt.Sprintf("Failed to remove document object for policy %d: %v", id, err))
		}
	}

	if err := s.store.Delete(ctx, id); err != nil {
		return false, err
	}

	s.log.Info(fmt.Sprintf("Deleted policy %d (%s)", id, policy.Name))
	return true, nil
}

// DownloadURL returns a presigned URL for the policy's document object, or
// "" when no document is attached.
func (s *Service) DownloadURL(ctx context.Context, policy *models.Policy) (string, error) {
	if !policy.HasDocument() {
		return "", nil
	}
	u, err := s.objects.PresignedURL(ctx, policy.DocumentKey, presignExpiry)
	if err != nil {
		return "", fmt.Errorf("failed to presign download for policy %d: %w", policy.ID, err)
	}
	return u, nil
}

// ingestDocument stores the uploaded file and indexes its text. Only PDF
// documents are indexed; other types are stored without searchable content.
func (s *Service) ingestDocument(ctx context.Context, policy *models.Policy, upload *Upload) error {
	mtype := mimetype.Detect(upload.Content)

	key := fmt.Sprintf("policies/policy_%d_%s", policy.ID, filepath.Base(upload.Filename))
	if err := s.objects.Put(ctx, key, upload.Content, mtype.String()); err != nil {
		return fmt.Errorf("failed to store document object: %w", err)
	}

	policy.DocumentKey = key
	if err := s.store.Update(ctx, policy); err != nil {
		return err
	}

	if !mtype.Is("application/pdf") {
		s.log.Warn(fmt.Sprintf("Document for policy %d has unsupported type %s; stored without indexing", policy.ID, mtype.String()))
		return nil
	}

	return s.indexContent(ctx, policy, upload.Content)
}

// reindexFromStored re-chunks and re-embeds the stored document object with
// the policy's current metadata, delete-then-insert.
func (s *Service) reindexFromStored(ctx context.Context, policy *models.Policy) error {
	content, err := s.objects.Get(ctx, policy.DocumentKey)
	if err != nil {
		return fmt.Errorf("failed to fetch stored document: %w", err)
	}

	if err := s.vectors.DeleteByPolicy(ctx, int64(policy.ID)); err != nil {
		return err
	}
	return s.indexContent(ctx, policy, content)
}

// indexContent extracts, chunks, embeds, and upserts a PDF document's text.
// The whole batch is embedded in one call when possible; on a batch failure
// each chunk is retried individually so a single bad chunk is skipped rather
// than failing the document.
func (s *Service) indexContent(ctx context.Context, policy *models.Policy, content []byte) error {
	pages := s.extractText(content)
	chunks := s.splitter.SplitAll(pages)
	if len(chunks) == 0 {
		s.log.Warn(fmt.Sprintf("No text extracted from document for policy %d", policy.ID))
		return nil
	}

	kept, vectors := s.embedChunks(ctx, policy, chunks)
	if len(kept) == 0 {
		return fmt.Errorf("no chunks could be embedded")
	}

	meta := schema.ChunkMetadata{
		PolicyID:      int64(policy.ID),
		PolicyName:    policy.Name,
		Category:      string(policy.Category),
		EffectiveDate: policy.EffectiveDate.Format(time.RFC3339),
	}
	if err := s.vectors.Upsert(ctx, int64(policy.ID), kept, vectors, meta); err != nil {
		return err
	}

	s.log.Info(fmt.Sprintf("Indexed %d of %d chunks for policy %d", len(kept), len(chunks), policy.ID))
	return nil
}

func (s *Service) embedChunks(ctx context.Context, policy *models.Policy, chunks []string) ([]string, [][]float32) {
	if vectors, err := s.embedder.EmbedBatch(ctx, chunks); err == nil && len(vectors) == len(chunks) {
		return chunks, vectors
	} else if err != nil {
		s.log.Warn(fmt.Sprintf("Batch embedding failed for policy %d, retrying per chunk: %v", policy.ID, err))
	}

	kept := make([]string, 0, len(chunks))
	vectors := make([][]float32, 0, len(chunks))
	for i, chunk := range chunks {
		vec, err := s.embedder.Embed(ctx, chunk)
		if err != nil {
			s.log.Warn(fmt.Sprintf("Failed to embed chunk %d of policy %d: %v", i, policy.ID, err))
			continue
		}
		kept = append(kept, chunk)
		vectors = append(vectors, vec)
	}
	return kept, vectors
}
