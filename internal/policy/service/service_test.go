package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"policyhub/internal/assistant/schema"
	"policyhub/internal/assistant/splitters"
	"policyhub/internal/models"
	"policyhub/pkg/logger"
)

// --- Fakes ---

type fakePolicyStore struct {
	policies map[int64]*models.Policy
	nextID   uint
}

func newFakePolicyStore() *fakePolicyStore {
	return &fakePolicyStore{policies: map[int64]*models.Policy{}, nextID: 1}
}

func (f *fakePolicyStore) Create(ctx context.Context, policy *models.Policy) error {
	policy.ID = f.nextID
	f.nextID++
	f.policies[int64(policy.ID)] = policy
	return nil
}

func (f *fakePolicyStore) GetByID(ctx context.Context, id int64) (*models.Policy, error) {
	return f.policies[id], nil
}

func (f *fakePolicyStore) List(ctx context.Context, category, search string, offset, limit int) ([]models.Policy, error) {
	var out []models.Policy
	for _, p := range f.policies {
		out = append(out, *p)
	}
	return out, nil
}

func (f *fakePolicyStore) Update(ctx context.Context, policy *models.Policy) error {
	f.policies[int64(policy.ID)] = policy
	return nil
}

func (f *fakePolicyStore) Delete(ctx context.Context, id int64) error {
	delete(f.policies, id)
	return nil
}

// fakeVectors is an in-memory vector index that records operation order.
type fakeVectors struct {
	docs map[int64][]schema.Document
	ops  []string

	deleteErr error
	upsertErr error

	lastUpsertChunks []string
	lastUpsertMeta   schema.ChunkMetadata
}

func newFakeVectors() *fakeVectors {
	return &fakeVectors{docs: map[int64][]schema.Document{}}
}

func (f *fakeVectors) Search(ctx context.Context, vector []float32, topK int, category string) ([]schema.Document, error) {
	var out []schema.Document
	for _, docs := range f.docs {
		for _, doc := range docs {
			if category != "" && doc.Metadata.Category != category {
				continue
			}
			out = append(out, doc)
		}
	}
	return out, nil
}

func (f *fakeVectors) Upsert(ctx context.Context, policyID int64, chunks []string, vectors [][]float32, meta schema.ChunkMetadata) error {
	f.ops = append(f.ops, "upsert")
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.lastUpsertChunks = chunks
	f.lastUpsertMeta = meta
	docs := make([]schema.Document, len(chunks))
	for i, chunk := range chunks {
		docs[i] = schema.Document{
			ID:       fmt.Sprintf("policy_%d_chunk_%d", policyID, i),
			Text:     chunk,
			Metadata: meta,
		}
	}
	f.docs[policyID] = docs
	return nil
}

func (f *fakeVectors) DeleteByPolicy(ctx context.Context, policyID int64) error {
	f.ops = append(f.ops, "delete")
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.docs, policyID)
	return nil
}

func (f *fakeVectors) Stats(ctx context.Context) (schema.IndexStats, error) {
	var total int64
	for _, docs := range f.docs {
		total += int64(len(docs))
	}
	return schema.IndexStats{TotalChunks: total}, nil
}

type fakeObjects struct {
	stored map[string][]byte
}

func newFakeObjects() *fakeObjects {
	return &fakeObjects{stored: map[string][]byte{}}
}

func (f *fakeObjects) Put(ctx context.Context, key string, content []byte, contentType string) error {
	f.stored[key] = content
	return nil
}

func (f *fakeObjects) Get(ctx context.Context, key string) ([]byte, error) {
	content, ok := f.stored[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return content, nil
}

func (f *fakeObjects) Remove(ctx context.Context, key string) error {
	delete(f.stored, key)
	return nil
}

func (f *fakeObjects) PresignedURL(ctx context.Context, key string, expiry time.Duration) (string, error) {
	return "https://objects.local/" + key, nil
}

type fakeEmbedder struct {
	batchErr error
	failOn   map[string]bool

	batchCalls  int
	singleCalls int
}

func (f *fakeEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	f.singleCalls++
	if f.failOn[text] {
		return nil, errors.New("embedding rejected")
	}
	return []float32{1}, nil
}

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.batchCalls++
	if f.batchErr != nil {
		return nil, f.batchErr
	}
	vectors := make([][]float32, len(texts))
	for i := range texts {
		vectors[i] = []float32{1}
	}
	return vectors, nil
}

// --- Helpers ---

// pdfUpload carries the PDF magic prefix so type detection selects the
// indexing path; the extracted text is stubbed separately.
func pdfUpload() *Upload {
	return &Upload{Filename: "doc.pdf", Content: []byte("%PDF-1.4 test document body")}
}

func newTestService() (*Service, *fakePolicyStore, *fakeVectors, *fakeObjects, *fakeEmbedder) {
	store := newFakePolicyStore()
	vectors := newFakeVectors()
	objects := newFakeObjects()
	embedder := &fakeEmbedder{}

	svc := NewService(store, vectors, embedder, objects, splitters.NewWordSplitter(2), logger.New("test", ""))
	svc.extractText = func(content []byte) []string {
		return []string{"alpha beta gamma delta"}
	}
	return svc, store, vectors, objects, embedder
}

func itPolicyInput() PolicyInput {
	return PolicyInput{
		Name:          "Remote Work",
		Category:      "it",
		Description:   "Remote work rules",
		EffectiveDate: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

// --- Create ---

func TestCreate_InvalidCategory(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	in := itPolicyInput()
	in.Category = "finance"
	if _, err := svc.Create(context.Background(), in, nil); err == nil {
		t.Error("Expected an error for an out-of-set category")
	}
}

func TestCreate_WithDocumentIndexes(t *testing.T) {
	svc, _, vectors, objects, _ := newTestService()

	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	wantKey := fmt.Sprintf("policies/policy_%d_doc.pdf", policy.ID)
	if policy.DocumentKey != wantKey {
		t.Errorf("Expected document key %q, but got %q", wantKey, policy.DocumentKey)
	}
	if _, ok := objects.stored[wantKey]; !ok {
		t.Error("Expected the document object to be stored")
	}
	if len(vectors.ops) != 1 || vectors.ops[0] != "upsert" {
		t.Fatalf("Expected a single upsert, but got %v", vectors.ops)
	}
	if len(vectors.lastUpsertChunks) != 2 {
		t.Errorf("Expected 2 chunks from the splitter, but got %v", vectors.lastUpsertChunks)
	}
	if vectors.lastUpsertMeta.Category != "it" || vectors.lastUpsertMeta.PolicyName != "Remote Work" {
		t.Errorf("Unexpected chunk metadata: %+v", vectors.lastUpsertMeta)
	}
}

func TestCreate_NonPDFStoredWithoutIndexing(t *testing.T) {
	svc, _, vectors, objects, _ := newTestService()

	upload := &Upload{Filename: "notes.txt", Content: []byte("plain text content")}
	policy, err := svc.Create(context.Background(), itPolicyInput(), upload)
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if !policy.HasDocument() {
		t.Error("Expected the document to be stored even without indexing")
	}
	if len(objects.stored) != 1 {
		t.Errorf("Expected one stored object, but got %d", len(objects.stored))
	}
	if len(vectors.ops) != 0 {
		t.Errorf("Expected no index operations for a non-PDF document, but got %v", vectors.ops)
	}
}

func TestCreate_IngestFailureKeepsRecord(t *testing.T) {
	svc, store, vectors, _, embedder := newTestService()
	embedder.batchErr = errors.New("provider down")
	embedder.failOn = map[string]bool{"alpha beta": true, "gamma delta": true}

	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Expected ingestion failure not to fail Create, but got %v", err)
	}
	if store.policies[int64(policy.ID)] == nil {
		t.Error("Expected the record to survive the ingestion failure")
	}
	if len(vectors.docs) != 0 {
		t.Error("Expected no indexed chunks when every embedding fails")
	}
}

// --- Update ---

func TestUpdate_ReplacementDeletesBeforeInsert(t *testing.T) {
	svc, _, vectors, _, _ := newTestService()
	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	vectors.ops = nil
	if _, err := svc.Update(context.Background(), int64(policy.ID), PolicyUpdate{}, pdfUpload()); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []string{"delete", "upsert"}
	if len(vectors.ops) != len(want) {
		t.Fatalf("Expected operations %v, but got %v", want, vectors.ops)
	}
	for i := range want {
		if vectors.ops[i] != want[i] {
			t.Fatalf("Expected operations %v, but got %v", want, vectors.ops)
		}
	}
}

func TestUpdate_ReplacementAbortsWhenDeleteFails(t *testing.T) {
	svc, _, vectors, _, _ := newTestService()
	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	oldKey := policy.DocumentKey

	vectors.ops = nil
	vectors.deleteErr = errors.New("collection unavailable")

	if _, err := svc.Update(context.Background(), int64(policy.ID), PolicyUpdate{}, pdfUpload()); err == nil {
		t.Fatal("Expected the replacement to abort when chunk deletion fails")
	}
	for _, op := range vectors.ops {
		if op == "upsert" {
			t.Error("Expected no new chunks to be inserted after a failed deletion")
		}
	}
	if len(vectors.docs[int64(policy.ID)]) == 0 {
		t.Error("Expected the old chunks to remain intact")
	}
	if updated, _ := svc.Get(context.Background(), int64(policy.ID)); updated.DocumentKey != oldKey {
		t.Errorf("Expected the old document key to remain, but got %q", updated.DocumentKey)
	}
}

func TestUpdate_CategoryChangeReindexes(t *testing.T) {
	svc, _, vectors, _, _ := newTestService()
	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if vectors.lastUpsertMeta.Category != "it" {
		t.Fatalf("Expected initial chunk category it, but got %q", vectors.lastUpsertMeta.Category)
	}

	vectors.ops = nil
	category := "hr"
	if _, err := svc.Update(context.Background(), int64(policy.ID), PolicyUpdate{Category: &category}, nil); err != nil {
		t.Fatalf("Update() error = %v", err)
	}

	want := []string{"delete", "upsert"}
	if len(vectors.ops) != len(want) || vectors.ops[0] != "delete" || vectors.ops[1] != "upsert" {
		t.Fatalf("Expected re-indexing operations %v, but got %v", want, vectors.ops)
	}
	if vectors.lastUpsertMeta.Category != "hr" {
		t.Errorf("Expected re-indexed chunks to carry the new category, but got %q", vectors.lastUpsertMeta.Category)
	}
}

func TestUpdate_FieldChangeWithoutDocumentDoesNotTouchIndex(t *testing.T) {
	svc, _, vectors, _, _ := newTestService()
	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	vectors.ops = nil
	name := "Remote Work v2"
	if _, err := svc.Update(context.Background(), int64(policy.ID), PolicyUpdate{Name: &name}, nil); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if len(vectors.ops) != 0 {
		t.Errorf("Expected no index operations for a name-only update, but got %v", vectors.ops)
	}
}

func TestUpdate_NotFound(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	policy, err := svc.Update(context.Background(), 404, PolicyUpdate{}, nil)
	if err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if policy != nil {
		t.Errorf("Expected nil for a missing policy, but got %+v", policy)
	}
}

// --- Delete ---

func TestDelete_LeavesNoChunks(t *testing.T) {
	svc, _, vectors, objects, _ := newTestService()
	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	deleted, err := svc.Delete(context.Background(), int64(policy.ID))
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if !deleted {
		t.Fatal("Expected the policy to be deleted")
	}

	docs, err := vectors.Search(context.Background(), []float32{1}, 10, "")
	if err != nil {
		t.Fatalf("Search() error = %v", err)
	}
	for _, doc := range docs {
		if doc.Metadata.PolicyID == int64(policy.ID) {
			t.Errorf("Expected no chunks for the deleted policy, but found %q", doc.ID)
		}
	}
	if len(objects.stored) != 0 {
		t.Errorf("Expected the document object to be removed, but %d remain", len(objects.stored))
	}
	if got, _ := svc.Get(context.Background(), int64(policy.ID)); got != nil {
		t.Error("Expected the record to be gone")
	}
}

func TestDelete_AbortsOnChunkDeletionFailure(t *testing.T) {
	svc, store, vectors, _, _ := newTestService()
	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	vectors.deleteErr = errors.New("collection unavailable")

	deleted, err := svc.Delete(context.Background(), int64(policy.ID))
	if err == nil {
		t.Fatal("Expected an error when chunk deletion fails")
	}
	if deleted {
		t.Error("Expected the deletion to be reported as not done")
	}
	if store.policies[int64(policy.ID)] == nil {
		t.Error("Expected the record to survive so no orphaned chunks exist")
	}
}

func TestDelete_NotFound(t *testing.T) {
	svc, _, vectors, _, _ := newTestService()

	deleted, err := svc.Delete(context.Background(), 404)
	if err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if deleted {
		t.Error("Expected false for a missing policy")
	}
	if len(vectors.ops) != 0 {
		t.Errorf("Expected no index operations, but got %v", vectors.ops)
	}
}

// --- Embedding behavior ---

func TestIndexContent_BatchHappyPath(t *testing.T) {
	svc, _, vectors, _, embedder := newTestService()

	if _, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if embedder.batchCalls != 1 {
		t.Errorf("Expected one batch embedding call, but got %d", embedder.batchCalls)
	}
	if embedder.singleCalls != 0 {
		t.Errorf("Expected no per-chunk calls on the batch path, but got %d", embedder.singleCalls)
	}
	if len(vectors.lastUpsertChunks) != 2 {
		t.Errorf("Expected both chunks indexed, but got %v", vectors.lastUpsertChunks)
	}
}

func TestIndexContent_BatchFailureSkipsBadChunks(t *testing.T) {
	svc, _, vectors, _, embedder := newTestService()
	embedder.batchErr = errors.New("batch quota exceeded")
	embedder.failOn = map[string]bool{"gamma delta": true}

	if _, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload()); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	if embedder.singleCalls != 2 {
		t.Errorf("Expected per-chunk retries for both chunks, but got %d calls", embedder.singleCalls)
	}
	if len(vectors.lastUpsertChunks) != 1 || vectors.lastUpsertChunks[0] != "alpha beta" {
		t.Errorf("Expected only the embeddable chunk to be indexed, but got %v", vectors.lastUpsertChunks)
	}
}

// --- Download ---

func TestDownloadURL(t *testing.T) {
	svc, _, _, _, _ := newTestService()

	policy, err := svc.Create(context.Background(), itPolicyInput(), pdfUpload())
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	url, err := svc.DownloadURL(context.Background(), policy)
	if err != nil {
		t.Fatalf("DownloadURL() error = %v", err)
	}
	if url == "" {
		t.Error("Expected a presigned URL for a policy with a document")
	}

	bare := &models.Policy{}
	if url, _ := svc.DownloadURL(context.Background(), bare); url != "" {
		t.Errorf("Expected no URL without a document, but got %q", url)
	}
}
