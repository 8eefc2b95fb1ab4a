package responder

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"policyhub/internal/assistant/interfaces"
	"policyhub/internal/assistant/intent"
	"policyhub/internal/assistant/schema"
	"policyhub/internal/models"
	"policyhub/pkg/logger"
)

// Context-used descriptions for the degraded paths. These are part of the
// API surface: clients display them, and callers distinguish degradation
// modes by them in logs.
const (
	contextEmbeddingFailed = "Embedding failed; returned fallback results"
	contextSearchFailed    = "Vector search failed; returned fallback results"
	contextGenerateFailed  = "Answer generation failed; returned fallback results"
	contextNoSections      = "No matching sections after filtering"
	contextNoContent       = "No specific document content found; returned general policy information"
)

const (
	catchAllMessage = "I apologize, but I encountered an error while processing your request. " +
		"Please try again or contact support if the issue persists."
	catalogUnavailableMessage = "I apologize, but I couldn't retrieve policy information at this time. " +
		"Please try again later."
	emptyAnswerMessage = "I couldn't find an answer to your question in the policy documents. " +
		"Please try rephrasing or ask about a specific policy."
)

// noAnswerRe matches the refusal phrasings the completion model produces when
// the answer is not in the provided context.
var noAnswerRe = regexp.MustCompile(`(?i)(can't|cannot|could not) find` +
	`|no (answer|information)` +
	`|not (available|present)` +
	`|insufficient (context|information)` +
	`|i don't have` +
	`|outside the provided context`)

// Options tunes the responder's retrieval and fallback behavior.
type Options struct {
	// TopK is the maximum number of chunks retrieved per question.
	TopK int
	// FallbackLimit is the maximum number of policies enumerated in a
	// fallback answer.
	FallbackLimit int
	// DisableAutoNarrow stops a single inline category mention from
	// overriding an explicit "all" filter selection.
	DisableAutoNarrow bool
	// ProviderTimeout bounds each embed/complete call. Zero means no bound.
	ProviderTimeout time.Duration
}

// Responder orchestrates the retrieval-augmented answer pipeline: intent
// extraction, query embedding, vector retrieval, catalog enrichment, answer
// generation, and the fallback/synthesis degradation paths. Every step's
// failure degrades into a usable answer; only an unexpected internal error
// reports success=false.
type Responder struct {
	embedder  interfaces.EmbeddingModel
	completer interfaces.CompletionModel
	store     interfaces.VectorStore
	catalog   interfaces.PolicyCatalog
	opts      Options
	log       *logger.Logger
}

// NewResponder creates a Responder. Zero option values fall back to the
// documented defaults (topK 10, fallback limit 5).
func NewResponder(
	embedder interfaces.EmbeddingModel,
	completer interfaces.CompletionModel,
	store interfaces.VectorStore,
	catalog interfaces.PolicyCatalog,
	opts Options,
	log *logger.Logger,
) *Responder {
	if opts.TopK <= 0 {
		opts.TopK = 10
	}
	if opts.FallbackLimit <= 0 {
		opts.FallbackLimit = 5
	}
	return &Responder{
		embedder:  embedder,
		completer: completer,
		store:     store,
		catalog:   catalog,
		opts:      opts,
		log:       log,
	}
}

// Answer runs the full pipeline for one question. requestedCategory is
// either ""/"all" (no filter) or one of the closed category set; anything
// else is treated as no filter.
func (r *Responder) Answer(ctx context.Context, question, requestedCategory string) (answer schema.ChatAnswer) {
	// The catch-all path is the only one allowed to report failure.
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error(fmt.Sprintf("Unexpected error in answer pipeline: %v", rec))
			answer = schema.ChatAnswer{
				Response:         catchAllMessage,
				RelevantPolicies: []models.PolicyResponse{},
				Success:          false,
				Intent:           schema.DefaultHint(),
				Error:            fmt.Sprint(rec),
			}
		}
	}()

	r.log.Info(fmt.Sprintf("Processing chat request: %s", truncate(question, 100)))

	// Step 1: intent extraction. Never fails.
	hint := intent.Extract(question)

	// Step 2: effective category resolution.
	category := r.effectiveCategory(requestedCategory, hint)

	// Step 3: query embedding.
	vector, err := r.embed(ctx, question)
	if err != nil {
		r.log.Error(fmt.Sprintf("Embedding failed: %v", err))
		return r.fallback(ctx, hint, category, contextEmbeddingFailed)
	}

	// Step 4: vector retrieval.
	docs, err := r.store.Search(ctx, vector, r.opts.TopK, category)
	if err != nil {
		r.log.Error(fmt.Sprintf("Vector search failed: %v", err))
		return r.fallback(ctx, hint, category, contextSearchFailed)
	}

	// Guard against a retrieval backend that ignores the filter.
	if category != "" {
		docs = filterByCategory(docs, category)
	}
	if len(docs) == 0 {
		if category != "" {
			return r.fallback(ctx, hint, category, contextNoSections)
		}
		return r.fallback(ctx, hint, category, contextNoContent)
	}

	// Step 5: context assembly and answer generation.
	policies := r.resolvePolicies(ctx, docs)
	contextBlock := buildContextBlock(policies, docs)
	if strings.TrimSpace(contextBlock) == "" {
		return r.fallback(ctx, hint, category, contextNoSections)
	}

	contextUsed := fmt.Sprintf("Found %d relevant document sections", len(docs))
	if category != "" {
		contextUsed += fmt.Sprintf(" (filtered by category %q)", category)
	}

	text, err := r.complete(ctx, question, contextBlock)
	if err != nil {
		r.log.Error(fmt.Sprintf("Answer generation failed: %v", err))
		return r.fallback(ctx, hint, category, contextGenerateFailed)
	}

	if noAnswerRe.MatchString(text) {
		// The model refused; synthesize a deterministic answer from the
		// retrieved chunks instead of echoing the refusal.
		r.log.Info("Completion refused to answer; using deterministic synthesis")
		if synthesized := Synthesize(docs); synthesized != "" {
			text = synthesized
		}
	}
	if strings.TrimSpace(text) == "" {
		text = emptyAnswerMessage
	}

	return schema.ChatAnswer{
		Response:         text,
		RelevantPolicies: policies,
		ContextUsed:      contextUsed,
		Success:          true,
		Intent:           hint,
	}
}

// effectiveCategory resolves the search filter: an explicit valid category
// wins; otherwise a single unambiguous inline mention narrows the search,
// unless the caller said "all" and auto-narrowing is disabled.
func (r *Responder) effectiveCategory(requested string, hint schema.IntentHint) string {
	if filter := schema.ResolveFilter(requested); filter != "" {
		return filter
	}

	if len(hint.Categories) == 1 {
		if schema.NormalizeCategory(requested) == "all" && r.opts.DisableAutoNarrow {
			return ""
		}
		return hint.Categories[0]
	}
	return ""
}

func (r *Responder) embed(ctx context.Context, question string) ([]float32, error) {
	ctx, cancel := r.providerContext(ctx)
	defer cancel()
	return r.embedder.Embed(ctx, question)
}

func (r *Responder) complete(ctx context.Context, question, contextBlock string) (string, error) {
	ctx, cancel := r.providerContext(ctx)
	defer cancel()
	return r.completer.Complete(ctx, question, contextBlock)
}

// providerContext bounds slow out-of-process provider calls so a hung
// provider degrades to fallback instead of stalling the request.
func (r *Responder) providerContext(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.opts.ProviderTimeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, r.opts.ProviderTimeout)
}

// filterByCategory re-checks each chunk's normalized category metadata
// against the effective filter.
func filterByCategory(docs []schema.Document, category string) []schema.Document {
	filtered := docs[:0]
	for _, doc := range docs {
		if schema.NormalizeCategory(doc.Metadata.Category) == category {
			filtered = append(filtered, doc)
		}
	}
	return filtered
}

// resolvePolicies deduplicates the retrieved chunks' policy ids in
// first-seen order and looks each up in the catalog. Ids that no longer
// resolve are skipped: a policy may have been deleted between indexing and
// query time.
func (r *Responder) resolvePolicies(ctx context.Context, docs []schema.Document) []models.PolicyResponse {
	policies := []models.PolicyResponse{}
	seen := make(map[int64]struct{})
	for _, doc := range docs {
		id := doc.Metadata.PolicyID
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}

		policy, err := r.catalog.GetByID(ctx, id)
		if err != nil {
			r.log.Warn(fmt.Sprintf("Failed to look up policy %d: %v", id, err))
			continue
		}
		if policy == nil {
			continue
		}
		policies = append(policies, models.NewPolicyResponse(policy))
	}
	return policies
}

// buildContextBlock concatenates the resolved policies' description lines
// followed by the chunk texts in retrieval order, blank-line separated.
func buildContextBlock(policies []models.PolicyResponse, docs []schema.Document) string {
	parts := make([]string, 0, len(policies)+len(docs))
	for _, p := range policies {
		parts = append(parts, fmt.Sprintf("%s (%s): %s", p.Name, p.Category, p.Description))
	}
	for _, doc := range docs {
		if strings.TrimSpace(doc.Text) == "" {
			continue
		}
		parts = append(parts, doc.Text)
	}
	return strings.Join(parts, "\n\n")
}

// fallback answers from the catalog alone when retrieval or generation is
// unavailable. This path always reports success: the user always receives a
// usable answer.
func (r *Responder) fallback(ctx context.Context, hint schema.IntentHint, category, contextUsed string) schema.ChatAnswer {
	policies, err := r.catalog.List(ctx, category, "", 0, r.opts.FallbackLimit)
	if err != nil {
		r.log.Error(fmt.Sprintf("Failed to list policies for fallback: %v", err))
		return schema.ChatAnswer{
			Response:         catalogUnavailableMessage,
			RelevantPolicies: []models.PolicyResponse{},
			ContextUsed:      contextUsed,
			Success:          true,
			Intent:           hint,
		}
	}

	responses := make([]models.PolicyResponse, 0, len(policies))
	for i := range policies {
		responses = append(responses, models.NewPolicyResponse(&policies[i]))
	}

	var sb strings.Builder
	if len(policies) > 0 {
		sb.WriteString(fmt.Sprintf("I found %d policies that might be relevant to your query. ", len(policies)))
		if category != "" {
			sb.WriteString(fmt.Sprintf("These are %s policies. ", category))
		}
		sb.WriteString("Here are the available policies:\n\n")
		for _, p := range responses {
			sb.WriteString(fmt.Sprintf("• **%s** (%s): %s\n", p.Name, strings.ToUpper(p.Category), p.Description))
		}
		sb.WriteString("\nFor more specific information, please ask about a particular policy or provide more details.")
	} else {
		if category != "" {
			sb.WriteString(fmt.Sprintf("I couldn't find any %s policies matching your query. ", category))
		} else {
			sb.WriteString("I couldn't find any policies matching your query. ")
		}
		sb.WriteString("Please try rephrasing your question or check if the policy name is correct.")
	}

	return schema.ChatAnswer{
		Response:         sb.String(),
		RelevantPolicies: responses,
		ContextUsed:      contextUsed,
		Success:          true,
		Intent:           hint,
	}
}

func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n]) + "..."
}
