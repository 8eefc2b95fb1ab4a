package schema

import (
	"strings"

	"policyhub/internal/models"
)

// ChunkMetadata carries the named metadata fields attached to every indexed
// chunk. Typed fields replace the untyped metadata maps the vector backend
// speaks natively, so a misspelled key cannot silently drop a field.
type ChunkMetadata struct {
	PolicyID      int64
	PolicyName    string
	Title         string
	Category      string // always normalized: trimmed, lower-cased
	ChunkIndex    int
	TotalChunks   int
	EffectiveDate string
}

// Document is a retrievable unit of policy text: one chunk together with its
// embedding and metadata. It is the primary data carrier through the
// retrieval pipeline.
type Document struct {
	ID        string
	Text      string
	Embedding []float32
	Score     float32
	Metadata  ChunkMetadata
}

// IndexStats summarizes the state of the vector collection.
type IndexStats struct {
	TotalChunks int64
}

// Intent labels for a user question.
const (
	IntentListPolicies     = "list_policies"
	IntentGetPolicyDetails = "get_policy_details"
	IntentSearchPolicies   = "search_policies"
	IntentGeneralQuery     = "general_query"
)

// Confidence levels for an extracted intent hint.
const (
	ConfidenceHigh   = "high"
	ConfidenceMedium = "medium"
	ConfidenceLow    = "low"
)

// IntentHint is the structured hint set extracted from a user question.
// It is ephemeral, produced once per question and never persisted.
type IntentHint struct {
	PolicyNames []string `json:"policy_names"`
	Categories  []string `json:"categories"`
	Intent      string   `json:"intent"`
	Confidence  string   `json:"confidence"`
}

// DefaultHint returns the all-defaults low-confidence hint used when
// extraction cannot produce anything better.
func DefaultHint() IntentHint {
	return IntentHint{
		PolicyNames: []string{},
		Categories:  []string{},
		Intent:      IntentGeneralQuery,
		Confidence:  ConfidenceLow,
	}
}

// ChatAnswer is the responder's final output for one question.
type ChatAnswer struct {
	Response         string                  `json:"response"`
	RelevantPolicies []models.PolicyResponse `json:"relevant_policies"`
	ContextUsed      string                  `json:"context_used"`
	Success          bool                    `json:"success"`
	Intent           IntentHint              `json:"validation_info"`
	// Error carries the machine-readable detail on the catch-all failure
	// path; it is empty on every degraded-but-successful path.
	Error string `json:"error,omitempty"`
}

// NormalizeCategory trims and lower-cases a category string. It does not
// validate membership in the closed set.
func NormalizeCategory(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// ResolveFilter normalizes a requested category filter. It returns the
// normalized category, or "" when the request carries no usable filter:
// empty, "all", or a value outside the closed category set.
func ResolveFilter(requested string) string {
	norm := NormalizeCategory(requested)
	if norm == "" || norm == "all" {
		return ""
	}
	if !models.IsValidCategory(norm) {
		return ""
	}
	return norm
}
