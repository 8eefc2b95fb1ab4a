package api

import (
	"context"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"policyhub/internal/assistant/schema"
	"policyhub/internal/models"
	"policyhub/internal/policy/service"
	"policyhub/pkg/logger"
)

// Assistant is the chat surface the handlers depend on.
type Assistant interface {
	Chat(ctx context.Context, question, category string) schema.ChatAnswer
	SearchByName(ctx context.Context, query string) ([]models.PolicyResponse, error)
	Health(ctx context.Context) (schema.IndexStats, error)
}

// ComponentCheck reports whether one backing component is reachable.
type ComponentCheck func(ctx context.Context) error

// Handler holds the handler functions for every API endpoint.
type Handler struct {
	policies  *service.Service
	assistant Assistant
	checks    map[string]ComponentCheck
	log       *logger.Logger
}

// NewHandler creates a new Handler instance. checks maps component names to
// connectivity checks reported by the assistant health endpoint.
func NewHandler(policies *service.Service, assistant Assistant, checks map[string]ComponentCheck, log *logger.Logger) *Handler {
	return &Handler{policies: policies, assistant: assistant, checks: checks, log: log}
}

// --- Policy Handlers ---

// CreatePolicy handles a multipart policy creation request with an optional
// document file.
func (h *Handler) CreatePolicy(c *gin.Context) {
	input, upload, err := parsePolicyForm(c, true)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := h.policies.Create(c.Request.Context(), *input, upload)
	if err != nil {
		if strings.Contains(err.Error(), "invalid policy category") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, models.NewPolicyResponse(policy))
}

// ListPolicies returns policies filtered by optional category and search
// query parameters.
func (h *Handler) ListPolicies(c *gin.Context) {
	category := c.Query("category")
	if category != "" && !models.IsValidCategory(schema.NormalizeCategory(category)) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category: " + category})
		return
	}

	offset := intQuery(c, "offset", 0)
	limit := intQuery(c, "limit", 50)

	policies, err := h.policies.List(c.Request.Context(), category, c.Query("search"), offset, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	out := make([]models.PolicyResponse, 0, len(policies))
	for i := range policies {
		out = append(out, models.NewPolicyResponse(&policies[i]))
	}
	c.JSON(http.StatusOK, gin.H{"policies": out, "count": len(out)})
}

// GetPolicy returns a single policy by ID.
func (h *Handler) GetPolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	policy, err := h.policies.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}

	c.JSON(http.StatusOK, models.NewPolicyResponse(policy))
}

// UpdatePolicy applies partial field updates and an optional replacement
// document.
func (h *Handler) UpdatePolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	update, upload, err := parsePolicyUpdateForm(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	policy, err := h.policies.Update(c.Request.Context(), id, *update, upload)
	if err != nil {
		if strings.Contains(err.Error(), "invalid policy category") {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}

	c.JSON(http.StatusOK, models.NewPolicyResponse(policy))
}

// DeletePolicy removes a policy together with its document and index entries.
func (h *Handler) DeletePolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	deleted, err := h.policies.Delete(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !deleted {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "policy deleted"})
}

// DownloadPolicy redirects to a presigned URL for the policy's document.
func (h *Handler) DownloadPolicy(c *gin.Context) {
	id, ok := pathID(c)
	if !ok {
		return
	}

	policy, err := h.policies.Get(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if policy == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy not found"})
		return
	}
	if !policy.HasDocument() {
		c.JSON(http.StatusNotFound, gin.H{"error": "policy has no document"})
		return
	}

	url, err := h.policies.DownloadURL(c.Request.Context(), policy)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Redirect(http.StatusTemporaryRedirect, url)
}

// --- Assistant Handlers ---

// ChatRequest is the JSON body for an assistant chat request.
type ChatRequest struct {
	Message  string `json:"message"`
	Category string `json:"category"`
}

// Chat answers a policy question. Malformed inputs are rejected up front;
// once the request reaches the assistant the response is always 200, with
// failures degraded to fallback answers inside the body.
func (h *Handler) Chat(c *gin.Context) {
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if strings.TrimSpace(req.Message) == "" {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": "message must not be blank"})
		return
	}

	category := schema.NormalizeCategory(req.Category)
	if category != "" && category != "all" && !models.IsValidCategory(category) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid category: " + req.Category})
		return
	}

	answer := h.assistant.Chat(c.Request.Context(), req.Message, req.Category)
	c.JSON(http.StatusOK, answer)
}

// SearchPolicies performs a name/description search for the assistant UI.
func (h *Handler) SearchPolicies(c *gin.Context) {
	query := strings.TrimSpace(c.Query("query"))
	if query == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "query must not be blank"})
		return
	}

	policies, err := h.assistant.SearchByName(c.Request.Context(), query)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"policies": policies, "count": len(policies)})
}

// AssistantHealth reports vector index statistics and per-component
// connectivity status.
func (h *Handler) AssistantHealth(c *gin.Context) {
	ctx := c.Request.Context()
	degraded := false

	components := gin.H{}
	for name, check := range h.checks {
		if err := check(ctx); err != nil {
			components[name] = err.Error()
			degraded = true
		} else {
			components[name] = "ok"
		}
	}

	stats, err := h.assistant.Health(ctx)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded", "error": err.Error(), "components": components,
		})
		return
	}
	if degraded {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "degraded", "total_chunks": stats.TotalChunks, "components": components,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status": "ok", "total_chunks": stats.TotalChunks, "components": components,
	})
}

// Health is the liveness endpoint.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
}

// --- Helpers ---

func pathID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid policy ID format"})
		return 0, false
	}
	return id, true
}

func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}

func parsePolicyForm(c *gin.Context, required bool) (*service.PolicyInput, *service.Upload, error) {
	input := &service.PolicyInput{
		Name:        strings.TrimSpace(c.PostForm("name")),
		Category:    c.PostForm("category"),
		Description: c.PostForm("description"),
	}
	if required && input.Name == "" {
		return nil, nil, errBlankField("name")
	}
	if required && input.Category == "" {
		return nil, nil, errBlankField("category")
	}

	if raw := c.PostForm("effective_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, err
		}
		input.EffectiveDate = t
	} else if required {
		input.EffectiveDate = time.Now().UTC()
	}

	upload, err := parseUpload(c)
	if err != nil {
		return nil, nil, err
	}
	return input, upload, nil
}

func parsePolicyUpdateForm(c *gin.Context) (*service.PolicyUpdate, *service.Upload, error) {
	update := &service.PolicyUpdate{}
	if _, ok := c.GetPostForm("name"); ok {
		name := strings.TrimSpace(c.PostForm("name"))
		if name == "" {
			return nil, nil, errBlankField("name")
		}
		update.Name = &name
	}
	if _, ok := c.GetPostForm("category"); ok {
		category := c.PostForm("category")
		update.Category = &category
	}
	if _, ok := c.GetPostForm("description"); ok {
		description := c.PostForm("description")
		update.Description = &description
	}
	if raw := c.PostForm("effective_date"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return nil, nil, err
		}
		update.EffectiveDate = &t
	}

	upload, err := parseUpload(c)
	if err != nil {
		return nil, nil, err
	}
	return update, upload, nil
}

func parseUpload(c *gin.Context) (*service.Upload, error) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		if err == http.ErrMissingFile {
			return nil, nil
		}
		// Non-multipart requests simply carry no file.
		return nil, nil
	}

	f, err := fileHeader.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	content, err := io.ReadAll(f)
	if err != nil {
		return nil, err
	}
	return &service.Upload{Filename: fileHeader.Filename, Content: content}, nil
}

type errBlankField string

func (e errBlankField) Error() string { return string(e) + " must not be blank" }
