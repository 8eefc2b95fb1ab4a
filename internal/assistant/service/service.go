package service

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"policyhub/internal/assistant/interfaces"
	"policyhub/internal/assistant/responder"
	"policyhub/internal/assistant/schema"
	"policyhub/internal/models"
	"policyhub/pkg/logger"
)

// Service fronts the responder with an answer cache and exposes the
// assistant's auxiliary operations (policy name search, health).
type Service struct {
	responder *responder.Responder
	catalog   interfaces.PolicyCatalog
	store     interfaces.VectorStore
	cache     *redis.Client // nil disables caching
	cacheTTL  time.Duration
	log       *logger.Logger
}

// NewService creates the assistant service. The cache client may be nil, in
// which case every question runs the full pipeline.
func NewService(
	resp *responder.Responder,
	catalog interfaces.PolicyCatalog,
	store interfaces.VectorStore,
	cache *redis.Client,
	cacheTTL time.Duration,
	log *logger.Logger,
) *Service {
	return &Service{
		responder: resp,
		catalog:   catalog,
		store:     store,
		cache:     cache,
		cacheTTL:  cacheTTL,
		log:       log,
	}
}

// Chat answers a question, serving identical (question, filter) pairs from
// the cache when possible. The cache is best-effort: any cache error falls
// through to the pipeline.
func (s *Service) Chat(ctx context.Context, question, category string) schema.ChatAnswer {
	key := cacheKey(question, category)

	if s.cache != nil {
		if data, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var answer schema.ChatAnswer
			if err := json.Unmarshal(data, &answer); err == nil {
				s.log.Debug("Serving chat answer from cache")
				return answer
			}
		}
	}

	answer := s.responder.Answer(ctx, question, category)

	if s.cache != nil && answer.Success {
		if data, err := json.Marshal(answer); err == nil {
			if err := s.cache.Set(ctx, key, data, s.cacheTTL).Err(); err != nil {
				s.log.Warn(fmt.Sprintf("Failed to cache chat answer: %v", err))
			}
		}
	}

	return answer
}

// SearchByName finds policies whose name or description matches the query.
func (s *Service) SearchByName(ctx context.Context, query string) ([]models.PolicyResponse, error) {
	policies, err := s.catalog.List(ctx, "", query, 0, 10)
	if err != nil {
		return nil, fmt.Errorf("failed to search policies: %w", err)
	}
	responses := make([]models.PolicyResponse, 0, len(policies))
	for i := range policies {
		responses = append(responses, models.NewPolicyResponse(&policies[i]))
	}
	return responses, nil
}

// Health reports the vector index statistics.
func (s *Service) Health(ctx context.Context) (schema.IndexStats, error) {
	return s.store.Stats(ctx)
}

func cacheKey(question, category string) string {
	sum := sha1.Sum([]byte(question + "|" + schema.NormalizeCategory(category)))
	return "assistant:answer:" + hex.EncodeToString(sum[:])
}
