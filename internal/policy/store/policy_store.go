package store

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"policyhub/internal/assistant/interfaces"
	"policyhub/internal/assistant/schema"
	"policyhub/internal/models"
)

// PolicyStore is the relational policy catalog, backed by GORM.
type PolicyStore struct {
	db *gorm.DB
}

// NewPolicyStore creates a PolicyStore over an initialized database handle.
func NewPolicyStore(db *gorm.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// Create inserts a new policy record.
func (s *PolicyStore) Create(ctx context.Context, policy *models.Policy) error {
	if err := s.db.WithContext(ctx).Create(policy).Error; err != nil {
		return fmt.Errorf("failed to create policy: %w", err)
	}
	return nil
}

// GetByID returns the policy with the given id, or nil when it does not exist.
func (s *PolicyStore) GetByID(ctx context.Context, id int64) (*models.Policy, error) {
	var policy models.Policy
	err := s.db.WithContext(ctx).First(&policy, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get policy %d: %w", id, err)
	}
	return &policy, nil
}

// List returns policies matching the optional category and search text.
// Search matches name or description substrings.
func (s *PolicyStore) List(ctx context.Context, category, search string, offset, limit int) ([]models.Policy, error) {
	query := s.db.WithContext(ctx).Model(&models.Policy{})

	if norm := schema.NormalizeCategory(category); norm != "" {
		query = query.Where("category = ?", norm)
	}
	if search != "" {
		pattern := "%" + search + "%"
		query = query.Where("name LIKE ? OR description LIKE ?", pattern, pattern)
	}

	var policies []models.Policy
	if err := query.Offset(offset).Limit(limit).Find(&policies).Error; err != nil {
		return nil, fmt.Errorf("failed to list policies: %w", err)
	}
	return policies, nil
}

// Update persists changes to an existing policy record.
func (s *PolicyStore) Update(ctx context.Context, policy *models.Policy) error {
	if err := s.db.WithContext(ctx).Save(policy).Error; err != nil {
		return fmt.Errorf("failed to update policy %d: %w", policy.ID, err)
	}
	return nil
}

// Delete removes a policy record.
func (s *PolicyStore) Delete(ctx context.Context, id int64) error {
	if err := s.db.WithContext(ctx).Delete(&models.Policy{}, id).Error; err != nil {
		return fmt.Errorf("failed to delete policy %d: %w", id, err)
	}
	return nil
}

// compile-time check to ensure PolicyStore implements the PolicyCatalog interface
var _ interfaces.PolicyCatalog = (*PolicyStore)(nil)
