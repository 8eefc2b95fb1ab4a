package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// PolicyCategory is the closed set of organizational policy categories.
type PolicyCategory string

const (
	CategoryLeave    PolicyCategory = "leave"
	CategoryHR       PolicyCategory = "hr"
	CategoryIT       PolicyCategory = "it"
	CategoryCustomer PolicyCategory = "customer"
)

// Categories lists all valid policy categories in a stable order.
func Categories() []PolicyCategory {
	return []PolicyCategory{CategoryLeave, CategoryHR, CategoryIT, CategoryCustomer}
}

// IsValidCategory reports whether s (already normalized) is in the closed set.
func IsValidCategory(s string) bool {
	switch PolicyCategory(s) {
	case CategoryLeave, CategoryHR, CategoryIT, CategoryCustomer:
		return true
	}
	return false
}

// Policy is the relational record for an organizational policy.
type Policy struct {
	gorm.Model

	Name          string         `gorm:"size:255;not null;index"`
	Category      PolicyCategory `gorm:"type:varchar(20);not null;index"`
	Description   string         `gorm:"type:text;not null"`
	EffectiveDate time.Time      `gorm:"not null"`
	// DocumentKey is the object-storage key of the uploaded document,
	// empty when no document is attached.
	DocumentKey string `gorm:"size:500"`
}

func (Policy) TableName() string {
	return "policies"
}

// HasDocument reports whether a downloadable document is attached.
func (p *Policy) HasDocument() bool {
	return p.DocumentKey != ""
}

// PolicyResponse is the API-facing shape of a policy record.
type PolicyResponse struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	Category      string    `json:"category"`
	Description   string    `json:"description"`
	EffectiveDate time.Time `json:"effective_date"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	DownloadURL   string    `json:"download_url,omitempty"`
}

// NewPolicyResponse converts a Policy record into its API shape, attaching
// the download indicator when a document is present.
func NewPolicyResponse(p *Policy) PolicyResponse {
	resp := PolicyResponse{
		ID:            p.ID,
		Name:          p.Name,
		Category:      string(p.Category),
		Description:   p.Description,
		EffectiveDate: p.EffectiveDate,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
	if p.HasDocument() {
		resp.DownloadURL = fmt.Sprintf("/api/v1/policies/%d/download", p.ID)
	}
	return resp
}
