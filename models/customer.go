// Package models contains domain entities and business models for the customer identity service
package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Supported messaging platforms
const (
	PlatformInstagram = "instagram"
	PlatformFacebook  = "facebook"
)

// IsValidPlatform reports whether the given platform value is supported
func IsValidPlatform(platform string) bool {
	return platform == PlatformInstagram || platform == PlatformFacebook
}

// Customer is the authoritative record for an external contact messaging
// through Instagram or Facebook. It is not a platform user: the record is
// keyed by the page-scoped identifier (PSID/IGSID) delivered in webhooks.
type Customer struct {
	ID uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`

	// AppID is a logical link to the Apps Service. There is no hard FK
	// across services and the value is never dereferenced here.
	AppID uuid.UUID `gorm:"type:uuid;not null;uniqueIndex:uk_customers_app_platform_scoped;index:idx_customers_app_id" json:"app_id"`

	// Platform identifier: 'instagram' or 'facebook'
	Platform string `gorm:"size:50;not null;default:instagram;uniqueIndex:uk_customers_app_platform_scoped" json:"platform"`

	// ScopedID is the PSID/IGSID received from the platform webhook. It
	// matches sender_id in the Webhook Service and is unique per
	// (app_id, platform).
	ScopedID string `gorm:"size:255;not null;uniqueIndex:uk_customers_app_platform_scoped;index:idx_customers_scoped_id" json:"scoped_id"`

	// Profile fields fetched from the Meta Graph API or edited manually.
	// All optional and independently overwritable.
	FirstName     *string `gorm:"size:100" json:"first_name,omitempty"`
	LastName      *string `gorm:"size:100" json:"last_name,omitempty"`
	ProfilePicURL *string `gorm:"type:text" json:"profile_pic_url,omitempty"`

	// Enriched contact data, added later through other channels
	Email *string `gorm:"size:255;index:idx_customers_email" json:"email,omitempty"`
	Phone *string `gorm:"size:50;index:idx_customers_phone" json:"phone,omitempty"`

	// CustomMetadata stores the raw Graph API response and arbitrary
	// custom attributes (tags, preferences, ...)
	CustomMetadata map[string]any `gorm:"type:jsonb;serializer:json" json:"custom_metadata,omitempty"`

	// Page access token used for Graph API profile fetches
	AccessToken *string    `gorm:"type:text" json:"-"` // Never serialize tokens
	TokenSetAt  *time.Time `json:"token_set_at,omitempty"`

	// Status flags
	IsActive  *bool `gorm:"default:true;index:idx_customers_is_active" json:"is_active"`
	IsBlocked *bool `gorm:"default:false" json:"is_blocked"`

	// Timestamps. LastInteractionAt never moves backward.
	CreatedAt         time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC');index:idx_customers_created_at" json:"created_at"`
	UpdatedAt         time.Time  `gorm:"default:(CURRENT_TIMESTAMP AT TIME ZONE 'UTC')" json:"updated_at"`
	LastInteractionAt *time.Time `gorm:"index:idx_customers_last_interaction_at" json:"last_interaction_at,omitempty"`
}

func (Customer) TableName() string {
	return "customers"
}

// CustomerFilter represents filter criteria for customer queries
type CustomerFilter struct {
	ID                *uuid.UUID
	AppID             *uuid.UUID
	Platform          *string
	ScopedID          *string
	Email             *string
	Phone             *string
	IsActive          *bool
	IsBlocked         *bool
	CreatedAfter      *time.Time
	CreatedBefore     *time.Time
	InteractionAfter  *time.Time
	InteractionBefore *time.Time

	// Search matches name, email, phone, or scoped ID (ILIKE)
	Search *string
}

// FullName combines first and last name, falling back to "Unknown"
func (c *Customer) FullName() string {
	parts := make([]string, 0, 2)
	if c.FirstName != nil && *c.FirstName != "" {
		parts = append(parts, *c.FirstName)
	}
	if c.LastName != nil && *c.LastName != "" {
		parts = append(parts, *c.LastName)
	}
	if len(parts) == 0 {
		return "Unknown"
	}
	return strings.Join(parts, " ")
}

// DisplayName returns the full name with a fallback to a truncated scoped ID
func (c *Customer) DisplayName() string {
	if name := c.FullName(); name != "Unknown" {
		return name
	}
	scoped := c.ScopedID
	if len(scoped) > 8 {
		scoped = scoped[:8] + "..."
	}
	return "User (" + scoped + ")"
}

// HasAccessToken reports whether a Graph API token is stored for this customer
func (c *Customer) HasAccessToken() bool {
	return c.AccessToken != nil && *c.AccessToken != ""
}
