package dto

import "time"

// CustomerDTO is the wire representation of a customer record. The access
// token itself is never serialized, only whether one is set.
type CustomerDTO struct {
	ID                string         `json:"id"`
	AppID             string         `json:"app_id"`
	Platform          string         `json:"platform"`
	ScopedID          string         `json:"scoped_id"`
	FirstName         *string        `json:"first_name,omitempty"`
	LastName          *string        `json:"last_name,omitempty"`
	FullName          string         `json:"full_name"`
	ProfilePicURL     *string        `json:"profile_pic_url,omitempty"`
	Email             *string        `json:"email,omitempty"`
	Phone             *string        `json:"phone,omitempty"`
	CustomMetadata    map[string]any `json:"custom_metadata,omitempty"`
	HasAccessToken    bool           `json:"has_access_token"`
	TokenSetAt        *time.Time     `json:"token_set_at,omitempty"`
	IsActive          *bool          `json:"is_active"`
	IsBlocked         *bool          `json:"is_blocked"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	LastInteractionAt *time.Time     `json:"last_interaction_at,omitempty"`
}

// CreateCustomerRequest creates a customer explicitly. app_id, scoped_id,
// and access_token are provided manually until webhook automation lands.
type CreateCustomerRequest struct {
	AppID         string  `json:"app_id" validate:"required,uuid"`
	Platform      string  `json:"platform" validate:"required,oneof=instagram facebook"`
	ScopedID      string  `json:"scoped_id" validate:"required,max=255"`
	FirstName     *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName      *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	ProfilePicURL *string `json:"profile_pic_url,omitempty"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	AccessToken   *string `json:"access_token,omitempty"`
}

// UpdateCustomerRequest applies a sparse field update. Omitted fields stay
// untouched; fields present with an empty value are written as empty.
type UpdateCustomerRequest struct {
	FirstName     *string `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName      *string `json:"last_name,omitempty" validate:"omitempty,max=100"`
	ProfilePicURL *string `json:"profile_pic_url,omitempty"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	Phone         *string `json:"phone,omitempty" validate:"omitempty,max=50"`
	AccessToken   *string `json:"access_token,omitempty"`
}

// UpsertCustomerRequest is the webhook-facing sync operation: create the
// record if absent, merge provided fields if present.
type UpsertCustomerRequest struct {
	AppID            string     `json:"app_id" validate:"required,uuid"`
	Platform         string     `json:"platform" validate:"required,oneof=instagram facebook"`
	ScopedID         string     `json:"scoped_id" validate:"required,max=255"`
	FirstName        *string    `json:"first_name,omitempty" validate:"omitempty,max=100"`
	LastName         *string    `json:"last_name,omitempty" validate:"omitempty,max=100"`
	ProfilePicURL    *string    `json:"profile_pic_url,omitempty"`
	Email            *string    `json:"email,omitempty" validate:"omitempty,email"`
	Phone            *string    `json:"phone,omitempty" validate:"omitempty,max=50"`
	AccessToken      *string    `json:"access_token,omitempty"`
	TouchInteraction bool       `json:"touch_interaction"`
	At               *time.Time `json:"at,omitempty"`
}

// UpsertCustomerResponse reports the resolved record and whether it was created
type UpsertCustomerResponse struct {
	Customer CustomerDTO `json:"customer"`
	Created  bool        `json:"created"`
}

// CustomerListResponse is the paginated listing payload
type CustomerListResponse struct {
	Customers  []CustomerDTO `json:"customers"`
	Total      int64         `json:"total"`
	Page       int           `json:"page"`
	Size       int           `json:"size"`
	TotalPages int           `json:"total_pages"`
}

// FetchProfileResponse reports the fetched profile and its provenance
type FetchProfileResponse struct {
	FirstName     *string   `json:"first_name,omitempty"`
	LastName      *string   `json:"last_name,omitempty"`
	ProfilePicURL *string   `json:"profile_pic_url,omitempty"`
	Source        string    `json:"source"`
	Stale         bool      `json:"stale"`
	FetchedAt     time.Time `json:"fetched_at"`
}

// TouchInteractionRequest optionally carries the interaction timestamp;
// omitted means "now".
type TouchInteractionRequest struct {
	At *time.Time `json:"at,omitempty"`
}

// TouchInteractionResponse reports the stored interaction time after the merge
type TouchInteractionResponse struct {
	Message           string     `json:"message"`
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}
