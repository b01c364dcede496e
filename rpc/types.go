package rpc

import (
	"time"

	"github.com/brainchat/customer-service/app/dto"
)

// ServiceName is the fully qualified gRPC service name
const ServiceName = "customer.v1.CustomerService"

// InternalTokenHeader carries the shared secret internal callers present
const InternalTokenHeader = "x-internal-token"

// ErrorCodeTrailer and ErrorKindTrailer carry the stable business error
// code and its taxonomy kind alongside the gRPC status
const (
	ErrorCodeTrailer = "error-code"
	ErrorKindTrailer = "error-kind"
)

// ResolveCustomerRequest is the webhook-facing upsert. Field semantics match
// the REST upsert: nil means "not provided", a pointer to empty writes empty.
type ResolveCustomerRequest struct {
	AppID            string     `json:"app_id"`
	Platform         string     `json:"platform"`
	ScopedID         string     `json:"scoped_id"`
	FirstName        *string    `json:"first_name,omitempty"`
	LastName         *string    `json:"last_name,omitempty"`
	ProfilePicURL    *string    `json:"profile_pic_url,omitempty"`
	Email            *string    `json:"email,omitempty"`
	Phone            *string    `json:"phone,omitempty"`
	AccessToken      *string    `json:"access_token,omitempty"`
	TouchInteraction bool       `json:"touch_interaction"`
	At               *time.Time `json:"at,omitempty"`
}

type ResolveCustomerReply struct {
	Customer dto.CustomerDTO `json:"customer"`
	Created  bool            `json:"created"`
}

type GetCustomerRequest struct {
	CustomerID string `json:"customer_id"`
}

type GetCustomerByScopedIDRequest struct {
	AppID    string `json:"app_id"`
	Platform string `json:"platform"`
	ScopedID string `json:"scoped_id"`
}

type GetCustomerReply struct {
	Customer dto.CustomerDTO `json:"customer"`
}

type TouchInteractionRequest struct {
	CustomerID string     `json:"customer_id"`
	At         *time.Time `json:"at,omitempty"`
}

type TouchInteractionReply struct {
	LastInteractionAt *time.Time `json:"last_interaction_at,omitempty"`
}

type FetchProfileRequest struct {
	CustomerID string `json:"customer_id"`
}

type FetchProfileReply struct {
	FirstName     *string   `json:"first_name,omitempty"`
	LastName      *string   `json:"last_name,omitempty"`
	ProfilePicURL *string   `json:"profile_pic_url,omitempty"`
	Source        string    `json:"source"`
	Stale         bool      `json:"stale"`
	FetchedAt     time.Time `json:"fetched_at"`
}
