// Package businessflow contains the business logic for the customer identity service.
package businessflow

import (
	"github.com/brainchat/customer-service/app/dto"
	"github.com/brainchat/customer-service/models"
)

const RequestIDKey = "X-Request-ID"

// ToCustomerDTO converts a customer model to its wire representation
func ToCustomerDTO(customer models.Customer) dto.CustomerDTO {
	return dto.CustomerDTO{
		ID:                customer.ID.String(),
		AppID:             customer.AppID.String(),
		Platform:          customer.Platform,
		ScopedID:          customer.ScopedID,
		FirstName:         customer.FirstName,
		LastName:          customer.LastName,
		FullName:          customer.FullName(),
		ProfilePicURL:     customer.ProfilePicURL,
		Email:             customer.Email,
		Phone:             customer.Phone,
		CustomMetadata:    customer.CustomMetadata,
		HasAccessToken:    customer.HasAccessToken(),
		TokenSetAt:        customer.TokenSetAt,
		IsActive:          customer.IsActive,
		IsBlocked:         customer.IsBlocked,
		CreatedAt:         customer.CreatedAt,
		UpdatedAt:         customer.UpdatedAt,
		LastInteractionAt: customer.LastInteractionAt,
	}
}

// ToProfileResponse converts a profile fetch result to its wire representation
func ToProfileResponse(result ProfileResult) dto.FetchProfileResponse {
	return dto.FetchProfileResponse{
		FirstName:     result.Fields.FirstName,
		LastName:      result.Fields.LastName,
		ProfilePicURL: result.Fields.ProfilePicURL,
		Source:        string(result.Source),
		Stale:         result.Stale,
		FetchedAt:     result.FetchedAt,
	}
}

// FieldsFromUpsertRequest maps a sparse upsert DTO to resolver fields
func FieldsFromUpsertRequest(req *dto.UpsertCustomerRequest) CustomerFields {
	return CustomerFields{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		ProfilePicURL: req.ProfilePicURL,
		Email:         req.Email,
		Phone:         req.Phone,
		AccessToken:   req.AccessToken,
	}
}

// FieldsFromUpdateRequest maps a sparse update DTO to resolver fields
func FieldsFromUpdateRequest(req *dto.UpdateCustomerRequest) CustomerFields {
	return CustomerFields{
		FirstName:     req.FirstName,
		LastName:      req.LastName,
		ProfilePicURL: req.ProfilePicURL,
		Email:         req.Email,
		Phone:         req.Phone,
		AccessToken:   req.AccessToken,
	}
}
