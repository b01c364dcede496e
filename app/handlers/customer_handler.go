package handlers

import (
	"context"
	"errors"
	"log"
	"strconv"
	"time"

	"github.com/brainchat/customer-service/app/dto"
	"github.com/brainchat/customer-service/app/middleware"
	businessflow "github.com/brainchat/customer-service/business_flow"
	"github.com/brainchat/customer-service/utils"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"
)

type CustomerHandlerInterface interface {
	CreateCustomer(c fiber.Ctx) error
	UpsertCustomer(c fiber.Ctx) error
	GetCustomer(c fiber.Ctx) error
	GetCustomerByScopedID(c fiber.Ctx) error
	ListCustomers(c fiber.Ctx) error
	UpdateCustomer(c fiber.Ctx) error
	DeleteCustomer(c fiber.Ctx) error
	BlockCustomer(c fiber.Ctx) error
	UnblockCustomer(c fiber.Ctx) error
	TouchInteraction(c fiber.Ctx) error
	FetchProfile(c fiber.Ctx) error
	InvalidateProfile(c fiber.Ctx) error
}

type CustomerHandler struct {
	flow        businessflow.CustomerFlow
	profileFlow businessflow.ProfileFlow
	validator   *validator.Validate
}

func NewCustomerHandler(flow businessflow.CustomerFlow, profileFlow businessflow.ProfileFlow) *CustomerHandler {
	return &CustomerHandler{
		flow:        flow,
		profileFlow: profileFlow,
		validator:   validator.New(),
	}
}

func (h *CustomerHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CustomerHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// FlowErrorResponse maps a business flow error to its transport shape. The
// stable error code and taxonomy kind cross the boundary; internal error
// text does not.
func (h *CustomerHandler) FlowErrorResponse(c fiber.Ctx, err error, fallbackMessage string) error {
	status := statusFromError(err)
	kind := businessflow.KindOf(err)

	var be *businessflow.BusinessError
	if errors.As(err, &be) {
		message := be.Message
		if kind == businessflow.KindInternal {
			message = fallbackMessage
		}
		return c.Status(status).JSON(dto.APIResponse{
			Success: false,
			Message: message,
			Error: dto.ErrorDetail{
				Code: be.Code,
				Kind: string(kind),
			},
		})
	}

	log.Printf("unclassified error on %s: %v", c.Path(), err)
	return h.ErrorResponse(c, fiber.StatusInternalServerError, fallbackMessage, "INTERNAL_ERROR", nil)
}

// CreateCustomer creates a customer record explicitly
// @Summary Create customer
// @Description Create a customer record for an app and platform-scoped ID
// @Tags Customers
// @Accept json
// @Produce json
// @Success 201 {object} dto.APIResponse{data=dto.CustomerDTO} "Customer created successfully"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Failure 409 {object} dto.APIResponse "Customer already exists"
// @Router /api/v1/customers [post]
func (h *CustomerHandler) CreateCustomer(c fiber.Ctx) error {
	var req dto.CreateCustomerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	appID, err := uuid.Parse(req.AppID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "app_id must be a valid UUID", "INVALID_APP_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers")
	defer cancel()

	customer, err := h.flow.Create(ctx, businessflow.UpsertInput{
		AppID:    appID,
		Platform: req.Platform,
		ScopedID: req.ScopedID,
		Fields: businessflow.CustomerFields{
			FirstName:     req.FirstName,
			LastName:      req.LastName,
			ProfilePicURL: req.ProfilePicURL,
			Email:         req.Email,
			Phone:         req.Phone,
			AccessToken:   req.AccessToken,
		},
	})
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to create customer")
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Customer created successfully", businessflow.ToCustomerDTO(*customer))
}

// UpsertCustomer resolves an external identity to a customer record
// @Summary Upsert customer
// @Description Create the customer if absent, merge provided fields if present. Idempotent per (app_id, platform, scoped_id).
// @Tags Customers
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.UpsertCustomerResponse} "Customer resolved successfully"
// @Failure 400 {object} dto.APIResponse "Invalid request"
// @Router /api/v1/customers/upsert [post]
func (h *CustomerHandler) UpsertCustomer(c fiber.Ctx) error {
	var req dto.UpsertCustomerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	appID, err := uuid.Parse(req.AppID)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "app_id must be a valid UUID", "INVALID_APP_ID", nil)
	}

	in := businessflow.UpsertInput{
		AppID:            appID,
		Platform:         req.Platform,
		ScopedID:         req.ScopedID,
		Fields:           businessflow.FieldsFromUpsertRequest(&req),
		TouchInteraction: req.TouchInteraction,
	}
	if req.At != nil {
		in.At = utils.TimeToUTC(*req.At)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/upsert")
	defer cancel()

	result, err := h.flow.Upsert(ctx, in)
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to resolve customer")
	}

	status := fiber.StatusOK
	if result.Created {
		status = fiber.StatusCreated
	}
	return h.SuccessResponse(c, status, "Customer resolved successfully", dto.UpsertCustomerResponse{
		Customer: businessflow.ToCustomerDTO(*result.Customer),
		Created:  result.Created,
	})
}

// GetCustomer returns a customer by its durable ID
// @Summary Get customer
// @Tags Customers
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CustomerDTO} "Customer retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Customer not found"
// @Router /api/v1/customers/{id} [get]
func (h *CustomerHandler) GetCustomer(c fiber.Ctx) error {
	id, err := h.customerIDParam(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a valid UUID", "INVALID_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/:id")
	defer cancel()

	customer, err := h.flow.GetByID(ctx, id)
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to get customer")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Customer retrieved successfully", businessflow.ToCustomerDTO(*customer))
}

// GetCustomerByScopedID looks a customer up by its platform-scoped identity
// @Summary Get customer by scoped ID
// @Description Look a customer up by (app_id, platform) query parameters and the PSID/IGSID path segment
// @Tags Customers
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CustomerDTO} "Customer retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Customer not found"
// @Router /api/v1/customers/psid/{psid} [get]
func (h *CustomerHandler) GetCustomerByScopedID(c fiber.Ctx) error {
	appID, err := uuid.Parse(c.Query("app_id"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "app_id must be a valid UUID", "INVALID_APP_ID", nil)
	}
	platform := c.Query("platform")
	scopedID := c.Params("psid")

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/psid/:psid")
	defer cancel()

	customer, err := h.flow.GetByScopedID(ctx, appID, platform, scopedID)
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to look up customer")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Customer retrieved successfully", businessflow.ToCustomerDTO(*customer))
}

// ListCustomers returns a paginated customer listing for an app
// @Summary List customers
// @Tags Customers
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CustomerListResponse} "Customers retrieved successfully"
// @Router /api/v1/customers [get]
func (h *CustomerHandler) ListCustomers(c fiber.Ctx) error {
	appID, err := uuid.Parse(c.Query("app_id"))
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "app_id must be a valid UUID", "INVALID_APP_ID", nil)
	}

	in := businessflow.ListCustomersInput{
		AppID:    appID,
		Page:     1,
		PageSize: utils.DefaultPageSize,
	}
	if pageStr := c.Query("page"); pageStr != "" {
		if page, err := strconv.Atoi(pageStr); err == nil && page > 0 {
			in.Page = page
		}
	}
	if sizeStr := c.Query("size"); sizeStr != "" {
		if size, err := strconv.Atoi(sizeStr); err == nil && size > 0 {
			in.PageSize = size
		}
	}
	if platform := c.Query("platform"); platform != "" {
		in.Platform = &platform
	}
	if search := c.Query("search"); search != "" {
		in.Search = &search
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers")
	defer cancel()

	customers, total, err := h.flow.List(ctx, in)
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to list customers")
	}

	items := make([]dto.CustomerDTO, 0, len(customers))
	for _, customer := range customers {
		items = append(items, businessflow.ToCustomerDTO(*customer))
	}

	totalPages := int(total) / in.PageSize
	if int(total)%in.PageSize > 0 {
		totalPages++
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Customers retrieved successfully", dto.CustomerListResponse{
		Customers:  items,
		Total:      total,
		Page:       in.Page,
		Size:       in.PageSize,
		TotalPages: totalPages,
	})
}

// UpdateCustomer applies a sparse field update to a customer
// @Summary Update customer
// @Tags Customers
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CustomerDTO} "Customer updated successfully"
// @Failure 404 {object} dto.APIResponse "Customer not found"
// @Router /api/v1/customers/{id} [put]
func (h *CustomerHandler) UpdateCustomer(c fiber.Ctx) error {
	id, err := h.customerIDParam(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a valid UUID", "INVALID_CUSTOMER_ID", nil)
	}

	var req dto.UpdateCustomerRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/:id")
	defer cancel()

	customer, err := h.flow.Update(ctx, id, businessflow.FieldsFromUpdateRequest(&req))
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to update customer")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Customer updated successfully", businessflow.ToCustomerDTO(*customer))
}

// DeleteCustomer removes a customer record
// @Summary Delete customer
// @Tags Customers
// @Produce json
// @Success 200 {object} dto.APIResponse "Customer deleted successfully"
// @Failure 404 {object} dto.APIResponse "Customer not found"
// @Router /api/v1/customers/{id} [delete]
func (h *CustomerHandler) DeleteCustomer(c fiber.Ctx) error {
	id, err := h.customerIDParam(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a valid UUID", "INVALID_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/:id")
	defer cancel()

	if err := h.flow.Delete(ctx, id); err != nil {
		return h.FlowErrorResponse(c, err, "Failed to delete customer")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Customer deleted successfully", nil)
}

// BlockCustomer marks a customer as blocked
// @Summary Block customer
// @Tags Customers
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CustomerDTO} "Customer blocked successfully"
// @Router /api/v1/customers/{id}/block [post]
func (h *CustomerHandler) BlockCustomer(c fiber.Ctx) error {
	return h.setBlocked(c, true, "Customer blocked successfully")
}

// UnblockCustomer clears a customer's blocked flag
// @Summary Unblock customer
// @Tags Customers
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.CustomerDTO} "Customer unblocked successfully"
// @Router /api/v1/customers/{id}/unblock [post]
func (h *CustomerHandler) UnblockCustomer(c fiber.Ctx) error {
	return h.setBlocked(c, false, "Customer unblocked successfully")
}

func (h *CustomerHandler) setBlocked(c fiber.Ctx, blocked bool, message string) error {
	id, err := h.customerIDParam(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a valid UUID", "INVALID_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/:id/block")
	defer cancel()

	customer, err := h.flow.SetBlocked(ctx, id, blocked)
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to update blocked flag")
	}

	return h.SuccessResponse(c, fiber.StatusOK, message, businessflow.ToCustomerDTO(*customer))
}

// TouchInteraction advances a customer's last interaction time
// @Summary Touch interaction
// @Description Advance last_interaction_at to max(stored, at). Out-of-order deliveries never move it backwards.
// @Tags Customers
// @Accept json
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.TouchInteractionResponse} "Interaction time updated"
// @Router /api/v1/customers/{id}/interaction [patch]
func (h *CustomerHandler) TouchInteraction(c fiber.Ctx) error {
	id, err := h.customerIDParam(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a valid UUID", "INVALID_CUSTOMER_ID", nil)
	}

	var req dto.TouchInteractionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	at := utils.UTCNow()
	if req.At != nil {
		at = utils.TimeToUTC(*req.At)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/:id/interaction")
	defer cancel()

	customer, err := h.flow.TouchInteraction(ctx, id, at)
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to update interaction time")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Interaction time updated", dto.TouchInteractionResponse{
		Message:           "Interaction time updated",
		LastInteractionAt: customer.LastInteractionAt,
	})
}

// FetchProfile returns the customer's display profile via the cache
// @Summary Fetch profile
// @Description Return the cached Graph API profile, refreshing from the platform on miss or expiry
// @Tags Profiles
// @Produce json
// @Success 200 {object} dto.APIResponse{data=dto.FetchProfileResponse} "Profile retrieved successfully"
// @Failure 404 {object} dto.APIResponse "Customer or profile not found"
// @Failure 429 {object} dto.APIResponse "Graph API rate limit reached"
// @Router /api/v1/customers/{id}/fetch-profile [post]
func (h *CustomerHandler) FetchProfile(c fiber.Ctx) error {
	id, err := h.customerIDParam(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a valid UUID", "INVALID_CUSTOMER_ID", nil)
	}

	// Remote fetches wait on the Graph API; allow them a longer deadline
	ctx, cancel := h.createRequestContextWithTimeout(c, "/api/v1/customers/:id/fetch-profile", 45*time.Second)
	defer cancel()

	result, err := h.profileFlow.FetchProfile(ctx, id)
	if err != nil {
		return h.FlowErrorResponse(c, err, "Failed to fetch profile")
	}

	middleware.RecordProfileFetch(string(result.Source), result.Stale)
	return h.SuccessResponse(c, fiber.StatusOK, "Profile retrieved successfully", businessflow.ToProfileResponse(*result))
}

// InvalidateProfile drops the cached profile for a customer
// @Summary Invalidate cached profile
// @Tags Profiles
// @Produce json
// @Success 200 {object} dto.APIResponse "Profile cache invalidated"
// @Router /api/v1/customers/{id}/profile-cache [delete]
func (h *CustomerHandler) InvalidateProfile(c fiber.Ctx) error {
	id, err := h.customerIDParam(c)
	if err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "id must be a valid UUID", "INVALID_CUSTOMER_ID", nil)
	}

	ctx, cancel := h.createRequestContext(c, "/api/v1/customers/:id/profile-cache")
	defer cancel()

	if err := h.profileFlow.InvalidateProfile(ctx, id); err != nil {
		return h.FlowErrorResponse(c, err, "Failed to invalidate profile cache")
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Profile cache invalidated", nil)
}

func (h *CustomerHandler) customerIDParam(c fiber.Ctx) (uuid.UUID, error) {
	return uuid.Parse(c.Params("id"))
}

func (h *CustomerHandler) createRequestContext(c fiber.Ctx, endpoint string) (context.Context, context.CancelFunc) {
	return h.createRequestContextWithTimeout(c, endpoint, 30*time.Second)
}

// The caller must invoke the returned cancel once the flow call finishes so
// the deadline timer is released instead of living out the full timeout.
func (h *CustomerHandler) createRequestContextWithTimeout(c fiber.Ctx, endpoint string, timeout time.Duration) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	ctx = context.WithValue(ctx, utils.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, utils.UserAgentKey, c.Get("User-Agent"))
	ctx = context.WithValue(ctx, utils.IPAddressKey, c.IP())
	ctx = context.WithValue(ctx, utils.EndpointKey, endpoint)
	ctx = context.WithValue(ctx, utils.TimeoutKey, timeout)
	return ctx, cancel
}
