package businessflow

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/brainchat/customer-service/models"
	"github.com/brainchat/customer-service/repository"
	"github.com/brainchat/customer-service/utils"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerFields is a sparse field set for create/update/upsert. A nil
// pointer means "not provided"; a pointer to an empty value means
// "provided as empty" and is written as such.
type CustomerFields struct {
	FirstName      *string
	LastName       *string
	ProfilePicURL  *string
	Email          *string
	Phone          *string
	AccessToken    *string
	CustomMetadata map[string]any
}

// IsEmpty reports whether no field was provided
func (f CustomerFields) IsEmpty() bool {
	return f.FirstName == nil && f.LastName == nil && f.ProfilePicURL == nil &&
		f.Email == nil && f.Phone == nil && f.AccessToken == nil && f.CustomMetadata == nil
}

// UpsertInput carries one identity-resolution request
type UpsertInput struct {
	AppID            uuid.UUID
	Platform         string
	ScopedID         string
	Fields           CustomerFields
	TouchInteraction bool

	// At is the call time. Zero means "now"; tests and replayed webhook
	// deliveries supply it explicitly so the operation stays idempotent.
	At time.Time
}

// UpsertResult reports the resolved customer and whether it was created
type UpsertResult struct {
	Customer *models.Customer
	Created  bool
}

// ListCustomersInput filters the per-app customer listing
type ListCustomersInput struct {
	AppID    uuid.UUID
	Platform *string
	Search   *string
	Page     int
	PageSize int
}

// CustomerFlow is the single owner of all mutations on the identity store.
// Both transports delegate here; neither encodes any resolver behavior.
type CustomerFlow interface {
	Upsert(ctx context.Context, in UpsertInput) (*UpsertResult, error)
	Create(ctx context.Context, in UpsertInput) (*models.Customer, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	GetByScopedID(ctx context.Context, appID uuid.UUID, platform, scopedID string) (*models.Customer, error)
	List(ctx context.Context, in ListCustomersInput) ([]*models.Customer, int64, error)
	Update(ctx context.Context, id uuid.UUID, fields CustomerFields) (*models.Customer, error)
	Delete(ctx context.Context, id uuid.UUID) error
	SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*models.Customer, error)
	TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) (*models.Customer, error)
}

type CustomerFlowImpl struct {
	customerRepo repository.CustomerRepository
	db           *gorm.DB
}

func NewCustomerFlow(customerRepo repository.CustomerRepository, db *gorm.DB) CustomerFlow {
	return &CustomerFlowImpl{customerRepo: customerRepo, db: db}
}

// Upsert resolves an incoming (app_id, platform, scoped_id) key to exactly
// one customer row: create on miss, per-field merge on hit. The unique
// constraint on the key is the source of truth for existence; an insert
// losing a creation race is retried once as an update.
func (f *CustomerFlowImpl) Upsert(ctx context.Context, in UpsertInput) (*UpsertResult, error) {
	if err := validateKey(in.AppID, in.Platform, in.ScopedID); err != nil {
		return nil, err
	}

	at := in.At
	if at.IsZero() {
		at = utils.UTCNow()
	}

	existing, err := f.customerRepo.ByScopedID(ctx, in.AppID, in.Platform, in.ScopedID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to look up customer", errors.Join(ErrUpstreamUnavailable, err))
	}

	if existing == nil {
		customer := newCustomer(in, at)
		err := f.customerRepo.Insert(ctx, customer)
		if err == nil {
			return &UpsertResult{Customer: customer, Created: true}, nil
		}
		if !errors.Is(err, repository.ErrDuplicateKey) {
			return nil, NewBusinessError("CUSTOMER_INSERT_FAILED", "Failed to create customer", errors.Join(ErrUpstreamUnavailable, err))
		}

		// Lost a creation race: the row exists now, merge into it
		existing, err = f.customerRepo.ByScopedID(ctx, in.AppID, in.Platform, in.ScopedID)
		if err != nil {
			return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to look up customer after conflict", errors.Join(ErrUpstreamUnavailable, err))
		}
		if existing == nil {
			// The constraint fired but the row is gone. Store-level bug.
			log.Printf("upsert: uniqueness conflict for %s/%s/%s not resolvable as update", in.AppID, in.Platform, in.ScopedID)
			return nil, NewBusinessError("CUSTOMER_CONFLICT_UNRESOLVED", "Failed to resolve customer", ErrStoreConflict)
		}
	}

	customer, err := f.merge(ctx, existing.ID, in, at)
	if err != nil {
		return nil, err
	}

	return &UpsertResult{Customer: customer, Created: false}, nil
}

// merge applies provided fields and the optional interaction touch to one
// row inside a single transaction.
func (f *CustomerFlowImpl) merge(ctx context.Context, id uuid.UUID, in UpsertInput, at time.Time) (*models.Customer, error) {
	err := repository.WithTransaction(ctx, f.db, func(txCtx context.Context) error {
		columns := fieldColumns(in.Fields, at)
		if len(columns) > 0 {
			columns["updated_at"] = at
			if err := f.customerRepo.UpdateFields(txCtx, id, columns); err != nil {
				return err
			}
		}
		if in.TouchInteraction {
			if _, err := f.customerRepo.TouchInteraction(txCtx, id, at); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_MERGE_FAILED", "Failed to merge customer fields", errors.Join(ErrUpstreamUnavailable, err))
	}

	customer, err := f.customerRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_FETCH_FAILED", "Failed to fetch customer", errors.Join(ErrUpstreamUnavailable, err))
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	return customer, nil
}

// Create inserts a new customer, rejecting an existing key with a conflict
func (f *CustomerFlowImpl) Create(ctx context.Context, in UpsertInput) (*models.Customer, error) {
	if err := validateKey(in.AppID, in.Platform, in.ScopedID); err != nil {
		return nil, err
	}

	at := in.At
	if at.IsZero() {
		at = utils.UTCNow()
	}

	customer := newCustomer(in, at)
	if err := f.customerRepo.Insert(ctx, customer); err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, NewBusinessErrorf("CUSTOMER_ALREADY_EXISTS",
				"Customer with scoped_id %s already exists for this app", ErrCustomerAlreadyExists, in.ScopedID)
		}
		return nil, NewBusinessError("CUSTOMER_INSERT_FAILED", "Failed to create customer", errors.Join(ErrUpstreamUnavailable, err))
	}

	return customer, nil
}

func (f *CustomerFlowImpl) GetByID(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	if id == uuid.Nil {
		return nil, NewBusinessError("CUSTOMER_ID_REQUIRED", "customer_id is required", ErrCustomerIDRequired)
	}

	customer, err := f.customerRepo.ByID(ctx, id)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_FETCH_FAILED", "Failed to fetch customer", errors.Join(ErrUpstreamUnavailable, err))
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	return customer, nil
}

func (f *CustomerFlowImpl) GetByScopedID(ctx context.Context, appID uuid.UUID, platform, scopedID string) (*models.Customer, error) {
	if err := validateKey(appID, platform, scopedID); err != nil {
		return nil, err
	}

	customer, err := f.customerRepo.ByScopedID(ctx, appID, platform, scopedID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_LOOKUP_FAILED", "Failed to look up customer", errors.Join(ErrUpstreamUnavailable, err))
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	return customer, nil
}

func (f *CustomerFlowImpl) List(ctx context.Context, in ListCustomersInput) ([]*models.Customer, int64, error) {
	if in.AppID == uuid.Nil {
		return nil, 0, NewBusinessError("APP_ID_REQUIRED", "app_id is required", ErrAppIDRequired)
	}
	if in.Page < 1 {
		in.Page = 1
	}
	if in.PageSize < 1 || in.PageSize > 100 {
		in.PageSize = 50
	}

	filter := models.CustomerFilter{
		AppID:    &in.AppID,
		Platform: in.Platform,
		Search:   in.Search,
	}

	total, err := f.customerRepo.Count(ctx, filter)
	if err != nil {
		return nil, 0, NewBusinessError("CUSTOMER_COUNT_FAILED", "Failed to count customers", errors.Join(ErrUpstreamUnavailable, err))
	}

	customers, err := f.customerRepo.ByFilter(ctx, filter, "created_at DESC", in.PageSize, (in.Page-1)*in.PageSize)
	if err != nil {
		return nil, 0, NewBusinessError("CUSTOMER_LIST_FAILED", "Failed to list customers", errors.Join(ErrUpstreamUnavailable, err))
	}

	return customers, total, nil
}

// Update applies a sparse field set to an existing customer
func (f *CustomerFlowImpl) Update(ctx context.Context, id uuid.UUID, fields CustomerFields) (*models.Customer, error) {
	if id == uuid.Nil {
		return nil, NewBusinessError("CUSTOMER_ID_REQUIRED", "customer_id is required", ErrCustomerIDRequired)
	}
	if fields.IsEmpty() {
		return nil, NewBusinessError("CUSTOMER_UPDATE_REQUIRED", "At least one field must be provided", ErrUpdateRequired)
	}

	customer, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	at := utils.UTCNow()
	columns := fieldColumns(fields, at)
	columns["updated_at"] = at

	if err := f.customerRepo.UpdateFields(ctx, customer.ID, columns); err != nil {
		return nil, NewBusinessError("CUSTOMER_UPDATE_FAILED", "Failed to update customer", errors.Join(ErrUpstreamUnavailable, err))
	}

	return f.GetByID(ctx, id)
}

func (f *CustomerFlowImpl) Delete(ctx context.Context, id uuid.UUID) error {
	if id == uuid.Nil {
		return NewBusinessError("CUSTOMER_ID_REQUIRED", "customer_id is required", ErrCustomerIDRequired)
	}

	deleted, err := f.customerRepo.Delete(ctx, id)
	if err != nil {
		return NewBusinessError("CUSTOMER_DELETE_FAILED", "Failed to delete customer", errors.Join(ErrUpstreamUnavailable, err))
	}
	if !deleted {
		return NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	return nil
}

// SetBlocked marks a customer blocked or unblocked. Idempotent; never
// touches last_interaction_at.
func (f *CustomerFlowImpl) SetBlocked(ctx context.Context, id uuid.UUID, blocked bool) (*models.Customer, error) {
	customer, err := f.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	err = f.customerRepo.UpdateFields(ctx, customer.ID, map[string]any{
		"is_blocked": blocked,
		"updated_at": utils.UTCNow(),
	})
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_BLOCK_FAILED", "Failed to update blocked flag", errors.Join(ErrUpstreamUnavailable, err))
	}

	return f.GetByID(ctx, id)
}

// TouchInteraction advances last_interaction_at to max(stored, at)
func (f *CustomerFlowImpl) TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) (*models.Customer, error) {
	if id == uuid.Nil {
		return nil, NewBusinessError("CUSTOMER_ID_REQUIRED", "customer_id is required", ErrCustomerIDRequired)
	}
	if at.IsZero() {
		at = utils.UTCNow()
	}

	rows, err := f.customerRepo.TouchInteraction(ctx, id, at)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_TOUCH_FAILED", "Failed to update interaction time", errors.Join(ErrUpstreamUnavailable, err))
	}
	if rows == 0 {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	return f.GetByID(ctx, id)
}

func validateKey(appID uuid.UUID, platform, scopedID string) error {
	if appID == uuid.Nil {
		return NewBusinessError("APP_ID_REQUIRED", "app_id is required", ErrAppIDRequired)
	}
	if scopedID == "" {
		return NewBusinessError("SCOPED_ID_REQUIRED", "scoped_id is required", ErrScopedIDRequired)
	}
	if !models.IsValidPlatform(platform) {
		return NewBusinessError("PLATFORM_INVALID", "platform must be instagram or facebook", ErrPlatformInvalid)
	}
	return nil
}

// newCustomer builds the row for the create path of an upsert
func newCustomer(in UpsertInput, at time.Time) *models.Customer {
	customer := &models.Customer{
		ID:             uuid.New(),
		AppID:          in.AppID,
		Platform:       in.Platform,
		ScopedID:       in.ScopedID,
		FirstName:      in.Fields.FirstName,
		LastName:       in.Fields.LastName,
		ProfilePicURL:  in.Fields.ProfilePicURL,
		Email:          in.Fields.Email,
		Phone:          in.Fields.Phone,
		CustomMetadata: in.Fields.CustomMetadata,
		AccessToken:    in.Fields.AccessToken,
		IsActive:       utils.ToPtr(true),
		IsBlocked:      utils.ToPtr(false),
		CreatedAt:      at,
		UpdatedAt:      at,
	}
	if in.Fields.AccessToken != nil {
		customer.TokenSetAt = &at
	}
	if in.TouchInteraction {
		customer.LastInteractionAt = &at
	}
	return customer
}

// fieldColumns maps provided fields to their columns. Absent (nil) fields
// are omitted so stored values stay untouched; explicitly provided empty
// values are written as empty.
func fieldColumns(fields CustomerFields, at time.Time) map[string]any {
	columns := map[string]any{}
	if fields.FirstName != nil {
		columns["first_name"] = *fields.FirstName
	}
	if fields.LastName != nil {
		columns["last_name"] = *fields.LastName
	}
	if fields.ProfilePicURL != nil {
		columns["profile_pic_url"] = *fields.ProfilePicURL
	}
	if fields.Email != nil {
		columns["email"] = *fields.Email
	}
	if fields.Phone != nil {
		columns["phone"] = *fields.Phone
	}
	if fields.AccessToken != nil {
		columns["access_token"] = *fields.AccessToken
		columns["token_set_at"] = at
	}
	if fields.CustomMetadata != nil {
		// Updates with a column map bypass the model serializer, so the
		// JSON payload is encoded here.
		if bs, err := json.Marshal(fields.CustomMetadata); err == nil {
			columns["custom_metadata"] = string(bs)
		}
	}
	return columns
}
