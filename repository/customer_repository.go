// Package repository provides data access layer implementations and interfaces for database operations
package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/brainchat/customer-service/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CustomerRepositoryImpl implements CustomerRepository interface
type CustomerRepositoryImpl struct {
	*BaseRepository[models.Customer, models.CustomerFilter]
}

// NewCustomerRepository creates a new customer repository
func NewCustomerRepository(db *gorm.DB) CustomerRepository {
	return &CustomerRepositoryImpl{
		BaseRepository: NewBaseRepository[models.Customer, models.CustomerFilter](db),
	}
}

// ByScopedID retrieves the customer owning the (app_id, platform, scoped_id) key
func (r *CustomerRepositoryImpl) ByScopedID(ctx context.Context, appID uuid.UUID, platform, scopedID string) (*models.Customer, error) {
	db := r.getDB(ctx)

	var customer models.Customer
	err := db.Where("app_id = ? AND platform = ? AND scoped_id = ?", appID, platform, scopedID).
		First(&customer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find customer by scoped ID: %w", err)
	}

	return &customer, nil
}

// Insert creates a new customer row, mapping unique-constraint violations to ErrDuplicateKey
func (r *CustomerRepositoryImpl) Insert(ctx context.Context, customer *models.Customer) error {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Create(customer).Error
	if err != nil {
		// Requires TranslateError in the gorm config so driver
		// duplicate-key errors surface as gorm.ErrDuplicatedKey.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			err = fmt.Errorf("%w: customer %s/%s/%s", ErrDuplicateKey, customer.AppID, customer.Platform, customer.ScopedID)
			return err
		}
		err = fmt.Errorf("failed to insert customer: %w", err)
		return err
	}

	return nil
}

// UpdateFields applies a sparse column map to a single customer row
func (r *CustomerRepositoryImpl) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	err = db.Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(fields).Error
	if err != nil {
		err = fmt.Errorf("failed to update customer fields: %w", err)
		return err
	}

	return nil
}

// TouchInteraction advances last_interaction_at with a GREATEST merge so
// out-of-order or concurrent touches never move the timestamp backward.
func (r *CustomerRepositoryImpl) TouchInteraction(ctx context.Context, id uuid.UUID, at time.Time) (int64, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return 0, err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Model(&models.Customer{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_interaction_at": gorm.Expr("GREATEST(COALESCE(last_interaction_at, ?), ?)", at, at),
			"updated_at":          at,
		})
	if res.Error != nil {
		err = fmt.Errorf("failed to touch interaction: %w", res.Error)
		return 0, err
	}

	return res.RowsAffected, nil
}

// Delete removes a customer row, reporting whether it existed
func (r *CustomerRepositoryImpl) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	db, shouldCommit, err := r.getDBForWrite(ctx)
	if err != nil {
		return false, err
	}

	if shouldCommit {
		defer func() {
			if err != nil {
				db.Rollback()
			} else {
				db.Commit()
			}
		}()
	}

	res := db.Delete(&models.Customer{}, "id = ?", id)
	if res.Error != nil {
		err = fmt.Errorf("failed to delete customer: %w", res.Error)
		return false, err
	}

	return res.RowsAffected > 0, nil
}

// ByFilter retrieves customers matching the filter criteria
func (r *CustomerRepositoryImpl) ByFilter(ctx context.Context, filter models.CustomerFilter, orderBy string, limit, offset int) ([]*models.Customer, error) {
	db := r.getDB(ctx)

	var customers []*models.Customer
	query := r.applyFilter(db, filter)

	if orderBy != "" {
		query = query.Order(orderBy)
	}

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	err := query.Find(&customers).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find customers by filter: %w", err)
	}

	return customers, nil
}

// Count returns the number of customers matching the filter
func (r *CustomerRepositoryImpl) Count(ctx context.Context, filter models.CustomerFilter) (int64, error) {
	db := r.getDB(ctx)

	var count int64
	query := r.applyFilter(db.Model(&models.Customer{}), filter)

	err := query.Count(&count).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count customers: %w", err)
	}

	return count, nil
}

// Exists checks if any customer matching the filter exists
func (r *CustomerRepositoryImpl) Exists(ctx context.Context, filter models.CustomerFilter) (bool, error) {
	count, err := r.Count(ctx, filter)
	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// applyFilter applies filter conditions to the GORM query
func (r *CustomerRepositoryImpl) applyFilter(db *gorm.DB, filter models.CustomerFilter) *gorm.DB {
	if filter.ID != nil {
		db = db.Where("id = ?", *filter.ID)
	}
	if filter.AppID != nil {
		db = db.Where("app_id = ?", *filter.AppID)
	}
	if filter.Platform != nil {
		db = db.Where("platform = ?", *filter.Platform)
	}
	if filter.ScopedID != nil {
		db = db.Where("scoped_id = ?", *filter.ScopedID)
	}
	if filter.Email != nil {
		db = db.Where("email = ?", *filter.Email)
	}
	if filter.Phone != nil {
		db = db.Where("phone = ?", *filter.Phone)
	}
	if filter.IsActive != nil {
		db = db.Where("is_active = ?", *filter.IsActive)
	}
	if filter.IsBlocked != nil {
		db = db.Where("is_blocked = ?", *filter.IsBlocked)
	}
	if filter.CreatedAfter != nil {
		db = db.Where("created_at >= ?", *filter.CreatedAfter)
	}
	if filter.CreatedBefore != nil {
		db = db.Where("created_at <= ?", *filter.CreatedBefore)
	}
	if filter.InteractionAfter != nil {
		db = db.Where("last_interaction_at >= ?", *filter.InteractionAfter)
	}
	if filter.InteractionBefore != nil {
		db = db.Where("last_interaction_at <= ?", *filter.InteractionBefore)
	}
	if filter.Search != nil && *filter.Search != "" {
		pattern := "%" + *filter.Search + "%"
		db = db.Where(
			"first_name ILIKE ? OR last_name ILIKE ? OR email ILIKE ? OR phone ILIKE ? OR scoped_id ILIKE ?",
			pattern, pattern, pattern, pattern, pattern,
		)
	}

	return db
}
