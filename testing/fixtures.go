// Package testing provides test utilities and database setup for testing the customer identity service
package testing

import (
	"fmt"
	"math/rand"

	"github.com/brainchat/customer-service/models"
	"github.com/brainchat/customer-service/utils"
	"github.com/google/uuid"
)

// TestFixtures provides helper methods for creating test data
type TestFixtures struct {
	DB *TestDB
}

// NewTestFixtures creates a new test fixtures instance
func NewTestFixtures(db *TestDB) *TestFixtures {
	return &TestFixtures{DB: db}
}

// CreateTestCustomer creates a customer row with a random scoped ID
func (tf *TestFixtures) CreateTestCustomer(appID uuid.UUID, platform string) (*models.Customer, error) {
	now := utils.UTCNow()
	customer := &models.Customer{
		ID:        uuid.New(),
		AppID:     appID,
		Platform:  platform,
		ScopedID:  RandomScopedID(),
		FirstName: utils.ToPtr("John"),
		LastName:  utils.ToPtr("Doe"),
		IsActive:  utils.ToPtr(true),
		IsBlocked: utils.ToPtr(false),
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := tf.DB.DB.Create(customer).Error; err != nil {
		return nil, fmt.Errorf("failed to create test customer: %w", err)
	}

	return customer, nil
}

// CreateTestCustomerWithToken creates a customer row that carries an access token
func (tf *TestFixtures) CreateTestCustomerWithToken(appID uuid.UUID, platform string) (*models.Customer, error) {
	customer, err := tf.CreateTestCustomer(appID, platform)
	if err != nil {
		return nil, err
	}

	now := utils.UTCNow()
	err = tf.DB.DB.Model(customer).Updates(map[string]any{
		"access_token": "test-page-token",
		"token_set_at": now,
	}).Error
	if err != nil {
		return nil, fmt.Errorf("failed to set test access token: %w", err)
	}
	customer.AccessToken = utils.ToPtr("test-page-token")
	customer.TokenSetAt = &now

	return customer, nil
}

// RandomScopedID generates a platform-scoped ID shaped like a Meta PSID
func RandomScopedID() string {
	return fmt.Sprintf("%016d", rand.Int63n(1e16))
}
