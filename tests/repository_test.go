// Package tests contains test cases for models and repository packages to avoid circular imports
package tests

import (
	"testing"
	"time"

	"github.com/brainchat/customer-service/models"
	"github.com/brainchat/customer-service/repository"
	testingutil "github.com/brainchat/customer-service/testing"
	"github.com/brainchat/customer-service/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// withTestDB runs fn against a fresh database, skipping when none is reachable
func withTestDB(t *testing.T, fn func(t *testing.T, testDB *testingutil.TestDB)) {
	t.Helper()

	testDB, err := testingutil.SetupTestDB()
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}
	defer func() {
		if err := testDB.TeardownTestDB(); err != nil {
			t.Logf("Warning: failed to cleanup test database: %v", err)
		}
	}()

	fn(t, testDB)
}

func TestCustomerRepository(t *testing.T) {
	withTestDB(t, func(t *testing.T, testDB *testingutil.TestDB) {
		repo := repository.NewCustomerRepository(testDB.DB)
		ctx := testingutil.CreateTestContext()
		appID := uuid.New()

		newRow := func(scopedID string) *models.Customer {
			now := utils.UTCNow()
			return &models.Customer{
				ID:        uuid.New(),
				AppID:     appID,
				Platform:  models.PlatformInstagram,
				ScopedID:  scopedID,
				IsActive:  utils.ToPtr(true),
				IsBlocked: utils.ToPtr(false),
				CreatedAt: now,
				UpdatedAt: now,
			}
		}

		t.Run("InsertAndByScopedID", func(t *testing.T) {
			row := newRow("1000000000000001")
			require.NoError(t, repo.Insert(ctx, row))

			found, err := repo.ByScopedID(ctx, appID, models.PlatformInstagram, "1000000000000001")
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, row.ID, found.ID)

			// Same scoped ID on the other platform is a different identity
			missing, err := repo.ByScopedID(ctx, appID, models.PlatformFacebook, "1000000000000001")
			require.NoError(t, err)
			assert.Nil(t, missing)
		})

		t.Run("InsertDuplicateKey", func(t *testing.T) {
			row := newRow("1000000000000002")
			require.NoError(t, repo.Insert(ctx, row))

			dup := newRow("1000000000000002")
			err := repo.Insert(ctx, dup)
			require.Error(t, err)
			assert.ErrorIs(t, err, repository.ErrDuplicateKey)
		})

		t.Run("UpdateFieldsPartial", func(t *testing.T) {
			row := newRow("1000000000000003")
			require.NoError(t, repo.Insert(ctx, row))

			err := repo.UpdateFields(ctx, row.ID, map[string]any{
				"first_name": "Jane",
				"updated_at": utils.UTCNow(),
			})
			require.NoError(t, err)

			found, err := repo.ByID(ctx, row.ID)
			require.NoError(t, err)
			require.NotNil(t, found)
			require.NotNil(t, found.FirstName)
			assert.Equal(t, "Jane", *found.FirstName)
			// Untouched columns keep their values
			assert.Nil(t, found.LastName)
		})

		t.Run("TouchInteractionMonotonic", func(t *testing.T) {
			row := newRow("1000000000000004")
			require.NoError(t, repo.Insert(ctx, row))

			base := utils.UTCNow().Truncate(time.Millisecond)

			rows, err := repo.TouchInteraction(ctx, row.ID, base)
			require.NoError(t, err)
			assert.Equal(t, int64(1), rows)

			// An older timestamp must not move the stored value backwards
			_, err = repo.TouchInteraction(ctx, row.ID, base.Add(-time.Hour))
			require.NoError(t, err)

			found, err := repo.ByID(ctx, row.ID)
			require.NoError(t, err)
			require.NotNil(t, found.LastInteractionAt)
			assert.WithinDuration(t, base, *found.LastInteractionAt, time.Millisecond)

			// A newer timestamp advances it
			later := base.Add(time.Hour)
			_, err = repo.TouchInteraction(ctx, row.ID, later)
			require.NoError(t, err)

			found, err = repo.ByID(ctx, row.ID)
			require.NoError(t, err)
			require.NotNil(t, found.LastInteractionAt)
			assert.WithinDuration(t, later, *found.LastInteractionAt, time.Millisecond)
		})

		t.Run("TouchInteractionMissingRow", func(t *testing.T) {
			rows, err := repo.TouchInteraction(ctx, uuid.New(), utils.UTCNow())
			require.NoError(t, err)
			assert.Equal(t, int64(0), rows)
		})

		t.Run("Delete", func(t *testing.T) {
			row := newRow("1000000000000005")
			require.NoError(t, repo.Insert(ctx, row))

			deleted, err := repo.Delete(ctx, row.ID)
			require.NoError(t, err)
			assert.True(t, deleted)

			found, err := repo.ByID(ctx, row.ID)
			require.NoError(t, err)
			assert.Nil(t, found)

			deleted, err = repo.Delete(ctx, row.ID)
			require.NoError(t, err)
			assert.False(t, deleted)
		})

		t.Run("SchemaIndexes", func(t *testing.T) {
			// The migration must carry every index the model declares
			expected := []string{
				"uk_customers_app_platform_scoped",
				"idx_customers_app_id",
				"idx_customers_scoped_id",
				"idx_customers_email",
				"idx_customers_phone",
				"idx_customers_is_active",
				"idx_customers_created_at",
				"idx_customers_last_interaction_at",
			}

			var names []string
			err := testDB.DB.Raw("SELECT indexname FROM pg_indexes WHERE tablename = 'customers'").Scan(&names).Error
			require.NoError(t, err)
			for _, name := range expected {
				assert.Contains(t, names, name)
			}
		})

		t.Run("FilterAndCount", func(t *testing.T) {
			otherApp := uuid.New()
			row := newRow("1000000000000006")
			row.FirstName = utils.ToPtr("Searchable")
			require.NoError(t, repo.Insert(ctx, row))

			other := newRow("1000000000000007")
			other.AppID = otherApp
			require.NoError(t, repo.Insert(ctx, other))

			// Listing is scoped per app
			count, err := repo.Count(ctx, models.CustomerFilter{AppID: &otherApp})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)

			search := "searchable"
			matches, err := repo.ByFilter(ctx, models.CustomerFilter{AppID: &appID, Search: &search}, "created_at DESC", 10, 0)
			require.NoError(t, err)
			require.Len(t, matches, 1)
			assert.Equal(t, row.ID, matches[0].ID)
		})
	})
}
