package tests

import (
	"sync"
	"testing"
	"time"

	businessflow "github.com/brainchat/customer-service/business_flow"
	"github.com/brainchat/customer-service/models"
	"github.com/brainchat/customer-service/repository"
	testingutil "github.com/brainchat/customer-service/testing"
	"github.com/brainchat/customer-service/utils"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCustomerFlowUpsert(t *testing.T) {
	withTestDB(t, func(t *testing.T, testDB *testingutil.TestDB) {
		customerRepo := repository.NewCustomerRepository(testDB.DB)
		flow := businessflow.NewCustomerFlow(customerRepo, testDB.DB)
		ctx := testingutil.CreateTestContext()
		appID := uuid.New()

		t.Run("CreatesOnFirstDelivery", func(t *testing.T) {
			at := utils.UTCNow().Truncate(time.Millisecond)
			result, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformInstagram,
				ScopedID: "2000000000000001",
				Fields: businessflow.CustomerFields{
					FirstName: utils.ToPtr("Ada"),
				},
				TouchInteraction: true,
				At:               at,
			})
			require.NoError(t, err)
			assert.True(t, result.Created)
			require.NotNil(t, result.Customer.FirstName)
			assert.Equal(t, "Ada", *result.Customer.FirstName)
			require.NotNil(t, result.Customer.LastInteractionAt)
			assert.WithinDuration(t, at, *result.Customer.LastInteractionAt, time.Millisecond)
		})

		t.Run("RedeliveryIsIdempotent", func(t *testing.T) {
			in := businessflow.UpsertInput{
				AppID:            appID,
				Platform:         models.PlatformInstagram,
				ScopedID:         "2000000000000002",
				Fields:           businessflow.CustomerFields{FirstName: utils.ToPtr("Ada")},
				TouchInteraction: true,
				At:               utils.UTCNow().Truncate(time.Millisecond),
			}

			first, err := flow.Upsert(ctx, in)
			require.NoError(t, err)
			assert.True(t, first.Created)

			second, err := flow.Upsert(ctx, in)
			require.NoError(t, err)
			assert.False(t, second.Created)
			assert.Equal(t, first.Customer.ID, second.Customer.ID)

			// Exactly one row for the key
			count, err := customerRepo.Count(ctx, models.CustomerFilter{AppID: &appID, Platform: utils.ToPtr(models.PlatformInstagram)})
			require.NoError(t, err)
			assert.GreaterOrEqual(t, count, int64(1))
			found, err := customerRepo.ByScopedID(ctx, appID, models.PlatformInstagram, "2000000000000002")
			require.NoError(t, err)
			assert.Equal(t, first.Customer.ID, found.ID)
		})

		t.Run("ConcurrentDeliveriesCreateOneRow", func(t *testing.T) {
			const workers = 8
			scopedID := "2000000000000010"
			in := businessflow.UpsertInput{
				AppID:            appID,
				Platform:         models.PlatformInstagram,
				ScopedID:         scopedID,
				Fields:           businessflow.CustomerFields{FirstName: utils.ToPtr("Ada")},
				TouchInteraction: true,
				At:               utils.UTCNow().Truncate(time.Millisecond),
			}

			results := make([]*businessflow.UpsertResult, workers)
			errs := make([]error, workers)
			var start sync.WaitGroup
			var done sync.WaitGroup
			start.Add(1)
			for i := 0; i < workers; i++ {
				done.Add(1)
				go func(i int) {
					defer done.Done()
					start.Wait()
					results[i], errs[i] = flow.Upsert(ctx, in)
				}(i)
			}
			start.Done()
			done.Wait()

			// Every delivery resolves; losers of the insert race merge instead
			created := 0
			var winnerID uuid.UUID
			for i := 0; i < workers; i++ {
				require.NoError(t, errs[i])
				require.NotNil(t, results[i])
				if results[i].Created {
					created++
					winnerID = results[i].Customer.ID
				}
			}
			assert.Equal(t, 1, created)
			for i := 0; i < workers; i++ {
				assert.Equal(t, winnerID, results[i].Customer.ID)
			}

			count, err := customerRepo.Count(ctx, models.CustomerFilter{
				AppID:    &appID,
				Platform: utils.ToPtr(models.PlatformInstagram),
				ScopedID: &scopedID,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(1), count)
		})

		t.Run("MergeLeavesAbsentFieldsUntouched", func(t *testing.T) {
			at := utils.UTCNow().Truncate(time.Millisecond)
			_, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformInstagram,
				ScopedID: "2000000000000003",
				Fields: businessflow.CustomerFields{
					FirstName: utils.ToPtr("Grace"),
					LastName:  utils.ToPtr("Hopper"),
				},
				At: at,
			})
			require.NoError(t, err)

			// Second delivery updates only the email
			result, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformInstagram,
				ScopedID: "2000000000000003",
				Fields: businessflow.CustomerFields{
					Email: utils.ToPtr("grace@example.com"),
				},
				At: at.Add(time.Minute),
			})
			require.NoError(t, err)
			assert.False(t, result.Created)
			require.NotNil(t, result.Customer.FirstName)
			assert.Equal(t, "Grace", *result.Customer.FirstName)
			require.NotNil(t, result.Customer.Email)
			assert.Equal(t, "grace@example.com", *result.Customer.Email)
		})

		t.Run("ExplicitEmptyOverwrites", func(t *testing.T) {
			at := utils.UTCNow().Truncate(time.Millisecond)
			_, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformInstagram,
				ScopedID: "2000000000000004",
				Fields:   businessflow.CustomerFields{FirstName: utils.ToPtr("Alan")},
				At:       at,
			})
			require.NoError(t, err)

			result, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformInstagram,
				ScopedID: "2000000000000004",
				Fields:   businessflow.CustomerFields{FirstName: utils.ToPtr("")},
				At:       at.Add(time.Minute),
			})
			require.NoError(t, err)
			require.NotNil(t, result.Customer.FirstName)
			assert.Equal(t, "", *result.Customer.FirstName)
		})

		t.Run("OutOfOrderTouchNeverRegresses", func(t *testing.T) {
			later := utils.UTCNow().Truncate(time.Millisecond)
			earlier := later.Add(-time.Hour)

			_, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:            appID,
				Platform:         models.PlatformInstagram,
				ScopedID:         "2000000000000005",
				TouchInteraction: true,
				At:               later,
			})
			require.NoError(t, err)

			// A delayed webhook delivery carries an older timestamp
			result, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:            appID,
				Platform:         models.PlatformInstagram,
				ScopedID:         "2000000000000005",
				TouchInteraction: true,
				At:               earlier,
			})
			require.NoError(t, err)
			require.NotNil(t, result.Customer.LastInteractionAt)
			assert.WithinDuration(t, later, *result.Customer.LastInteractionAt, time.Millisecond)
		})

		t.Run("AccessTokenSetsTokenTime", func(t *testing.T) {
			at := utils.UTCNow().Truncate(time.Millisecond)
			result, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformFacebook,
				ScopedID: "2000000000000006",
				Fields:   businessflow.CustomerFields{AccessToken: utils.ToPtr("page-token")},
				At:       at,
			})
			require.NoError(t, err)
			assert.True(t, result.Customer.HasAccessToken())
			require.NotNil(t, result.Customer.TokenSetAt)
			assert.WithinDuration(t, at, *result.Customer.TokenSetAt, time.Millisecond)
		})

		t.Run("RejectsInvalidKey", func(t *testing.T) {
			_, err := flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    uuid.Nil,
				Platform: models.PlatformInstagram,
				ScopedID: "2000000000000007",
			})
			require.Error(t, err)
			assert.Equal(t, businessflow.KindInvalidArgument, businessflow.KindOf(err))

			_, err = flow.Upsert(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: "whatsapp",
				ScopedID: "2000000000000007",
			})
			require.Error(t, err)
			assert.Equal(t, businessflow.KindInvalidArgument, businessflow.KindOf(err))
		})
	})
}

func TestCustomerFlowCRUD(t *testing.T) {
	withTestDB(t, func(t *testing.T, testDB *testingutil.TestDB) {
		customerRepo := repository.NewCustomerRepository(testDB.DB)
		flow := businessflow.NewCustomerFlow(customerRepo, testDB.DB)
		ctx := testingutil.CreateTestContext()
		appID := uuid.New()

		t.Run("CreateRejectsExistingKey", func(t *testing.T) {
			in := businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformInstagram,
				ScopedID: "3000000000000001",
			}
			_, err := flow.Create(ctx, in)
			require.NoError(t, err)

			_, err = flow.Create(ctx, in)
			require.Error(t, err)
			assert.True(t, businessflow.IsCustomerAlreadyExists(err))
			assert.Equal(t, businessflow.KindConflict, businessflow.KindOf(err))
		})

		t.Run("GetByIDNotFound", func(t *testing.T) {
			_, err := flow.GetByID(ctx, uuid.New())
			require.Error(t, err)
			assert.True(t, businessflow.IsCustomerNotFound(err))
		})

		t.Run("UpdateRequiresFields", func(t *testing.T) {
			customer, err := flow.Create(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformInstagram,
				ScopedID: "3000000000000002",
			})
			require.NoError(t, err)

			_, err = flow.Update(ctx, customer.ID, businessflow.CustomerFields{})
			require.Error(t, err)
			assert.Equal(t, businessflow.KindInvalidArgument, businessflow.KindOf(err))

			updated, err := flow.Update(ctx, customer.ID, businessflow.CustomerFields{Phone: utils.ToPtr("+15550100")})
			require.NoError(t, err)
			require.NotNil(t, updated.Phone)
			assert.Equal(t, "+15550100", *updated.Phone)
		})

		t.Run("SetBlockedIsIdempotent", func(t *testing.T) {
			customer, err := flow.Create(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformFacebook,
				ScopedID: "3000000000000003",
			})
			require.NoError(t, err)

			blocked, err := flow.SetBlocked(ctx, customer.ID, true)
			require.NoError(t, err)
			assert.True(t, utils.IsTrue(blocked.IsBlocked))

			blocked, err = flow.SetBlocked(ctx, customer.ID, true)
			require.NoError(t, err)
			assert.True(t, utils.IsTrue(blocked.IsBlocked))
			// Blocking never counts as an interaction
			assert.Nil(t, blocked.LastInteractionAt)

			unblocked, err := flow.SetBlocked(ctx, customer.ID, false)
			require.NoError(t, err)
			assert.False(t, utils.IsTrue(unblocked.IsBlocked))
		})

		t.Run("DeleteThenLookupFails", func(t *testing.T) {
			customer, err := flow.Create(ctx, businessflow.UpsertInput{
				AppID:    appID,
				Platform: models.PlatformFacebook,
				ScopedID: "3000000000000004",
			})
			require.NoError(t, err)

			require.NoError(t, flow.Delete(ctx, customer.ID))

			err = flow.Delete(ctx, customer.ID)
			require.Error(t, err)
			assert.True(t, businessflow.IsCustomerNotFound(err))
		})

		t.Run("ListPaginates", func(t *testing.T) {
			listApp := uuid.New()
			for i := 0; i < 5; i++ {
				_, err := flow.Create(ctx, businessflow.UpsertInput{
					AppID:    listApp,
					Platform: models.PlatformInstagram,
					ScopedID: testingutil.RandomScopedID(),
				})
				require.NoError(t, err)
			}

			customers, total, err := flow.List(ctx, businessflow.ListCustomersInput{
				AppID:    listApp,
				Page:     1,
				PageSize: 2,
			})
			require.NoError(t, err)
			assert.Equal(t, int64(5), total)
			assert.Len(t, customers, 2)

			customers, _, err = flow.List(ctx, businessflow.ListCustomersInput{
				AppID:    listApp,
				Page:     3,
				PageSize: 2,
			})
			require.NoError(t, err)
			assert.Len(t, customers, 1)
		})
	})
}
