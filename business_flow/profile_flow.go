package businessflow

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/brainchat/customer-service/app/services"
	"github.com/brainchat/customer-service/config"
	"github.com/brainchat/customer-service/repository"
	"github.com/brainchat/customer-service/utils"
	"github.com/google/uuid"
)

// ProfileSource reports where FetchProfile got its data
type ProfileSource string

const (
	SourceCache  ProfileSource = "cache"
	SourceRemote ProfileSource = "remote"
)

// ProfileResult is the outcome of a profile fetch
type ProfileResult struct {
	Fields    services.ProfileFields
	Source    ProfileSource
	Stale     bool
	FetchedAt time.Time
}

// ProfileFlow resolves display profiles through the cache, hitting the
// Graph API only on miss or expiry. The cache turns a per-message external
// call into a per-TTL-window one.
type ProfileFlow interface {
	FetchProfile(ctx context.Context, customerID uuid.UUID) (*ProfileResult, error)
	InvalidateProfile(ctx context.Context, customerID uuid.UUID) error
}

type ProfileFlowImpl struct {
	customerRepo repository.CustomerRepository
	customerFlow CustomerFlow
	cache        services.ProfileCache
	graph        services.GraphAPIClient
	cacheConfig  *config.CacheConfig
}

func NewProfileFlow(
	customerRepo repository.CustomerRepository,
	customerFlow CustomerFlow,
	cache services.ProfileCache,
	graph services.GraphAPIClient,
	cacheConfig *config.CacheConfig,
) ProfileFlow {
	return &ProfileFlowImpl{
		customerRepo: customerRepo,
		customerFlow: customerFlow,
		cache:        cache,
		graph:        graph,
		cacheConfig:  cacheConfig,
	}
}

// FetchProfile returns the customer's display profile, preferring the cache.
// On a remote fetch the result is written back to the cache and merged into
// the identity store without touching the interaction time. A rate-limited
// refresh leaves any stale entry in place; whether it may be served is a
// policy choice (Cache.ServeStale), surfaced to the caller via Stale.
func (f *ProfileFlowImpl) FetchProfile(ctx context.Context, customerID uuid.UUID) (*ProfileResult, error) {
	if customerID == uuid.Nil {
		return nil, NewBusinessError("CUSTOMER_ID_REQUIRED", "customer_id is required", ErrCustomerIDRequired)
	}

	customer, err := f.customerRepo.ByID(ctx, customerID)
	if err != nil {
		return nil, NewBusinessError("CUSTOMER_FETCH_FAILED", "Failed to fetch customer", errors.Join(ErrUpstreamUnavailable, err))
	}
	if customer == nil {
		return nil, NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	now := utils.UTCNow()

	// Cache read failures degrade to a miss; the cache is never
	// correctness-critical.
	cached, err := f.cache.Get(ctx, customer.Platform, customer.ScopedID)
	if err != nil {
		log.Printf("profile cache read failed for %s/%s: %v", customer.Platform, customer.ScopedID, err)
		cached = nil
	}

	if cached != nil && now.Sub(cached.FetchedAt) <= f.cacheConfig.ProfileTTL {
		return &ProfileResult{
			Fields:    cached.Fields(),
			Source:    SourceCache,
			FetchedAt: cached.FetchedAt,
		}, nil
	}

	if !customer.HasAccessToken() {
		return nil, NewBusinessError("ACCESS_TOKEN_MISSING", "Customer does not have an access token", ErrAccessTokenMissing)
	}

	profile, err := f.graph.GetUserProfile(ctx, *customer.AccessToken, customer.ScopedID)
	if err != nil {
		return f.classifyFetchError(err, cached, now)
	}

	entry := services.CachedProfile{
		FirstName:     profile.Fields.FirstName,
		LastName:      profile.Fields.LastName,
		ProfilePicURL: profile.Fields.ProfilePicURL,
		FetchedAt:     now,
	}
	if err := f.cache.Set(ctx, customer.Platform, customer.ScopedID, entry); err != nil {
		log.Printf("profile cache write failed for %s/%s: %v", customer.Platform, customer.ScopedID, err)
	}

	// Merge fetched fields into the identity store. No interaction touch:
	// a profile refresh is not a customer interaction.
	_, err = f.customerFlow.Upsert(ctx, UpsertInput{
		AppID:    customer.AppID,
		Platform: customer.Platform,
		ScopedID: customer.ScopedID,
		Fields: CustomerFields{
			FirstName:      profile.Fields.FirstName,
			LastName:       profile.Fields.LastName,
			ProfilePicURL:  profile.Fields.ProfilePicURL,
			CustomMetadata: profile.Raw,
		},
		TouchInteraction: false,
		At:               now,
	})
	if err != nil {
		return nil, err
	}

	return &ProfileResult{
		Fields:    profile.Fields,
		Source:    SourceRemote,
		FetchedAt: now,
	}, nil
}

// classifyFetchError maps Graph API failures onto the error taxonomy,
// applying the stale-serve policy on throttling.
func (f *ProfileFlowImpl) classifyFetchError(err error, cached *services.CachedProfile, now time.Time) (*ProfileResult, error) {
	switch {
	case errors.Is(err, services.ErrGraphRateLimited):
		if f.cacheConfig.ServeStale && cached != nil && now.Sub(cached.FetchedAt) <= f.cacheConfig.ProfileTTL+f.cacheConfig.StaleWindow {
			return &ProfileResult{
				Fields:    cached.Fields(),
				Source:    SourceCache,
				Stale:     true,
				FetchedAt: cached.FetchedAt,
			}, nil
		}
		return nil, NewBusinessError("GRAPH_RATE_LIMITED", "Graph API rate limit reached", errors.Join(ErrRateLimited, err))
	case errors.Is(err, services.ErrGraphTokenRejected):
		return nil, NewBusinessError("GRAPH_TOKEN_REJECTED", "Access token rejected by the Graph API", errors.Join(ErrTokenRejected, err))
	case errors.Is(err, services.ErrGraphProfileNotFound):
		return nil, NewBusinessError("GRAPH_PROFILE_NOT_FOUND", "Profile not found on the Graph API", errors.Join(ErrProfileNotFound, err))
	default:
		return nil, NewBusinessError("GRAPH_UNAVAILABLE", "Graph API unavailable", errors.Join(ErrUpstreamUnavailable, err))
	}
}

// InvalidateProfile drops the cached profile for a customer
func (f *ProfileFlowImpl) InvalidateProfile(ctx context.Context, customerID uuid.UUID) error {
	customer, err := f.customerRepo.ByID(ctx, customerID)
	if err != nil {
		return NewBusinessError("CUSTOMER_FETCH_FAILED", "Failed to fetch customer", errors.Join(ErrUpstreamUnavailable, err))
	}
	if customer == nil {
		return NewBusinessError("CUSTOMER_NOT_FOUND", "Customer not found", ErrCustomerNotFound)
	}

	if err := f.cache.Invalidate(ctx, customer.Platform, customer.ScopedID); err != nil {
		return NewBusinessError("CACHE_INVALIDATE_FAILED", "Failed to invalidate profile cache", errors.Join(ErrCacheNotAvailable, err))
	}

	return nil
}
