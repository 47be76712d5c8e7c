package places

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/dealeriq/priorityd/internal/cache"
)

const (
	rateLimitKeyPrefix = "rate:resolve:ip:"
	findCacheKeyPrefix = "places:find:"
	detailsCachePrefix = "places:details:"
)

// RateLimitError reports a denied rate-limit ticket together with the
// remaining window the caller should wait out.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

// CandidatePolicy selects the candidate to resolve from the provider's
// ranked result set. The default takes the first; swapping the policy does
// not touch caching or normalization.
type CandidatePolicy func(candidates []Place) *Place

func FirstCandidate(candidates []Place) *Place {
	if len(candidates) == 0 {
		return nil
	}
	return &candidates[0]
}

type ResolverOptions struct {
	Provider        Provider
	Cache           cache.Store
	Logger          *zap.Logger
	SelectCandidate CandidatePolicy
	RateWindow      time.Duration
	FindTTL         time.Duration
	DetailsTTL      time.Duration
}

type Resolver struct {
	provider        Provider
	cache           cache.Store
	logger          *zap.Logger
	selectCandidate CandidatePolicy
	rateWindow      time.Duration
	findTTL         time.Duration
	detailsTTL      time.Duration
}

func NewResolver(opts ResolverOptions) *Resolver {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	selectCandidate := opts.SelectCandidate
	if selectCandidate == nil {
		selectCandidate = FirstCandidate
	}
	rateWindow := opts.RateWindow
	if rateWindow <= 0 {
		rateWindow = 60 * time.Second
	}
	findTTL := opts.FindTTL
	if findTTL <= 0 {
		findTTL = 24 * time.Hour
	}
	detailsTTL := opts.DetailsTTL
	if detailsTTL <= 0 {
		// Details churn far less than free-text match quality.
		detailsTTL = 7 * 24 * time.Hour
	}
	return &Resolver{
		provider:        opts.Provider,
		cache:           opts.Cache,
		logger:          logger,
		selectCandidate: selectCandidate,
		rateWindow:      rateWindow,
		findTTL:         findTTL,
		detailsTTL:      detailsTTL,
	}
}

// Resolution is the merged profile returned to callers. Found=false still
// carries any CID extracted from the input plus a dealer key derived from
// the raw query so downstream joins remain possible.
type Resolution struct {
	OK               bool            `json:"ok"`
	Dealer           string          `json:"dealer"`
	Input            string          `json:"input"`
	DealerKey        string          `json:"dealer_key"`
	PlaceID          string          `json:"place_id,omitempty"`
	CID              string          `json:"cid,omitempty"`
	Name             string          `json:"name,omitempty"`
	FormattedAddress string          `json:"formatted_address,omitempty"`
	Website          string          `json:"website,omitempty"`
	MapsURL          string          `json:"maps_url,omitempty"`
	Phone            string          `json:"phone,omitempty"`
	Rating           *float64        `json:"rating,omitempty"`
	UserRatingsTotal *int            `json:"user_ratings_total,omitempty"`
	OpeningHours     json.RawMessage `json:"opening_hours,omitempty"`
	Types            []string        `json:"types,omitempty"`
	Source           string          `json:"source,omitempty"`
	Note             string          `json:"note,omitempty"`
	Found            bool            `json:"-"`
}

// Resolve rate-limits the caller identity, then serves the find/details
// lookups cache-aside. A rate-limit store failure fails open rather than
// blocking all traffic.
func (r *Resolver) Resolve(ctx context.Context, input, dealer, callerIdentity string) (Resolution, error) {
	allowed, retryAfter, err := r.cache.Acquire(ctx, rateLimitKeyPrefix+callerIdentity, r.rateWindow)
	if err != nil {
		r.logger.Warn("rate limit store unavailable, failing open", zap.Error(err))
		allowed = true
	}
	if !allowed {
		if retryAfter < time.Second {
			retryAfter = time.Second
		}
		return Resolution{}, &RateLimitError{RetryAfter: retryAfter}
	}

	cidFromInput := ExtractCIDFromMapsURL(input)

	found, err := r.findCached(ctx, input)
	if err != nil {
		return Resolution{}, err
	}
	if found == nil {
		return Resolution{
			OK:        true,
			Dealer:    dealer,
			Input:     input,
			CID:       cidFromInput,
			DealerKey: DealerKey(input, ""),
			Note:      "no candidate found; only cid (if any) returned",
		}, nil
	}

	details, err := r.detailsCached(ctx, found.PlaceID)
	if err != nil {
		return Resolution{}, err
	}

	merged := mergeProfile(found, details)
	merged.CID = firstNonEmpty(merged.CID, cidFromInput)
	resolution := Resolution{
		OK:               true,
		Dealer:           dealer,
		Input:            input,
		DealerKey:        DealerKey(merged.Name, merged.FormattedAddress),
		PlaceID:          merged.PlaceID,
		CID:              merged.CID,
		Name:             merged.Name,
		FormattedAddress: merged.FormattedAddress,
		Website:          merged.Website,
		MapsURL:          merged.MapsURL,
		Phone:            merged.Phone,
		Rating:           merged.Rating,
		UserRatingsTotal: merged.UserRatingsTotal,
		OpeningHours:     merged.OpeningHours,
		Types:            merged.Types,
		Source:           "google-places",
		Found:            true,
	}
	return resolution, nil
}

func (r *Resolver) findCached(ctx context.Context, input string) (*Place, error) {
	key := findCacheKeyPrefix + sha1Hex(input)
	if cached := r.cacheGet(ctx, key); cached != nil {
		return cached, nil
	}
	candidates, err := r.provider.FindPlace(ctx, input)
	if err != nil {
		return nil, err
	}
	found := r.selectCandidate(candidates)
	if found != nil {
		r.cacheSet(ctx, key, found, r.findTTL)
	}
	return found, nil
}

func (r *Resolver) detailsCached(ctx context.Context, placeID string) (*Place, error) {
	if placeID == "" {
		return nil, nil
	}
	key := detailsCachePrefix + placeID
	if cached := r.cacheGet(ctx, key); cached != nil {
		return cached, nil
	}
	details, err := r.provider.PlaceDetails(ctx, placeID)
	if err != nil {
		return nil, err
	}
	if details != nil {
		r.cacheSet(ctx, key, details, r.detailsTTL)
	}
	return details, nil
}

// Cache failures are never fatal: presence is a valid stale substitute,
// absence just means a live call.
func (r *Resolver) cacheGet(ctx context.Context, key string) *Place {
	raw, err := r.cache.Get(ctx, key)
	if err != nil {
		return nil
	}
	var place Place
	if err := json.Unmarshal(raw, &place); err != nil {
		return nil
	}
	return &place
}

func (r *Resolver) cacheSet(ctx context.Context, key string, place *Place, ttl time.Duration) {
	raw, err := json.Marshal(place)
	if err != nil {
		return
	}
	if err := r.cache.Set(ctx, key, raw, ttl); err != nil {
		r.logger.Debug("cache write failed", zap.String("key", key), zap.Error(err))
	}
}

func mergeProfile(found, details *Place) Place {
	if details == nil {
		return *found
	}
	merged := *details
	merged.PlaceID = firstNonEmpty(details.PlaceID, found.PlaceID)
	merged.Name = firstNonEmpty(details.Name, found.Name)
	merged.FormattedAddress = firstNonEmpty(details.FormattedAddress, found.FormattedAddress)
	merged.Website = firstNonEmpty(details.Website, found.Website)
	merged.MapsURL = firstNonEmpty(details.MapsURL, found.MapsURL)
	merged.Phone = firstNonEmpty(details.Phone, found.Phone)
	merged.CID = firstNonEmpty(details.CID, found.CID)
	if merged.Rating == nil {
		merged.Rating = found.Rating
	}
	if merged.UserRatingsTotal == nil {
		merged.UserRatingsTotal = found.UserRatingsTotal
	}
	return merged
}

func firstNonEmpty(values ...string) string {
	for _, value := range values {
		if value != "" {
			return value
		}
	}
	return ""
}
