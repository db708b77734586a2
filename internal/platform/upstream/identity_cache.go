package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/ehr/clinical-history/internal/platform/cache"
)

// IdentityResolver layers a read-through cache over the identity fetch. A
// hit skips the breaker and the network entirely; a miss goes through the
// guarded gateway and populates the cache only on success. Concurrent misses
// for the same patient each fetch and overwrite; last writer wins.
type IdentityResolver struct {
	store   cache.Store
	fetcher IdentityFetcher
	ttl     time.Duration
	logger  zerolog.Logger
}

func NewIdentityResolver(store cache.Store, fetcher IdentityFetcher, ttl time.Duration, logger zerolog.Logger) *IdentityResolver {
	return &IdentityResolver{
		store:   store,
		fetcher: fetcher,
		ttl:     ttl,
		logger:  logger,
	}
}

func identityKey(patientID string) string {
	return "identity:" + patientID
}

// Resolve returns the identity for patientID, from cache when possible.
func (r *IdentityResolver) Resolve(ctx context.Context, patientID, token string) (*IdentityData, error) {
	key := identityKey(patientID)

	cached, err := r.store.Get(ctx, key)
	if err == nil {
		var identity IdentityData
		if err := json.Unmarshal(cached, &identity); err == nil {
			r.logger.Debug().Str("patient_id", patientID).Msg("identity cache hit")
			return &identity, nil
		}
		// Corrupt entry; fall through to a fresh fetch.
		r.logger.Warn().Str("key", key).Msg("discarding undecodable cache entry")
	} else if !errors.Is(err, cache.ErrMiss) {
		// Cache backend trouble is not fatal; fetch live.
		r.logger.Warn().Err(err).Str("key", key).Msg("identity cache read failed")
	}

	identity, err := r.fetcher.FetchIdentity(ctx, patientID, token)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(identity)
	if err != nil {
		return nil, fmt.Errorf("encode identity for cache: %w", err)
	}
	if err := r.store.Set(ctx, key, payload, r.ttl); err != nil {
		// The fetch succeeded; a cache write failure only costs the next
		// request a miss.
		r.logger.Warn().Err(err).Str("key", key).Msg("identity cache write failed")
	}

	return identity, nil
}
