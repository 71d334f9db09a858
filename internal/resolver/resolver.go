// Package resolver maps a metadata request to the document to serve, gated
// by the freshness-checked contract state from the statecache.
package resolver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/rs/zerolog"

	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/statecache"
	"github.com/tokengate/tokengate/internal/store"
)

// Gate is the contract-state surface the resolver reads. Implemented by
// statecache.Caches.
type Gate interface {
	Supply(ctx context.Context, collection string, networkID int64) (uint64, error)
	State(ctx context.Context, collection string, networkID int64) (uint64, error)
	Exists(ctx context.Context, collection string, networkID int64, tokenID string) (bool, error)
	Reserved(ctx context.Context, collection string, networkID int64, tokenID string) (bool, error)
	RevealTime(ctx context.Context, collection string, networkID int64) (time.Time, error)
	Configured(collection string, networkID int64) bool
}

// defaultPlaceholder is served pre-reveal when a collection has no
// placeholder document of its own.
var defaultPlaceholder = json.RawMessage(`{"name":"Hidden","description":"Metadata not yet revealed."}`)

// Resolver decides which metadata document a request gets
type Resolver struct {
	store       store.Store
	gate        Gate
	collections map[string]models.Collection
	respCache   *ristretto.Cache[string, []byte]
	respTTL     time.Duration
	now         func() time.Time
	logger      zerolog.Logger
}

// New creates a resolver. Resolved documents are cached for the same window
// as the contract state they were gated on.
func New(st store.Store, gate Gate, collections map[string]models.Collection, ttl time.Duration, logger zerolog.Logger) (*Resolver, error) {
	respCache, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: 10_000,
		MaxCost:     64 << 20, // 64 MiB of resolved documents
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}

	return &Resolver{
		store:       st,
		gate:        gate,
		collections: collections,
		respCache:   respCache,
		respTTL:     ttl,
		now:         time.Now,
		logger:      logger.With().Str("component", "resolver").Logger(),
	}, nil
}

// Collections lists the configured collections, sorted by ID
func (r *Resolver) Collections() []models.Collection {
	out := make([]models.Collection, 0, len(r.collections))
	for _, c := range r.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Resolve returns the metadata document for a token, applying the
// collection's gate. store.ErrNotFound covers unknown collections, unknown
// tokens and tokens that do not exist on chain.
func (r *Resolver) Resolve(ctx context.Context, collection string, networkID int64, tokenID string) (json.RawMessage, error) {
	col, known := r.collections[collection]
	if !known {
		return nil, fmt.Errorf("%w: unknown collection %q", store.ErrNotFound, collection)
	}

	cacheKey := fmt.Sprintf("%s:%d:%s", collection, networkID, tokenID)
	if doc, hit := r.respCache.Get(cacheKey); hit {
		return doc, nil
	}

	doc, err := r.resolve(ctx, col, networkID, tokenID)
	if err != nil {
		return nil, err
	}

	r.respCache.SetWithTTL(cacheKey, doc, int64(len(doc)), r.respTTL)
	return doc, nil
}

func (r *Resolver) resolve(ctx context.Context, col models.Collection, networkID int64, tokenID string) (json.RawMessage, error) {
	switch col.Gate {
	case models.GateReveal:
		revealAt, err := r.gate.RevealTime(ctx, col.ID, networkID)
		if err != nil {
			return nil, err
		}
		if r.now().Before(revealAt) {
			return r.placeholder(ctx, col.ID), nil
		}

	case models.GateExists:
		exists, err := r.gate.Exists(ctx, col.ID, networkID, tokenID)
		if err != nil {
			return nil, err
		}
		if !exists {
			return nil, fmt.Errorf("%w: token %s/%s not minted", store.ErrNotFound, col.ID, tokenID)
		}

		reserved, err := r.gate.Reserved(ctx, col.ID, networkID, tokenID)
		if err != nil {
			return nil, err
		}
		if reserved {
			return r.placeholder(ctx, col.ID), nil
		}

	case models.GateState:
		state, err := r.gate.State(ctx, col.ID, networkID)
		if err != nil {
			return nil, err
		}
		// Per-state document wins; the base document is the fallback.
		if doc, err := r.store.Get(ctx, col.ID, store.StateKey(tokenID, state)); err == nil {
			return doc, nil
		} else if !errors.Is(err, store.ErrNotFound) {
			return nil, err
		}
	}

	return r.store.Get(ctx, col.ID, tokenID)
}

// placeholder returns the collection's placeholder document, or the built-in
// default when none is stored.
func (r *Resolver) placeholder(ctx context.Context, collection string) json.RawMessage {
	doc, err := r.store.Get(ctx, collection, store.PlaceholderToken)
	if err != nil {
		return defaultPlaceholder
	}
	return doc
}

// GateStatus collects the live gate state of a collection for diagnostics.
// Individual read failures degrade to zero values; a missing deployment is
// reported as not configured.
func (r *Resolver) GateStatus(ctx context.Context, collection string, networkID int64) (models.GateStatus, error) {
	col, known := r.collections[collection]
	if !known {
		return models.GateStatus{}, fmt.Errorf("%w: unknown collection %q", store.ErrNotFound, collection)
	}
	if !r.gate.Configured(collection, networkID) {
		return models.GateStatus{}, fmt.Errorf("%w: %s on chain %d", statecache.ErrNotConfigured, collection, networkID)
	}

	status := models.GateStatus{
		Collection: col.ID,
		NetworkID:  networkID,
		Gate:       col.Gate,
		Revealed:   true,
	}

	if supply, err := r.gate.Supply(ctx, collection, networkID); err == nil {
		status.Supply = supply
	} else {
		r.logger.Debug().Err(err).Str("collection", collection).Msg("supply read failed")
	}

	if state, err := r.gate.State(ctx, collection, networkID); err == nil {
		status.State = state
	} else {
		r.logger.Debug().Err(err).Str("collection", collection).Msg("state read failed")
	}

	if revealAt, err := r.gate.RevealTime(ctx, collection, networkID); err == nil {
		status.RevealAt = revealAt
		status.Revealed = !r.now().Before(revealAt)
	} else {
		r.logger.Debug().Err(err).Str("collection", collection).Msg("reveal read failed")
	}

	return status, nil
}
