package statecache

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/tokengate/tokengate/internal/rpc"
)

// Caches bundles the per-property contract-state caches behind typed
// accessors. Supply, state and existence caches serve stale values when the
// remote stays down; the reveal-time cache propagates instead, because
// without a reveal time the service cannot gate at all.
type Caches struct {
	table    *HandleTable
	supply   *Cache
	state    *Cache
	exists   *Cache
	reserved *Cache
	reveal   *Cache
}

// NewCaches wires one cache per contract property over a shared handle table
func NewCaches(table *HandleTable, ttl time.Duration, logger zerolog.Logger) *Caches {
	base := Config{
		TTL:    ttl,
		Conn:   table,
		Logger: logger,
	}

	supplyCfg := base
	supplyCfg.Name = "supply"
	supplyCfg.Read = readUint(rpc.SelTotalSupply)
	supplyCfg.Decode = rpc.DecodeUint64
	supplyCfg.Policy = FallbackStale

	stateCfg := base
	stateCfg.Name = "state"
	stateCfg.Read = readUint(rpc.SelSaleState)
	stateCfg.Decode = rpc.DecodeUint64
	stateCfg.Policy = FallbackStale

	existsCfg := base
	existsCfg.Name = "exists"
	existsCfg.Read = readToken(rpc.SelExists)
	existsCfg.Decode = decodeBoolWord
	existsCfg.Policy = FallbackStale

	reservedCfg := base
	reservedCfg.Name = "reserved"
	reservedCfg.Read = readToken(rpc.SelReserved)
	reservedCfg.Decode = decodeBoolWord
	reservedCfg.Policy = FallbackStale

	revealCfg := base
	revealCfg.Name = "reveal"
	revealCfg.Read = readUint(rpc.SelRevealTime)
	revealCfg.Decode = rpc.DecodeUint64
	revealCfg.Policy = FallbackPropagate

	return &Caches{
		table:    table,
		supply:   New(supplyCfg),
		state:    New(stateCfg),
		exists:   New(existsCfg),
		reserved: New(reservedCfg),
		reveal:   New(revealCfg),
	}
}

// readUint binds a parameterless uint256 contract method
func readUint(selector string) ReadFunc {
	return func(ctx context.Context, h *Handle, _ Key) (string, error) {
		return h.Client.CallUint256(ctx, h.Address, selector)
	}
}

// readToken binds a contract method taking the key's token ID
func readToken(selector string) ReadFunc {
	return func(ctx context.Context, h *Handle, key Key) (string, error) {
		return h.Client.CallWithTokenID(ctx, h.Address, selector, key.TokenID)
	}
}

// validateToken rejects token IDs that cannot be ABI-encoded before the read
// path is entered. An unencodable ID is caller input error, not a remote
// failure, so it must never trigger a reconnect or fall back to a default.
func validateToken(tokenID string) error {
	if _, err := rpc.EncodeUint256(tokenID); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidToken, tokenID)
	}
	return nil
}

func decodeBoolWord(raw string) (uint64, error) {
	b, err := rpc.DecodeBool(raw)
	if err != nil {
		return 0, err
	}
	if b {
		return 1, nil
	}
	return 0, nil
}

// Supply returns the collection's current token supply
func (g *Caches) Supply(ctx context.Context, collection string, networkID int64) (uint64, error) {
	return g.supply.Get(ctx, Key{Collection: collection, NetworkID: networkID})
}

// State returns the collection's sale-state ordinal
func (g *Caches) State(ctx context.Context, collection string, networkID int64) (uint64, error) {
	return g.state.Get(ctx, Key{Collection: collection, NetworkID: networkID})
}

// Exists reports whether the token has been minted
func (g *Caches) Exists(ctx context.Context, collection string, networkID int64, tokenID string) (bool, error) {
	if err := validateToken(tokenID); err != nil {
		return false, err
	}
	v, err := g.exists.Get(ctx, Key{Collection: collection, NetworkID: networkID, TokenID: tokenID})
	return v != 0, err
}

// Reserved reports whether the token is held back by the contract
func (g *Caches) Reserved(ctx context.Context, collection string, networkID int64, tokenID string) (bool, error) {
	if err := validateToken(tokenID); err != nil {
		return false, err
	}
	v, err := g.reserved.Get(ctx, Key{Collection: collection, NetworkID: networkID, TokenID: tokenID})
	return v != 0, err
}

// RevealTime returns the collection's metadata reveal time
func (g *Caches) RevealTime(ctx context.Context, collection string, networkID int64) (time.Time, error) {
	v, err := g.reveal.Get(ctx, Key{Collection: collection, NetworkID: networkID})
	if err != nil {
		return time.Time{}, err
	}
	return time.Unix(int64(v), 0).UTC(), nil
}

// WaitUntilReady blocks until every bound node answers
func (g *Caches) WaitUntilReady(ctx context.Context) error {
	return g.table.WaitUntilReady(ctx)
}

// Configured reports whether a (collection, network) pair has a bound handle
func (g *Caches) Configured(collection string, networkID int64) bool {
	_, ok := g.table.Lookup(collection, networkID)
	return ok
}
