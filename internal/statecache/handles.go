package statecache

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/rpc"
)

// Key addresses one cached contract property. TokenID is empty for
// collection-wide properties (supply, state, reveal time).
type Key struct {
	Collection string
	NetworkID  int64
	TokenID    string
}

func (k Key) String() string {
	if k.TokenID == "" {
		return fmt.Sprintf("%s:%d", k.Collection, k.NetworkID)
	}
	return fmt.Sprintf("%s:%d:%s", k.Collection, k.NetworkID, k.TokenID)
}

// Handle is a process-lifetime binding to one deployed contract on one
// network. Handles are immutable; a reconnect rebuilds the whole set.
type Handle struct {
	Collection string
	Address    string
	Network    models.Network
	Client     *rpc.Client
}

// Conn is the connection surface the cache core needs: handle lookup and
// wholesale reconnect.
type Conn interface {
	Lookup(collection string, networkID int64) (*Handle, bool)
	Reconnect(ctx context.Context) error
}

type handleID struct {
	collection string
	networkID  int64
}

// HandleTable owns the RemoteHandles and the underlying RPC clients, one
// client per network shared across that network's handles.
type HandleTable struct {
	mu          sync.RWMutex
	handles     map[handleID]*Handle
	clients     map[int64]*rpc.Client
	deployments []models.Deployment
	auth        models.AuthConfig
	logger      zerolog.Logger
}

// NewHandleTable builds the handle set by enumerating declared deployments.
// An unrecognized auth scheme fails construction; a deployment on an unknown
// network is skipped with a warning so the remaining collections still serve.
func NewHandleTable(deployments []models.Deployment, auth models.AuthConfig, logger zerolog.Logger) (*HandleTable, error) {
	t := &HandleTable{
		deployments: deployments,
		auth:        auth,
		logger:      logger.With().Str("component", "statecache").Logger(),
	}

	handles, clients, err := t.build()
	if err != nil {
		return nil, err
	}
	t.handles = handles
	t.clients = clients

	return t, nil
}

// build constructs a fresh handle set and client set from the declared
// deployments.
func (t *HandleTable) build() (map[handleID]*Handle, map[int64]*rpc.Client, error) {
	handles := make(map[handleID]*Handle)
	clients := make(map[int64]*rpc.Client)

	for _, d := range t.deployments {
		network, ok := models.GetNetwork(d.NetworkID)
		if !ok {
			t.logger.Warn().
				Str("collection", d.Collection).
				Int64("chain_id", d.NetworkID).
				Msg("skipping deployment on unconfigured network")
			continue
		}

		client, exists := clients[d.NetworkID]
		if !exists {
			var err error
			client, err = rpc.NewClient(network, t.auth, t.logger)
			if err != nil {
				return nil, nil, fmt.Errorf("failed to create client for chain %d: %w", d.NetworkID, err)
			}
			clients[d.NetworkID] = client
		}

		id := handleID{collection: d.Collection, networkID: d.NetworkID}
		handles[id] = &Handle{
			Collection: d.Collection,
			Address:    d.Address,
			Network:    network,
			Client:     client,
		}
	}

	return handles, clients, nil
}

// Lookup returns the handle bound to a (collection, network) pair
func (t *HandleTable) Lookup(collection string, networkID int64) (*Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.handles[handleID{collection: collection, networkID: networkID}]
	return h, ok
}

// Handles returns the current handle set
func (t *HandleTable) Handles() []*Handle {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make([]*Handle, 0, len(t.handles))
	for _, h := range t.handles {
		out = append(out, h)
	}
	return out
}

// WaitUntilReady blocks until every bound node answers, then checks that
// every deployment address actually carries contract code.
func (t *HandleTable) WaitUntilReady(ctx context.Context) error {
	t.mu.RLock()
	clients := make([]*rpc.Client, 0, len(t.clients))
	for _, c := range t.clients {
		clients = append(clients, c)
	}
	t.mu.RUnlock()

	for _, client := range clients {
		if err := client.WaitUntilReady(ctx); err != nil {
			return fmt.Errorf("node %s not ready: %w", client.GetNetwork().Name, err)
		}
	}
	return t.verifyDeployments(ctx)
}

// verifyDeployments probes each bound address for contract code. A codeless
// address is reported but not fatal, so an environment whose contract is not
// deployed yet can still start.
func (t *HandleTable) verifyDeployments(ctx context.Context) error {
	for _, h := range t.Handles() {
		code, err := h.Client.GetCode(ctx, h.Address)
		if err != nil {
			return fmt.Errorf("failed to verify %s on chain %d: %w", h.Collection, h.Network.ID, err)
		}
		if code == "" || code == "0x" {
			t.logger.Warn().
				Str("collection", h.Collection).
				Str("address", h.Address).
				Int64("chain_id", h.Network.ID).
				Msg("deployment address has no contract code")
		}
	}
	return nil
}

// Reconnect tears down and recreates all bound handles together, then waits
// for the nodes to answer. Auth was validated at construction, so a rebuild
// cannot fail on the scheme.
func (t *HandleTable) Reconnect(ctx context.Context) error {
	handles, clients, err := t.build()
	if err != nil {
		return fmt.Errorf("failed to rebuild handles: %w", err)
	}

	t.mu.Lock()
	t.handles = handles
	t.clients = clients
	t.mu.Unlock()

	t.logger.Info().Int("handles", len(handles)).Msg("rebuilt remote handles")
	return t.WaitUntilReady(ctx)
}
