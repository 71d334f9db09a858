package models

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Network represents supported blockchain networks
type Network struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	RPCUrl   string `json:"rpc_url"`
	Explorer string `json:"explorer"`
}

// SupportedNetworks will be populated from environment variables or defaults
var SupportedNetworks map[int64]Network

// Default networks (used as fallback if no env vars are configured)
var defaultNetworks = map[int64]Network{
	1: {
		ID:       1,
		Name:     "Ethereum",
		RPCUrl:   "https://eth.llamarpc.com",
		Explorer: "https://etherscan.io",
	},
	137: {
		ID:       137,
		Name:     "Polygon",
		RPCUrl:   "https://polygon-rpc.com",
		Explorer: "https://polygonscan.com",
	},
	42161: {
		ID:       42161,
		Name:     "Arbitrum",
		RPCUrl:   "https://arb1.arbitrum.io/rpc",
		Explorer: "https://arbiscan.io",
	},
}

// LoadNetworksFromEnv loads network configurations from environment variables.
// Uses the pattern: RPC_ENDPOINT_CHAIN_<CHAIN_ID>, NETWORK_NAME_CHAIN_<CHAIN_ID>,
// EXPLORER_URL_CHAIN_<CHAIN_ID>. RPC URLs may reference hosted provider
// credentials with $API_KEY_<PROVIDER> placeholders, resolved from the
// API_KEY_<PROVIDER> environment variables.
func LoadNetworksFromEnv() map[int64]Network {
	networks := make(map[int64]Network)

	// First, load defaults
	for id, network := range defaultNetworks {
		networks[id] = network
	}

	apiKeys := LoadAPIKeysFromEnv()

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}

		if strings.HasPrefix(key, "RPC_ENDPOINT_CHAIN_") {
			chainIDStr := strings.TrimPrefix(key, "RPC_ENDPOINT_CHAIN_")
			chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
			if err != nil {
				continue
			}

			network, exists := networks[chainID]
			if !exists {
				network = Network{
					ID:   chainID,
					Name: fmt.Sprintf("Chain %d", chainID),
				}
			}
			network.RPCUrl = substituteAPIKeys(value, apiKeys)
			networks[chainID] = network
		}
	}

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}

		if strings.HasPrefix(key, "NETWORK_NAME_CHAIN_") {
			chainIDStr := strings.TrimPrefix(key, "NETWORK_NAME_CHAIN_")
			chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
			if err != nil {
				continue
			}

			if network, exists := networks[chainID]; exists {
				network.Name = value
				networks[chainID] = network
			}
		}
	}

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}

		if strings.HasPrefix(key, "EXPLORER_URL_CHAIN_") {
			chainIDStr := strings.TrimPrefix(key, "EXPLORER_URL_CHAIN_")
			chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
			if err != nil {
				continue
			}

			if network, exists := networks[chainID]; exists {
				network.Explorer = value
				networks[chainID] = network
			}
		}
	}

	return networks
}

// LoadAPIKeysFromEnv collects hosted node provider credentials from
// API_KEY_<PROVIDER> environment variables, keyed by provider name.
func LoadAPIKeysFromEnv() map[string]string {
	keys := make(map[string]string)
	for _, envVar := range os.Environ() {
		name, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}
		if provider, found := strings.CutPrefix(name, "API_KEY_"); found && provider != "" {
			keys[provider] = value
		}
	}
	return keys
}

// substituteAPIKeys replaces $API_KEY_<PROVIDER> placeholders in an RPC URL
func substituteAPIKeys(url string, keys map[string]string) string {
	for provider, value := range keys {
		url = strings.ReplaceAll(url, "$API_KEY_"+provider, value)
	}
	return url
}

// InitializeNetworks initializes the SupportedNetworks from environment variables or defaults
func InitializeNetworks() {
	SupportedNetworks = LoadNetworksFromEnv()
}

// ListNetworkIDs returns a slice of all configured network IDs
func ListNetworkIDs() []int64 {
	if SupportedNetworks == nil {
		InitializeNetworks()
	}

	var ids []int64
	for id := range SupportedNetworks {
		ids = append(ids, id)
	}
	return ids
}

// IsValidNetwork checks if the network ID is supported
func IsValidNetwork(networkID int64) bool {
	if SupportedNetworks == nil {
		InitializeNetworks()
	}
	_, exists := SupportedNetworks[networkID]
	return exists
}

// GetNetwork returns network info for a given ID
func GetNetwork(networkID int64) (Network, bool) {
	if SupportedNetworks == nil {
		InitializeNetworks()
	}
	network, exists := SupportedNetworks[networkID]
	return network, exists
}

// Deployment declares one deployed collection contract on one network
type Deployment struct {
	Collection string `json:"collection"`
	NetworkID  int64  `json:"network_id"`
	Address    string `json:"address"`
}

// LoadDeploymentsFromEnv loads declared contract deployments from environment
// variables. Uses the pattern: DEPLOYMENT_<COLLECTION>_CHAIN_<CHAIN_ID>=<address>.
// Collection names are lowercased to form collection IDs.
func LoadDeploymentsFromEnv() []Deployment {
	var deployments []Deployment

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}

		rest, found := strings.CutPrefix(key, "DEPLOYMENT_")
		if !found {
			continue
		}

		collection, chainIDStr, found := strings.Cut(rest, "_CHAIN_")
		if !found || collection == "" {
			continue
		}

		chainID, err := strconv.ParseInt(chainIDStr, 10, 64)
		if err != nil {
			continue
		}

		if !IsValidAddress(value) {
			continue
		}

		deployments = append(deployments, Deployment{
			Collection: strings.ToLower(collection),
			NetworkID:  chainID,
			Address:    strings.ToLower(value),
		})
	}

	return deployments
}

// IsValidAddress checks the 0x-prefixed 20-byte hex address format
func IsValidAddress(address string) bool {
	if len(address) != 42 || !strings.HasPrefix(address, "0x") {
		return false
	}
	for _, c := range address[2:] {
		switch {
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}

// Auth scheme names recognized by the RPC client
const (
	AuthNone   = ""
	AuthBasic  = "Basic"
	AuthBearer = "Bearer"
)

// AuthConfig parameterizes the Authorization header sent to the remote node
type AuthConfig struct {
	Type  string `json:"type"` // Basic or Bearer
	Value string `json:"value"`
}

// LoadAuthFromEnv loads the node authorization scheme from RPC_AUTH_TYPE and
// RPC_AUTH_VALUE. Returns the zero value when no auth is configured.
func LoadAuthFromEnv() AuthConfig {
	return AuthConfig{
		Type:  os.Getenv("RPC_AUTH_TYPE"),
		Value: os.Getenv("RPC_AUTH_VALUE"),
	}
}

// Gate modes decide which on-chain reads gate a collection's metadata
const (
	GateNone   = "none"
	GateReveal = "reveal"
	GateExists = "exists"
	GateState  = "state"
)

// Collection describes how one collection's metadata is served and gated
type Collection struct {
	ID   string `json:"id"`
	Gate string `json:"gate"`
}

// LoadCollectionsFromEnv derives collection gating from COLLECTION_<NAME>_GATE
// variables, defaulting every deployed collection to GateNone.
func LoadCollectionsFromEnv(deployments []Deployment) map[string]Collection {
	collections := make(map[string]Collection)

	for _, d := range deployments {
		if _, exists := collections[d.Collection]; !exists {
			collections[d.Collection] = Collection{ID: d.Collection, Gate: GateNone}
		}
	}

	for _, envVar := range os.Environ() {
		key, value, ok := strings.Cut(envVar, "=")
		if !ok {
			continue
		}

		rest, found := strings.CutPrefix(key, "COLLECTION_")
		if !found {
			continue
		}
		name, found := strings.CutSuffix(rest, "_GATE")
		if !found || name == "" {
			continue
		}

		id := strings.ToLower(name)
		switch value {
		case GateNone, GateReveal, GateExists, GateState:
			collections[id] = Collection{ID: id, Gate: value}
		}
	}

	return collections
}

// DefaultTTL is the contract-state cache freshness window used when
// GATE_TTL_SECONDS is not set.
const DefaultTTL = 60 * time.Second

// LoadTTLFromEnv reads GATE_TTL_SECONDS, falling back to DefaultTTL
func LoadTTLFromEnv() time.Duration {
	raw := os.Getenv("GATE_TTL_SECONDS")
	if raw == "" {
		return DefaultTTL
	}
	secs, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || secs <= 0 {
		return DefaultTTL
	}
	return time.Duration(secs) * time.Second
}

// MetadataRequest represents the input request for a metadata lookup
type MetadataRequest struct {
	Collection string `json:"collection"`
	NetworkID  int64  `json:"network_id"`
	TokenID    string `json:"token_id"`
}

// GateStatus reports the raw on-chain gate state for a collection, used by
// the diagnostic endpoint.
type GateStatus struct {
	Collection string    `json:"collection"`
	NetworkID  int64     `json:"network_id"`
	Gate       string    `json:"gate"`
	Supply     uint64    `json:"supply"`
	State      uint64    `json:"state"`
	RevealAt   time.Time `json:"reveal_at,omitempty"`
	Revealed   bool      `json:"revealed"`
}
