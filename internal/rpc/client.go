package rpc

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/tokengate/tokengate/internal/models"
)

// ErrInvalidAuthScheme is returned at construction time for an unrecognized
// authorization type. It prevents startup rather than failing per request.
var ErrInvalidAuthScheme = fmt.Errorf("rpc: invalid authorization scheme")

// Client makes JSON-RPC calls to one blockchain node
type Client struct {
	httpClient *http.Client
	network    models.Network
	authHeader string
	logger     zerolog.Logger
}

type JSONRPCRequest struct {
	JSONRPC string      `json:"jsonrpc"`
	Method  string      `json:"method"`
	Params  interface{} `json:"params"`
	ID      int         `json:"id"`
}

type JSONRPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	Result  json.RawMessage `json:"result"`
	Error   *JSONRPCError   `json:"error"`
	ID      int             `json:"id"`
}

type JSONRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    string `json:"data,omitempty"`
}

// RPCError wraps a JSON-RPC level error so callers can distinguish it from
// transport failures.
type RPCError struct {
	Code    int
	Message string
	Data    string
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// RevertError is an execution revert reported by the remote contract. The
// reason string carries whatever the contract chose to signal.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	return fmt.Sprintf("execution reverted: %s", e.Reason)
}

// NewClient creates a new RPC client for the specified network. The auth
// configuration decides the Authorization header: Basic credentials are
// base64-encoded, Bearer credentials are passed as-is, and anything else is
// a construction-time error.
func NewClient(network models.Network, auth models.AuthConfig, logger zerolog.Logger) (*Client, error) {
	header, err := authHeader(auth)
	if err != nil {
		return nil, err
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		network:    network,
		authHeader: header,
		logger:     logger.With().Int64("chain_id", network.ID).Logger(),
	}, nil
}

// authHeader builds the Authorization header value for the configured scheme
func authHeader(auth models.AuthConfig) (string, error) {
	switch auth.Type {
	case models.AuthNone:
		return "", nil
	case models.AuthBasic:
		return "Basic " + base64.StdEncoding.EncodeToString([]byte(auth.Value)), nil
	case models.AuthBearer:
		return "Bearer " + auth.Value, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrInvalidAuthScheme, auth.Type)
	}
}

// call makes a JSON-RPC call to the blockchain node
func (c *Client) call(ctx context.Context, method string, params interface{}) (json.RawMessage, error) {
	req := JSONRPCRequest{
		JSONRPC: "2.0",
		Method:  method,
		Params:  params,
		ID:      1,
	}

	reqBody, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, "POST", c.network.RPCUrl, bytes.NewBuffer(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	httpReq.Header.Set("Content-Type", "application/json")
	if c.authHeader != "" {
		httpReq.Header.Set("Authorization", c.authHeader)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("failed to make request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	var rpcResp JSONRPCResponse
	if err := json.Unmarshal(body, &rpcResp); err != nil {
		bodyPreview := string(body)
		if len(bodyPreview) > 200 {
			bodyPreview = bodyPreview[:200]
		}
		return nil, fmt.Errorf("failed to unmarshal response: %w (body: %s)", err, bodyPreview)
	}

	if rpcResp.Error != nil {
		if reason, reverted := revertReason(rpcResp.Error); reverted {
			return nil, &RevertError{Reason: reason}
		}
		return nil, &RPCError{
			Code:    rpcResp.Error.Code,
			Message: rpcResp.Error.Message,
			Data:    rpcResp.Error.Data,
		}
	}

	return rpcResp.Result, nil
}

// revertReason extracts the revert reason from a JSON-RPC error, if the error
// represents an execution revert. Geth-style nodes report code 3 with the
// reason in the message; others put "execution reverted: <reason>" in the
// message directly.
func revertReason(rpcErr *JSONRPCError) (string, bool) {
	const marker = "execution reverted"
	if rpcErr.Code != 3 && !strings.Contains(rpcErr.Message, marker) {
		return "", false
	}
	reason := rpcErr.Message
	if idx := strings.Index(reason, marker); idx >= 0 {
		reason = reason[idx+len(marker):]
		reason = strings.TrimPrefix(reason, ":")
		reason = strings.TrimSpace(reason)
	}
	if reason == "" && rpcErr.Data != "" {
		reason = decodeRevertData(rpcErr.Data)
	}
	return reason, true
}

// ChainID fetches the remote node's chain ID
func (c *Client) ChainID(ctx context.Context) (uint64, error) {
	result, err := c.call(ctx, "eth_chainId", []string{})
	if err != nil {
		return 0, err
	}

	var hexID string
	if err := json.Unmarshal(result, &hexID); err != nil {
		return 0, fmt.Errorf("failed to unmarshal chain ID: %w", err)
	}

	return hexToUint64(hexID)
}

// WaitUntilReady polls the node until it answers eth_chainId or the context
// is done. Required before the first connection-dependent request is served.
func (c *Client) WaitUntilReady(ctx context.Context) error {
	const pollInterval = 500 * time.Millisecond

	for {
		if _, err := c.ChainID(ctx); err == nil {
			c.logger.Debug().Msg("node ready")
			return nil
		} else {
			c.logger.Debug().Err(err).Msg("node not ready yet")
		}

		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for node %s: %w", c.network.Name, ctx.Err())
		case <-time.After(pollInterval):
		}
	}
}

// Reconnect tears down the HTTP transport and recreates it, then waits for
// the node to answer again. Callers invoke this after an observed fetch
// failure; there is no automatic background reconnection.
func (c *Client) Reconnect(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	c.httpClient = &http.Client{
		Timeout: c.httpClient.Timeout,
	}

	c.logger.Info().Msg("reconnecting to node")
	return c.WaitUntilReady(ctx)
}

// GetNetwork returns the network information for this client
func (c *Client) GetNetwork() models.Network {
	return c.network
}
