package rpc

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tokengate/tokengate/internal/models"
)

// rpcHandler builds a JSON-RPC test node from a method dispatch table
func rpcHandler(t *testing.T, methods map[string]func(params json.RawMessage) (interface{}, *JSONRPCError)) http.HandlerFunc {
	t.Helper()
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Method string          `json:"method"`
			Params json.RawMessage `json:"params"`
			ID     int             `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("malformed request body: %v", err)
			return
		}

		handler, ok := methods[req.Method]
		if !ok {
			t.Errorf("unexpected method %q", req.Method)
			return
		}

		result, rpcErr := handler(req.Params)
		resp := map[string]interface{}{"jsonrpc": "2.0", "id": req.ID}
		if rpcErr != nil {
			resp["error"] = rpcErr
		} else {
			resp["result"] = result
		}
		json.NewEncoder(w).Encode(resp)
	}
}

func testNetwork(url string) models.Network {
	return models.Network{ID: 1, Name: "Test", RPCUrl: url}
}

func TestNewClient_AuthSchemes(t *testing.T) {
	network := testNetwork("http://localhost:0")

	cases := []struct {
		name       string
		auth       models.AuthConfig
		wantHeader string
		wantErr    bool
	}{
		{"no auth", models.AuthConfig{}, "", false},
		{
			"basic is base64 encoded",
			models.AuthConfig{Type: models.AuthBasic, Value: "user:pass"},
			"Basic " + base64.StdEncoding.EncodeToString([]byte("user:pass")),
			false,
		},
		{
			"bearer passed as-is",
			models.AuthConfig{Type: models.AuthBearer, Value: "tok123"},
			"Bearer tok123",
			false,
		},
		{"unrecognized scheme", models.AuthConfig{Type: "Digest", Value: "x"}, "", true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			client, err := NewClient(network, tc.auth, zerolog.Nop())
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidAuthScheme) {
					t.Fatalf("expected ErrInvalidAuthScheme, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if client.authHeader != tc.wantHeader {
				t.Errorf("auth header = %q, want %q", client.authHeader, tc.wantHeader)
			}
		})
	}
}

func TestClient_SendsAuthorizationHeader(t *testing.T) {
	var gotHeader atomic.Value
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotHeader.Store(r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "0x1"})
	}))
	defer server.Close()

	client, err := NewClient(testNetwork(server.URL), models.AuthConfig{Type: models.AuthBearer, Value: "secret"}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	if _, err := client.ChainID(context.Background()); err != nil {
		t.Fatalf("chain ID call failed: %v", err)
	}
	if got := gotHeader.Load(); got != "Bearer secret" {
		t.Errorf("Authorization = %q, want %q", got, "Bearer secret")
	}
}

func TestClient_RevertErrorsAreTyped(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]func(json.RawMessage) (interface{}, *JSONRPCError){
		"eth_call": func(json.RawMessage) (interface{}, *JSONRPCError) {
			return nil, &JSONRPCError{Code: 3, Message: "execution reverted: gate: sale closed"}
		},
	}))
	defer server.Close()

	client, err := NewClient(testNetwork(server.URL), models.AuthConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to create client: %v", err)
	}

	_, err = client.Call(context.Background(), "0x00000000000000000000000000000000000000aa", SelTotalSupply)

	var revert *RevertError
	if !errors.As(err, &revert) {
		t.Fatalf("expected RevertError, got %v", err)
	}
	if revert.Reason != "gate: sale closed" {
		t.Errorf("reason = %q, want %q", revert.Reason, "gate: sale closed")
	}
}

func TestClient_RevertReasonFromErrorData(t *testing.T) {
	// Error(string) ABI payload for "gate: paused"
	revertData := "0x08c379a0" +
		"0000000000000000000000000000000000000000000000000000000000000020" +
		"000000000000000000000000000000000000000000000000000000000000000c" +
		"676174653a20706175736564" + "0000000000000000000000000000000000000000"

	server := httptest.NewServer(rpcHandler(t, map[string]func(json.RawMessage) (interface{}, *JSONRPCError){
		"eth_call": func(json.RawMessage) (interface{}, *JSONRPCError) {
			return nil, &JSONRPCError{Code: 3, Message: "execution reverted", Data: revertData}
		},
	}))
	defer server.Close()

	client, _ := NewClient(testNetwork(server.URL), models.AuthConfig{}, zerolog.Nop())
	_, err := client.Call(context.Background(), "0x00000000000000000000000000000000000000aa", SelSaleState)

	var revert *RevertError
	if !errors.As(err, &revert) {
		t.Fatalf("expected RevertError, got %v", err)
	}
	if revert.Reason != "gate: paused" {
		t.Errorf("reason = %q, want %q", revert.Reason, "gate: paused")
	}
}

func TestClient_NonRevertRPCErrorsAreNotReverts(t *testing.T) {
	server := httptest.NewServer(rpcHandler(t, map[string]func(json.RawMessage) (interface{}, *JSONRPCError){
		"eth_call": func(json.RawMessage) (interface{}, *JSONRPCError) {
			return nil, &JSONRPCError{Code: -32000, Message: "header not found"}
		},
	}))
	defer server.Close()

	client, _ := NewClient(testNetwork(server.URL), models.AuthConfig{}, zerolog.Nop())
	_, err := client.Call(context.Background(), "0x00000000000000000000000000000000000000aa", SelTotalSupply)

	var revert *RevertError
	if errors.As(err, &revert) {
		t.Fatal("node-level error must not be classified as a revert")
	}
	var rpcErr *RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("expected RPCError, got %v", err)
	}
	if rpcErr.Code != -32000 {
		t.Errorf("code = %d, want -32000", rpcErr.Code)
	}
}

func TestClient_WaitUntilReady(t *testing.T) {
	var calls atomic.Int64
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Fail the first two probes, succeed afterwards
		if calls.Add(1) <= 2 {
			http.Error(w, "starting", http.StatusServiceUnavailable)
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "0x1"})
	}))
	defer server.Close()

	client, _ := NewClient(testNetwork(server.URL), models.AuthConfig{}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.WaitUntilReady(ctx); err != nil {
		t.Fatalf("expected readiness, got %v", err)
	}
	if calls.Load() < 3 {
		t.Errorf("expected at least 3 probes, got %d", calls.Load())
	}
}

func TestClient_WaitUntilReadyHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "down", http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client, _ := NewClient(testNetwork(server.URL), models.AuthConfig{}, zerolog.Nop())

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	if err := client.WaitUntilReady(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
}

func TestClient_ReconnectRebuildsTransport(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": 1, "result": "0x1"})
	}))
	defer server.Close()

	client, _ := NewClient(testNetwork(server.URL), models.AuthConfig{}, zerolog.Nop())
	before := client.httpClient

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Reconnect(ctx); err != nil {
		t.Fatalf("reconnect failed: %v", err)
	}
	if client.httpClient == before {
		t.Error("reconnect must replace the HTTP transport")
	}
}
