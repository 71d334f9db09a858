package statecache

import (
	"errors"
	"testing"

	"github.com/rs/zerolog"
	"github.com/tokengate/tokengate/internal/models"
	"github.com/tokengate/tokengate/internal/rpc"
)

func testDeployments() []models.Deployment {
	return []models.Deployment{
		{Collection: "apes", NetworkID: 1, Address: "0x00000000000000000000000000000000000000aa"},
		{Collection: "apes", NetworkID: 137, Address: "0x00000000000000000000000000000000000000ab"},
		{Collection: "birds", NetworkID: 1, Address: "0x00000000000000000000000000000000000000ac"},
	}
}

func TestHandleTable_LookupPerCollectionAndNetwork(t *testing.T) {
	models.InitializeNetworks()

	table, err := NewHandleTable(testDeployments(), models.AuthConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	h, ok := table.Lookup("apes", 1)
	if !ok {
		t.Fatal("expected handle for apes on chain 1")
	}
	if h.Address != "0x00000000000000000000000000000000000000aa" {
		t.Errorf("wrong address bound: %s", h.Address)
	}
	if h.Network.ID != 1 {
		t.Errorf("wrong network bound: %d", h.Network.ID)
	}

	if _, ok := table.Lookup("apes", 42161); ok {
		t.Error("apes has no deployment on chain 42161")
	}
	if _, ok := table.Lookup("birds", 137); ok {
		t.Error("birds has no deployment on chain 137")
	}
}

func TestHandleTable_SharesClientPerNetwork(t *testing.T) {
	models.InitializeNetworks()

	table, err := NewHandleTable(testDeployments(), models.AuthConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}

	apes, _ := table.Lookup("apes", 1)
	birds, _ := table.Lookup("birds", 1)
	if apes.Client != birds.Client {
		t.Error("handles on the same network should share one client")
	}

	apesPolygon, _ := table.Lookup("apes", 137)
	if apes.Client == apesPolygon.Client {
		t.Error("handles on different networks must not share a client")
	}
}

func TestHandleTable_InvalidAuthSchemeFailsConstruction(t *testing.T) {
	models.InitializeNetworks()

	_, err := NewHandleTable(testDeployments(), models.AuthConfig{Type: "Digest", Value: "x"}, zerolog.Nop())
	if !errors.Is(err, rpc.ErrInvalidAuthScheme) {
		t.Fatalf("expected ErrInvalidAuthScheme, got %v", err)
	}
}

func TestHandleTable_SkipsUnknownNetworks(t *testing.T) {
	models.InitializeNetworks()

	deployments := append(testDeployments(), models.Deployment{
		Collection: "ghosts", NetworkID: 999999, Address: "0x00000000000000000000000000000000000000ad",
	})

	table, err := NewHandleTable(deployments, models.AuthConfig{}, zerolog.Nop())
	if err != nil {
		t.Fatalf("failed to build table: %v", err)
	}
	if _, ok := table.Lookup("ghosts", 999999); ok {
		t.Error("deployment on unconfigured network must not be bound")
	}
	if len(table.Handles()) != 3 {
		t.Errorf("expected 3 handles, got %d", len(table.Handles()))
	}
}
