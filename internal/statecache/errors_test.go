package statecache

import (
	"errors"
	"fmt"
	"testing"

	"github.com/tokengate/tokengate/internal/rpc"
)

func TestPrefixClassifier(t *testing.T) {
	classify := PrefixClassifier("gate:")

	cases := []struct {
		name string
		err  error
		want bool
	}{
		{"prefixed revert", &rpc.RevertError{Reason: "gate: not open"}, true},
		{"unprefixed revert", &rpc.RevertError{Reason: "ERC721: invalid token"}, false},
		{"wrapped prefixed revert", fmt.Errorf("read: %w", &rpc.RevertError{Reason: "gate: paused"}), true},
		{"transport error", errors.New("connection refused"), false},
		{"rpc error", &rpc.RPCError{Code: -32000, Message: "header not found"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := classify(tc.err); got != tc.want {
				t.Errorf("classify(%v) = %v, want %v", tc.err, got, tc.want)
			}
		})
	}
}

func TestIntentionalErrorCarriesReason(t *testing.T) {
	err := intentional(&rpc.RevertError{Reason: "gate: sold out"})

	var intentionalErr *IntentionalError
	if !errors.As(err, &intentionalErr) {
		t.Fatalf("expected IntentionalError, got %T", err)
	}
	if intentionalErr.Reason != "gate: sold out" {
		t.Errorf("expected reason preserved, got %q", intentionalErr.Reason)
	}
}
