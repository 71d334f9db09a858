package statecache

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tokengate/tokengate/internal/rpc"
)

// Taxonomy of read failures. NotConfigured and InvalidResponse surface to
// the caller immediately; transient failures go through the single
// reconnect-and-retry policy first.
var (
	// ErrNotConfigured means the requested (collection, network) pair has no
	// bound contract deployment. The key will never resolve, so callers must
	// not treat this as retryable.
	ErrNotConfigured = errors.New("statecache: collection not configured on network")

	// ErrInvalidResponse means the remote answered but the payload failed
	// shape validation. Never cached.
	ErrInvalidResponse = errors.New("statecache: invalid remote response")

	// ErrUnavailable means both the primary read and the post-reconnect
	// retry failed for a cache whose policy propagates instead of falling
	// back to stale data.
	ErrUnavailable = errors.New("statecache: remote read unavailable")

	// ErrInvalidToken means the token ID cannot be ABI-encoded. Rejected
	// before any remote I/O; never retried, never reconnected, never
	// confused with an unminted token.
	ErrInvalidToken = errors.New("statecache: invalid token id")
)

// IntentionalError is a domain-level rejection explicitly signalled by the
// contract (a revert whose reason matches the configured pattern). It is
// always propagated, never retried or swallowed.
type IntentionalError struct {
	Reason string
}

func (e *IntentionalError) Error() string {
	return fmt.Sprintf("statecache: remote rejected read: %s", e.Reason)
}

// Classifier decides whether a read failure is an intentional contract
// rejection. Everything else is treated as transient and goes through the
// reconnect-and-retry path. The rule is contract-specific, so it stays
// configurable.
type Classifier func(err error) bool

// DefaultRevertPrefix marks reverts the gate contracts raise on purpose
const DefaultRevertPrefix = "gate:"

// PrefixClassifier matches execution reverts whose reason starts with the
// given prefix.
func PrefixClassifier(prefix string) Classifier {
	return func(err error) bool {
		var revert *rpc.RevertError
		if !errors.As(err, &revert) {
			return false
		}
		return strings.HasPrefix(revert.Reason, prefix)
	}
}

// intentional converts a classified error into the exported taxonomy type,
// preserving the revert reason.
func intentional(err error) error {
	var revert *rpc.RevertError
	if errors.As(err, &revert) {
		return &IntentionalError{Reason: revert.Reason}
	}
	return &IntentionalError{Reason: err.Error()}
}
