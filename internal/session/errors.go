package session

import "errors"

// Error kinds specific to session orchestration, per spec.md §7. Buffer,
// reliability and batch-crypto errors (Malformed, DuplicateIndex,
// TooManySplits, CryptoFailure) are sentinel-wrapped in their own
// packages and propagate through unwrapped via errors.Is.
var (
	// ErrNoIndex names the condition of a reliable packet carrying no
	// index. No code path currently returns it: protocol.EncapsulatedFrom
	// always decodes an index for reliable kinds, and processEncapsulated
	// does not check for a missing one.
	ErrNoIndex = errors.New("session: reliable packet missing index")

	// ErrEventError covers a data-out subscriber returning a nil payload
	// or no destination. Fatal to the session.
	ErrEventError = errors.New("session: event subscriber produced no payload")

	// ErrStateMismatch covers a handshake packet arriving outside Online,
	// or a Login packet arriving outside Online. The offending packet is
	// dropped, not fatal.
	ErrStateMismatch = errors.New("session: packet arrived in the wrong state")
)
