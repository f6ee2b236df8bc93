package batchcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"fmt"
)

// ErrCryptoFailure covers GCM tag mismatches and CFB8 decryption errors
// (spec.md §7's CryptoFailure kind); it is fatal to the session.
var ErrCryptoFailure = errors.New("batchcrypto: crypto failure")

// Codec is the direction-specific batch cipher capability spec.md §9's
// design notes describe: populated once at the corresponding handshake
// step, it decrypts inbound batch bodies from the direction whose secret
// produced it and encrypts outbound batch bodies toward that same
// direction.
//
// The asymmetry is deliberate and preserved exactly as spec.md §4.4
// mandates: Decrypt always uses AES-256-CFB8 (stream, unauthenticated);
// Encrypt always uses AES-256-GCM (authenticated). This is the source's
// interop contract, not a design choice open for revision.
type Codec struct {
	secret [32]byte
}

// NewCodec constructs a Codec over the given 32-byte shared secret,
// derived via DiffieHellman at the corresponding handshake step.
func NewCodec(secret [32]byte) *Codec {
	return &Codec{secret: secret}
}

func (c *Codec) block() (cipher.Block, error) {
	b, err := aes.NewCipher(c.secret[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	return b, nil
}

// Decrypt reverses the inbound AES-256-CFB8 stream transform, yielding
// the plaintext (still-compressed) BatchPacket body. There is no MAC —
// CFB8 here is one-shot stream decryption over the entire ciphertext, as
// spec.md §4.4 specifies.
func (c *Codec) Decrypt(ciphertext []byte) ([]byte, error) {
	block, err := c.block()
	if err != nil {
		return nil, err
	}
	stream := newCFB8(block, c.secret[:block.BlockSize()], true)
	out := make([]byte, len(ciphertext))
	stream.XORKeyStream(out, ciphertext)
	return out, nil
}

// Encrypt wraps plaintext with AES-256-GCM, producing ciphertext || tag
// as a single byte slice, per spec.md §4.4.
func (c *Codec) Encrypt(plaintext []byte) ([]byte, error) {
	block, err := c.block()
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, block.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	iv := c.secret[:gcm.NonceSize()]
	return gcm.Seal(nil, iv, plaintext, nil), nil
}

// DecryptGCM reverses Encrypt; exposed so tests can validate spec.md §8
// invariant 7 (round-tripping a proxy-originated encrypted batch) without
// needing a second peer.
func (c *Codec) DecryptGCM(ciphertext []byte) ([]byte, error) {
	block, err := c.block()
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCMWithNonceSize(block, block.BlockSize())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCryptoFailure, err)
	}
	iv := c.secret[:gcm.NonceSize()]
	out, err := gcm.Open(nil, iv, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: gcm tag mismatch: %v", ErrCryptoFailure, err)
	}
	return out, nil
}
