// Package batchcrypto implements the per-direction batch cipher and the
// ECDH-with-salt key agreement spec.md §4.4 and §6 describe: the raw
// cipher primitives are treated as an external collaborator (crypto/ecdh,
// crypto/aes, crypto/cipher — there is no third-party Go package for
// either P-384 ECDH or the Bedrock CFB8 stream mode), while the
// direction-specific wrapping/unwrapping contract is the proxy's own.
package batchcrypto

import (
	"crypto/ecdh"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
)

// RandSalt returns n cryptographically random bytes, matching spec.md
// §6's `rand(n)` primitive. Login interception uses this to produce a
// fresh 16-byte salt.
func RandSalt(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		return nil, fmt.Errorf("batchcrypto: rand: %w", err)
	}
	return b, nil
}

// DiffieHellman computes the raw ECDH shared secret between priv and pub,
// then derives the 32-byte batch-cipher key as SHA-256(saltRaw ||
// sharedSecret), where saltB64 is base64-decoded first (spec.md §6,
// §GLOSSARY "ECDH with salt").
func DiffieHellman(priv *ecdh.PrivateKey, pub *ecdh.PublicKey, saltB64 string) ([32]byte, error) {
	var secret [32]byte
	saltRaw, err := base64.StdEncoding.DecodeString(saltB64)
	if err != nil {
		return secret, fmt.Errorf("batchcrypto: decode salt: %w", err)
	}
	shared, err := priv.ECDH(pub)
	if err != nil {
		return secret, fmt.Errorf("batchcrypto: ecdh: %w", err)
	}
	h := sha256.New()
	h.Write(saltRaw)
	h.Write(shared)
	copy(secret[:], h.Sum(nil))
	return secret, nil
}
