package session

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"github.com/wlkek/raknet-mitm-proxy/internal/batchcrypto"
	"github.com/wlkek/raknet-mitm-proxy/internal/protocol"
)

// interceptLogin implements spec.md §4.5's Login interception (client ->
// server, Online state only). It mutates login in place and persists the
// session's keyPair, salt and clientBatch codec.
func (s *Session) interceptLogin(login *protocol.LoginPacket) error {
	if s.State != Online {
		return fmt.Errorf("%w: login outside online", ErrStateMismatch)
	}
	if len(login.Tokens) == 0 {
		return fmt.Errorf("%w: login chain is empty", ErrStateMismatch)
	}

	kp, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		return fmt.Errorf("session: generate key pair: %w", err)
	}
	saltRaw, err := batchcrypto.RandSalt(16)
	if err != nil {
		return fmt.Errorf("session: random salt: %w", err)
	}
	saltB64 := base64.StdEncoding.EncodeToString(saltRaw)

	lastIdx := len(login.Tokens) - 1
	header, claims, err := parseTokenUnverified(login.Tokens[lastIdx])
	if err != nil {
		return err
	}

	pubClientB64, _ := claims["identityPublicKey"].(string)
	pubClient, err := decodePublicKey(pubClientB64)
	if err != nil {
		return fmt.Errorf("session: client identity public key: %w", err)
	}

	secretClient, err := diffieHellman(kp, pubClient, saltB64)
	if err != nil {
		return fmt.Errorf("session: client key agreement: %w", err)
	}

	proxyPubB64, err := encodePublicKey(&kp.PublicKey)
	if err != nil {
		return err
	}
	claims["identityPublicKey"] = proxyPubB64

	signed, err := signToken(header, claims, kp)
	if err != nil {
		return err
	}
	login.Tokens[lastIdx] = signed

	s.KeyPair = kp
	s.Salt = saltB64
	s.ClientBatch = batchcrypto.NewCodec(secretClient)
	return nil
}

// interceptHandshake implements spec.md §4.5's ServerHandshake
// interception (server -> client, Online state only). It mutates
// handshake in place, populates serverBatch, and advances state to
// Encrypted.
func (s *Session) interceptHandshake(handshake *protocol.ServerHandshakePacket) error {
	if s.State != Online {
		return fmt.Errorf("%w: handshake outside online", ErrStateMismatch)
	}
	if s.KeyPair == nil {
		return fmt.Errorf("%w: handshake before login", ErrStateMismatch)
	}

	header, claims, err := parseTokenUnverified(handshake.Token)
	if err != nil {
		return err
	}
	pubServerB64, _ := header["x5u"].(string)
	pubServer, err := decodePublicKey(pubServerB64)
	if err != nil {
		return fmt.Errorf("session: server public key: %w", err)
	}
	saltServer, _ := claims["salt"].(string)

	secretServer, err := diffieHellman(s.KeyPair, pubServer, saltServer)
	if err != nil {
		return fmt.Errorf("session: server key agreement: %w", err)
	}
	s.ServerBatch = batchcrypto.NewCodec(secretServer)

	claims["salt"] = s.Salt
	signed, err := signToken(header, claims, s.KeyPair)
	if err != nil {
		return err
	}
	handshake.Token = signed

	s.setState(Encrypted)
	return nil
}

// diffieHellman bridges the session's ECDSA identity keys (used for JWT
// signing) into the ECDH primitives batchcrypto exposes: Go's
// crypto/ecdsa keys on a curve with an ECDH-capable equivalent convert
// directly, so the same P-384 key pair serves both roles, matching the
// Bedrock handshake's contract (spec.md §6).
func diffieHellman(priv *ecdsa.PrivateKey, pub *ecdsa.PublicKey, saltB64 string) ([32]byte, error) {
	ecdhPriv, err := priv.ECDH()
	if err != nil {
		return [32]byte{}, fmt.Errorf("session: private key to ecdh: %w", err)
	}
	ecdhPub, err := pub.ECDH()
	if err != nil {
		return [32]byte{}, fmt.Errorf("session: public key to ecdh: %w", err)
	}
	return batchcrypto.DiffieHellman(ecdhPriv, ecdhPub, saltB64)
}
