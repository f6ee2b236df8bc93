package session

import (
	"crypto/ecdsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"

	"github.com/golang-jwt/jwt/v4"
)

// parseTokenUnverified splits a compact JWT into its header and claims
// without checking the signature: the proxy is a man-in-the-middle, not
// a relying party, and §6's JWT contract only requires read access to
// header.x5u, payload.salt, payload.identityPublicKey plus a re-sign
// operation, not verification of an upstream chain it cannot validate
// without the real server's key anyway.
func parseTokenUnverified(tokenString string) (header map[string]any, claims jwt.MapClaims, err error) {
	claims = jwt.MapClaims{}
	token, _, err := jwt.NewParser().ParseUnverified(tokenString, claims)
	if err != nil {
		return nil, nil, fmt.Errorf("session: parse jwt: %w", err)
	}
	return token.Header, claims, nil
}

// signToken re-signs claims and header under priv using ES384, matching
// the curve Bedrock's identity chain uses (P-384).
func signToken(header map[string]any, claims jwt.MapClaims, priv *ecdsa.PrivateKey) (string, error) {
	token := jwt.NewWithClaims(jwt.SigningMethodES384, claims)
	for k, v := range header {
		token.Header[k] = v
	}
	signed, err := token.SignedString(priv)
	if err != nil {
		return "", fmt.Errorf("session: sign jwt: %w", err)
	}
	return signed, nil
}

// encodePublicKey base64-encodes pub's PKIX/SPKI DER encoding, the form
// identityPublicKey and x5u carry on the wire.
func encodePublicKey(pub *ecdsa.PublicKey) (string, error) {
	der, err := x509.MarshalPKIXPublicKey(pub)
	if err != nil {
		return "", fmt.Errorf("session: marshal public key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(der), nil
}

// decodePublicKey reverses encodePublicKey.
func decodePublicKey(b64 string) (*ecdsa.PublicKey, error) {
	der, err := base64.StdEncoding.DecodeString(b64)
	if err != nil {
		return nil, fmt.Errorf("session: decode public key: %w", err)
	}
	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("session: parse public key: %w", err)
	}
	ecPub, ok := pub.(*ecdsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("session: public key is not ECDSA")
	}
	return ecPub, nil
}
