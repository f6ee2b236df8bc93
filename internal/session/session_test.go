package session

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"encoding/base64"
	"testing"

	"go.uber.org/zap"

	"github.com/golang-jwt/jwt/v4"

	"github.com/wlkek/raknet-mitm-proxy/internal/buf"
	"github.com/wlkek/raknet-mitm-proxy/internal/events"
	"github.com/wlkek/raknet-mitm-proxy/internal/protocol"
)

func newTestSession(t *testing.T) (*Session, map[Origin][][]byte) {
	t.Helper()
	sent := map[Origin][][]byte{}
	send := func(to Origin, data []byte) error {
		sent[to] = append(sent[to], data)
		return nil
	}
	s := New("test", 1492, send, events.NewBus(), zap.NewNop())
	return s, sent
}

// TestScenarioS1_MTUNegotiation exercises spec.md §8 S1.
func TestScenarioS1_MTUNegotiation(t *testing.T) {
	s, sent := newTestSession(t)

	req := protocol.Open2Request{MTUSize: 900}
	b := buf.Empty(32)
	req.To(b)

	if err := s.HandleInbound(context.Background(), Client, b.Bytes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.MTUSize != 900 {
		t.Fatalf("expected mtu 900, got %d", s.MTUSize)
	}
	if len(sent[Server]) != 1 {
		t.Fatalf("expected packet forwarded to server, got %d", len(sent[Server]))
	}
}

// TestScenarioS2_OfflineToOnline exercises spec.md §8 S2.
func TestScenarioS2_OfflineToOnline(t *testing.T) {
	s, _ := newTestSession(t)

	req := protocol.Open2Request{MTUSize: 1400}
	b1 := buf.Empty(32)
	req.To(b1)
	if err := s.HandleInbound(context.Background(), Client, b1.Bytes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State != Offline {
		t.Fatalf("expected still offline after open2request, got %v", s.State)
	}

	reply := protocol.Open2Reply{ServerGUID: 1, MTUSize: 1400}
	b2 := buf.Empty(32)
	reply.To(b2)
	if err := s.HandleInbound(context.Background(), Server, b2.Bytes()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.State != Online {
		t.Fatalf("expected online after open2reply, got %v", s.State)
	}
}

func genIdentityKey(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	priv, err := ecdsa.GenerateKey(elliptic.P384(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return priv
}

func buildLoginToken(t *testing.T, clientKey *ecdsa.PrivateKey) string {
	t.Helper()
	pubB64, err := encodePublicKey(&clientKey.PublicKey)
	if err != nil {
		t.Fatalf("encode public key: %v", err)
	}
	claims := jwt.MapClaims{"identityPublicKey": pubB64}
	token := jwt.NewWithClaims(jwt.SigningMethodES384, claims)
	signed, err := token.SignedString(clientKey)
	if err != nil {
		t.Fatalf("sign login token: %v", err)
	}
	return signed
}

// TestScenarioS6_FullHandshake exercises spec.md §8 S6: a LoginPacket
// followed by a ServerHandshakePacket, both flowing through the batch
// pipeline in Online state.
func TestScenarioS6_FullHandshake(t *testing.T) {
	s, sent := newTestSession(t)
	s.State = Online

	clientKey := genIdentityKey(t)
	loginToken := buildLoginToken(t, clientKey)
	login := protocol.LoginPacket{ProtocolVersion: 1, Tokens: []string{loginToken}, ClientData: "cd"}
	loginBody, err := login.To()
	if err != nil {
		t.Fatalf("encode login: %v", err)
	}

	batch := protocol.NewBatch([][]byte{loginBody})
	exported, err := batch.Export(protocol.CompressionZlib)
	if err != nil {
		t.Fatalf("export batch: %v", err)
	}

	pkt := protocol.EncapsulatedPacket{
		Reliability: protocol.Reliable,
		Sub:         append([]byte{protocol.IDBatch}, exported...),
	}
	pkt.Index = 0

	if err := s.processEncapsulated(context.Background(), Client, pkt); err != nil {
		t.Fatalf("process login batch: %v", err)
	}
	if s.KeyPair == nil || s.Salt == "" {
		t.Fatalf("expected keyPair and salt populated after login interception")
	}
	if s.ClientBatch == nil {
		t.Fatalf("expected clientBatch populated after login interception")
	}
	if len(sent[Server]) == 0 {
		t.Fatalf("expected login forwarded to server")
	}

	serverKey := genIdentityKey(t)
	serverPubB64, err := encodePublicKey(&serverKey.PublicKey)
	if err != nil {
		t.Fatalf("encode server public key: %v", err)
	}
	saltRaw := make([]byte, 16)
	saltServerB64 := base64.StdEncoding.EncodeToString(saltRaw)
	hsClaims := jwt.MapClaims{"salt": saltServerB64}
	hsToken := jwt.NewWithClaims(jwt.SigningMethodES384, hsClaims)
	hsToken.Header["x5u"] = serverPubB64
	signedHs, err := hsToken.SignedString(serverKey)
	if err != nil {
		t.Fatalf("sign handshake token: %v", err)
	}

	hs := protocol.ServerHandshakePacket{Token: signedHs}
	hsBody := hs.To()
	hsBatch := protocol.NewBatch([][]byte{hsBody})
	hsExported, err := hsBatch.Export(protocol.CompressionZlib)
	if err != nil {
		t.Fatalf("export handshake batch: %v", err)
	}
	hsPkt := protocol.EncapsulatedPacket{
		Reliability: protocol.Reliable,
		Sub:         append([]byte{protocol.IDBatch}, hsExported...),
	}
	hsPkt.Index = 0

	if err := s.processEncapsulated(context.Background(), Server, hsPkt); err != nil {
		t.Fatalf("process handshake batch: %v", err)
	}
	if s.State != Encrypted {
		t.Fatalf("expected state Encrypted, got %v", s.State)
	}
	if s.ServerBatch == nil {
		t.Fatalf("expected serverBatch populated after handshake interception")
	}
	if len(sent[Client]) == 0 {
		t.Fatalf("expected handshake forwarded to client")
	}
}
