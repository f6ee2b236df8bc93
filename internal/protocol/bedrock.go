package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/wlkek/raknet-mitm-proxy/internal/buf"
)

// Bedrock application-packet ids the proxy actually inspects. Every other
// id is forwarded opaquely as part of the batch, per spec.md §1's scoping
// of concrete packet schemas to these three.
const (
	IDLogin                      byte = 0x01
	IDServerHandshake            byte = 0x03
	IDResourcePackClientResponse byte = 0x08
)

// LoginPacket carries the client's JWT identity chain plus an opaque
// client-data token the proxy never inspects or mutates.
type LoginPacket struct {
	ProtocolVersion uint32
	Tokens          []string // ordered JWT chain; the last entry holds identityPublicKey
	ClientData      string   // raw client-data JWT, forwarded unmodified
}

type chainWrapper struct {
	Chain []string `json:"chain"`
}

// LoginFrom decodes a LoginPacket body (the bytes following the 0x01 id).
func LoginFrom(body []byte) (LoginPacket, error) {
	b := buf.New(body)
	version, err := b.ReadUint32()
	if err != nil {
		return LoginPacket{}, err
	}
	chainJSON, err := b.ReadByteArray()
	if err != nil {
		return LoginPacket{}, err
	}
	var wrapper chainWrapper
	if err := json.Unmarshal(chainJSON, &wrapper); err != nil {
		return LoginPacket{}, fmt.Errorf("%w: login chain JSON: %v", buf.ErrMalformed, err)
	}
	clientData, err := b.ReadString()
	if err != nil {
		return LoginPacket{}, err
	}
	return LoginPacket{ProtocolVersion: version, Tokens: wrapper.Chain, ClientData: clientData}, nil
}

// To encodes the LoginPacket, including its 0x01 id byte.
func (p LoginPacket) To() ([]byte, error) {
	chainJSON, err := json.Marshal(chainWrapper{Chain: p.Tokens})
	if err != nil {
		return nil, err
	}
	b := buf.Empty(len(chainJSON) + len(p.ClientData) + 16)
	b.WriteByte(IDLogin)
	b.WriteUint32(p.ProtocolVersion)
	b.WriteByteArray(chainJSON)
	b.WriteString(p.ClientData)
	return b.Bytes(), nil
}

// ServerHandshakePacket carries the single JWT the server uses to confirm
// the encryption handshake, whose header's x5u field holds the server's
// public key and whose payload's salt field is mixed into the shared
// secret derivation (spec.md §4.5, §6).
type ServerHandshakePacket struct {
	Token string
}

// ServerHandshakeFrom decodes a ServerHandshakePacket body (the bytes
// following the 0x03 id).
func ServerHandshakeFrom(body []byte) (ServerHandshakePacket, error) {
	token, err := buf.New(body).ReadString()
	if err != nil {
		return ServerHandshakePacket{}, err
	}
	return ServerHandshakePacket{Token: token}, nil
}

// To encodes the ServerHandshakePacket, including its 0x03 id byte.
func (p ServerHandshakePacket) To() []byte {
	b := buf.Empty(len(p.Token) + 8)
	b.WriteByte(IDServerHandshake)
	b.WriteString(p.Token)
	return b.Bytes()
}

// ResourcePackResponse reports the client's acceptance/refusal of the
// server's resource pack stack; the proxy only observes it, it never
// mutates the response.
type ResourcePackResponse struct {
	Status  byte
	PackIDs []string
}

// ResourcePackResponseFrom decodes a ResourcePackResponse body (the bytes
// following the 0x08 id).
func ResourcePackResponseFrom(body []byte) (ResourcePackResponse, error) {
	b := buf.New(body)
	status, err := b.ReadByte()
	if err != nil {
		return ResourcePackResponse{}, err
	}
	count, err := b.ReadUint16()
	if err != nil {
		return ResourcePackResponse{}, err
	}
	ids := make([]string, 0, count)
	for i := uint16(0); i < count; i++ {
		id, err := b.ReadString()
		if err != nil {
			return ResourcePackResponse{}, err
		}
		ids = append(ids, id)
	}
	return ResourcePackResponse{Status: status, PackIDs: ids}, nil
}
