package protocol

import "github.com/wlkek/raknet-mitm-proxy/internal/buf"

// Magic is the fixed RakNet offline-message identifier prefixing every
// Open2Request/Open2Reply packet.
var Magic = [16]byte{
	0x00, 0xff, 0xff, 0x00, 0xfe, 0xfe, 0xfe, 0xfe,
	0xfd, 0xfd, 0xfd, 0xfd, 0x12, 0x34, 0x56, 0x78,
}

const (
	IDOpen2Request byte = 0x07
	IDOpen2Reply   byte = 0x08
)

// Open2Request is the offline-phase connection opener carrying the
// client's proposed MTU.
type Open2Request struct {
	MTUSize uint16
}

// Open2RequestFrom decodes an Open2Request, including its id byte.
func Open2RequestFrom(b *buf.Buffer) (Open2Request, error) {
	if _, err := b.ReadByte(); err != nil { // id
		return Open2Request{}, err
	}
	if _, err := b.ReadArray(16); err != nil { // magic
		return Open2Request{}, err
	}
	if _, err := b.ReadByte(); err != nil { // protocol version
		return Open2Request{}, err
	}
	mtu, err := b.ReadUint16()
	if err != nil {
		return Open2Request{}, err
	}
	return Open2Request{MTUSize: mtu}, nil
}

// To encodes the Open2Request, appending it to b.
func (r Open2Request) To(b *buf.Buffer) {
	b.WriteByte(IDOpen2Request)
	b.WriteArray(Magic[:])
	b.WriteByte(0) // protocol version, unused by the proxy
	b.WriteUint16(r.MTUSize)
}

// Open2Reply is the server-side (here, proxy-side) reply carrying the
// negotiated MTU back to the client.
type Open2Reply struct {
	ServerGUID uint64
	MTUSize    uint16
}

// Open2ReplyFrom decodes an Open2Reply, including its id byte.
func Open2ReplyFrom(b *buf.Buffer) (Open2Reply, error) {
	if _, err := b.ReadByte(); err != nil { // id
		return Open2Reply{}, err
	}
	if _, err := b.ReadArray(16); err != nil { // magic
		return Open2Reply{}, err
	}
	guid, err := b.ReadUint64()
	if err != nil {
		return Open2Reply{}, err
	}
	if _, err := b.ReadByte(); err != nil { // security, unused by the proxy
		return Open2Reply{}, err
	}
	mtu, err := b.ReadUint16()
	if err != nil {
		return Open2Reply{}, err
	}
	return Open2Reply{ServerGUID: guid, MTUSize: mtu}, nil
}

// To encodes the Open2Reply, appending it to b.
func (r Open2Reply) To(b *buf.Buffer) {
	b.WriteByte(IDOpen2Reply)
	b.WriteArray(Magic[:])
	b.WriteUint64(r.ServerGUID)
	b.WriteByte(0)
	b.WriteUint16(r.MTUSize)
}
