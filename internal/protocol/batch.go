package protocol

import (
	"bytes"
	"compress/zlib"
	"fmt"
	"io"

	"github.com/golang/snappy"
	"github.com/klauspost/compress/flate"

	"github.com/wlkek/raknet-mitm-proxy/internal/buf"
)

// IDBatch is the game-packet-header id identifying a BatchPacket's inner
// payload on the wire, i.e. the first byte after RakNet framing.
const IDBatch byte = 0xfe

// CompressionKind selects the algorithm a BatchPacket body is compressed
// with. BatchFrom and Export accept any of these kinds; the session
// pipeline always decodes and re-encodes batches with Zlib and does not
// read a compression selector from the wire, so the Snappy, None and
// raw-deflate paths are not used by it.
type CompressionKind byte

const (
	CompressionZlib   CompressionKind = 0x00
	CompressionSnappy CompressionKind = 0x01
	CompressionNone   CompressionKind = 0xff
)

// BatchPacket is the application-layer container of one or more inner
// Bedrock packets, each length-prefixed, the whole compressed as a unit.
type BatchPacket struct {
	Packets []byte // concatenation of varint-length-prefixed inner packets
}

// BatchFrom decompresses body (the bytes following the 0xfe header and,
// once Encrypted, following the batch cipher's own unwrap) into a
// BatchPacket.
func BatchFrom(body []byte, kind CompressionKind) (BatchPacket, error) {
	switch kind {
	case CompressionNone:
		return BatchPacket{Packets: body}, nil
	case CompressionSnappy:
		raw, err := snappy.Decode(nil, body)
		if err != nil {
			return BatchPacket{}, fmt.Errorf("%w: snappy: %v", buf.ErrMalformed, err)
		}
		return BatchPacket{Packets: raw}, nil
	case CompressionZlib:
		r, err := zlib.NewReader(bytes.NewReader(body))
		if err != nil {
			return BatchPacket{}, fmt.Errorf("%w: zlib: %v", buf.ErrMalformed, err)
		}
		defer r.Close()
		raw, err := io.ReadAll(r)
		if err != nil {
			return BatchPacket{}, fmt.Errorf("%w: zlib: %v", buf.ErrMalformed, err)
		}
		return BatchPacket{Packets: raw}, nil
	default:
		// Raw deflate, observed on older peers that omit the zlib header.
		r := flate.NewReader(bytes.NewReader(body))
		defer r.Close()
		raw, err := io.ReadAll(r)
		if err != nil {
			return BatchPacket{}, fmt.Errorf("%w: deflate: %v", buf.ErrMalformed, err)
		}
		return BatchPacket{Packets: raw}, nil
	}
}

// Export re-compresses the batch body using kind.
func (p BatchPacket) Export(kind CompressionKind) ([]byte, error) {
	switch kind {
	case CompressionNone:
		return p.Packets, nil
	case CompressionSnappy:
		return snappy.Encode(nil, p.Packets), nil
	default: // CompressionZlib is the proxy's own default
		var out bytes.Buffer
		w := zlib.NewWriter(&out)
		if _, err := w.Write(p.Packets); err != nil {
			return nil, err
		}
		if err := w.Close(); err != nil {
			return nil, err
		}
		return out.Bytes(), nil
	}
}

// Inner iterates the batch's varint-length-prefixed inner packets,
// calling fn with each one's raw bytes (including its own id byte).
func (p BatchPacket) Inner(fn func([]byte) error) error {
	b := buf.New(p.Packets)
	for b.Remaining() > 0 {
		inner, err := b.ReadByteArray()
		if err != nil {
			return err
		}
		if err := fn(inner); err != nil {
			return err
		}
	}
	return nil
}

// NewBatch builds a BatchPacket body from a list of already-encoded inner
// packets, each prefixed with its varint length.
func NewBatch(inner [][]byte) BatchPacket {
	b := buf.Empty(0)
	for _, p := range inner {
		b.WriteByteArray(p)
	}
	return BatchPacket{Packets: b.Bytes()}
}
