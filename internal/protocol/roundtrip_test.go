package protocol

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/wlkek/raknet-mitm-proxy/internal/buf"
)

// TestProperty_DatagramRoundTrip validates spec.md §8 invariant 6 for
// Datagram: encode(decode(bytes)) == bytes.
func TestProperty_DatagramRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("datagram round-trips", prop.ForAll(
		func(seq uint32, payload []byte) bool {
			seq &= 0xffffff
			d := Datagram{Sequence: seq, Packets: []EncapsulatedPacket{
				{Reliability: ReliableOrdered, Index: 1, Order: 2, Sub: payload},
			}}
			b := buf.Empty(32)
			d.To(b)

			decoded, err := DatagramFrom(buf.New(b.Bytes()))
			if err != nil {
				return false
			}
			reencoded := buf.Empty(32)
			decoded.To(reencoded)
			return bytesEqual(b.Bytes(), reencoded.Bytes())
		},
		gen.UInt32(),
		gen.SliceOf(gen.UInt8()),
	))

	properties.TestingRun(t)
}

func TestProperty_AckRoundTrip(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("ack round-trips for a single sequence", prop.ForAll(
		func(seq uint32) bool {
			seq &= 0xffffff
			a := Ack{Seqs: []uint32{seq}}
			b := buf.Empty(8)
			a.To(b)

			decoded, err := AckFrom(buf.New(b.Bytes()))
			if err != nil || len(decoded.Seqs) != 1 || decoded.Seqs[0] != seq {
				return false
			}
			return true
		},
		gen.UInt32(),
	))

	properties.TestingRun(t)
}

func TestBatchPacketRoundTripZlib(t *testing.T) {
	original := NewBatch([][]byte{{1, 2, 3}, {4, 5}})
	exported, err := original.Export(CompressionZlib)
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	decoded, err := BatchFrom(exported, CompressionZlib)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	var got [][]byte
	if err := decoded.Inner(func(p []byte) error {
		cp := append([]byte(nil), p...)
		got = append(got, cp)
		return nil
	}); err != nil {
		t.Fatalf("inner: %v", err)
	}
	if len(got) != 2 || string(got[0]) != "\x01\x02\x03" || string(got[1]) != "\x04\x05" {
		t.Fatalf("unexpected inner packets: %v", got)
	}
}

func TestOpen2RequestRoundTrip(t *testing.T) {
	r := Open2Request{MTUSize: 900}
	b := buf.Empty(32)
	r.To(b)
	decoded, err := Open2RequestFrom(buf.New(b.Bytes()))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.MTUSize != 900 {
		t.Fatalf("mtu mismatch: got %d want 900", decoded.MTUSize)
	}
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
