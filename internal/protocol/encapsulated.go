package protocol

import (
	"fmt"

	"github.com/wlkek/raknet-mitm-proxy/internal/buf"
)

// SplitInfo describes a fragment's place within a reassembled message.
type SplitInfo struct {
	ID    uint16
	Index uint32
	Count uint32
}

// EncapsulatedPacket is a single logical message carried within a Datagram.
type EncapsulatedPacket struct {
	Reliability Reliability
	Index       uint32 // reliable message index, present iff IsReliable(Reliability)
	Sequence    uint32 // sequenced frame index, present iff IsSequenced(Reliability)
	Order       uint32 // ordered frame index, present iff IsOrdered(Reliability)
	OrderChan   byte
	Split       *SplitInfo
	Sub         []byte
}

// EncapsulatedFrom decodes a single EncapsulatedPacket starting at the buffer's current
// read cursor, advancing it past the packet.
func EncapsulatedFrom(b *buf.Buffer) (EncapsulatedPacket, error) {
	flags, err := b.ReadByte()
	if err != nil {
		return EncapsulatedPacket{}, err
	}
	hasSplit := flags&0x10 != 0
	reliability := Reliability((flags >> 5) & 0x07)

	bitLength, err := b.ReadUint16()
	if err != nil {
		return EncapsulatedPacket{}, err
	}
	byteLength := int(bitLength+7) / 8

	p := EncapsulatedPacket{Reliability: reliability}

	if IsReliable(reliability) {
		if p.Index, err = b.ReadTriadLE(); err != nil {
			return EncapsulatedPacket{}, err
		}
	}
	if IsSequenced(reliability) {
		if p.Sequence, err = b.ReadTriadLE(); err != nil {
			return EncapsulatedPacket{}, err
		}
	}
	if IsOrdered(reliability) {
		if p.Order, err = b.ReadTriadLE(); err != nil {
			return EncapsulatedPacket{}, err
		}
		if p.OrderChan, err = b.ReadByte(); err != nil {
			return EncapsulatedPacket{}, err
		}
	}
	if hasSplit {
		count, err := b.ReadUint32()
		if err != nil {
			return EncapsulatedPacket{}, err
		}
		id, err := b.ReadUint16()
		if err != nil {
			return EncapsulatedPacket{}, err
		}
		index, err := b.ReadUint32()
		if err != nil {
			return EncapsulatedPacket{}, err
		}
		p.Split = &SplitInfo{ID: id, Index: index, Count: count}
	}

	sub, err := b.ReadArray(byteLength)
	if err != nil {
		return EncapsulatedPacket{}, err
	}
	p.Sub = sub
	return p, nil
}

// To encodes the packet, appending it to b.
func (p EncapsulatedPacket) To(b *buf.Buffer) {
	flags := byte(p.Reliability) << 5
	if p.Split != nil {
		flags |= 0x10
	}
	b.WriteByte(flags)
	b.WriteUint16(uint16(len(p.Sub)) * 8)

	if IsReliable(p.Reliability) {
		b.WriteTriadLE(p.Index)
	}
	if IsSequenced(p.Reliability) {
		b.WriteTriadLE(p.Sequence)
	}
	if IsOrdered(p.Reliability) {
		b.WriteTriadLE(p.Order)
		b.WriteByte(p.OrderChan)
	}
	if p.Split != nil {
		b.WriteUint32(p.Split.Count)
		b.WriteUint16(p.Split.ID)
		b.WriteUint32(p.Split.Index)
	}
	b.WriteArray(p.Sub)
}

func (p EncapsulatedPacket) String() string {
	if p.Split != nil {
		return fmt.Sprintf("Encapsulated{reliability=%d split=%d/%d len=%d}", p.Reliability, p.Split.Index, p.Split.Count, len(p.Sub))
	}
	return fmt.Sprintf("Encapsulated{reliability=%d len=%d}", p.Reliability, len(p.Sub))
}
