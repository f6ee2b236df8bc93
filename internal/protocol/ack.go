package protocol

import "github.com/wlkek/raknet-mitm-proxy/internal/buf"

// Ack is the ACK or NACK control packet: a header byte (FlagACK or
// FlagNAK) followed by a big-endian uint16 count of ranges and the ranges
// themselves, each a single-flag byte, a start sequence, and an end
// sequence present only when the range spans more than one value.
type Ack struct {
	Nak  bool
	Seqs []uint32 // individual sequence numbers carried, in ascending order
}

// AckFrom decodes an ACK or NACK packet, including its header byte.
func AckFrom(b *buf.Buffer) (Ack, error) {
	flags, err := b.ReadByte()
	if err != nil {
		return Ack{}, err
	}
	a := Ack{Nak: flags&FlagNAK != 0}

	count, err := b.ReadUint16()
	if err != nil {
		return Ack{}, err
	}
	for i := uint16(0); i < count; i++ {
		single, err := b.ReadBool()
		if err != nil {
			return Ack{}, err
		}
		start, err := b.ReadTriadLE()
		if err != nil {
			return Ack{}, err
		}
		end := start
		if !single {
			if end, err = b.ReadTriadLE(); err != nil {
				return Ack{}, err
			}
		}
		for s := start; s <= end; s++ {
			a.Seqs = append(a.Seqs, s)
			if s == 0xffffff { // guard 24-bit wraparound in a malformed range
				break
			}
		}
	}
	return a, nil
}

// To encodes the ACK/NACK, appending it to b. Contiguous runs in Seqs
// (which must be sorted ascending) are collapsed into ranges.
func (a Ack) To(b *buf.Buffer) {
	if a.Nak {
		b.WriteByte(FlagNAK)
	} else {
		b.WriteByte(FlagACK)
	}

	ranges := toRanges(a.Seqs)
	b.WriteUint16(uint16(len(ranges)))
	for _, r := range ranges {
		if r[0] == r[1] {
			b.WriteBool(true)
			b.WriteTriadLE(r[0])
		} else {
			b.WriteBool(false)
			b.WriteTriadLE(r[0])
			b.WriteTriadLE(r[1])
		}
	}
}

func toRanges(seqs []uint32) [][2]uint32 {
	if len(seqs) == 0 {
		return nil
	}
	var ranges [][2]uint32
	start, end := seqs[0], seqs[0]
	for _, s := range seqs[1:] {
		if s == end+1 {
			end = s
			continue
		}
		ranges = append(ranges, [2]uint32{start, end})
		start, end = s, s
	}
	ranges = append(ranges, [2]uint32{start, end})
	return ranges
}
