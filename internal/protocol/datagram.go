package protocol

import (
	"github.com/wlkek/raknet-mitm-proxy/internal/buf"
)

const (
	FlagValid byte = 0x80
	FlagACK   byte = 0x40
	FlagNAK   byte = 0x20
)

// Datagram carries a sequence number and one or more encapsulated packets.
type Datagram struct {
	Sequence uint32
	Packets  []EncapsulatedPacket
}

// DatagramFrom decodes a complete Datagram, including its header byte.
func DatagramFrom(b *buf.Buffer) (Datagram, error) {
	flags, err := b.ReadByte()
	if err != nil {
		return Datagram{}, err
	}
	if flags&FlagValid == 0 {
		return Datagram{}, ErrNotDatagram
	}
	seq, err := b.ReadTriadLE()
	if err != nil {
		return Datagram{}, err
	}
	d := Datagram{Sequence: seq}
	for b.Remaining() > 0 {
		p, err := EncapsulatedFrom(b)
		if err != nil {
			return Datagram{}, err
		}
		d.Packets = append(d.Packets, p)
	}
	return d, nil
}

// To encodes the Datagram, appending it to b.
func (d Datagram) To(b *buf.Buffer) {
	b.WriteByte(FlagValid)
	b.WriteTriadLE(d.Sequence)
	for _, p := range d.Packets {
		p.To(b)
	}
}
