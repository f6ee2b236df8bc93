package session

import "github.com/wlkek/raknet-mitm-proxy/internal/reliability"

// DirectionState holds the per-direction bookkeeping spec.md §3 names:
// outbound counters toward this direction, and the inbound window/split
// table for reliable traffic arriving from it. One instance tracks
// traffic associated with the client; a second tracks the server.
type DirectionState struct {
	packetIndex uint32
	seqNumber   uint32
	splitID     uint16

	Window *reliability.Window
	Splits *reliability.SplitTable
}

// newDirectionState constructs a DirectionState at its initial extent
// (spec.md §3: reliableWindow initially {0, 2048}, counters at zero).
func newDirectionState() *DirectionState {
	return &DirectionState{
		Window: reliability.NewWindow(),
		Splits: reliability.NewSplitTable(),
	}
}

// NextPacketIndex returns the next reliable message index to assign to an
// outbound packet toward this direction, then advances it. Strictly
// monotonic across the session's lifetime (spec.md §3 invariant 5).
func (d *DirectionState) NextPacketIndex() uint32 {
	v := d.packetIndex
	d.packetIndex++
	return v
}

// NextSeqNumber returns the next datagram sequence number toward this
// direction, then advances it.
func (d *DirectionState) NextSeqNumber() uint32 {
	v := d.seqNumber
	d.seqNumber++
	return v
}

// NextSplitID returns the next split-set identifier toward this
// direction, then advances it modulo 2^16 (spec.md §3).
func (d *DirectionState) NextSplitID() uint16 {
	v := d.splitID
	d.splitID++
	return v
}
