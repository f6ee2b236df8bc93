package protocol

import "errors"

// ErrNotDatagram is returned by DatagramFrom when the header's valid bit
// (0x80) is unset; the caller should dispatch the byte as an ACK/NACK or
// drop it instead.
var ErrNotDatagram = errors.New("protocol: not a datagram")
