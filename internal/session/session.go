// Package session implements the per-connection state machine spec.md
// §4.5 describes: the reliable-datagram pipeline, the Offline -> Online
// -> Encrypted transitions, and the Login/ServerHandshake interception
// that performs the proxy's dual key agreement.
package session

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/wlkek/raknet-mitm-proxy/internal/batchcrypto"
	"github.com/wlkek/raknet-mitm-proxy/internal/buf"
	"github.com/wlkek/raknet-mitm-proxy/internal/events"
	"github.com/wlkek/raknet-mitm-proxy/internal/protocol"
	"github.com/wlkek/raknet-mitm-proxy/internal/reliability"
)

// Sender delivers data toward the named Origin. Implementations must be
// safe to call concurrently across sessions sharing the same listener
// (spec.md §5).
type Sender func(to Origin, data []byte) error

// Session is the central per-connection record spec.md §3 describes.
// Per spec.md §5, all mutation of a given Session happens from one
// logical task; Session itself holds no lock.
type Session struct {
	ID string

	State   State
	MTUSize uint16

	Client *DirectionState
	Server *DirectionState

	KeyPair     *ecdsa.PrivateKey
	Salt        string
	ClientBatch *batchcrypto.Codec
	ServerBatch *batchcrypto.Codec

	bus    *events.Bus
	log    *zap.Logger
	sendFn Sender
}

// New constructs a Session in its initial Offline state with the default
// MTU spec.md §3 names.
func New(id string, initialMTU uint16, sendFn Sender, bus *events.Bus, log *zap.Logger) *Session {
	return &Session{
		ID:      id,
		State:   Offline,
		MTUSize: initialMTU,
		Client:  newDirectionState(),
		Server:  newDirectionState(),
		bus:     bus,
		log:     log,
		sendFn:  sendFn,
	}
}

func (s *Session) direction(o Origin) *DirectionState {
	if o == Client {
		return s.Client
	}
	return s.Server
}

func (s *Session) codecFor(o Origin) *batchcrypto.Codec {
	if o == Client {
		return s.ClientBatch
	}
	return s.ServerBatch
}

// setState applies a session state transition if legal per spec.md §3
// invariant 1, and fires the "state" event. An illegal transition is
// logged at warn level and otherwise ignored: the state is unchanged and
// no event fires.
func (s *Session) setState(next State) {
	if !s.State.advanceTo(next) {
		s.log.Warn("illegal state transition", zap.String("session", s.ID), zap.Stringer("from", s.State), zap.Stringer("to", next))
		return
	}
	s.State = next
	_, _, _ = s.bus.Dispatch(context.Background(), events.KindState, next)
}

// Disconnect tears the session down to Offline (spec.md §7: the terminal
// transition triggered by any fatal error).
func (s *Session) Disconnect() {
	s.State = Offline
	_, _, _ = s.bus.Dispatch(context.Background(), events.KindState, Offline)
}

// HandleInbound processes one UDP datagram received from origin o. A
// returned error other than a StateMismatch/Malformed drop is fatal; the
// caller is responsible for calling Disconnect and tearing down the
// server-facing listener (spec.md §7).
func (s *Session) HandleInbound(ctx context.Context, o Origin, data []byte) error {
	payload, cancelled, err := s.bus.Dispatch(ctx, events.KindDataIn, data)
	if err != nil {
		return err
	}
	if cancelled {
		return nil
	}
	data, _ = payload.([]byte)

	if s.State == Offline {
		return s.handleOffline(o, data)
	}
	return s.handleOnline(ctx, o, data)
}

// handleOffline implements spec.md §4.5's Offline behavior: packets are
// forwarded byte-for-byte, the MTU is narrowed on Open2Request, and the
// session advances to Online on Open2Reply.
func (s *Session) handleOffline(o Origin, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch data[0] {
	case protocol.IDOpen2Request:
		req, err := protocol.Open2RequestFrom(buf.New(data))
		if err != nil {
			s.log.Debug("malformed open2request, dropping", zap.Error(err))
			return nil
		}
		if req.MTUSize < s.MTUSize {
			s.MTUSize = req.MTUSize
		}
	case protocol.IDOpen2Reply:
		if _, err := protocol.Open2ReplyFrom(buf.New(data)); err != nil {
			s.log.Debug("malformed open2reply, dropping", zap.Error(err))
			return nil
		}
		if o == Server {
			s.setState(Online)
		}
	}
	return s.forward(o, data)
}

// forward sends data verbatim toward the opposite origin, running it
// through the data-out hook first.
func (s *Session) forward(o Origin, data []byte) error {
	return s.emitAndSend(o.Opposite(), data)
}

func (s *Session) emitAndSend(to Origin, data []byte) error {
	payload, cancelled, err := s.bus.Dispatch(context.Background(), events.KindDataOut, data)
	if err != nil {
		return err
	}
	if cancelled {
		return nil
	}
	out, ok := payload.([]byte)
	if !ok || out == nil {
		return fmt.Errorf("%w: toward %s", ErrEventError, to)
	}
	return s.sendFn(to, out)
}

// handleOnline implements spec.md §4.5's datagramOf dispatch for both
// Online and Encrypted states, which share the same framing logic and
// differ only in whether handleBatch uses the encrypted codec.
func (s *Session) handleOnline(ctx context.Context, o Origin, data []byte) error {
	if len(data) == 0 {
		return nil
	}
	switch {
	case data[0]&protocol.FlagValid != 0:
		return s.handleDatagram(ctx, o, data)
	case data[0]&protocol.FlagACK != 0:
		return s.handleAck(o, data)
	case data[0]&protocol.FlagNAK != 0:
		return s.handleNak(o, data)
	default:
		return nil // unrecognized leading byte, ignored per spec.md §4.5
	}
}

func (s *Session) handleAck(o Origin, data []byte) error {
	if _, err := protocol.AckFrom(buf.New(data)); err != nil {
		s.log.Debug("malformed ack, dropping", zap.Error(err))
	}
	// No retransmission buffer is kept (spec.md §7); acks about the
	// proxy's own re-stamped datagrams require no action.
	return nil
}

func (s *Session) handleNak(o Origin, data []byte) error {
	if _, err := protocol.AckFrom(buf.New(data)); err != nil {
		s.log.Debug("malformed nack, dropping", zap.Error(err))
		return nil
	}
	s.log.Debug("nack received, no-op", zap.Stringer("origin", o))
	return nil
}

// handleDatagram implements spec.md §4.3's inbound datagram pipeline: ack
// the datagram immediately, then process each encapsulated packet in
// order.
func (s *Session) handleDatagram(ctx context.Context, o Origin, data []byte) error {
	dg, err := protocol.DatagramFrom(buf.New(data))
	if err != nil {
		s.log.Debug("malformed datagram, dropping", zap.Error(err))
		return nil
	}

	if err := s.emitAck(o, dg.Sequence); err != nil {
		return err
	}

	for _, pkt := range dg.Packets {
		if err := s.processEncapsulated(ctx, o, pkt); err != nil {
			return err
		}
	}
	return nil
}

// emitAck sends a single-sequence ACK back toward the same origin the
// datagram arrived from (spec.md §4.3).
func (s *Session) emitAck(o Origin, seq uint32) error {
	ack := protocol.Ack{Seqs: []uint32{seq}}
	b := buf.Empty(8)
	ack.To(b)
	return s.emitAndSend(o, b.Bytes())
}

// processEncapsulated reassembles splits, admits reliable indices, and
// dispatches the resulting logical payload for batch handling or verbatim
// forwarding.
func (s *Session) processEncapsulated(ctx context.Context, o Origin, pkt protocol.EncapsulatedPacket) error {
	recv := s.direction(o)

	if pkt.Split != nil {
		assembled, err := recv.Splits.Add(pkt.Split.ID, pkt.Split.Index, pkt.Split.Count, pkt.Sub)
		if err != nil {
			return err
		}
		if assembled == nil {
			return nil // still incomplete
		}
		pkt.Sub = assembled
		pkt.Split = nil
	}

	if protocol.IsReliable(pkt.Reliability) {
		admitted, err := recv.Window.Admit(pkt.Index)
		if err != nil {
			return err
		}
		if !admitted {
			return nil // out-of-window duplicate, silent drop
		}
	}

	if len(pkt.Sub) > 0 && pkt.Sub[0] == protocol.IDBatch {
		return s.processBatch(ctx, o, pkt)
	}
	return s.forwardEncapsulated(o, pkt)
}

// forwardEncapsulated re-fragments and re-stamps a non-batch encapsulated
// payload toward the opposite origin, unmodified.
func (s *Session) forwardEncapsulated(o Origin, pkt protocol.EncapsulatedPacket) error {
	return s.sendFragmented(o.Opposite(), pkt.Sub, pkt.Reliability, pkt.Order, pkt.OrderChan)
}

// processBatch implements spec.md §4.4/§4.5: decrypt (if Encrypted) the
// batch body received from o, inspect and mutate Login/ServerHandshake
// packets, re-pack, re-encrypt toward the opposite origin, and
// re-fragment.
func (s *Session) processBatch(ctx context.Context, o Origin, pkt protocol.EncapsulatedPacket) error {
	body := pkt.Sub[1:]

	// Captured before the inner loop runs: ServerHandshake interception
	// flips state to Encrypted as a side effect of processing THIS batch,
	// but that batch itself travelled the wire unencrypted (spec.md §4.5:
	// "from this point", i.e. starting with the next one).
	wasEncrypted := s.State == Encrypted

	if wasEncrypted {
		codec := s.codecFor(o)
		plain, err := codec.Decrypt(body)
		if err != nil {
			return err
		}
		body = plain
	}

	batch, err := protocol.BatchFrom(body, protocol.CompressionZlib)
	if err != nil {
		s.log.Debug("malformed batch, dropping", zap.Error(err))
		return nil
	}

	var outInner [][]byte
	err = batch.Inner(func(inner []byte) error {
		mutated, err := s.inspectBedrockPacket(ctx, o, inner)
		if err != nil {
			return err
		}
		outInner = append(outInner, mutated)
		return nil
	})
	if err != nil {
		return err
	}

	exported, err := protocol.NewBatch(outInner).Export(protocol.CompressionZlib)
	if err != nil {
		return err
	}

	to := o.Opposite()
	outBody := append([]byte{protocol.IDBatch}, exported...)
	if wasEncrypted {
		destCodec := s.codecFor(to)
		if destCodec != nil {
			ciphertext, err := destCodec.Encrypt(exported)
			if err != nil {
				return err
			}
			outBody = append([]byte{protocol.IDBatch}, ciphertext...)
		}
	}

	return s.sendFragmented(to, outBody, pkt.Reliability, pkt.Order, pkt.OrderChan)
}

// inspectBedrockPacket implements the bedrock-in/bedrock-out hooks and
// the Login/ServerHandshake interception steps of spec.md §4.5.
func (s *Session) inspectBedrockPacket(ctx context.Context, o Origin, inner []byte) ([]byte, error) {
	payload, cancelled, err := s.bus.Dispatch(ctx, events.KindBedrockIn, inner)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return inner, nil
	}
	inner, _ = payload.([]byte)

	if len(inner) == 0 {
		return inner, nil
	}

	switch {
	case inner[0] == protocol.IDLogin && o == Client:
		login, err := protocol.LoginFrom(inner[1:])
		if err != nil {
			s.log.Debug("malformed login packet", zap.Error(err))
			return inner, nil
		}
		if err := s.interceptLogin(&login); err != nil {
			if errors.Is(err, ErrStateMismatch) {
				s.log.Debug("login arrived in the wrong state, dropping", zap.String("session", s.ID))
				return inner, nil
			}
			return nil, err
		}
		inner, err = login.To()
		if err != nil {
			return nil, err
		}
	case inner[0] == protocol.IDServerHandshake && o == Server:
		hs, err := protocol.ServerHandshakeFrom(inner[1:])
		if err != nil {
			s.log.Debug("malformed server handshake packet", zap.Error(err))
			return inner, nil
		}
		if err := s.interceptHandshake(&hs); err != nil {
			if errors.Is(err, ErrStateMismatch) {
				s.log.Debug("server handshake arrived in the wrong state, dropping", zap.String("session", s.ID))
				return inner, nil
			}
			return nil, err
		}
		inner = hs.To()
	}

	out, cancelled, err := s.bus.Dispatch(ctx, events.KindBedrockOut, inner)
	if err != nil {
		return nil, err
	}
	if cancelled {
		return inner, nil
	}
	final, _ := out.([]byte)
	return final, nil
}

// sendFragmented fragments payload to the destination's current MTU,
// stamps each fragment with fresh reliable index / sequence / split id
// taken from the destination DirectionState's outbound counters, and
// sends each resulting Datagram (spec.md §4.3 outbound fragmentation).
func (s *Session) sendFragmented(to Origin, payload []byte, rel protocol.Reliability, order uint32, orderChan byte) error {
	dest := s.direction(to)
	maxPayload := int(s.MTUSize) - 60
	if maxPayload <= 0 {
		maxPayload = 1
	}
	fragments := reliability.Fragment(payload, maxPayload)

	var splitID uint16
	if len(fragments) > 1 {
		splitID = dest.NextSplitID()
	}

	for i, frag := range fragments {
		ep := protocol.EncapsulatedPacket{
			Reliability: rel,
			Order:       order,
			OrderChan:   orderChan,
			Sub:         frag,
		}
		if protocol.IsReliable(rel) {
			ep.Index = dest.NextPacketIndex()
		}
		if len(fragments) > 1 {
			ep.Split = &protocol.SplitInfo{ID: splitID, Index: uint32(i), Count: uint32(len(fragments))}
		}

		dg := protocol.Datagram{Sequence: dest.NextSeqNumber(), Packets: []protocol.EncapsulatedPacket{ep}}
		b := buf.Empty(len(frag) + 16)
		dg.To(b)
		if err := s.emitAndSend(to, b.Bytes()); err != nil {
			return err
		}
	}
	return nil
}
