// Package proxyserver owns the UDP listener, the client registry, and the
// per-client upstream socket that together form the Handler spec.md §9
// describes: it accepts datagrams from clients, creates a Session per
// client address, and dials a dedicated upstream connection toward the
// target server for each one.
package proxyserver

import (
	"context"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/wlkek/raknet-mitm-proxy/internal/config"
	"github.com/wlkek/raknet-mitm-proxy/internal/events"
	"github.com/wlkek/raknet-mitm-proxy/internal/session"
)

// MaxDatagramSize bounds a single UDP read. RakNet datagrams stay well
// under the classic Ethernet MTU; this leaves headroom for jumbo frames.
const MaxDatagramSize = 8192

// IdleTimeout is how long a client's Session may go without traffic
// before its upstream socket and registry entry are reclaimed.
const IdleTimeout = 5 * time.Minute

// client bundles a registered Session together with the upstream
// connection dialed on its behalf and its last-seen timestamp used by
// the idle-reaper.
type client struct {
	addr     *net.UDPAddr
	sess     *session.Session
	upstream *net.UDPConn
	lastSeen atomic64
}

// atomic64 is a mutex-guarded timestamp. Its zero value reads as the
// Unix epoch, so getOrCreate stores the creation time before the client
// is registered.
type atomic64 struct {
	mu sync.Mutex
	ns int64
}

func (a *atomic64) store(t time.Time) {
	a.mu.Lock()
	a.ns = t.UnixNano()
	a.mu.Unlock()
}

func (a *atomic64) load() time.Time {
	a.mu.Lock()
	defer a.mu.Unlock()
	return time.Unix(0, a.ns)
}

// SessionInfo is the read-only snapshot the management API exposes.
type SessionInfo struct {
	ID         string
	ClientAddr string
	State      string
	MTU        uint16
}

// Server is the Handler of spec.md §9: a registry of Sessions fronted
// by one client-facing UDP listener.
type Server struct {
	cfg *config.Config
	log *zap.Logger
	bus *events.Bus

	listener   *net.UDPConn
	targetAddr *net.UDPAddr

	clients sync.Map // string (client addr) -> *client

	wg     sync.WaitGroup
	cancel context.CancelFunc
}

// New constructs a Server; Start must be called before Run.
func New(cfg *config.Config, bus *events.Bus, log *zap.Logger) *Server {
	return &Server{cfg: cfg, bus: bus, log: log}
}

// Start resolves the listen/target addresses and binds the client-facing
// socket. It does not block.
func (srv *Server) Start() error {
	listenAddr, err := net.ResolveUDPAddr("udp", srv.cfg.ListenAddr)
	if err != nil {
		return err
	}
	targetAddr, err := net.ResolveUDPAddr("udp", srv.cfg.TargetAddr)
	if err != nil {
		return err
	}
	listener, err := net.ListenUDP("udp", listenAddr)
	if err != nil {
		return err
	}
	srv.listener = listener
	srv.targetAddr = targetAddr
	srv.log.Info("proxy listening", zap.String("listen", srv.cfg.ListenAddr), zap.String("target", srv.cfg.TargetAddr))
	return nil
}

// Run drives the accept loop until ctx is cancelled or the listener
// fails. It blocks; call it from its own goroutine alongside the
// management API's ListenAndServe.
func (srv *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	srv.cancel = cancel

	srv.wg.Add(1)
	go srv.reapIdle(ctx)

	buffer := make([]byte, MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		srv.listener.SetReadDeadline(time.Now().Add(time.Second))
		n, addr, err := srv.listener.ReadFromUDP(buffer)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return nil
			default:
				srv.log.Debug("listener read error", zap.Error(err))
				continue
			}
		}

		data := make([]byte, n)
		copy(data, buffer[:n])

		c, err := srv.getOrCreate(ctx, addr)
		if err != nil {
			srv.log.Warn("failed to create client", zap.Stringer("addr", addr), zap.Error(err))
			continue
		}
		c.lastSeen.store(time.Now())

		if err := c.sess.HandleInbound(ctx, session.Client, data); err != nil {
			srv.log.Warn("session error, disconnecting", zap.String("session", c.sess.ID), zap.Error(err))
			srv.remove(addr.String())
		}
	}
}

// Stop closes the listener and every upstream socket and waits for the
// reaper and per-client forwarders to exit.
func (srv *Server) Stop() error {
	if srv.cancel != nil {
		srv.cancel()
	}
	if srv.listener != nil {
		srv.listener.Close()
	}
	srv.clients.Range(func(_, v any) bool {
		v.(*client).upstream.Close()
		return true
	})
	srv.wg.Wait()
	return nil
}

// Sessions returns a snapshot of every registered client's Session, for
// the management API's GET /sessions.
func (srv *Server) Sessions() []SessionInfo {
	var out []SessionInfo
	srv.clients.Range(func(_, v any) bool {
		c := v.(*client)
		out = append(out, SessionInfo{
			ID:         c.sess.ID,
			ClientAddr: c.addr.String(),
			State:      c.sess.State.String(),
			MTU:        c.sess.MTUSize,
		})
		return true
	})
	return out
}

func (srv *Server) getOrCreate(ctx context.Context, addr *net.UDPAddr) (*client, error) {
	key := addr.String()
	if v, ok := srv.clients.Load(key); ok {
		return v.(*client), nil
	}

	upstream, err := net.DialUDP("udp", nil, srv.targetAddr)
	if err != nil {
		return nil, err
	}

	c := &client{addr: addr, upstream: upstream}
	c.lastSeen.store(time.Now())

	sendFn := func(to session.Origin, data []byte) error {
		if to == session.Client {
			_, err := srv.listener.WriteToUDP(data, c.addr)
			return err
		}
		_, err := c.upstream.Write(data)
		return err
	}
	c.sess = session.New(uuid.NewString(), uint16(srv.cfg.InitialMTU), sendFn, srv.bus, srv.log)

	actual, loaded := srv.clients.LoadOrStore(key, c)
	if loaded {
		upstream.Close()
		return actual.(*client), nil
	}

	srv.wg.Add(1)
	go srv.forwardUpstream(ctx, c)

	srv.log.Info("new client session", zap.String("client", key), zap.String("session", c.sess.ID))
	return c, nil
}

// forwardUpstream reads datagrams arriving from the target server on
// c's dedicated socket and drives them through the Session as Server
// origin traffic.
func (srv *Server) forwardUpstream(ctx context.Context, c *client) {
	defer srv.wg.Done()
	defer srv.remove(c.addr.String())

	buffer := make([]byte, MaxDatagramSize)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		c.upstream.SetReadDeadline(time.Now().Add(time.Second))
		n, err := c.upstream.Read(buffer)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			select {
			case <-ctx.Done():
				return
			default:
				srv.log.Debug("upstream read error", zap.String("session", c.sess.ID), zap.Error(err))
				return
			}
		}

		data := make([]byte, n)
		copy(data, buffer[:n])
		c.lastSeen.store(time.Now())

		if err := c.sess.HandleInbound(ctx, session.Server, data); err != nil {
			srv.log.Warn("session error, disconnecting", zap.String("session", c.sess.ID), zap.Error(err))
			return
		}
	}
}

func (srv *Server) remove(key string) {
	if v, ok := srv.clients.LoadAndDelete(key); ok {
		c := v.(*client)
		c.sess.Disconnect()
		c.upstream.Close()
		srv.log.Info("client session removed", zap.String("client", key), zap.String("session", c.sess.ID))
	}
}

func (srv *Server) reapIdle(ctx context.Context) {
	defer srv.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			now := time.Now()
			srv.clients.Range(func(k, v any) bool {
				c := v.(*client)
				if now.Sub(c.lastSeen.load()) > IdleTimeout {
					srv.remove(k.(string))
				}
				return true
			})
		}
	}
}
