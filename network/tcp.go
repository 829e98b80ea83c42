package network

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"go.uber.org/atomic"
	"golang.org/x/sync/errgroup"
)

// ErrConnectTimeout is returned when a peer cannot be reached in time.
var ErrConnectTimeout = errors.New("network: could not reach peer before the connect timeout")

const (
	DefaultConnectTimeout   = 30 * time.Second
	DefaultRetryInterval    = 10 * time.Millisecond
	DefaultHandshakeTimeout = 10 * time.Second
)

// TCPConfig describes the local party's view of a static group.
type TCPConfig struct {
	// Hosts lists one host:port per party, indexed by party id.
	Hosts []string

	// SelfID is the id of the local party.
	SelfID int

	// Session is the secret shared by every party of one run. Connections
	// from processes started with another session are rejected.
	Session string

	// ConnectTimeout bounds how long a dial to one peer is retried.
	ConnectTimeout time.Duration

	// RetryInterval is the pause between refused dials.
	RetryInterval time.Duration

	// HandshakeTimeout bounds the hello exchange on a fresh connection.
	HandshakeTimeout time.Duration

	Log *slog.Logger
}

func (cfg *TCPConfig) applyDefaults() {
	if cfg.ConnectTimeout == 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.RetryInterval == 0 {
		cfg.RetryInterval = DefaultRetryInterval
	}
	if cfg.HandshakeTimeout == 0 {
		cfg.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if cfg.Log == nil {
		cfg.Log = slog.Default()
	}
}

type peer struct {
	id   int
	addr string
	conn *net.TCPConn
}

var _ Channel = (*TCPChannel)(nil)

// TCPChannel is a Channel over a full mesh of TCP connections.
type TCPChannel struct {
	id    int
	peers []*peer
	tag   SessionTag
	cfg   TCPConfig
	log   *slog.Logger

	// mu serializes collective calls.
	mu     sync.Mutex
	stats  counters
	ready  atomic.Bool
	closed atomic.Bool
	broken atomic.Bool
}

// InitFromFile loads the host file and connects the local party to the mesh.
func InitFromFile(ctx context.Context, path string, selfID int, opts ...func(*TCPConfig)) (*TCPChannel, error) {
	hosts, err := LoadHostFile(path)
	if err != nil {
		return nil, err
	}
	cfg := TCPConfig{Hosts: hosts, SelfID: selfID}
	for _, opt := range opts {
		opt(&cfg)
	}
	return Connect(ctx, cfg)
}

// Connect builds the mesh and returns once every party is connected.
//
// Connections are established pair by pair in increasing (from, to) order:
// the lower id dials and the higher id accepts. After finishing its dials,
// party k releases party k+1 with a sentinel byte, so a fast party never
// dials a peer that is still accepting an earlier round. A final gather and
// scatter through the master confirms the whole mesh is up.
func Connect(ctx context.Context, cfg TCPConfig) (*TCPChannel, error) {
	cfg.applyDefaults()
	n := len(cfg.Hosts)
	if n == 0 {
		return nil, fmt.Errorf("%w: no hosts", ErrInvalidHostFile)
	}
	if cfg.SelfID < 0 || cfg.SelfID >= n {
		return nil, fmt.Errorf("party id %d out of range [0, %d)", cfg.SelfID, n)
	}
	for _, h := range cfg.Hosts {
		if err := validateAddress(h); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidHostFile, err)
		}
	}

	tag, err := DeriveSessionTag(cfg.Session, cfg.Hosts)
	if err != nil {
		return nil, err
	}

	c := &TCPChannel{
		id:    cfg.SelfID,
		peers: make([]*peer, n),
		tag:   tag,
		cfg:   cfg,
		log:   cfg.Log.With("party", cfg.SelfID),
	}
	for i, addr := range cfg.Hosts {
		c.peers[i] = &peer{id: i, addr: addr}
	}

	start := time.Now()
	if err := c.connectAll(ctx); err != nil {
		c.closeConns()
		return nil, err
	}
	c.ready.Store(true)

	if err := c.readinessRound(ctx); err != nil {
		c.closeConns()
		return nil, fmt.Errorf("readiness round: %w", err)
	}

	c.log.Info("mesh ready", "parties", n, "elapsed", time.Since(start))
	return c, nil
}

func (c *TCPChannel) connectAll(ctx context.Context) error {
	n := len(c.peers)

	var ln *net.TCPListener
	if c.id > 0 {
		var lc net.ListenConfig
		l, err := lc.Listen(ctx, "tcp", c.peers[c.id].addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", c.peers[c.id].addr, err)
		}
		ln = l.(*net.TCPListener)
		defer ln.Close()
		stop := context.AfterFunc(ctx, func() { ln.SetDeadline(time.Unix(1, 0)) })
		defer stop()
	}

	for from := 0; from < n; from++ {
		for to := from + 1; to < n; to++ {
			switch c.id {
			case from:
				c.log.Debug("contacting peer", "peer", to)
				conn, err := c.dial(ctx, to)
				if err != nil {
					return err
				}
				c.peers[to].conn = conn
			case to:
				c.log.Debug("awaiting peer", "peer", from)
				conn, err := c.accept(ctx, ln, from)
				if err != nil {
					return err
				}
				c.peers[from].conn = conn
			}
		}

		if from+1 >= n {
			continue
		}
		switch c.id {
		case from:
			if _, err := c.peers[from+1].conn.Write([]byte{0}); err != nil {
				return fmt.Errorf("releasing party %d: %w", from+1, err)
			}
		case from + 1:
			var sentinel [1]byte
			if _, err := io.ReadFull(c.peers[from].conn, sentinel[:]); err != nil {
				return fmt.Errorf("waiting for party %d: %w", from, err)
			}
		}
	}

	for _, p := range c.peers {
		if p.id != c.id && p.conn == nil {
			return fmt.Errorf("no connection to party %d", p.id)
		}
	}
	return nil
}

func (c *TCPChannel) dial(ctx context.Context, to int) (*net.TCPConn, error) {
	addr := c.peers[to].addr
	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	lastReport := time.Now()
	var d net.Dialer
	for {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			tcpConn := conn.(*net.TCPConn)
			if err := c.dialerHandshake(tcpConn, to); err != nil {
				tcpConn.Close()
				return nil, fmt.Errorf("handshake with party %d: %w", to, err)
			}
			return tcpConn, nil
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !isRetryable(err) {
			return nil, fmt.Errorf("dialing party %d at %s: %w", to, addr, err)
		}
		if time.Now().After(deadline) {
			return nil, fmt.Errorf("%w: party %d at %s", ErrConnectTimeout, to, addr)
		}
		if time.Since(lastReport) >= 3*time.Second {
			c.log.Debug("still waiting", "peer", to)
			lastReport = time.Now()
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.RetryInterval):
		}
	}
}

func isRetryable(err error) bool {
	return errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET)
}

func (c *TCPChannel) dialerHandshake(conn *net.TCPConn, to int) error {
	if err := conn.SetNoDelay(true); err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	h := hello{From: uint32(c.id), To: uint32(to), Tag: c.tag}
	if _, err := conn.Write(h.marshal()); err != nil {
		return err
	}
	reply, err := readHello(conn)
	if err != nil {
		return err
	}
	return reply.check(c.tag, to, c.id)
}

// accept waits for the connection from party from. Connections that fail the
// handshake are closed and the wait continues, so a stale socket left by an
// earlier run cannot take the place of the expected peer.
func (c *TCPChannel) accept(ctx context.Context, ln *net.TCPListener, from int) (*net.TCPConn, error) {
	for {
		conn, err := ln.AcceptTCP()
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("accepting party %d: %w", from, err)
		}
		if err := c.acceptorHandshake(conn, from); err != nil {
			c.log.Warn("rejected connection", "peer", from, "remote", conn.RemoteAddr().String(), "err", err)
			conn.Close()
			continue
		}
		return conn, nil
	}
}

func (c *TCPChannel) acceptorHandshake(conn *net.TCPConn, from int) error {
	if err := conn.SetNoDelay(true); err != nil {
		return err
	}
	conn.SetDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	defer conn.SetDeadline(time.Time{})

	h, err := readHello(conn)
	if err != nil {
		return err
	}
	if err := h.check(c.tag, from, c.id); err != nil {
		return err
	}
	reply := hello{From: uint32(c.id), To: uint32(from), Tag: c.tag}
	_, err = conn.Write(reply.marshal())
	return err
}

func (c *TCPChannel) readinessRound(ctx context.Context) error {
	var own [4]byte
	binary.LittleEndian.PutUint32(own[:], uint32(c.id))
	gathered, err := c.SendToMaster(ctx, own[:])
	if err != nil {
		return err
	}
	back, err := c.RecvFromMaster(ctx, gathered)
	if err != nil {
		return err
	}
	if len(back) != 4 || binary.LittleEndian.Uint32(back) != uint32(c.id) {
		return fmt.Errorf("%w: master echoed another party id", ErrSessionMismatch)
	}
	return nil
}

func (c *TCPChannel) PartyID() int   { return c.id }
func (c *TCPChannel) NParties() int  { return len(c.peers) }
func (c *TCPChannel) AmMaster() bool { return c.id == MasterID }

// IsInit reports whether every peer holds a live stream. connectAll only
// succeeds with all streams set, and Close marks the channel closed before
// dropping them, so the flags alone answer without touching the peers.
func (c *TCPChannel) IsInit() bool {
	return c.ready.Load() && !c.closed.Load()
}

func (c *TCPChannel) Stats() Stats { return c.stats.snapshot() }
func (c *TCPChannel) ResetStats()  { c.stats.reset() }

// begin takes the call lock and checks the channel can still be used.
func (c *TCPChannel) begin() (func(), error) {
	c.mu.Lock()
	switch {
	case c.closed.Load():
		c.mu.Unlock()
		return nil, ErrChannelClosed
	case c.broken.Load():
		c.mu.Unlock()
		return nil, ErrChannelBroken
	case !c.ready.Load():
		c.mu.Unlock()
		return nil, ErrChannelClosed
	}
	return c.mu.Unlock, nil
}

// fail marks the channel broken and reports the most useful cause.
func (c *TCPChannel) fail(ctx context.Context, op string, err error) error {
	c.broken.Store(true)
	if ctx.Err() != nil {
		return fmt.Errorf("%s: %w", op, ctx.Err())
	}
	return fmt.Errorf("%s: %w", op, err)
}

// interruptOn unblocks every peer connection once ctx is done.
func (c *TCPChannel) interruptOn(ctx context.Context) func() bool {
	conns := make([]*net.TCPConn, 0, len(c.peers))
	for _, p := range c.peers {
		if p.conn != nil {
			conns = append(conns, p.conn)
		}
	}
	return context.AfterFunc(ctx, func() {
		for _, conn := range conns {
			conn.SetDeadline(time.Unix(1, 0))
		}
	})
}

// exchange runs fn once per peer in parallel. The first failure interrupts
// the remaining exchanges.
func (c *TCPChannel) exchange(ctx context.Context, peers []*peer, fn func(p *peer) error) error {
	opCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	stop := c.interruptOn(opCtx)
	defer stop()

	var g errgroup.Group
	for _, p := range peers {
		p := p
		g.Go(func() error {
			if err := fn(p); err != nil {
				cancel()
				return err
			}
			return nil
		})
	}
	return g.Wait()
}

func (c *TCPChannel) others() []*peer {
	others := make([]*peer, 0, len(c.peers)-1)
	for _, p := range c.peers {
		if p.id != c.id {
			others = append(others, p)
		}
	}
	return others
}

func (c *TCPChannel) Broadcast(ctx context.Context, payload []byte) ([][]byte, error) {
	release, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	n, m := len(c.peers), len(payload)
	out := make([][]byte, n)
	out[c.id] = append([]byte(nil), payload...)

	err = c.exchange(ctx, c.others(), func(p *peer) error {
		in := make([]byte, m)
		// Of each pair, the higher id reads first.
		if p.id < c.id {
			if _, err := io.ReadFull(p.conn, in); err != nil {
				return fmt.Errorf("reading from party %d: %w", p.id, err)
			}
			if _, err := p.conn.Write(payload); err != nil {
				return fmt.Errorf("writing to party %d: %w", p.id, err)
			}
		} else {
			if _, err := p.conn.Write(payload); err != nil {
				return fmt.Errorf("writing to party %d: %w", p.id, err)
			}
			if _, err := io.ReadFull(p.conn, in); err != nil {
				return fmt.Errorf("reading from party %d: %w", p.id, err)
			}
		}
		out[p.id] = in
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, "broadcast", err)
	}

	c.stats.onBroadcast(n, m)
	return out, nil
}

func (c *TCPChannel) SendToMaster(ctx context.Context, payload []byte) (MasterResult[[][]byte], error) {
	release, err := c.begin()
	if err != nil {
		return Worker[[][]byte](), err
	}
	defer release()

	if !c.AmMaster() {
		err := c.exchange(ctx, c.peers[MasterID:MasterID+1], func(p *peer) error {
			return writeFrame(p.conn, payload)
		})
		if err != nil {
			return Worker[[][]byte](), c.fail(ctx, "send to master", err)
		}
		c.stats.onGather(false, len(payload), nil)
		return Worker[[][]byte](), nil
	}

	all := make([][]byte, len(c.peers))
	all[c.id] = append([]byte(nil), payload...)
	err = c.exchange(ctx, c.others(), func(p *peer) error {
		in, err := readFrame(p.conn)
		if err != nil {
			return fmt.Errorf("reading from party %d: %w", p.id, err)
		}
		all[p.id] = in
		return nil
	})
	if err != nil {
		return Worker[[][]byte](), c.fail(ctx, "gather at master", err)
	}

	c.stats.onGather(true, len(payload), all)
	return Master(all), nil
}

func (c *TCPChannel) RecvFromMaster(ctx context.Context, payloads MasterResult[[][]byte]) ([]byte, error) {
	seq, err := checkScatter(c, payloads)
	if err != nil {
		return nil, err
	}

	release, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	if !c.AmMaster() {
		var in []byte
		err := c.exchange(ctx, c.peers[MasterID:MasterID+1], func(p *peer) error {
			var err error
			in, err = readFrame(p.conn)
			return err
		})
		if err != nil {
			return nil, c.fail(ctx, "receive from master", err)
		}
		c.stats.onScatter(false, nil, len(in))
		return in, nil
	}

	err = c.exchange(ctx, c.others(), func(p *peer) error {
		if err := writeFrame(p.conn, seq[p.id]); err != nil {
			return fmt.Errorf("writing to party %d: %w", p.id, err)
		}
		return nil
	})
	if err != nil {
		return nil, c.fail(ctx, "scatter from master", err)
	}

	c.stats.onScatter(true, seq, 0)
	return append([]byte(nil), seq[c.id]...), nil
}

// Close drops every peer connection. Calls blocked on the network return
// with an error once their connection is closed.
func (c *TCPChannel) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	err := c.closeConns()

	// wait for an in-flight call to observe the closed sockets
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, p := range c.peers {
		p.conn = nil
	}
	return err
}

func (c *TCPChannel) closeConns() error {
	var result *multierror.Error
	for _, p := range c.peers {
		if p.conn == nil {
			continue
		}
		if err := p.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			result = multierror.Append(result, fmt.Errorf("closing party %d: %w", p.id, err))
		}
	}
	return result.ErrorOrNil()
}
