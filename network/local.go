package network

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/atomic"
)

// linkBuffer is the number of messages a directed link holds before a send blocks.
const linkBuffer = 16

// LocalNetwork connects n in-process parties with Go channels. It follows the
// same contract and stats accounting as the TCP mesh and is meant for running
// a whole group inside one test or one process.
type LocalNetwork struct {
	links   [][]chan []byte // links[from][to]
	parties []*LocalChannel
}

// NewLocalNetwork creates a ready group of n parties.
func NewLocalNetwork(n int) *LocalNetwork {
	if n < 1 {
		panic(fmt.Sprintf("network: local group needs at least one party, got %d", n))
	}
	ln := &LocalNetwork{
		links:   make([][]chan []byte, n),
		parties: make([]*LocalChannel, n),
	}
	for from := range ln.links {
		ln.links[from] = make([]chan []byte, n)
		for to := range ln.links[from] {
			if from != to {
				ln.links[from][to] = make(chan []byte, linkBuffer)
			}
		}
	}
	for id := range ln.parties {
		ln.parties[id] = &LocalChannel{id: id, net: ln, done: make(chan struct{})}
	}
	return ln
}

// Party returns the channel of party id.
func (ln *LocalNetwork) Party(id int) *LocalChannel {
	return ln.parties[id]
}

// Size returns the number of parties.
func (ln *LocalNetwork) Size() int {
	return len(ln.parties)
}

// Close closes every party.
func (ln *LocalNetwork) Close() {
	for _, p := range ln.parties {
		p.Close()
	}
}

var _ Channel = (*LocalChannel)(nil)

// LocalChannel is one party of a LocalNetwork.
type LocalChannel struct {
	id  int
	net *LocalNetwork

	mu        sync.Mutex
	stats     counters
	closed    atomic.Bool
	broken    atomic.Bool
	done      chan struct{}
	closeOnce sync.Once
}

func (c *LocalChannel) PartyID() int   { return c.id }
func (c *LocalChannel) NParties() int  { return len(c.net.parties) }
func (c *LocalChannel) AmMaster() bool { return c.id == MasterID }
func (c *LocalChannel) IsInit() bool   { return !c.closed.Load() }
func (c *LocalChannel) Stats() Stats   { return c.stats.snapshot() }
func (c *LocalChannel) ResetStats()    { c.stats.reset() }

func (c *LocalChannel) Close() error {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		close(c.done)
	})
	return nil
}

func (c *LocalChannel) begin() (func(), error) {
	c.mu.Lock()
	switch {
	case c.closed.Load():
		c.mu.Unlock()
		return nil, ErrChannelClosed
	case c.broken.Load():
		c.mu.Unlock()
		return nil, ErrChannelBroken
	}
	return c.mu.Unlock, nil
}

func (c *LocalChannel) fail(op string, err error) error {
	c.broken.Store(true)
	return fmt.Errorf("%s: %w", op, err)
}

func (c *LocalChannel) send(ctx context.Context, to int, payload []byte) error {
	msg := append([]byte(nil), payload...)
	select {
	case c.net.links[c.id][to] <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrChannelClosed
	case <-c.net.parties[to].done:
		return fmt.Errorf("party %d: %w", to, ErrChannelClosed)
	}
}

func (c *LocalChannel) recv(ctx context.Context, from int) ([]byte, error) {
	link := c.net.links[from][c.id]
	// drain a message that is already there before looking at closure
	select {
	case msg := <-link:
		return msg, nil
	default:
	}
	select {
	case msg := <-link:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-c.done:
		return nil, ErrChannelClosed
	case <-c.net.parties[from].done:
		return nil, fmt.Errorf("party %d: %w", from, ErrChannelClosed)
	}
}

func (c *LocalChannel) Broadcast(ctx context.Context, payload []byte) ([][]byte, error) {
	release, err := c.begin()
	if err != nil {
		return nil, err
	}
	defer release()

	n := c.NParties()
	for to := 0; to < n; to++ {
		if to == c.id {
			continue
		}
		if err := c.send(ctx, to, payload); err != nil {
			return nil, c.fail("broadcast", err)
		}
	}

	out := make([][]byte, n)
	out[c.id] = append([]byte(nil), payload...)
	for from := 0; from < n; from++ {
		if from == c.id {
			continue
		}
		in, err := c.recv(ctx, from)
		if err != nil {
			return nil, c.fail("broadcast", err)
		}
		if len(in) != len(payload) {
			return nil, c.fail("broadcast", fmt.Errorf("%w: party %d sent %d bytes, expected %d", ErrLengthMismatch, from, len(in), len(payload)))
		}
		out[from] = in
	}

	c.stats.onBroadcast(n, len(payload))
	return out, nil
}

func (c *LocalChannel) SendToMaster(ctx context.Context, payload []byte) (MasterResult[[][]byte], error) {
	release, err := c.begin()
	if err != nil {
		return Worker[[][]byte](), err
	}
	defer release()

	if !c.AmMaster() {
		if err := c.send(ctx, MasterID, payload); err != nil {
			return Worker[[][]byte](), c.fail("send to master", err)
		}
		c.stats.onGather(false, len(payload), nil)
		return Worker[[][]byte](), nil
	}

	all := make([][]byte, c.NParties())
	all[c.id] = append([]byte(nil), payload...)
	for from := range all {
		if from == c.id {
			continue
		}
		in, err := c.recv(ctx, from)
		if err != nil {
			return Worker[[][]byte](), c.fail("gather at master", err)
		}
		all[from] = in
	}

	c.stats.onGather(true, len(payload), all)
	return Master(all), nil
}

func (c *LocalChannel) RecvFromMaster(ctx context.Context, payloads MasterResult[[][]byte]) ([]byte, error) {
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
		in, err := c.recv(ctx, MasterID)
		if err != nil {
			return nil, c.fail("receive from master", err)
		}
		c.stats.onScatter(false, nil, len(in))
		return in, nil
	}

	for to := range seq {
		if to == c.id {
			continue
		}
		if err := c.send(ctx, to, seq[to]); err != nil {
			return nil, c.fail("scatter from master", err)
		}
	}

	c.stats.onScatter(true, seq, 0)
	return append([]byte(nil), seq[c.id]...), nil
}
