package testutil

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/flashbots/dekzg/network"
)

// LocalChannels returns the parties of a fresh in-process group of n.
func LocalChannels(n int) []network.Channel {
	ln := network.NewLocalNetwork(n)
	chans := make([]network.Channel, n)
	for i := range chans {
		chans[i] = ln.Party(i)
	}
	return chans
}

// RunParties runs fn for every channel concurrently. The first error cancels
// the context passed to the others and is returned.
func RunParties(ctx context.Context, chans []network.Channel, fn func(ctx context.Context, ch network.Channel) error) error {
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range chans {
		ch := ch
		g.Go(func() error {
			if err := fn(gctx, ch); err != nil {
				return fmt.Errorf("party %d: %w", ch.PartyID(), err)
			}
			return nil
		})
	}
	return g.Wait()
}

// CloseAll closes every channel.
func CloseAll(chans []network.Channel) {
	for _, ch := range chans {
		if ch != nil {
			ch.Close()
		}
	}
}

// LoopbackHosts reserves n free ports on 127.0.0.1. The ports are released
// before returning, so another process may grab one in between.
func LoopbackHosts(n int) ([]string, error) {
	hosts := make([]string, n)
	for i := range hosts {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			return nil, err
		}
		hosts[i] = l.Addr().String()
		if err := l.Close(); err != nil {
			return nil, err
		}
	}
	return hosts, nil
}

// WriteHostFile writes hosts to dir/hosts and returns the path.
func WriteHostFile(dir string, hosts []string) (string, error) {
	path := filepath.Join(dir, "hosts")
	return path, os.WriteFile(path, []byte(strings.Join(hosts, "\n")+"\n"), 0o644)
}

// ConnectLoopback connects every party of hosts inside this process.
func ConnectLoopback(ctx context.Context, hosts []string, session string) ([]network.Channel, error) {
	chans := make([]network.Channel, len(hosts))
	var g errgroup.Group
	for id := range hosts {
		id := id
		g.Go(func() error {
			ch, err := network.Connect(ctx, network.TCPConfig{Hosts: hosts, SelfID: id, Session: session})
			if err != nil {
				return fmt.Errorf("party %d: %w", id, err)
			}
			chans[id] = ch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		CloseAll(chans)
		return nil, err
	}
	return chans, nil
}
