package network

import (
	"context"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func freeAddrs(t *testing.T, n int) []string {
	t.Helper()
	addrs := make([]string, n)
	for i := range addrs {
		l, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)
		addrs[i] = l.Addr().String()
		require.NoError(t, l.Close())
	}
	return addrs
}

func connectMesh(t *testing.T, hosts []string, session string) []Channel {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	chans := make([]Channel, len(hosts))
	var g errgroup.Group
	for id := range hosts {
		id := id
		g.Go(func() error {
			ch, err := Connect(ctx, TCPConfig{Hosts: hosts, SelfID: id, Session: session})
			if err != nil {
				return fmt.Errorf("party %d: %w", id, err)
			}
			chans[id] = ch
			return nil
		})
	}
	require.NoError(t, g.Wait())
	t.Cleanup(func() {
		for _, ch := range chans {
			ch.Close()
		}
	})
	return chans
}

func TestTCPMesh(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			chans := connectMesh(t, freeAddrs(t, n), "mesh-test")
			for _, ch := range chans {
				require.True(t, ch.IsInit())
				require.Equal(t, n, ch.NParties())
				ch.ResetStats()
			}
			testBroadcast(t, chans)
			for _, ch := range chans {
				ch.ResetStats()
			}
			testGatherScatter(t, chans)
		})
	}
}

func TestTCPMeshRepeatedRounds(t *testing.T) {
	chans := connectMesh(t, freeAddrs(t, 3), "rounds")
	for round := 0; round < 20; round++ {
		require.NoError(t, runGroup(t, chans, func(ctx context.Context, ch Channel) error {
			out, err := ch.Broadcast(ctx, []byte{byte(round), byte(ch.PartyID())})
			if err != nil {
				return err
			}
			for k, p := range out {
				if p[0] != byte(round) || p[1] != byte(k) {
					return fmt.Errorf("round %d: unexpected payload from %d", round, k)
				}
			}
			_, err = ch.SendToMaster(ctx, []byte{byte(round)})
			return err
		}))
	}
	for _, ch := range chans {
		require.Equal(t, uint64(20), ch.Stats().Broadcasts)
	}
}

func TestInitFromFile(t *testing.T) {
	hosts := freeAddrs(t, 2)
	path := filepath.Join(t.TempDir(), "hosts.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n"+strings.Join(hosts, "\n\n")+"\n"), 0o600))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	chans := make([]*TCPChannel, 2)
	var g errgroup.Group
	for id := range chans {
		id := id
		g.Go(func() error {
			ch, err := InitFromFile(ctx, path, id, func(cfg *TCPConfig) { cfg.Session = "file" })
			chans[id] = ch
			return err
		})
	}
	require.NoError(t, g.Wait())

	for _, ch := range chans {
		require.True(t, ch.IsInit())
		require.NoError(t, ch.Close())
		require.False(t, ch.IsInit())
		_, err := ch.Broadcast(ctx, []byte{1})
		require.ErrorIs(t, err, ErrChannelClosed)
	}
}

func TestConnectInvalidConfig(t *testing.T) {
	ctx := context.Background()
	_, err := Connect(ctx, TCPConfig{})
	require.ErrorIs(t, err, ErrInvalidHostFile)

	_, err = Connect(ctx, TCPConfig{Hosts: []string{"127.0.0.1:1"}, SelfID: 1})
	require.Error(t, err)

	_, err = Connect(ctx, TCPConfig{Hosts: []string{"nonsense"}})
	require.ErrorIs(t, err, ErrInvalidHostFile)
}

func TestConnectTimeout(t *testing.T) {
	hosts := freeAddrs(t, 2)
	// party 1 never starts
	_, err := Connect(context.Background(), TCPConfig{
		Hosts:          hosts,
		SelfID:         0,
		ConnectTimeout: 200 * time.Millisecond,
	})
	require.ErrorIs(t, err, ErrConnectTimeout)
}

func TestStaleConnectionIsRejected(t *testing.T) {
	hosts := freeAddrs(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var acceptor *TCPChannel
	done := make(chan error, 1)
	go func() {
		var err error
		acceptor, err = Connect(ctx, TCPConfig{Hosts: hosts, SelfID: 1, Session: "fresh"})
		done <- err
	}()

	// a leftover from an older run connects first and speaks another session
	var stale net.Conn
	require.Eventually(t, func() bool {
		var err error
		stale, err = net.Dial("tcp", hosts[1])
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)
	oldTag, err := DeriveSessionTag("previous", hosts)
	require.NoError(t, err)
	_, err = stale.Write(hello{From: 0, To: 1, Tag: oldTag}.marshal())
	require.NoError(t, err)
	defer stale.Close()

	dialer, err := Connect(ctx, TCPConfig{Hosts: hosts, SelfID: 0, Session: "fresh"})
	require.NoError(t, err)
	defer dialer.Close()

	require.NoError(t, <-done)
	defer acceptor.Close()

	testBroadcast(t, []Channel{dialer, acceptor})
}

func TestSessionMismatch(t *testing.T) {
	hosts := freeAddrs(t, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var g errgroup.Group
	var errs [2]error
	for id, session := range []string{"left", "right"} {
		id, session := id, session
		g.Go(func() error {
			ch, err := Connect(ctx, TCPConfig{Hosts: hosts, SelfID: id, Session: session})
			if ch != nil {
				ch.Close()
			}
			errs[id] = err
			return nil
		})
	}
	require.NoError(t, g.Wait())

	// the dialer sees its connection dropped, the acceptor keeps waiting
	require.Error(t, errs[0])
	require.ErrorIs(t, errs[1], context.DeadlineExceeded)
}

func TestTCPCancelBreaksChannel(t *testing.T) {
	chans := connectMesh(t, freeAddrs(t, 2), "cancel")

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := chans[1].RecvFromMaster(ctx, Worker[[][]byte]())
	require.ErrorIs(t, err, context.DeadlineExceeded)

	_, err = chans[1].SendToMaster(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrChannelBroken)
}

func TestIsInitDuringClose(t *testing.T) {
	chans := connectMesh(t, freeAddrs(t, 2), "close race")

	var wg sync.WaitGroup
	done := make(chan struct{})
	for _, ch := range chans {
		ch := ch
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
					ch.IsInit()
				}
			}
		}()
	}

	// a worker blocked on the master is released by Close
	recvErr := make(chan error, 1)
	go func() {
		_, err := chans[1].RecvFromMaster(context.Background(), Worker[[][]byte]())
		recvErr <- err
	}()

	for _, ch := range chans {
		require.NoError(t, ch.Close())
		require.False(t, ch.IsInit())
	}
	require.Error(t, <-recvErr)
	close(done)
	wg.Wait()
}
