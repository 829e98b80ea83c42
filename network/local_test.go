package network

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func localParties(n int) []Channel {
	ln := NewLocalNetwork(n)
	chans := make([]Channel, n)
	for i := range chans {
		chans[i] = ln.Party(i)
	}
	return chans
}

// runGroup runs fn for every party concurrently and returns the first error.
func runGroup(t *testing.T, chans []Channel, fn func(ctx context.Context, ch Channel) error) error {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)
	for _, ch := range chans {
		ch := ch
		g.Go(func() error { return fn(gctx, ch) })
	}
	return g.Wait()
}

func partyPayload(id, size int) []byte {
	p := make([]byte, size)
	for i := range p {
		p[i] = byte(id*31 + i)
	}
	return p
}

func testBroadcast(t *testing.T, chans []Channel) {
	n := len(chans)
	const size = 48
	views := make([][][]byte, n)
	require.NoError(t, runGroup(t, chans, func(ctx context.Context, ch Channel) error {
		out, err := ch.Broadcast(ctx, partyPayload(ch.PartyID(), size))
		views[ch.PartyID()] = out
		return err
	}))

	for id, view := range views {
		require.Len(t, view, n)
		for k := range view {
			require.Equal(t, partyPayload(k, size), view[k], "party %d view of party %d", id, k)
		}
		st := chans[id].Stats()
		require.Equal(t, uint64((n-1)*size), st.BytesSent)
		require.Equal(t, uint64((n-1)*size), st.BytesRecv)
		require.Equal(t, uint64(1), st.Broadcasts)
	}
}

func testGatherScatter(t *testing.T, chans []Channel) {
	n := len(chans)
	received := make([][]byte, n)
	require.NoError(t, runGroup(t, chans, func(ctx context.Context, ch Channel) error {
		// payload sizes differ per party on purpose
		own := partyPayload(ch.PartyID(), 3+ch.PartyID()*5)
		gathered, err := ch.SendToMaster(ctx, own)
		if err != nil {
			return err
		}
		if ch.AmMaster() {
			all, ok := gathered.Get()
			if !ok {
				return fmt.Errorf("master got no gathered payloads")
			}
			for k := range all {
				if string(all[k]) != string(partyPayload(k, 3+k*5)) {
					return fmt.Errorf("payload of party %d garbled", k)
				}
			}
			// send back reversed payloads
			for k := range all {
				rev := make([]byte, len(all[k]))
				for i := range rev {
					rev[i] = all[k][len(all[k])-1-i]
				}
				all[k] = rev
			}
			gathered = Master(all)
		} else if gathered.IsMaster() {
			return fmt.Errorf("worker %d got a master result", ch.PartyID())
		}
		back, err := ch.RecvFromMaster(ctx, gathered)
		received[ch.PartyID()] = back
		return err
	}))

	for id := range received {
		own := partyPayload(id, 3+id*5)
		require.Len(t, received[id], len(own))
		for i := range own {
			require.Equal(t, own[len(own)-1-i], received[id][i])
		}
	}

	master := chans[MasterID].Stats()
	require.Equal(t, uint64(1), master.ToMaster)
	require.Equal(t, uint64(1), master.FromMaster)
	var recv uint64
	for id := 1; id < n; id++ {
		recv += uint64(lengthPrefixSize + 3 + id*5)
		worker := chans[id].Stats()
		require.Equal(t, uint64(lengthPrefixSize+3+id*5), worker.BytesSent)
		require.Equal(t, uint64(3+id*5), worker.BytesRecv)
	}
	require.Equal(t, recv, master.BytesRecv)
	require.Equal(t, recv, master.BytesSent)
}

func TestLocalBroadcast(t *testing.T) {
	for _, n := range []int{1, 2, 3, 5} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			testBroadcast(t, localParties(n))
		})
	}
}

func TestLocalGatherScatter(t *testing.T) {
	for _, n := range []int{1, 2, 4} {
		t.Run(fmt.Sprintf("n=%d", n), func(t *testing.T) {
			testGatherScatter(t, localParties(n))
		})
	}
}

func TestLocalRoleMismatch(t *testing.T) {
	chans := localParties(3)
	ctx := context.Background()

	_, err := chans[MasterID].RecvFromMaster(ctx, Worker[[][]byte]())
	require.ErrorIs(t, err, ErrRoleMismatch)

	_, err = chans[MasterID].RecvFromMaster(ctx, Master([][]byte{{1}}))
	require.ErrorIs(t, err, ErrRoleMismatch)

	_, err = chans[1].RecvFromMaster(ctx, Master([][]byte{{1}, {2}, {3}}))
	require.ErrorIs(t, err, ErrRoleMismatch)

	// a rejected call leaves the channel usable
	require.True(t, chans[1].IsInit())
	testGatherScatter(t, chans)
}

func TestLocalLengthMismatchBreaksChannel(t *testing.T) {
	chans := localParties(2)
	err := runGroup(t, chans, func(ctx context.Context, ch Channel) error {
		_, err := ch.Broadcast(ctx, make([]byte, 4+ch.PartyID()))
		return err
	})
	require.ErrorIs(t, err, ErrLengthMismatch)

	_, err = chans[0].Broadcast(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrChannelBroken)
}

func TestLocalCancelledCall(t *testing.T) {
	chans := localParties(2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	// the master never scatters
	_, err := chans[1].RecvFromMaster(ctx, Worker[[][]byte]())
	require.ErrorIs(t, err, context.DeadlineExceeded)
	_, err = chans[1].SendToMaster(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrChannelBroken)
}

func TestLocalClose(t *testing.T) {
	chans := localParties(2)
	require.True(t, chans[0].IsInit())
	require.NoError(t, chans[0].Close())
	require.False(t, chans[0].IsInit())
	require.NoError(t, chans[0].Close())

	_, err := chans[0].Broadcast(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrChannelClosed)

	// the peer notices instead of hanging
	_, err = chans[1].Broadcast(context.Background(), []byte{1})
	require.ErrorIs(t, err, ErrChannelClosed)
}

func TestResetStats(t *testing.T) {
	chans := localParties(3)
	testBroadcast(t, chans)
	for _, ch := range chans {
		assert.NotEqual(t, Stats{}, ch.Stats())
		ch.ResetStats()
		assert.Equal(t, Stats{}, ch.Stats())
	}
}

func TestShareFromMaster(t *testing.T) {
	chans := localParties(4)
	got := make([][]byte, len(chans))
	require.NoError(t, runGroup(t, chans, func(ctx context.Context, ch Channel) error {
		var payload []byte
		if ch.AmMaster() {
			payload = []byte("challenge")
		}
		out, err := ShareFromMaster(ctx, ch, payload)
		got[ch.PartyID()] = out
		return err
	}))
	for _, g := range got {
		require.Equal(t, []byte("challenge"), g)
	}
}

func TestMapMaster(t *testing.T) {
	doubled, err := MapMaster(Master(21), func(v int) (int, error) { return 2 * v, nil })
	require.NoError(t, err)
	v, ok := doubled.Get()
	require.True(t, ok)
	require.Equal(t, 42, v)

	called := false
	w, err := MapMaster(Worker[int](), func(v int) (int, error) { called = true; return v, nil })
	require.NoError(t, err)
	require.False(t, w.IsMaster())
	require.False(t, called)
}
