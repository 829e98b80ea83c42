package services

import (
	"context"
	"testing"
	"time"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/dekzg/network"
	"github.com/flashbots/dekzg/protocol"
	"github.com/flashbots/dekzg/testutil"
)

func runSession(t *testing.T, chans []network.Channel, cfg SessionConfig) []*SessionResult {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	results := make([]*SessionResult, len(chans))
	provers := make([]*SubProver, len(chans))
	for i, ch := range chans {
		provers[i] = NewSubProver(ch, cfg)
	}
	require.NoError(t, testutil.RunParties(ctx, chans, func(ctx context.Context, ch network.Channel) error {
		res, err := provers[ch.PartyID()].Run(ctx)
		results[ch.PartyID()] = res
		return err
	}))
	for i, p := range provers {
		require.Same(t, results[i], p.Latest())
	}
	return results
}

func TestSubProverLocal(t *testing.T) {
	store := NewMemoryStore()
	cfg := SessionConfig{
		Session:    "local",
		XLogSize:   3,
		SRSSeed:    []byte("session test"),
		SRSCache:   &SRSCache{Dir: t.TempDir()},
		Store:      store,
		CrossCheck: true,
	}
	chans := testutil.LocalChannels(4)
	defer testutil.CloseAll(chans)

	results := runSession(t, chans, cfg)

	master := results[network.MasterID]
	require.NotNil(t, master.Proof)
	require.NotNil(t, master.Record)
	require.True(t, master.Record.Verified)
	require.Equal(t, 1, store.Len())
	for _, res := range results[1:] {
		require.Nil(t, res.Proof)
		require.Nil(t, res.Record)
		require.NotZero(t, res.Stats.ToMaster)
	}
	require.NotZero(t, master.Stats.BytesRecv)

	// every party cached its slice of the reference string
	for id := 0; id < 4; id++ {
		srs, err := cfg.SRSCache.Load(8, 4, id)
		require.NoError(t, err)
		require.Equal(t, id, srs.ID)
	}

	latest, err := store.LatestProof(context.Background())
	require.NoError(t, err)
	srs, err := cfg.SRSCache.Load(8, 4, 0)
	require.NoError(t, err)
	ok, err := VerifyRecord(&srs.Verifier, latest)
	require.NoError(t, err)
	require.True(t, ok)

	// a second session reuses the cache
	results = runSession(t, chans, cfg)
	require.NotNil(t, results[network.MasterID].Proof)
	require.Equal(t, 2, store.Len())
}

func TestSubProverGivenInput(t *testing.T) {
	const n, xSize = 2, 4
	poly, err := protocol.RandomBivariate(xSize, n)
	require.NoError(t, err)
	var p0, p1, y fr.Element
	p0.SetUint64(3)
	p1.SetUint64(5)
	y.SetUint64(7)
	in := &Input{
		Polys:   []protocol.BivariatePolynomial{poly},
		XPoints: [][]fr.Element{{p0, p1}},
		Y:       y,
	}

	chans := testutil.LocalChannels(n)
	defer testutil.CloseAll(chans)
	results := runSession(t, chans, SessionConfig{XLogSize: 2, SRSSeed: []byte("given"), Input: in, CrossCheck: true})

	st := results[network.MasterID].Statement
	require.Equal(t, in.XPoints, st.Points)
	require.True(t, st.Y.Equal(&y))
	want, err := protocol.EvaluateAtSameY(in.Polys, in.XPoints, y)
	require.NoError(t, err)
	require.Equal(t, want, st.Evals)
}

func TestSubProverSingleParty(t *testing.T) {
	chans := testutil.LocalChannels(1)
	defer testutil.CloseAll(chans)
	results := runSession(t, chans, SessionConfig{XLogSize: 2, SRSSeed: []byte("alone"), CrossCheck: true})
	require.NotNil(t, results[0].Proof)
}

func TestSubProverTCP(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	hosts, err := testutil.LoopbackHosts(4)
	require.NoError(t, err)
	chans, err := testutil.ConnectLoopback(ctx, hosts, "services tcp")
	require.NoError(t, err)
	defer testutil.CloseAll(chans)

	results := runSession(t, chans, SessionConfig{XLogSize: 2, Polynomials: 3, SRSSeed: []byte("tcp"), CrossCheck: true})
	require.NotNil(t, results[network.MasterID].Proof)
	require.Len(t, results[network.MasterID].Statement.Commitments, 3)
}

func TestSubProverMismatchedSeeds(t *testing.T) {
	// a worker with another seed contributes to a different reference string
	chans := testutil.LocalChannels(2)
	defer testutil.CloseAll(chans)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := testutil.RunParties(ctx, chans, func(ctx context.Context, ch network.Channel) error {
		seed := []byte("right")
		if !ch.AmMaster() {
			seed = []byte("wrong")
		}
		_, err := NewSubProver(ch, SessionConfig{XLogSize: 2, SRSSeed: seed}).Run(ctx)
		return err
	})
	require.ErrorIs(t, err, ErrProofRejected)
}
