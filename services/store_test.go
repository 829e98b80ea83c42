package services

import (
	"context"
	"os"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/dekzg/protocol"
)

func provenRecord(t *testing.T) (*ProofRecord, *protocol.VerifierSRS) {
	t.Helper()
	srs, vk, err := protocol.SetupLagrange(4, 2, protocol.TrapdoorFromSeed([]byte("record")))
	require.NoError(t, err)
	in, err := RandomInput(2, 4, 2, 2)
	require.NoError(t, err)

	coms, err := protocol.Commit(srs, in.Polys)
	require.NoError(t, err)
	evals, err := protocol.EvaluateAtSameY(in.Polys, in.XPoints, in.Y)
	require.NoError(t, err)
	proof, err := protocol.OpenLagrangeAtSameY(srs, in.Polys, in.XPoints, in.Y, protocol.NewTranscript(protocol.SameYLabel))
	require.NoError(t, err)

	rec, err := NewProofRecord("record", 2, 4, &Statement{Commitments: coms, Points: in.XPoints, Y: in.Y, Evals: evals}, proof, true)
	require.NoError(t, err)
	return rec, vk
}

func TestProofRecordRoundTrip(t *testing.T) {
	rec, vk := provenRecord(t)
	ok, err := VerifyRecord(vk, rec)
	require.NoError(t, err)
	require.True(t, ok)

	bad := *rec
	bad.Evals = append([]byte{}, rec.Evals...)
	bad.Evals[len(bad.Evals)-1] ^= 1
	ok, err = VerifyRecord(vk, &bad)
	require.NoError(t, err)
	require.False(t, ok)

	bad = *rec
	bad.Proof = append(append([]byte{}, rec.Proof...), 0)
	_, err = VerifyRecord(vk, &bad)
	require.ErrorIs(t, err, protocol.ErrMalformedPayload)
}

func TestVerifyRecordRejectsShiftedEvaluations(t *testing.T) {
	rec, vk := provenRecord(t)
	st, proof, err := rec.Decode()
	require.NoError(t, err)

	// eta of a transcript that only saw the label
	tr := protocol.NewTranscript(protocol.SameYLabel)
	_, err = tr.Challenge(protocol.ChallengeGamma)
	require.NoError(t, err)
	require.NoError(t, tr.BindPoint(protocol.ChallengeEta, &proof.Q))
	eta, err := tr.Challenge(protocol.ChallengeEta)
	require.NoError(t, err)

	var c fr.Element
	c.SetUint64(42)
	for k, x := range st.Points[0] {
		var shift fr.Element
		shift.Sub(&x, &eta).Mul(&shift, &c)
		st.Evals[0][k].Add(&st.Evals[0][k], &shift)
	}
	forged, err := NewProofRecord(rec.Session, rec.Parties, rec.XSize, st, proof, true)
	require.NoError(t, err)

	ok, err := VerifyRecord(vk, forged)
	require.NoError(t, err)
	require.False(t, ok)
}

func testStore(t *testing.T, store ProofStore) {
	ctx := context.Background()
	_, err := store.LatestProof(ctx)
	require.ErrorIs(t, err, ErrNoProof)

	first, _ := provenRecord(t)
	second, vk := provenRecord(t)
	second.Session = "second"
	require.NoError(t, store.SaveProof(ctx, first))
	require.NoError(t, store.SaveProof(ctx, second))

	got, err := store.LatestProof(ctx)
	require.NoError(t, err)
	require.Equal(t, "second", got.Session)
	require.Equal(t, second.Proof, got.Proof)
	require.True(t, second.CreatedAt.Equal(got.CreatedAt))

	ok, err := VerifyRecord(vk, got)
	require.NoError(t, err)
	require.True(t, ok)
}

func TestMemoryStore(t *testing.T) {
	testStore(t, NewMemoryStore())
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("DEKZG_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("DEKZG_TEST_POSTGRES_DSN not set")
	}
	store, err := NewPostgresStoreFromDSN(dsn)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.db.Exec("TRUNCATE proofs")
	require.NoError(t, err)
	testStore(t, store)
}

func TestPostgresConnectionString(t *testing.T) {
	cfg := &PostgresConfig{Host: "db", Port: 5432, User: "u", Password: "p", Database: "proofs"}
	require.Equal(t, "host=db port=5432 user=u password=p dbname=proofs sslmode=disable", cfg.ConnectionString())
}
