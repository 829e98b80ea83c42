package protocol

import (
	"context"
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"github.com/stretchr/testify/require"

	"github.com/flashbots/dekzg/crypto"
	"github.com/flashbots/dekzg/network"
)

func TestDeKZG(t *testing.T) {
	const n, size = 3, 8
	srs, vk := testSRS(t, size, 4)
	pk := srs.UnivariateProvingKey()

	slices := make([]crypto.Polynomial, n)
	total := make(crypto.Polynomial, size)
	for k := range slices {
		// slices of different lengths still add up
		slices[k] = randomElements(t, size-k)
		crypto.AddScaled(total, slices[k], fr.One())
	}
	point := randomElement(t)

	var (
		digest kzg.Digest
		proof  kzg.OpeningProof
		eval   fr.Element
	)
	require.NoError(t, runParties(t, n, func(ctx context.Context, ch network.Channel) error {
		slice := slices[ch.PartyID()]
		d, err := DeKZGCommit(ctx, ch, pk, slice)
		if err != nil {
			return err
		}
		p, err := DeKZGOpenWithEval(ctx, ch, pk, slice, point)
		if err != nil {
			return err
		}
		e, err := DeKZGEvaluate(ctx, ch, slice, point)
		if err != nil {
			return err
		}
		if ch.AmMaster() {
			digest, _ = d.Get()
			proof, _ = p.Get()
			eval, _ = e.Get()
		}
		return nil
	}))

	want, err := kzg.Commit(total, pk)
	require.NoError(t, err)
	require.True(t, want.Equal(&digest))

	wantEval := crypto.Eval(total, point)
	require.True(t, wantEval.Equal(&eval))
	require.True(t, wantEval.Equal(&proof.ClaimedValue))

	wantProof, err := kzg.Open(total, point, pk)
	require.NoError(t, err)
	require.Equal(t, wantProof, proof)

	require.NoError(t, kzg.Verify(&digest, &proof, point, vk.UnivariateVerifyingKey()))
}

func TestDeKZGCommitTooLong(t *testing.T) {
	srs, _ := testSRS(t, 2, 1)
	err := runParties(t, 1, func(ctx context.Context, ch network.Channel) error {
		_, err := DeKZGCommit(ctx, ch, srs.UnivariateProvingKey(), randomElements(t, 3))
		return err
	})
	require.ErrorIs(t, err, ErrShapeMismatch)
}
