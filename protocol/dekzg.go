package protocol

import (
	"context"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"

	"github.com/flashbots/dekzg/crypto"
	"github.com/flashbots/dekzg/network"
)

// Univariate KZG over a polynomial split additively across the parties: the
// committed polynomial is the sum of every party's slice. Proofs verify with
// kzg.Verify.

func commitSlice(pk kzg.ProvingKey, slice crypto.Polynomial) (bls12381.G1Affine, error) {
	if len(slice) == 0 {
		return bls12381.G1Affine{}, nil
	}
	if len(slice) > len(pk.G1) {
		return bls12381.G1Affine{}, fmt.Errorf("%w: slice of %d coefficients, key supports %d", ErrShapeMismatch, len(slice), len(pk.G1))
	}
	return kzg.Commit(slice, pk)
}

func gatherPoint(ctx context.Context, ch network.Channel, p bls12381.G1Affine) (network.MasterResult[bls12381.G1Affine], error) {
	all, err := gather(ctx, ch, []bls12381.G1Affine{p})
	if err != nil {
		return network.Worker[bls12381.G1Affine](), err
	}
	return network.MapMaster(all, func(all [][]bls12381.G1Affine) (bls12381.G1Affine, error) {
		sums, err := sumColumns(all)
		if err != nil {
			return bls12381.G1Affine{}, err
		}
		return sums[0], nil
	})
}

func gatherScalar(ctx context.Context, ch network.Channel, v fr.Element) (network.MasterResult[fr.Element], error) {
	all, err := gather(ctx, ch, []fr.Element{v})
	if err != nil {
		return network.Worker[fr.Element](), err
	}
	return network.MapMaster(all, func(all [][]fr.Element) (fr.Element, error) {
		sums, err := sumScalarColumns(all)
		if err != nil {
			return fr.Element{}, err
		}
		return sums[0], nil
	})
}

// DeKZGCommit commits to the sum of the parties' slices.
func DeKZGCommit(ctx context.Context, ch network.Channel, pk kzg.ProvingKey, slice crypto.Polynomial) (network.MasterResult[kzg.Digest], error) {
	partial, err := commitSlice(pk, slice)
	if err != nil {
		return network.Worker[kzg.Digest](), err
	}
	return gatherPoint(ctx, ch, partial)
}

// DeKZGEvaluate evaluates the sum of the parties' slices at point.
func DeKZGEvaluate(ctx context.Context, ch network.Channel, slice crypto.Polynomial, point fr.Element) (network.MasterResult[fr.Element], error) {
	return gatherScalar(ctx, ch, crypto.Eval(slice, point))
}

// DeKZGOpen returns the opening proof H of the summed polynomial at point.
func DeKZGOpen(ctx context.Context, ch network.Channel, pk kzg.ProvingKey, slice crypto.Polynomial, point fr.Element) (network.MasterResult[bls12381.G1Affine], error) {
	partial, err := commitSlice(pk, crypto.DivideByXMinusK(slice, point))
	if err != nil {
		return network.Worker[bls12381.G1Affine](), err
	}
	return gatherPoint(ctx, ch, partial)
}

// DeKZGOpenWithEval is DeKZGOpen that also fills in the claimed value.
func DeKZGOpenWithEval(ctx context.Context, ch network.Channel, pk kzg.ProvingKey, slice crypto.Polynomial, point fr.Element) (network.MasterResult[kzg.OpeningProof], error) {
	h, err := DeKZGOpen(ctx, ch, pk, slice, point)
	if err != nil {
		return network.Worker[kzg.OpeningProof](), err
	}
	eval, err := DeKZGEvaluate(ctx, ch, slice, point)
	if err != nil {
		return network.Worker[kzg.OpeningProof](), err
	}
	return network.MapMaster(h, func(h bls12381.G1Affine) (kzg.OpeningProof, error) {
		v, _ := eval.Get()
		return kzg.OpeningProof{H: h, ClaimedValue: v}, nil
	})
}
