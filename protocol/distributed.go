package protocol

import (
	"context"
	"errors"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/flashbots/dekzg/crypto"
	"github.com/flashbots/dekzg/network"
)

// ErrNoTranscript is returned when the master runs an opening without a transcript.
var ErrNoTranscript = errors.New("master needs a transcript")

// EvalOpening is an opening proof together with the evaluations it proves.
type EvalOpening struct {
	Evals []fr.Element
	Proof OpeningProof
}

// checkParty makes sure the local shard of the reference string and the rows
// belong to the party driving ch.
func checkParty(ch network.Channel, srs *PartySRS, rows []crypto.Polynomial) error {
	if err := srs.Validate(); err != nil {
		return err
	}
	if srs.ID != ch.PartyID() {
		return fmt.Errorf("%w: reference string of party %d used by party %d", ErrInvalidSRS, srs.ID, ch.PartyID())
	}
	if srs.YSize != ch.NParties() {
		return fmt.Errorf("%w: y size %d with %d parties", ErrInvalidSRS, srs.YSize, ch.NParties())
	}
	for j, row := range rows {
		if len(row) > srs.XSize {
			return fmt.Errorf("%w: row of polynomial %d has %d coefficients, at most %d supported", ErrShapeMismatch, j, len(row), srs.XSize)
		}
	}
	return nil
}

// DeCommit commits to polynomials whose row ch.PartyID() is held locally as
// rows[j]. The master gets the commitment of every polynomial.
func DeCommit(ctx context.Context, ch network.Channel, srs *PartySRS, rows []crypto.Polynomial) (network.MasterResult[[]bls12381.G1Affine], error) {
	if err := checkParty(ch, srs, rows); err != nil {
		return network.Worker[[]bls12381.G1Affine](), err
	}
	partial := make([]bls12381.G1Affine, len(rows))
	for j, row := range rows {
		var err error
		if partial[j], err = msm(srs.SubPowers, row); err != nil {
			return network.Worker[[]bls12381.G1Affine](), err
		}
	}
	all, err := gather(ctx, ch, partial)
	if err != nil {
		return network.Worker[[]bls12381.G1Affine](), err
	}
	return network.MapMaster(all, sumColumns)
}

// DeEvaluateAtSameY evaluates every polynomial at the points of xPoints[j]
// and y. The master gets f_j(xPoints[j][k], y).
func DeEvaluateAtSameY(ctx context.Context, ch network.Channel, rows []crypto.Polynomial, xPoints [][]fr.Element, y fr.Element) (network.MasterResult[[][]fr.Element], error) {
	if len(rows) != len(xPoints) {
		return network.Worker[[][]fr.Element](), fmt.Errorf("%w: %d rows, %d point sets", ErrShapeMismatch, len(rows), len(xPoints))
	}
	local := make([][]fr.Element, len(rows))
	for j, row := range rows {
		local[j] = make([]fr.Element, len(xPoints[j]))
		for k := range xPoints[j] {
			local[j][k] = crypto.Eval(row, xPoints[j][k])
		}
	}
	all, err := gather(ctx, ch, local)
	if err != nil {
		return network.Worker[[][]fr.Element](), err
	}
	return network.MapMaster(all, func(all [][][]fr.Element) ([][]fr.Element, error) {
		coeffs := crypto.LagrangeCoefficients(crypto.NewDomain(ch.NParties()), y)
		res := make([][]fr.Element, len(local))
		for j := range local {
			res[j] = make([]fr.Element, len(local[j]))
		}
		for party, vals := range all {
			if len(vals) != len(res) {
				return nil, fmt.Errorf("%w: party %d evaluated %d polynomials, want %d", ErrShapeMismatch, party, len(vals), len(res))
			}
			for j := range vals {
				if len(vals[j]) != len(res[j]) {
					return nil, fmt.Errorf("%w: party %d sent %d evaluations for polynomial %d", ErrShapeMismatch, party, len(vals[j]), j)
				}
				for k := range vals[j] {
					var t fr.Element
					t.Mul(&vals[j][k], &coeffs[party])
					res[j][k].Add(&res[j][k], &t)
				}
			}
		}
		return res, nil
	})
}

// openingRound is what the master learns from one distributed opening.
type openingRound struct {
	proof OpeningProof
	// rowEvals[k][j] = f_{j,k}(x)
	rowEvals [][]fr.Element
}

func deOpenLagrange(ctx context.Context, ch network.Channel, srs *PartySRS, rows []crypto.Polynomial, x, y, theta fr.Element) (network.MasterResult[openingRound], error) {
	if err := checkParty(ch, srs, rows); err != nil {
		return network.Worker[openingRound](), err
	}

	factors := crypto.Powers(theta, len(rows))
	quotient := crypto.DivideByXMinusK(crypto.LinearCombination(rows, factors), x)
	partial, err := msm(srs.SubPowers, quotient)
	if err != nil {
		return network.Worker[openingRound](), err
	}
	evals := make([]fr.Element, len(rows))
	for j, row := range rows {
		evals[j] = crypto.Eval(row, x)
	}

	proofs, err := gather(ctx, ch, []bls12381.G1Affine{partial})
	if err != nil {
		return network.Worker[openingRound](), err
	}
	allEvals, err := gather(ctx, ch, evals)
	if err != nil {
		return network.Worker[openingRound](), err
	}

	return network.MapMaster(proofs, func(proofs [][]bls12381.G1Affine) (openingRound, error) {
		q1, err := sumColumns(proofs)
		if err != nil {
			return openingRound{}, err
		}
		rowEvals, _ := allEvals.Get()
		combined := make([]fr.Element, len(rowEvals))
		for k := range rowEvals {
			if len(rowEvals[k]) != len(rows) {
				return openingRound{}, fmt.Errorf("%w: party %d sent %d evaluations, want %d", ErrShapeMismatch, k, len(rowEvals[k]), len(rows))
			}
			combined[k] = crypto.InnerProduct(rowEvals[k], factors)
		}
		q2, err := msm(srs.Y, crypto.QuotientEvalLagrange(combined, y, crypto.NewDomain(srs.YSize)))
		if err != nil {
			return openingRound{}, err
		}
		return openingRound{proof: OpeningProof{Q1: q1[0], Q2: q2}, rowEvals: rowEvals}, nil
	})
}

// DeOpenLagrange is the distributed OpenLagrange. Party k holds row k of
// every polynomial in rows.
func DeOpenLagrange(ctx context.Context, ch network.Channel, srs *PartySRS, rows []crypto.Polynomial, x, y, theta fr.Element) (network.MasterResult[OpeningProof], error) {
	round, err := deOpenLagrange(ctx, ch, srs, rows, x, y, theta)
	if err != nil {
		return network.Worker[OpeningProof](), err
	}
	return network.MapMaster(round, func(r openingRound) (OpeningProof, error) {
		return r.proof, nil
	})
}

// DeOpenLagrangeWithEval is DeOpenLagrange that also hands the master the
// evaluations f_j(x, y) the proof is for.
func DeOpenLagrangeWithEval(ctx context.Context, ch network.Channel, srs *PartySRS, rows []crypto.Polynomial, x, y, theta fr.Element) (network.MasterResult[EvalOpening], error) {
	round, err := deOpenLagrange(ctx, ch, srs, rows, x, y, theta)
	if err != nil {
		return network.Worker[EvalOpening](), err
	}
	return network.MapMaster(round, func(r openingRound) (EvalOpening, error) {
		coeffs := crypto.LagrangeCoefficients(crypto.NewDomain(srs.YSize), y)
		evals := make([]fr.Element, len(rows))
		for k := range r.rowEvals {
			for j := range evals {
				var t fr.Element
				t.Mul(&r.rowEvals[k][j], &coeffs[k])
				evals[j].Add(&evals[j], &t)
			}
		}
		return EvalOpening{Evals: evals, Proof: r.proof}, nil
	})
}

// DeOpenLagrangeAtSameY is the distributed OpenLagrangeAtSameY. Every party
// passes the same xPoints and y. Only the master needs a fresh transcript and
// the statement: coms and evals are the master results of DeCommit and
// DeEvaluateAtSameY. The proof is identical to the centralized one.
func DeOpenLagrangeAtSameY(ctx context.Context, ch network.Channel, srs *PartySRS, rows []crypto.Polynomial, xPoints [][]fr.Element, y fr.Element,
	coms network.MasterResult[[]bls12381.G1Affine], evals network.MasterResult[[][]fr.Element], t *Transcript) (network.MasterResult[*SameYProof], error) {
	fail := network.Worker[*SameYProof]()
	if ch.AmMaster() && t == nil {
		return fail, ErrNoTranscript
	}
	if coms.IsMaster() != ch.AmMaster() || evals.IsMaster() != ch.AmMaster() {
		return fail, network.ErrRoleMismatch
	}
	if len(rows) != len(xPoints) {
		return fail, fmt.Errorf("%w: %d rows, %d point sets", ErrShapeMismatch, len(rows), len(xPoints))
	}
	if err := checkPoints(xPoints); err != nil {
		return fail, err
	}
	if err := checkParty(ch, srs, rows); err != nil {
		return fail, err
	}

	gamma, err := shareChallenge(ctx, ch, func() (fr.Element, error) {
		c, _ := coms.Get()
		e, _ := evals.Get()
		return t.deriveGamma(c, xPoints, y, e)
	})
	if err != nil {
		return fail, err
	}

	// this party's share of Σ_j γ^j f_j(X, y) / Z_j(X)
	lk := crypto.EvaluateOneLagrange(crypto.NewDomain(srs.YSize), srs.ID, y)
	factors := crypto.Powers(gamma, len(rows))
	for j := range factors {
		factors[j].Mul(&factors[j], &lk)
	}
	quotients := make([]crypto.Polynomial, len(rows))
	for j, row := range rows {
		quotients[j] = crypto.DivideByVanishing(row, xPoints[j])
	}
	qSlice := crypto.PadTo(crypto.LinearCombination(quotients, factors), srs.XSize)

	partialQ, err := msm(srs.X, qSlice)
	if err != nil {
		return fail, err
	}
	partials, err := gather(ctx, ch, []bls12381.G1Affine{partialQ})
	if err != nil {
		return fail, err
	}
	proof := &SameYProof{}
	if all, ok := partials.Get(); ok {
		sums, err := sumColumns(all)
		if err != nil {
			return fail, err
		}
		proof.Q = sums[0]
	}

	eta, err := shareChallenge(ctx, ch, func() (fr.Element, error) {
		return t.deriveEta(&proof.Q)
	})
	if err != nil {
		return fail, err
	}

	local := make([]fr.Element, len(rows)+1)
	for j, row := range rows {
		local[j] = crypto.Eval(row, eta)
		local[j].Mul(&local[j], &lk)
	}
	local[len(rows)] = crypto.Eval(qSlice, eta)
	atEta, err := gather(ctx, ch, local)
	if err != nil {
		return fail, err
	}
	if all, ok := atEta.Get(); ok {
		sums, err := sumScalarColumns(all)
		if err != nil {
			return fail, err
		}
		proof.EvalsEtaBeta = sums[:len(rows)]
		proof.EvalQ = sums[len(rows)]
	}

	theta, err := shareChallenge(ctx, ch, func() (fr.Element, error) {
		return t.deriveTheta(proof.EvalsEtaBeta, proof.EvalQ)
	})
	if err != nil {
		return fail, err
	}

	opening, err := DeOpenLagrange(ctx, ch, srs, rows, eta, y, theta)
	if err != nil {
		return fail, err
	}
	qOpening, err := DeKZGOpen(ctx, ch, srs.UnivariateProvingKey(), qSlice, eta)
	if err != nil {
		return fail, err
	}

	if !ch.AmMaster() {
		return fail, nil
	}
	proof.Opening, _ = opening.Get()
	proof.QOpening, _ = qOpening.Get()
	return network.Master(proof), nil
}
