package protocol

import (
	"errors"
	"fmt"
	"math/big"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"

	"github.com/flashbots/dekzg/crypto"
)

// OpeningProof proves f_j(x, y) for a batch of bivariate polynomials.
// Q1 commits to the X quotient, Q2 to the Y quotient.
type OpeningProof struct {
	Q1 bls12381.G1Affine
	Q2 bls12381.G1Affine
}

// SameYProof proves the evaluations of a batch of polynomials at several X
// points each and a common Y point.
type SameYProof struct {
	// Q commits to Σ_j γ^j (f_j(X, y) - r_j(X)) / Z_j(X).
	Q bls12381.G1Affine
	// EvalsEtaBeta holds f_j(eta, y).
	EvalsEtaBeta []fr.Element
	// EvalQ is the quotient evaluated at eta.
	EvalQ fr.Element
	// Opening proves EvalsEtaBeta at (eta, y).
	Opening OpeningProof
	// QOpening proves EvalQ against Q.
	QOpening bls12381.G1Affine
}

// Commit commits to every polynomial over the full reference string.
func Commit(srs *ProverSRS, polys []BivariatePolynomial) ([]bls12381.G1Affine, error) {
	if err := srs.Validate(); err != nil {
		return nil, err
	}
	coms := make([]bls12381.G1Affine, len(polys))
	for j, p := range polys {
		if err := p.check(srs.XSize, srs.YSize); err != nil {
			return nil, fmt.Errorf("polynomial %d: %w", j, err)
		}
		coeffs := make([]fr.Element, srs.XSize*srs.YSize)
		for i, row := range p.Rows {
			copy(coeffs[i*srs.XSize:], row)
		}
		com, err := msm(srs.XY, coeffs)
		if err != nil {
			return nil, err
		}
		coms[j] = com
	}
	return coms, nil
}

// combine returns Σ_j factors[j]·polys[j]. A single polynomial is used as is.
func combine(polys []crypto.Polynomial, factors []fr.Element) crypto.Polynomial {
	if len(polys) == 1 && factors[0].IsOne() {
		return polys[0]
	}
	return crypto.LinearCombination(polys, factors)
}

// OpenLagrange proves f_j(x, y) for every j, batching the polynomials with
// powers of theta.
func OpenLagrange(srs *ProverSRS, polys []BivariatePolynomial, x, y, theta fr.Element) (OpeningProof, error) {
	if err := srs.Validate(); err != nil {
		return OpeningProof{}, err
	}
	for j, p := range polys {
		if err := p.check(srs.XSize, srs.YSize); err != nil {
			return OpeningProof{}, fmt.Errorf("polynomial %d: %w", j, err)
		}
	}

	factors := crypto.Powers(theta, len(polys))
	q1 := make([]fr.Element, srs.XSize*srs.YSize)
	rowEvals := make([]fr.Element, srs.YSize)
	for i := 0; i < srs.YSize; i++ {
		rows := make([]crypto.Polynomial, len(polys))
		for j := range polys {
			rows[j] = polys[j].Rows[i]
		}
		combined := combine(rows, factors)
		rowEvals[i] = crypto.Eval(combined, x)
		copy(q1[i*srs.XSize:], crypto.DivideByXMinusK(combined, x))
	}

	var proof OpeningProof
	var err error
	if proof.Q1, err = msm(srs.XY, q1); err != nil {
		return OpeningProof{}, err
	}
	q2 := crypto.QuotientEvalLagrange(rowEvals, y, crypto.NewDomain(srs.YSize))
	if proof.Q2, err = msm(srs.Y, q2); err != nil {
		return OpeningProof{}, err
	}
	return proof, nil
}

// Verify checks a batched opening of coms at (x, y).
//
//	e(Σθ^j C_j - [Σθ^j v_j]G, H) == e(Q1, H_α - xH) · e(Q2, H_β - yH)
func Verify(vk *VerifierSRS, coms []bls12381.G1Affine, x, y fr.Element, evals []fr.Element, proof OpeningProof, theta fr.Element) (bool, error) {
	if len(coms) != len(evals) {
		return false, fmt.Errorf("%w: %d commitments, %d evaluations", ErrShapeMismatch, len(coms), len(evals))
	}
	factors := crypto.Powers(theta, len(coms))
	claimed := crypto.InnerProduct(evals, factors)

	bases := append(append([]bls12381.G1Affine{}, coms...), vk.G)
	scalars := append(factors, *new(fr.Element).Neg(&claimed))
	lhs, err := msm(bases, scalars)
	if err != nil {
		return false, err
	}

	var negQ1, negQ2 bls12381.G1Affine
	negQ1.Neg(&proof.Q1)
	negQ2.Neg(&proof.Q2)

	ok, err := bls12381.PairingCheck(
		[]bls12381.G1Affine{lhs, negQ1, negQ2},
		[]bls12381.G2Affine{vk.H, shiftedG2(&vk.HAlpha, &vk.H, x), shiftedG2(&vk.HBeta, &vk.H, y)},
	)
	if err != nil {
		return false, err
	}
	return ok, nil
}

// shiftedG2 returns base - z·h.
func shiftedG2(base, h *bls12381.G2Affine, z fr.Element) bls12381.G2Affine {
	var zh, res bls12381.G2Affine
	zh.ScalarMultiplication(h, z.BigInt(new(big.Int)))
	res.Sub(base, &zh)
	return res
}

// EvaluateAtSameY returns f_j(p, y) for every point p of xPoints[j].
func EvaluateAtSameY(polys []BivariatePolynomial, xPoints [][]fr.Element, y fr.Element) ([][]fr.Element, error) {
	if len(polys) != len(xPoints) {
		return nil, fmt.Errorf("%w: %d polynomials, %d point sets", ErrShapeMismatch, len(polys), len(xPoints))
	}
	evals := make([][]fr.Element, len(polys))
	for j, p := range polys {
		atY := p.AtY(y, crypto.NewDomain(len(p.Rows)))
		evals[j] = make([]fr.Element, len(xPoints[j]))
		for k := range xPoints[j] {
			evals[j][k] = crypto.Eval(atY, xPoints[j][k])
		}
	}
	return evals, nil
}

func checkPoints(xPoints [][]fr.Element) error {
	for j, pts := range xPoints {
		if len(crypto.Dedup(pts)) != len(pts) {
			return fmt.Errorf("%w: repeated point for polynomial %d", ErrShapeMismatch, j)
		}
	}
	return nil
}

// OpenLagrangeAtSameY proves the evaluations of polys[j] at every point of
// xPoints[j] and at the common y. Challenges come from t, which must be fresh.
// The commitments and evaluations are recomputed and bound to t, so the proof
// only verifies against Commit(srs, polys) and EvaluateAtSameY.
func OpenLagrangeAtSameY(srs *ProverSRS, polys []BivariatePolynomial, xPoints [][]fr.Element, y fr.Element, t *Transcript) (*SameYProof, error) {
	if len(polys) != len(xPoints) {
		return nil, fmt.Errorf("%w: %d polynomials, %d point sets", ErrShapeMismatch, len(polys), len(xPoints))
	}
	if err := checkPoints(xPoints); err != nil {
		return nil, err
	}
	if err := srs.Validate(); err != nil {
		return nil, err
	}
	for j, p := range polys {
		if err := p.check(srs.XSize, srs.YSize); err != nil {
			return nil, fmt.Errorf("polynomial %d: %w", j, err)
		}
	}

	coms, err := Commit(srs, polys)
	if err != nil {
		return nil, err
	}
	evals, err := EvaluateAtSameY(polys, xPoints, y)
	if err != nil {
		return nil, err
	}
	gamma, err := t.deriveGamma(coms, xPoints, y, evals)
	if err != nil {
		return nil, err
	}
	yDomain := crypto.NewDomain(srs.YSize)

	// f_j(X, y) - r_j(X) is divisible by Z_j, so the floor quotient drops r_j
	quotients := make([]crypto.Polynomial, len(polys))
	for j, p := range polys {
		quotients[j] = crypto.DivideByVanishing(p.AtY(y, yDomain), xPoints[j])
	}
	q := crypto.PadTo(crypto.LinearCombination(quotients, crypto.Powers(gamma, len(polys))), srs.XSize)

	proof := &SameYProof{}
	if proof.Q, err = msm(srs.X, q); err != nil {
		return nil, err
	}
	eta, err := t.deriveEta(&proof.Q)
	if err != nil {
		return nil, err
	}

	proof.EvalsEtaBeta = make([]fr.Element, len(polys))
	for j, p := range polys {
		proof.EvalsEtaBeta[j] = p.EvaluateLagrange(eta, y, yDomain)
	}
	proof.EvalQ = crypto.Eval(q, eta)

	theta, err := t.deriveTheta(proof.EvalsEtaBeta, proof.EvalQ)
	if err != nil {
		return nil, err
	}
	if proof.Opening, err = OpenLagrange(srs, polys, eta, y, theta); err != nil {
		return nil, err
	}
	qOpening, err := kzg.Open(q, eta, srs.UnivariateProvingKey())
	if err != nil {
		return nil, fmt.Errorf("opening quotient: %w", err)
	}
	proof.QOpening = qOpening.H
	return proof, nil
}

// VerifyAtSameY checks a SameYProof against the commitments and the claimed
// evaluations evals[j][k] = f_j(xPoints[j][k], y). t must be a fresh
// transcript with the prover's label.
func VerifyAtSameY(vk *VerifierSRS, coms []bls12381.G1Affine, xPoints [][]fr.Element, y fr.Element, evals [][]fr.Element, proof *SameYProof, t *Transcript) (bool, error) {
	if proof == nil {
		return false, fmt.Errorf("%w: missing proof", ErrShapeMismatch)
	}
	if len(coms) != len(xPoints) || len(coms) != len(evals) || len(coms) != len(proof.EvalsEtaBeta) {
		return false, fmt.Errorf("%w: %d commitments, %d point sets, %d evaluation sets, %d proof evaluations",
			ErrShapeMismatch, len(coms), len(xPoints), len(evals), len(proof.EvalsEtaBeta))
	}
	for j := range xPoints {
		if len(xPoints[j]) != len(evals[j]) {
			return false, fmt.Errorf("%w: polynomial %d has %d points and %d evaluations", ErrShapeMismatch, j, len(xPoints[j]), len(evals[j]))
		}
	}
	if err := checkPoints(xPoints); err != nil {
		return false, err
	}

	gamma, err := t.deriveGamma(coms, xPoints, y, evals)
	if err != nil {
		return false, err
	}
	eta, err := t.deriveEta(&proof.Q)
	if err != nil {
		return false, err
	}

	consistent := checkQuotientIdentity(xPoints, evals, proof, gamma, eta)

	qErr := kzg.Verify(&proof.Q, &kzg.OpeningProof{H: proof.QOpening, ClaimedValue: proof.EvalQ}, eta, vk.UnivariateVerifyingKey())
	if qErr != nil && !errors.Is(qErr, kzg.ErrVerifyOpeningProof) {
		return false, qErr
	}

	theta, err := t.deriveTheta(proof.EvalsEtaBeta, proof.EvalQ)
	if err != nil {
		return false, err
	}
	batched, err := Verify(vk, coms, eta, y, proof.EvalsEtaBeta, proof.Opening, theta)
	if err != nil {
		return false, err
	}

	return consistent && qErr == nil && batched, nil
}

// checkQuotientIdentity checks at eta that
//
//	Σ_j γ^j (Z/Z_j)(η) (f_j(η, y) - r_j(η)) == Z(η) q(η)
//
// where Z vanishes on every point and r_j interpolates the claimed evaluations.
func checkQuotientIdentity(xPoints, evals [][]fr.Element, proof *SameYProof, gamma, eta fr.Element) bool {
	var all []fr.Element
	for _, pts := range xPoints {
		all = append(all, pts...)
	}
	num := crypto.Eval(crypto.VanishingPolynomial(all), eta)

	var rhs fr.Element
	rhs.Mul(&num, &proof.EvalQ)

	var lhs fr.Element
	factors := crypto.Powers(gamma, len(xPoints))
	for j := range xPoints {
		zj := crypto.Eval(crypto.VanishingPolynomial(xPoints[j]), eta)
		if zj.IsZero() {
			return false
		}
		r := crypto.Eval(crypto.Interpolate(xPoints[j], evals[j]), eta)

		var term fr.Element
		term.Sub(&proof.EvalsEtaBeta[j], &r).
			Mul(&term, &factors[j]).
			Mul(&term, &num).
			Div(&term, &zj)
		lhs.Add(&lhs, &term)
	}
	return lhs.Equal(&rhs)
}
