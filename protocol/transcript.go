package protocol

import (
	"encoding/binary"
	"fmt"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	fiatshamir "github.com/consensys/gnark-crypto/fiat-shamir"
	"golang.org/x/crypto/sha3"
)

// Challenge names, in the order they are derived.
const (
	ChallengeGamma = "combined_polynomial_x_beta"
	ChallengeEta   = "random_evaluate_point"
	ChallengeTheta = "batch_kzg_rlc_challenge"
)

// SameYLabel is the label of the same-y batch opening transcript.
const SameYLabel = "batch bivariate KZG at the same y"

// Transcript derives the Fiat-Shamir challenges of a same-y opening.
// gamma depends on the label and the statement, eta on the quotient
// commitment, and theta on the claimed evaluations at (eta, y).
type Transcript struct {
	fs *fiatshamir.Transcript
}

// NewTranscript returns a transcript bound to label.
func NewTranscript(label string) *Transcript {
	fs := fiatshamir.NewTranscript(sha3.New256(), ChallengeGamma, ChallengeEta, ChallengeTheta)
	// binding to a known challenge before it is computed cannot fail
	_ = fs.Bind(ChallengeGamma, []byte(label))
	return &Transcript{fs: fs}
}

// BindPoint binds a group element to the named challenge.
func (t *Transcript) BindPoint(challenge string, p *bls12381.G1Affine) error {
	b := p.RawBytes()
	if err := t.fs.Bind(challenge, b[:]); err != nil {
		return fmt.Errorf("binding %s: %w", challenge, err)
	}
	return nil
}

// BindScalars binds field elements to the named challenge.
func (t *Transcript) BindScalars(challenge string, scalars ...fr.Element) error {
	for i := range scalars {
		b := scalars[i].Bytes()
		if err := t.fs.Bind(challenge, b[:]); err != nil {
			return fmt.Errorf("binding %s: %w", challenge, err)
		}
	}
	return nil
}

// Challenge computes, or returns the already computed, named challenge.
func (t *Transcript) Challenge(challenge string) (fr.Element, error) {
	b, err := t.fs.ComputeChallenge(challenge)
	if err != nil {
		return fr.Element{}, fmt.Errorf("computing %s: %w", challenge, err)
	}
	var c fr.Element
	c.SetBytes(b)
	return c, nil
}

// bindStatement binds the commitments, the opening points, y and the claimed
// evaluations to gamma. Every later challenge depends on gamma.
func (t *Transcript) bindStatement(coms []bls12381.G1Affine, xPoints [][]fr.Element, y fr.Element, evals [][]fr.Element) error {
	if len(evals) != len(xPoints) {
		return fmt.Errorf("%w: %d point sets, %d evaluation sets", ErrShapeMismatch, len(xPoints), len(evals))
	}
	if err := t.bindLength(len(coms)); err != nil {
		return err
	}
	for i := range coms {
		if err := t.BindPoint(ChallengeGamma, &coms[i]); err != nil {
			return err
		}
	}
	if err := t.BindScalars(ChallengeGamma, y); err != nil {
		return err
	}
	for j := range xPoints {
		if err := t.bindLength(len(xPoints[j])); err != nil {
			return err
		}
		if err := t.BindScalars(ChallengeGamma, xPoints[j]...); err != nil {
			return err
		}
		if err := t.BindScalars(ChallengeGamma, evals[j]...); err != nil {
			return err
		}
	}
	return nil
}

func (t *Transcript) bindLength(n int) error {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], uint64(n))
	if err := t.fs.Bind(ChallengeGamma, b[:]); err != nil {
		return fmt.Errorf("binding %s: %w", ChallengeGamma, err)
	}
	return nil
}

// deriveGamma binds the statement and derives gamma.
func (t *Transcript) deriveGamma(coms []bls12381.G1Affine, xPoints [][]fr.Element, y fr.Element, evals [][]fr.Element) (fr.Element, error) {
	if err := t.bindStatement(coms, xPoints, y, evals); err != nil {
		return fr.Element{}, err
	}
	return t.Challenge(ChallengeGamma)
}

// deriveEta binds the quotient commitment and derives eta.
func (t *Transcript) deriveEta(proofQ *bls12381.G1Affine) (fr.Element, error) {
	if err := t.BindPoint(ChallengeEta, proofQ); err != nil {
		return fr.Element{}, err
	}
	return t.Challenge(ChallengeEta)
}

// deriveTheta binds the evaluations at (eta, y) and the quotient evaluation, then derives theta.
func (t *Transcript) deriveTheta(evals []fr.Element, evalQ fr.Element) (fr.Element, error) {
	if err := t.BindScalars(ChallengeTheta, evals...); err != nil {
		return fr.Element{}, err
	}
	if err := t.BindScalars(ChallengeTheta, evalQ); err != nil {
		return fr.Element{}, err
	}
	return t.Challenge(ChallengeTheta)
}
