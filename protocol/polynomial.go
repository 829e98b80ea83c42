package protocol

import (
	"fmt"

	"github.com/consensys/gnark-crypto/ecc"
	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/fft"

	"github.com/flashbots/dekzg/crypto"
)

// BivariatePolynomial is Σ_i Rows[i](X)·L_i(Y), with L_i the Lagrange basis of
// a Y domain of size len(Rows). Row i is what party i holds in a distributed run.
type BivariatePolynomial struct {
	Rows []crypto.Polynomial
}

// RandomBivariate samples a polynomial with ySize rows of xSize coefficients.
func RandomBivariate(xSize, ySize int) (BivariatePolynomial, error) {
	p := BivariatePolynomial{Rows: make([]crypto.Polynomial, ySize)}
	for i := range p.Rows {
		row := make(crypto.Polynomial, xSize)
		for k := range row {
			if _, err := row[k].SetRandom(); err != nil {
				return BivariatePolynomial{}, err
			}
		}
		p.Rows[i] = row
	}
	return p, nil
}

// EvaluateLagrange returns f(x, y).
func (p BivariatePolynomial) EvaluateLagrange(x, y fr.Element, yDomain *fft.Domain) fr.Element {
	coeffs := crypto.LagrangeCoefficients(yDomain, y)
	var res fr.Element
	for i, row := range p.Rows {
		v := crypto.Eval(row, x)
		v.Mul(&v, &coeffs[i])
		res.Add(&res, &v)
	}
	return res
}

// AtY returns the univariate polynomial f(X, y).
func (p BivariatePolynomial) AtY(y fr.Element, yDomain *fft.Domain) crypto.Polynomial {
	return crypto.LinearCombination(p.Rows, crypto.LagrangeCoefficients(yDomain, y))
}

func (p BivariatePolynomial) check(xSize, ySize int) error {
	if len(p.Rows) != ySize {
		return fmt.Errorf("%w: %d rows, want %d", ErrShapeMismatch, len(p.Rows), ySize)
	}
	for i, row := range p.Rows {
		if len(row) > xSize {
			return fmt.Errorf("%w: row %d has %d coefficients, at most %d supported", ErrShapeMismatch, i, len(row), xSize)
		}
	}
	return nil
}

// msm returns Σ scalars[i]·points[i]. Missing trailing scalars count as zero.
func msm(points []bls12381.G1Affine, scalars []fr.Element) (bls12381.G1Affine, error) {
	var res bls12381.G1Affine
	if len(scalars) > len(points) {
		return res, fmt.Errorf("%w: %d scalars for %d points", ErrShapeMismatch, len(scalars), len(points))
	}
	if len(scalars) == 0 {
		return res, nil
	}
	if _, err := res.MultiExp(points[:len(scalars)], scalars, ecc.MultiExpConfig{}); err != nil {
		return res, err
	}
	return res, nil
}

// sumPoints adds up the points. The empty sum is the point at infinity.
func sumPoints(points []bls12381.G1Affine) bls12381.G1Affine {
	var acc bls12381.G1Jac
	for i := range points {
		acc.AddMixed(&points[i])
	}
	var res bls12381.G1Affine
	res.FromJacobian(&acc)
	return res
}

// sumColumns returns, for every column j, the sum over rows of rows[k][j].
func sumColumns(rows [][]bls12381.G1Affine) ([]bls12381.G1Affine, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := len(rows[0])
	res := make([]bls12381.G1Affine, cols)
	column := make([]bls12381.G1Affine, len(rows))
	for j := 0; j < cols; j++ {
		for k, row := range rows {
			if len(row) != cols {
				return nil, fmt.Errorf("%w: party %d sent %d points, want %d", ErrShapeMismatch, k, len(row), cols)
			}
			column[k] = row[j]
		}
		res[j] = sumPoints(column)
	}
	return res, nil
}

// sumScalarColumns is sumColumns over field elements.
func sumScalarColumns(rows [][]fr.Element) ([]fr.Element, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := len(rows[0])
	res := make([]fr.Element, cols)
	for k, row := range rows {
		if len(row) != cols {
			return nil, fmt.Errorf("%w: party %d sent %d values, want %d", ErrShapeMismatch, k, len(row), cols)
		}
		for j := range row {
			res[j].Add(&res[j], &row[j])
		}
	}
	return res, nil
}
