package crypto

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr/fft"
)

// NewDomain returns the multiplicative subgroup of size n without FFT
// precomputation. n must be a power of two.
func NewDomain(n int) *fft.Domain {
	return fft.NewDomain(uint64(n), fft.WithoutPrecompute())
}

// DomainElements returns [1, ω, ..., ω^(n-1)].
func DomainElements(d *fft.Domain) []fr.Element {
	return Powers(d.Generator, int(d.Cardinality))
}

// VanishingEval returns z^n - 1, the vanishing polynomial of d evaluated at z.
func VanishingEval(d *fft.Domain, z fr.Element) fr.Element {
	var res fr.Element
	res.Exp(z, new(big.Int).SetUint64(d.Cardinality))
	one := fr.One()
	return *res.Sub(&res, &one)
}

// InDomain reports whether z is an element of d.
func InDomain(d *fft.Domain, z fr.Element) bool {
	v := VanishingEval(d, z)
	return v.IsZero()
}

func indexOf(elements []fr.Element, z fr.Element) int {
	for i := range elements {
		if elements[i].Equal(&z) {
			return i
		}
	}
	return -1
}

// LagrangeCoefficients returns L_i(z) for every i of the Lagrange basis of d.
func LagrangeCoefficients(d *fft.Domain, z fr.Element) []fr.Element {
	roots := DomainElements(d)
	res := make([]fr.Element, len(roots))
	if InDomain(d, z) {
		res[indexOf(roots, z)].SetOne()
		return res
	}

	// L_i(z) = ω^i (z^n - 1) / (n (z - ω^i))
	c := VanishingEval(d, z)
	c.Mul(&c, &d.CardinalityInv)
	den := make([]fr.Element, len(roots))
	for i := range roots {
		den[i].Sub(&z, &roots[i])
	}
	den = fr.BatchInvert(den)
	for i := range roots {
		res[i].Mul(&roots[i], &den[i]).Mul(&res[i], &c)
	}
	return res
}

// EvaluateOneLagrange returns L_id(z) without computing the other coefficients.
func EvaluateOneLagrange(d *fft.Domain, id int, z fr.Element) fr.Element {
	var w fr.Element
	w.Exp(d.Generator, big.NewInt(int64(id)))
	if w.Equal(&z) {
		return fr.One()
	}

	num := VanishingEval(d, z)
	num.Mul(&num, &w)

	var den, n fr.Element
	n.SetUint64(d.Cardinality)
	den.Sub(&z, &w).Mul(&den, &n).Inverse(&den)

	return *num.Mul(&num, &den)
}

// EvalLagrange returns P(z) for the polynomial whose evaluations on d are evals.
func EvalLagrange(d *fft.Domain, evals []fr.Element, z fr.Element) fr.Element {
	return InnerProduct(evals, LagrangeCoefficients(d, z))
}

// InnerProduct returns Σ a[i]·b[i] over the common prefix.
func InnerProduct(a, b []fr.Element) fr.Element {
	var res fr.Element
	for i := 0; i < min(len(a), len(b)); i++ {
		var t fr.Element
		t.Mul(&a[i], &b[i])
		res.Add(&res, &t)
	}
	return res
}

// QuotientEvalLagrange returns the evaluations on d of (P(Y) - P(z)) / (Y - z),
// where P is given by its evaluations on d. When z is in the domain the
// quotient at z itself is P'(z), obtained from the other evaluations.
func QuotientEvalLagrange(evals []fr.Element, z fr.Element, d *fft.Domain) []fr.Element {
	roots := DomainElements(d)
	if m := indexOf(roots, z); m >= 0 {
		return quotientEvalOnDomain(evals, roots, m)
	}

	pz := EvalLagrange(d, evals, z)
	den := make([]fr.Element, len(roots))
	for i := range roots {
		den[i].Sub(&roots[i], &z)
	}
	den = fr.BatchInvert(den)

	q := make([]fr.Element, len(roots))
	for i := range q {
		if i < len(evals) {
			q[i].Sub(&evals[i], &pz)
		} else {
			q[i].Neg(&pz)
		}
		q[i].Mul(&q[i], &den[i])
	}
	return q
}

func quotientEvalOnDomain(evals, roots []fr.Element, m int) []fr.Element {
	z := roots[m]
	var y, invZ fr.Element
	if m < len(evals) {
		y = evals[m]
	}
	invZ.Inverse(&z)

	den := make([]fr.Element, len(roots))
	for j := range roots {
		if j != m {
			den[j].Sub(&roots[j], &z)
		}
	}
	den = fr.BatchInvert(den)

	q := make([]fr.Element, len(roots))
	for j := range roots {
		if j == m {
			continue
		}
		var fj fr.Element
		if j < len(evals) {
			fj = evals[j]
		}
		q[j].Sub(&fj, &y).Mul(&q[j], &den[j])

		// q_m = Σ_{j≠m} -q_j ω^j / z
		var t fr.Element
		t.Neg(&q[j]).Mul(&t, &roots[j]).Mul(&t, &invZ)
		q[m].Add(&q[m], &t)
	}
	return q
}
