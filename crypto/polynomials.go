package crypto

import (
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// Polynomial holds coefficients in increasing degree order.
type Polynomial = []fr.Element

// Eval returns p(x) using Horner's rule.
func Eval(p Polynomial, x fr.Element) fr.Element {
	var res fr.Element
	for i := len(p) - 1; i >= 0; i-- {
		res.Mul(&res, &x).Add(&res, &p[i])
	}
	return res
}

// Powers returns [1, base, base², ..., base^(n-1)].
func Powers(base fr.Element, n int) []fr.Element {
	if n <= 0 {
		return nil
	}
	res := make([]fr.Element, n)
	res[0].SetOne()
	for i := 1; i < n; i++ {
		res[i].Mul(&res[i-1], &base)
	}
	return res
}

// DivideByXMinusK returns the quotient of p by (X - k). The remainder p(k) is dropped.
func DivideByXMinusK(p Polynomial, k fr.Element) Polynomial {
	if len(p) <= 1 {
		return Polynomial{}
	}
	q := make(Polynomial, len(p)-1)
	if k.IsZero() {
		copy(q, p[1:])
		return q
	}
	carry := p[len(p)-1]
	for i := len(p) - 2; i >= 0; i-- {
		q[i] = carry
		var t fr.Element
		t.Mul(&carry, &k)
		carry.Add(&p[i], &t)
	}
	return q
}

// Dedup drops repeated points, keeping the first occurrence.
func Dedup(points []fr.Element) []fr.Element {
	seen := make(map[fr.Element]struct{}, len(points))
	res := make([]fr.Element, 0, len(points))
	for _, pt := range points {
		if _, ok := seen[pt]; ok {
			continue
		}
		seen[pt] = struct{}{}
		res = append(res, pt)
	}
	return res
}

// VanishingPolynomial returns ∏ (X - pt) over the distinct points.
func VanishingPolynomial(points []fr.Element) Polynomial {
	res := Polynomial{fr.One()}
	for _, pt := range Dedup(points) {
		next := make(Polynomial, len(res)+1)
		var neg fr.Element
		neg.Neg(&pt)
		for i := range res {
			var t fr.Element
			t.Mul(&res[i], &neg)
			next[i].Add(&next[i], &t)
			next[i+1].Add(&next[i+1], &res[i])
		}
		res = next
	}
	return res
}

// Divide performs long division and returns quotient and remainder.
// den must have a non-zero leading coefficient.
func Divide(num, den Polynomial) (Polynomial, Polynomial) {
	den = trim(den)
	if len(den) == 0 {
		panic("crypto: division by the zero polynomial")
	}
	rem := append(Polynomial(nil), num...)
	if len(num) < len(den) {
		return Polynomial{}, rem
	}

	var leadInv fr.Element
	leadInv.Inverse(&den[len(den)-1])

	q := make(Polynomial, len(num)-len(den)+1)
	for i := len(q) - 1; i >= 0; i-- {
		var c fr.Element
		c.Mul(&rem[i+len(den)-1], &leadInv)
		q[i] = c
		for j := range den {
			var t fr.Element
			t.Mul(&c, &den[j])
			rem[i+j].Sub(&rem[i+j], &t)
		}
	}
	return q, trim(rem[:len(den)-1])
}

// DivideByVanishing returns the quotient of p by ∏ (X - pt) over the
// distinct points. The remainder, which interpolates p on the points, is
// dropped.
func DivideByVanishing(p Polynomial, points []fr.Element) Polynomial {
	points = Dedup(points)
	if len(points) <= 3 {
		q := p
		for _, pt := range points {
			q = DivideByXMinusK(q, pt)
		}
		return q
	}
	q, _ := Divide(p, VanishingPolynomial(points))
	return q
}

// Interpolate returns the polynomial of degree < len(points) through
// (points[i], evals[i]). Points must be distinct.
func Interpolate(points, evals []fr.Element) Polynomial {
	if len(points) != len(evals) {
		panic("crypto: interpolation needs one evaluation per point")
	}
	if len(points) == 1 {
		return Polynomial{evals[0]}
	}

	numerator := VanishingPolynomial(points)
	denominators := make([]fr.Element, len(points))
	for i := range points {
		denominators[i].SetOne()
		for j := range points {
			if i == j {
				continue
			}
			var d fr.Element
			d.Sub(&points[i], &points[j])
			denominators[i].Mul(&denominators[i], &d)
		}
	}
	denominators = fr.BatchInvert(denominators)

	res := make(Polynomial, len(points))
	for i := range points {
		var c fr.Element
		c.Mul(&evals[i], &denominators[i])
		AddScaled(res, DivideByXMinusK(numerator, points[i]), c)
	}
	return res
}

// AddScaled sets dst += factor·src. dst must be at least as long as src.
func AddScaled(dst, src Polynomial, factor fr.Element) {
	for i := range src {
		var t fr.Element
		t.Mul(&src[i], &factor)
		dst[i].Add(&dst[i], &t)
	}
}

// LinearCombination returns Σ factors[j]·polys[j], sized to the longest input.
func LinearCombination(polys []Polynomial, factors []fr.Element) Polynomial {
	size := 0
	for _, p := range polys {
		size = max(size, len(p))
	}
	res := make(Polynomial, size)
	for j, p := range polys {
		AddScaled(res, p, factors[j])
	}
	return res
}

// PadTo returns p extended with zero coefficients to length n.
func PadTo(p Polynomial, n int) Polynomial {
	if len(p) >= n {
		return p
	}
	res := make(Polynomial, n)
	copy(res, p)
	return res
}

func trim(p Polynomial) Polynomial {
	n := len(p)
	for n > 0 && p[n-1].IsZero() {
		n--
	}
	return p[:n]
}
