package crypto

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/require"
)

func elems(vals ...int64) []fr.Element {
	res := make([]fr.Element, len(vals))
	for i, v := range vals {
		res[i].SetInt64(v)
	}
	return res
}

func randomPoly(t *testing.T, n int) Polynomial {
	t.Helper()
	p := make(Polynomial, n)
	for i := range p {
		_, err := p[i].SetRandom()
		require.NoError(t, err)
	}
	return p
}

func randomElement(t *testing.T) fr.Element {
	t.Helper()
	var e fr.Element
	_, err := e.SetRandom()
	require.NoError(t, err)
	return e
}

func TestEval(t *testing.T) {
	// 7x^3 + 3x^2 - 12x + 7
	p := elems(7, -12, 3, 7)
	for x, want := range map[int64]int64{-2: -13, -1: 15, 0: 7, 2: 51, 5: 897} {
		got := Eval(p, elems(x)[0])
		require.Equal(t, elems(want)[0], got, "p(%d)", x)
	}

	zero := Eval(nil, elems(3)[0])
	require.True(t, zero.IsZero())
}

func TestPowers(t *testing.T) {
	require.Equal(t, elems(1, 3, 9, 27), Powers(elems(3)[0], 4))
	require.Nil(t, Powers(elems(3)[0], 0))
}

func TestDivideByXMinusK(t *testing.T) {
	p := randomPoly(t, 9)
	for _, k := range []fr.Element{elems(0)[0], elems(1)[0], randomElement(t)} {
		q := DivideByXMinusK(p, k)
		require.Len(t, q, len(p)-1)

		// p(x) - p(k) == q(x)(x - k) at a random x
		x := randomElement(t)
		var lhs, rhs, pk fr.Element
		lhs = Eval(p, x)
		pk = Eval(p, k)
		lhs.Sub(&lhs, &pk)
		rhs = Eval(q, x)
		var xk fr.Element
		xk.Sub(&x, &k)
		rhs.Mul(&rhs, &xk)
		require.Equal(t, lhs, rhs)
	}

	require.Empty(t, DivideByXMinusK(elems(5), elems(2)[0]))
	require.Empty(t, DivideByXMinusK(nil, elems(2)[0]))
}

func TestVanishingPolynomial(t *testing.T) {
	points := elems(2, 3, 2, -1)
	z := VanishingPolynomial(points)
	require.Len(t, z, 4, "repeated points are counted once")
	for _, pt := range points {
		v := Eval(z, pt)
		require.True(t, v.IsZero())
	}
	require.Equal(t, Polynomial{fr.One()}, VanishingPolynomial(nil))
}

func TestDivide(t *testing.T) {
	num := randomPoly(t, 12)
	den := randomPoly(t, 4)
	q, rem := Divide(num, den)
	require.Len(t, q, 9)
	require.Less(t, len(rem), len(den))

	x := randomElement(t)
	want := Eval(num, x)
	var got, r fr.Element
	got = Eval(q, x)
	d := Eval(den, x)
	got.Mul(&got, &d)
	r = Eval(rem, x)
	got.Add(&got, &r)
	require.Equal(t, want, got)

	short, rem := Divide(den, num)
	require.Empty(t, short)
	require.Equal(t, den, rem)

	require.Panics(t, func() { Divide(num, elems(0, 0)) })
}

func TestDivideByVanishing(t *testing.T) {
	p := randomPoly(t, 16)
	for _, n := range []int{1, 2, 3, 4, 7} {
		points := make([]fr.Element, n)
		for i := range points {
			points[i] = randomElement(t)
		}
		viaVanishing, _ := Divide(p, VanishingPolynomial(points))
		require.Equal(t, viaVanishing, DivideByVanishing(p, points), "%d points", n)
	}

	// duplicated points divide once
	pt := randomElement(t)
	require.Equal(t, DivideByXMinusK(p, pt), DivideByVanishing(p, []fr.Element{pt, pt}))
}

func TestInterpolate(t *testing.T) {
	p := randomPoly(t, 6)
	points := make([]fr.Element, len(p))
	evals := make([]fr.Element, len(p))
	for i := range points {
		points[i] = randomElement(t)
		evals[i] = Eval(p, points[i])
	}
	require.Equal(t, p, Interpolate(points, evals))

	single := Interpolate(elems(4), elems(9))
	require.Equal(t, elems(9), single)

	require.Panics(t, func() { Interpolate(elems(1, 2), elems(1)) })
}

func TestLinearCombination(t *testing.T) {
	a := elems(1, 2, 3)
	b := elems(10)
	res := LinearCombination([]Polynomial{a, b}, elems(2, 3))
	require.Equal(t, elems(32, 4, 6), res)

	require.Equal(t, elems(1, 2, 0, 0), PadTo(elems(1, 2), 4))
	require.Equal(t, elems(1, 2), PadTo(elems(1, 2), 1))
}
