package crypto

import (
	"testing"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
)

// fuzzPoly turns raw bytes into a polynomial, 8 bytes per coefficient.
func fuzzPoly(data []byte) Polynomial {
	p := make(Polynomial, 0, len(data)/8+1)
	for len(data) > 0 {
		n := min(8, len(data))
		var c fr.Element
		c.SetBytes(data[:n])
		p = append(p, c)
		data = data[n:]
	}
	return p
}

func FuzzDivideByXMinusK(f *testing.F) {
	f.Add([]byte{1, 2, 3}, uint64(0))
	f.Add(make([]byte, 64), uint64(1))
	f.Add([]byte{255, 0, 255, 0, 255, 0, 255, 0, 1}, uint64(1<<40))

	f.Fuzz(func(t *testing.T, data []byte, kRaw uint64) {
		p := fuzzPoly(data)
		var k, x fr.Element
		k.SetUint64(kRaw)
		x.SetUint64(kRaw*7 + 3)

		q := DivideByXMinusK(p, k)
		if len(p) > 1 && len(q) != len(p)-1 {
			t.Fatalf("quotient has %d coefficients for degree %d", len(q), len(p)-1)
		}

		// p(x) == q(x)(x - k) + p(k)
		want := Eval(p, x)
		got := Eval(q, x)
		var xk, pk fr.Element
		xk.Sub(&x, &k)
		pk = Eval(p, k)
		got.Mul(&got, &xk).Add(&got, &pk)
		if !got.Equal(&want) {
			t.Errorf("division identity failed for k=%d", kRaw)
		}
	})
}

func FuzzInterpolate(f *testing.F) {
	f.Add([]byte{1})
	f.Add([]byte{9, 8, 7, 6, 5, 4, 3, 2, 1, 0, 1, 2, 3, 4, 5, 6, 7})
	f.Add(make([]byte, 40))

	f.Fuzz(func(t *testing.T, data []byte) {
		p := fuzzPoly(data)
		if len(p) == 0 || len(p) > 32 {
			return
		}
		points := make([]fr.Element, len(p))
		evals := make([]fr.Element, len(p))
		for i := range points {
			points[i].SetUint64(uint64(i*i + 1))
			evals[i] = Eval(p, points[i])
		}

		got := Interpolate(points, evals)
		if len(got) != len(p) {
			t.Fatalf("interpolated %d coefficients, want %d", len(got), len(p))
		}
		for i := range p {
			if !got[i].Equal(&p[i]) {
				t.Fatalf("coefficient %d differs", i)
			}
		}
	})
}
