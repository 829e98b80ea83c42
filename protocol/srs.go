package protocol

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math/big"
	"math/bits"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/kzg"
	"golang.org/x/crypto/sha3"

	"github.com/flashbots/dekzg/crypto"
)

// Trapdoor holds the secret exponents of a reference string. It must be
// discarded once the reference string has been generated.
type Trapdoor struct {
	Alpha fr.Element
	Beta  fr.Element
}

// NewTrapdoor samples a trapdoor from r.
func NewTrapdoor(r io.Reader) (Trapdoor, error) {
	var buf [2 * 64]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return Trapdoor{}, fmt.Errorf("sampling trapdoor: %w", err)
	}
	var td Trapdoor
	td.Alpha.SetBytes(buf[:64])
	td.Beta.SetBytes(buf[64:])
	return td, nil
}

// TrapdoorFromSeed expands seed with SHAKE256 into a deterministic trapdoor.
// Every party of a session calling it with the same seed ends up with the
// same reference string.
func TrapdoorFromSeed(seed []byte) Trapdoor {
	h := sha3.NewShake256()
	h.Write([]byte("dekzg trapdoor"))
	h.Write(seed)
	td, _ := NewTrapdoor(h) // a shake stream never runs dry
	return td
}

// ProverSRS is the prover side of a Lagrange-basis bivariate reference string.
//
//	XY[i*XSize+j] = [L_i(β)·α^j]G
//	X[j]          = [α^j]G
//	Y[i]          = [L_i(β)]G
type ProverSRS struct {
	XSize int
	YSize int
	XY    []bls12381.G1Affine
	X     []bls12381.G1Affine
	Y     []bls12381.G1Affine
}

// VerifierSRS is the verifier side of the reference string.
type VerifierSRS struct {
	G      bls12381.G1Affine
	H      bls12381.G2Affine
	HAlpha bls12381.G2Affine
	HBeta  bls12381.G2Affine
}

func isPowerOfTwo(n int) bool {
	return n > 0 && bits.OnesCount(uint(n)) == 1
}

func checkSizes(xSize, ySize int) error {
	if xSize < 2 {
		return fmt.Errorf("%w: x size %d is below 2", ErrInvalidSRS, xSize)
	}
	if !isPowerOfTwo(ySize) {
		return fmt.Errorf("%w: y size %d is not a power of two", ErrInvalidSRS, ySize)
	}
	return nil
}

// SetupLagrange generates a reference string for polynomials with at most
// xSize coefficients in X, expressed in the Lagrange basis of the Y domain of
// size ySize. A beta inside the Y domain is moved out of it deterministically.
func SetupLagrange(xSize, ySize int, td Trapdoor) (*ProverSRS, *VerifierSRS, error) {
	if err := checkSizes(xSize, ySize); err != nil {
		return nil, nil, err
	}

	yDomain := crypto.NewDomain(ySize)
	beta := td.Beta
	one := fr.One()
	for crypto.InDomain(yDomain, beta) {
		beta.Add(&beta, &one)
	}

	alphaPowers := crypto.Powers(td.Alpha, xSize)
	lagrangeAtBeta := crypto.LagrangeCoefficients(yDomain, beta)

	scalars := make([]fr.Element, 0, xSize*ySize)
	for i := range lagrangeAtBeta {
		for j := range alphaPowers {
			var s fr.Element
			s.Mul(&lagrangeAtBeta[i], &alphaPowers[j])
			scalars = append(scalars, s)
		}
	}

	_, _, g, h := bls12381.Generators()
	srs := &ProverSRS{
		XSize: xSize,
		YSize: ySize,
		XY:    bls12381.BatchScalarMultiplicationG1(&g, scalars),
		X:     bls12381.BatchScalarMultiplicationG1(&g, alphaPowers),
		Y:     bls12381.BatchScalarMultiplicationG1(&g, lagrangeAtBeta),
	}

	vk := &VerifierSRS{G: g, H: h}
	vk.HAlpha.ScalarMultiplication(&h, td.Alpha.BigInt(new(big.Int)))
	vk.HBeta.ScalarMultiplication(&h, beta.BigInt(new(big.Int)))
	return srs, vk, nil
}

// Validate checks that the slices agree with the declared sizes.
func (s *ProverSRS) Validate() error {
	if err := checkSizes(s.XSize, s.YSize); err != nil {
		return err
	}
	switch {
	case len(s.XY) != s.XSize*s.YSize:
		return fmt.Errorf("%w: %d xy powers, want %d", ErrInvalidSRS, len(s.XY), s.XSize*s.YSize)
	case len(s.X) != s.XSize:
		return fmt.Errorf("%w: %d x powers, want %d", ErrInvalidSRS, len(s.X), s.XSize)
	case len(s.Y) != s.YSize:
		return fmt.Errorf("%w: %d y powers, want %d", ErrInvalidSRS, len(s.Y), s.YSize)
	}
	return nil
}

// SubPowers returns the XY powers belonging to row id.
func (s *ProverSRS) SubPowers(id int) []bls12381.G1Affine {
	return s.XY[id*s.XSize : (id+1)*s.XSize]
}

// ForParty extracts what party id needs to run the distributed protocol.
func (s *ProverSRS) ForParty(id int, vk *VerifierSRS) (*PartySRS, error) {
	if err := s.Validate(); err != nil {
		return nil, err
	}
	if id < 0 || id >= s.YSize {
		return nil, fmt.Errorf("%w: party %d outside y domain of size %d", ErrInvalidSRS, id, s.YSize)
	}
	return &PartySRS{
		ID:        id,
		XSize:     s.XSize,
		YSize:     s.YSize,
		SubPowers: s.SubPowers(id),
		X:         s.X,
		Y:         s.Y,
		Verifier:  *vk,
	}, nil
}

// UnivariateProvingKey views the X powers as a univariate KZG key.
func (s *ProverSRS) UnivariateProvingKey() kzg.ProvingKey {
	return kzg.ProvingKey{G1: s.X}
}

// UnivariateVerifyingKey views the verifier key as a univariate KZG key over α.
func (v *VerifierSRS) UnivariateVerifyingKey() kzg.VerifyingKey {
	vk := kzg.VerifyingKey{
		G1: v.G,
		G2: [2]bls12381.G2Affine{v.H, v.HAlpha},
	}
	vk.Lines[0] = bls12381.PrecomputeLines(vk.G2[0])
	vk.Lines[1] = bls12381.PrecomputeLines(vk.G2[1])
	return vk
}

// PartySRS is the slice of the reference string one party holds.
type PartySRS struct {
	ID        int
	XSize     int
	YSize     int
	SubPowers []bls12381.G1Affine
	X         []bls12381.G1Affine
	Y         []bls12381.G1Affine
	Verifier  VerifierSRS
}

// Validate checks the slice lengths.
func (p *PartySRS) Validate() error {
	if err := checkSizes(p.XSize, p.YSize); err != nil {
		return err
	}
	if p.ID < 0 || p.ID >= p.YSize {
		return fmt.Errorf("%w: party %d outside y domain of size %d", ErrInvalidSRS, p.ID, p.YSize)
	}
	if len(p.SubPowers) != p.XSize || len(p.X) != p.XSize || len(p.Y) != p.YSize {
		return fmt.Errorf("%w: slice lengths do not match sizes %dx%d", ErrInvalidSRS, p.XSize, p.YSize)
	}
	return nil
}

// UnivariateProvingKey views the X powers as a univariate KZG key.
func (p *PartySRS) UnivariateProvingKey() kzg.ProvingKey {
	return kzg.ProvingKey{G1: p.X}
}

// WriteTo serializes the party SRS with uncompressed points.
func (p *PartySRS) WriteTo(w io.Writer) (int64, error) {
	enc := bls12381.NewEncoder(w, bls12381.RawEncoding())
	header := []uint64{uint64(p.ID), uint64(p.XSize), uint64(p.YSize)}
	for _, v := range []any{
		header, p.SubPowers, p.X, p.Y,
		&p.Verifier.G, &p.Verifier.H, &p.Verifier.HAlpha, &p.Verifier.HBeta,
	} {
		if err := enc.Encode(v); err != nil {
			return enc.BytesWritten(), err
		}
	}
	return enc.BytesWritten(), nil
}

// ReadFrom deserializes a party SRS written by WriteTo. Points are not
// subgroup checked; the input is expected to come from a trusted local file.
func (p *PartySRS) ReadFrom(r io.Reader) (int64, error) {
	br := bufio.NewReader(r)
	dec := bls12381.NewDecoder(br, bls12381.NoSubgroupChecks())
	fail := func(err error) (int64, error) {
		return dec.BytesRead(), fmt.Errorf("%w: %w", ErrInvalidSRS, err)
	}

	var header []uint64
	if err := expectLength(br, 3); err != nil {
		return fail(err)
	}
	if err := dec.Decode(&header); err != nil {
		return fail(err)
	}
	p.ID, p.XSize, p.YSize = int(header[0]), int(header[1]), int(header[2])
	if err := checkSizes(p.XSize, p.YSize); err != nil {
		return dec.BytesRead(), err
	}

	for _, v := range []struct {
		dst *[]bls12381.G1Affine
		n   int
	}{{&p.SubPowers, p.XSize}, {&p.X, p.XSize}, {&p.Y, p.YSize}} {
		if err := expectLength(br, v.n); err != nil {
			return fail(err)
		}
		if err := dec.Decode(v.dst); err != nil {
			return fail(err)
		}
	}
	for _, v := range []any{&p.Verifier.G, &p.Verifier.H, &p.Verifier.HAlpha, &p.Verifier.HBeta} {
		if err := dec.Decode(v); err != nil {
			return fail(err)
		}
	}
	return dec.BytesRead(), p.Validate()
}

// expectLength checks the length prefix of the next slice without consuming
// it, so a corrupted file cannot make the decoder allocate a huge slice.
func expectLength(br *bufio.Reader, n int) error {
	b, err := br.Peek(4)
	if err != nil {
		return err
	}
	if got := binary.BigEndian.Uint32(b); got != uint32(n) {
		return fmt.Errorf("slice of %d elements, want %d", got, n)
	}
	return nil
}
