package protocol

import (
	"bytes"
	"testing"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"
	"github.com/stretchr/testify/require"
)

func TestCodecNested(t *testing.T) {
	want := [][]fr.Element{randomElements(t, 3), {}, randomElements(t, 1)}
	payload, err := EncodeValue(want)
	require.NoError(t, err)
	got, err := DecodeValue[[][]fr.Element](payload)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Empty(t, got[1])
	require.Equal(t, want[0], got[0])
	require.Equal(t, want[2], got[2])
}

func TestCodecRejectsMalformed(t *testing.T) {
	_, _, g, _ := bls12381.Generators()
	payload, err := EncodeValue([]bls12381.G1Affine{g, g})
	require.NoError(t, err)

	_, err = DecodeValue[[]bls12381.G1Affine](append(payload, 0))
	require.ErrorIs(t, err, ErrMalformedPayload)

	_, err = DecodeValue[[]bls12381.G1Affine](payload[:len(payload)-1])
	require.ErrorIs(t, err, ErrMalformedPayload)

	garbage := bytes.Repeat([]byte{0xff}, len(payload))
	_, err = DecodeValue[[]bls12381.G1Affine](garbage)
	require.ErrorIs(t, err, ErrMalformedPayload)
}

func TestPartySRSRoundTrip(t *testing.T) {
	srs, vk := testSRS(t, 4, 2)
	want, err := srs.ForParty(1, vk)
	require.NoError(t, err)

	var buf bytes.Buffer
	written, err := want.WriteTo(&buf)
	require.NoError(t, err)
	require.Equal(t, int64(buf.Len()), written)

	raw := buf.Bytes()
	var got PartySRS
	read, err := got.ReadFrom(bytes.NewReader(raw))
	require.NoError(t, err)
	require.Equal(t, written, read)
	require.Equal(t, *want, got)

	var truncated PartySRS
	_, err = truncated.ReadFrom(bytes.NewReader(raw[:len(raw)/2]))
	require.ErrorIs(t, err, ErrInvalidSRS)
}

func TestForPartyOutOfRange(t *testing.T) {
	srs, vk := testSRS(t, 4, 2)
	_, err := srs.ForParty(2, vk)
	require.ErrorIs(t, err, ErrInvalidSRS)
}

func TestTrapdoorFromSeed(t *testing.T) {
	a := TrapdoorFromSeed([]byte("seed"))
	b := TrapdoorFromSeed([]byte("seed"))
	c := TrapdoorFromSeed([]byte("other"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
	require.False(t, a.Alpha.Equal(&a.Beta))
}

func TestTranscriptOrder(t *testing.T) {
	tr := NewTranscript(SameYLabel)
	_, err := tr.Challenge(ChallengeEta)
	require.Error(t, err, "eta before gamma")

	gamma, err := tr.Challenge(ChallengeGamma)
	require.NoError(t, err)
	again, err := tr.Challenge(ChallengeGamma)
	require.NoError(t, err)
	require.Equal(t, gamma, again)

	other, err := NewTranscript("other").Challenge(ChallengeGamma)
	require.NoError(t, err)
	require.NotEqual(t, gamma, other)

	_, _, g, _ := bls12381.Generators()
	eta, err := tr.deriveEta(&g)
	require.NoError(t, err)
	require.Error(t, tr.BindPoint(ChallengeEta, &g), "bind after compute")

	theta, err := tr.deriveTheta([]fr.Element{eta}, gamma)
	require.NoError(t, err)
	require.NotEqual(t, eta, theta)
}
