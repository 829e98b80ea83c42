package protocol

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/flashbots/dekzg/network"
)

var (
	// ErrInvalidSRS is returned for reference strings of the wrong shape.
	ErrInvalidSRS = errors.New("invalid structured reference string")
	// ErrShapeMismatch is returned when inputs disagree in length or layout.
	ErrShapeMismatch = errors.New("input shapes do not match")
	// ErrMalformedPayload is returned when a peer sends bytes that do not decode.
	ErrMalformedPayload = errors.New("malformed payload")
)

// wireValue lists the types exchanged over a network.Channel.
type wireValue interface {
	[]bls12381.G1Affine | []fr.Element | [][]fr.Element
}

// EncodeValue serializes v with the uncompressed point encoding.
func EncodeValue[T wireValue](v T) ([]byte, error) {
	var buf bytes.Buffer
	if err := bls12381.NewEncoder(&buf, bls12381.RawEncoding()).Encode(v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// minEncodedSize is the smallest encoding of one element of a T.
func minEncodedSize[T wireValue]() int {
	var v T
	switch any(v).(type) {
	case []bls12381.G1Affine:
		return bls12381.SizeOfG1AffineCompressed
	case []fr.Element:
		return fr.Bytes
	default:
		return 4 // length prefix of an empty inner vector
	}
}

// DecodeValue is the inverse of EncodeValue. Trailing bytes are an error.
func DecodeValue[T wireValue](payload []byte) (T, error) {
	var v T
	// the decoder allocates the declared length up front
	if len(payload) < 4 {
		return v, fmt.Errorf("%w: %d bytes", ErrMalformedPayload, len(payload))
	}
	if n := uint64(binary.BigEndian.Uint32(payload)); n*uint64(minEncodedSize[T]()) > uint64(len(payload)-4) {
		return v, fmt.Errorf("%w: %d elements do not fit in %d bytes", ErrMalformedPayload, n, len(payload))
	}
	dec := bls12381.NewDecoder(bytes.NewReader(payload))
	if err := dec.Decode(&v); err != nil {
		return v, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	if dec.BytesRead() != int64(len(payload)) {
		return v, fmt.Errorf("%w: %d trailing bytes", ErrMalformedPayload, int64(len(payload))-dec.BytesRead())
	}
	return v, nil
}

// gather sends local to the master, which gets every party's value in party order.
func gather[T wireValue](ctx context.Context, ch network.Channel, local T) (network.MasterResult[[]T], error) {
	payload, err := EncodeValue(local)
	if err != nil {
		return network.Worker[[]T](), err
	}
	raw, err := ch.SendToMaster(ctx, payload)
	if err != nil {
		return network.Worker[[]T](), err
	}
	return network.MapMaster(raw, func(all [][]byte) ([]T, error) {
		res := make([]T, len(all))
		for k := range all {
			v, err := DecodeValue[T](all[k])
			if err != nil {
				return nil, fmt.Errorf("party %d: %w", k, err)
			}
			res[k] = v
		}
		return res, nil
	})
}

// share hands the master's value to every party. Workers pass the zero value.
func share[T wireValue](ctx context.Context, ch network.Channel, value T) (T, error) {
	var payload []byte
	if ch.AmMaster() {
		var err error
		if payload, err = EncodeValue(value); err != nil {
			return nil, err
		}
	}
	raw, err := network.ShareFromMaster(ctx, ch, payload)
	if err != nil {
		return nil, err
	}
	return DecodeValue[T](raw)
}

// shareChallenge derives a challenge on the master and hands it to every party.
func shareChallenge(ctx context.Context, ch network.Channel, derive func() (fr.Element, error)) (fr.Element, error) {
	var local []fr.Element
	if ch.AmMaster() {
		c, err := derive()
		if err != nil {
			return fr.Element{}, err
		}
		local = []fr.Element{c}
	}
	shared, err := share(ctx, ch, local)
	if err != nil {
		return fr.Element{}, err
	}
	if len(shared) != 1 {
		return fr.Element{}, fmt.Errorf("%w: challenge has %d elements", ErrMalformedPayload, len(shared))
	}
	return shared[0], nil
}

// WriteTo serializes the proof with uncompressed points.
func (p *SameYProof) WriteTo(w io.Writer) (int64, error) {
	enc := bls12381.NewEncoder(w, bls12381.RawEncoding())
	for _, v := range []any{
		&p.Q, p.EvalsEtaBeta, &p.EvalQ, &p.Opening.Q1, &p.Opening.Q2, &p.QOpening,
	} {
		if err := enc.Encode(v); err != nil {
			return enc.BytesWritten(), err
		}
	}
	return enc.BytesWritten(), nil
}

// ReadFrom deserializes a proof written by WriteTo. Points are subgroup checked.
func (p *SameYProof) ReadFrom(r io.Reader) (int64, error) {
	dec := bls12381.NewDecoder(r)
	for _, v := range []any{
		&p.Q, &p.EvalsEtaBeta, &p.EvalQ, &p.Opening.Q1, &p.Opening.Q2, &p.QOpening,
	} {
		if err := dec.Decode(v); err != nil {
			return dec.BytesRead(), fmt.Errorf("%w: %w", ErrMalformedPayload, err)
		}
	}
	return dec.BytesRead(), nil
}
