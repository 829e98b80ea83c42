package protocol

import (
	"context"
	"fmt"

	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/flashbots/dekzg/crypto"
	"github.com/flashbots/dekzg/network"
)

// ScatterRows hands row k of every master polynomial to party k. Workers pass
// network.Worker and receive their rows.
func ScatterRows(ctx context.Context, ch network.Channel, polys network.MasterResult[[]BivariatePolynomial]) ([]crypto.Polynomial, error) {
	seq, err := network.MapMaster(polys, func(polys []BivariatePolynomial) ([][]byte, error) {
		seq := make([][]byte, ch.NParties())
		for k := range seq {
			rows := make([][]fr.Element, len(polys))
			for j, p := range polys {
				if len(p.Rows) != ch.NParties() {
					return nil, fmt.Errorf("%w: polynomial %d has %d rows for %d parties", ErrShapeMismatch, j, len(p.Rows), ch.NParties())
				}
				rows[j] = p.Rows[k]
			}
			payload, err := EncodeValue(rows)
			if err != nil {
				return nil, err
			}
			seq[k] = payload
		}
		return seq, nil
	})
	if err != nil {
		return nil, err
	}
	if polys.IsMaster() != ch.AmMaster() {
		return nil, network.ErrRoleMismatch
	}
	raw, err := ch.RecvFromMaster(ctx, seq)
	if err != nil {
		return nil, err
	}
	rows, err := DecodeValue[[][]fr.Element](raw)
	if err != nil {
		return nil, err
	}
	res := make([]crypto.Polynomial, len(rows))
	for j := range rows {
		res[j] = rows[j]
	}
	return res, nil
}

// ShareElements hands the master's elements to every party. Workers pass nil.
func ShareElements(ctx context.Context, ch network.Channel, elems [][]fr.Element) ([][]fr.Element, error) {
	return share(ctx, ch, elems)
}
