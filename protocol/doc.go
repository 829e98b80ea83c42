// Package protocol implements KZG commitments to bivariate polynomials and
// the distributed prover that computes them over a network.Channel.
//
// # Polynomials and reference string
//
// A bivariate polynomial is stored as rows in the Lagrange basis of a Y
// domain of size n:
//
//	f(X, Y) = Σ_i f_i(X)·L_i(Y)
//
// The reference string produced by SetupLagrange holds [L_i(β)·α^j]G for
// every row i and X power j, so a commitment is a single MSM over the row
// coefficients. In a distributed run party i holds row i of every polynomial
// together with the matching slice of the reference string (PartySRS).
//
// # Same-y batch opening
//
// OpenLagrangeAtSameY proves f_j(x, y) for every point x of a per-polynomial
// point set and a shared y:
//
//  1. gamma is derived from the transcript label and the statement (the
//     commitments, y, the point sets and the claimed evaluations) and
//     batches the quotients (f_j(X, y) - r_j(X)) / Z_j(X) into q, committed
//     as Q.
//  2. eta is derived from Q; the prover sends f_j(eta, y) and q(eta).
//  3. theta is derived from those evaluations and batches the bivariate
//     openings of every f_j at (eta, y). q is opened at eta with plain KZG.
//
// VerifyAtSameY replays the transcript and checks the quotient identity at
// eta, the KZG opening of q and the batched pairing equation. All three must
// hold.
//
// # Distributed prover
//
// The De* functions run the same computations split by rows. Each party
// computes its share locally, shares are summed at the master with
// SendToMaster, and the master alone derives challenges and hands them back
// with RecvFromMaster. Since every share is linear in the rows, the master
// ends up with the proof the centralized prover would have produced.
// Results exist only on the master and are returned as network.MasterResult.
//
// The DeKZG* functions do the same for univariate KZG over a polynomial
// split additively across parties.
package protocol
