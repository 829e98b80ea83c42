/*
Package services runs complete proving sessions on top of the protocol package.

# Sessions

A SubProver drives one party. Every party of the group calls Run with the same
SessionConfig sizes and seed:

 1. The reference string slice of the party is loaded from the SRSCache, or
    generated from the seed and cached.
 2. The master samples (or takes from SessionConfig.Input) the polynomials,
    the X points and y, scatters row k of every polynomial to party k and
    shares the points.
 3. Traffic counters are reset, then DeCommit, DeEvaluateAtSameY and
    DeOpenLagrangeAtSameY run on every party.
 4. The master verifies the assembled proof, optionally recomputes it with
    the centralized prover (SessionConfig.CrossCheck), and archives it in the
    ProofStore.

Workers only keep their traffic counters.

# Storage

  - SRSCache keeps one file per party, named setup_{x}.{y}.{id}.paras.
  - MemoryStore and PostgresStore implement ProofStore. Records hold the
    serialized statement and proof, and VerifyRecord checks them again.
*/
package services
