// Package network connects a fixed group of parties and provides the three
// collective operations the distributed prover is built on.
//
// # Topology
//
// Every party reads the same host file, one host:port per line, and the line
// index is the party id. Connect builds a full mesh of TCP connections in a
// deterministic order: for every pair (from, to) with from < to, party from
// dials and party to accepts. Party k+1 only starts dialing after party k has
// released it with a sentinel byte, which rules out a fast party racing an
// accept that a slower party has not reached yet. Dials are retried on
// refused or reset connections for up to 30 seconds.
//
// The first frame on every connection is a hello carrying the two party ids
// and a session tag derived from a shared session secret and the host list.
// An acceptor drops connections whose hello does not match, so a socket left
// over from an earlier crashed run is never mistaken for a peer.
//
// # Collective operations
//
//   - Broadcast: every party ends up with the payloads of all parties. Within
//     each pair the higher id reads first and the lower id writes first, and
//     the exchanges with different peers run in parallel.
//   - SendToMaster: workers send a length-prefixed payload to party 0, which
//     returns all payloads indexed by party id.
//   - RecvFromMaster: party 0 sends one length-prefixed payload to each party.
//
// Only the master holds gathered data. The asymmetry is carried by
// MasterResult, which is empty on workers.
//
// # Failure model
//
// Any I/O failure marks the channel broken and every later call fails with
// ErrChannelBroken: the protocol state is inconsistent across parties at that
// point, so the whole run has to be restarted. Collective calls otherwise
// block until their peers arrive or the context is cancelled.
//
// LocalNetwork implements the same contract over Go channels for tests and
// single-process runs.
package network
