// Package httpserver serves the operational HTTP surface of a proving party.
//
// BaseServer carries the endpoints every party exposes:
//
//   - /livez and /readyz for health checks
//   - /drain and /undrain to take the party out of rotation
//   - /debug/pprof when EnablePprof is set
//
// Extra routes come from RouteRegistrar values. StatusHandler is the one the
// prover binaries register:
//
//   - GET /stats returns the channel traffic counters of the party
//   - GET /proofs/latest returns the latest archived ProofRecord, or 404
//
// CORS headers are added for HTTPServerConfig.AllowedOrigins.
package httpserver
