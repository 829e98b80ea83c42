// Package cmd holds the binaries of the distributed prover.
//
// # Commands
//
// deprover: runs one party. Start one process per line of the host file,
// each with its own party id. The number of parties must be a power of two.
//
//	go run ./cmd/deprover --hosts=hosts --id=0 --session=run-42 --http=:8090
//	go run ./cmd/deprover --hosts=hosts --id=1 --session=run-42
//	go run ./cmd/deprover --config=party.yaml
//
// localmesh: runs a whole group inside one process over loopback TCP and
// re-verifies the archived proof.
//
//	go run ./cmd/localmesh --parties=4
//
// # Configuration
//
// Both commands read the YAML format of package common through --config.
// Command-line flags override config file values:
//
//	party_id: 0
//	hosts_file: "hosts"
//	session: "run-42"
//	http_addr: ":8090"
//	srs:
//	  seed: "dekzg"
//	  cache_dir: "./srs"
//	  x_log_size: 4
//	log:
//	  level: info
//
// The status server of each party answers /livez, /readyz, /stats and, on
// the master, /proofs/latest.
package cmd
