// Command deprover runs one party of a distributed proving group.
//
// Every party reads the same host file, connects to the full mesh, and runs
// one proving session. Party 0 is the master: it samples the polynomials,
// assembles and verifies the proof, and archives it. The status server keeps
// running until the process is interrupted.
//
// # Configuration File
//
//	party_id: 1
//	hosts_file: "hosts"        # one host:port per line, line i is party i
//	session: "run-42"          # every party of a run must agree
//	http_addr: ":8090"         # empty disables the status server
//	polynomials: 2
//	points_per_polynomial: 2
//	connect_timeout: 30s
//	cross_check: false
//	srs:
//	  seed: "dekzg"
//	  cache_dir: "./srs"
//	  x_log_size: 4
//	store:
//	  postgres:                # optional, master only
//	    host: localhost
//	    port: 5432
//	    user: dekzg
//	    password: secret
//	    database: dekzg
//	cors:
//	  allowed_origins: ["http://localhost:3000"]
//	log:
//	  level: info
//	  json: false
//
// # Usage
//
//	go run ./cmd/deprover --config=party.yaml
//	go run ./cmd/deprover --hosts=hosts --id=1 --session=run-42
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/flashbots/dekzg/api/httpserver"
	"github.com/flashbots/dekzg/cmd/common"
	"github.com/flashbots/dekzg/network"
	"github.com/flashbots/dekzg/services"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		hostsFile  = flag.String("hosts", "", "Host file, one host:port per party")
		partyID    = flag.Int("id", 0, "Id of this party (line of the host file)")
		session    = flag.String("session", "", "Session secret shared by the parties of a run")
		httpAddr   = flag.String("http", "", "Status server listen address")
		seed       = flag.String("seed", "", "Reference string seed")
		cacheDir   = flag.String("srs-cache", "", "Reference string cache directory")
		xLogSize   = flag.Int("x-log-size", 0, "log2 of the coefficients per row")
		crossCheck = flag.Bool("cross-check", false, "Master only: compare with the centralized prover")
		exit       = flag.Bool("exit", false, "Exit after the session instead of serving status")
	)
	flag.Parse()

	isFlagSet := func(name string) bool {
		found := false
		flag.Visit(func(f *flag.Flag) {
			if f.Name == name {
				found = true
			}
		})
		return found
	}

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = common.LoadConfig(*configPath); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}

	if *hostsFile != "" {
		cfg.HostsFile = *hostsFile
	}
	if isFlagSet("id") {
		cfg.PartyID = *partyID
	}
	if *session != "" {
		cfg.Session = *session
	}
	if *httpAddr != "" {
		cfg.HTTPAddr = *httpAddr
	}
	if *seed != "" {
		cfg.SRS.Seed = *seed
	}
	if *cacheDir != "" {
		cfg.SRS.CacheDir = *cacheDir
	}
	if *xLogSize != 0 {
		cfg.SRS.XLogSize = *xLogSize
	}
	if *crossCheck {
		cfg.CrossCheck = true
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, *exit); err != nil {
		if ctx.Err() != nil {
			return
		}
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, exitAfter bool) error {
	log, err := common.NewLogger(cfg)
	if err != nil {
		return err
	}

	var store services.ProofStore
	if cfg.PartyID == network.MasterID {
		if store, err = common.NewProofStore(cfg); err != nil {
			return fmt.Errorf("proof store: %w", err)
		}
		defer store.Close()
	}

	fmt.Printf("party %d connecting (hosts=%s, session=%s)\n", cfg.PartyID, cfg.HostsFile, cfg.Session)
	ch, err := network.InitFromFile(ctx, cfg.HostsFile, cfg.PartyID, func(tc *network.TCPConfig) {
		tc.Session = cfg.Session
		tc.ConnectTimeout = cfg.ConnectTimeout
		tc.Log = log
	})
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer ch.Close()

	prover := services.NewSubProver(ch, cfg.SessionConfig(store, log))

	var srv *httpserver.BaseServer
	if cfg.HTTPAddr != "" {
		srv, err = httpserver.New(&httpserver.HTTPServerConfig{
			ListenAddr:               cfg.HTTPAddr,
			AllowedOrigins:           cfg.CORS.AllowedOrigins,
			Log:                      log,
			DrainDuration:            time.Second,
			GracefulShutdownDuration: 10 * time.Second,
			ReadTimeout:              15 * time.Second,
			WriteTimeout:             15 * time.Second,
		}, httpserver.NewStatusHandler(prover, proofSource(store)))
		if err != nil {
			return fmt.Errorf("status server: %w", err)
		}
		srv.RunInBackground()
		defer srv.Shutdown()
	}

	res, err := prover.Run(ctx)
	if err != nil {
		return fmt.Errorf("session: %w", err)
	}
	report(res)

	if exitAfter || srv == nil {
		return nil
	}
	<-ctx.Done()
	fmt.Printf("Shutting down party %d...\n", cfg.PartyID)
	return nil
}

// proofSource avoids wrapping a nil store in a non-nil interface.
func proofSource(store services.ProofStore) httpserver.ProofSource {
	if store == nil {
		return nil
	}
	return store
}

func report(res *services.SessionResult) {
	fmt.Printf("party %d done in %s: sent %d bytes, received %d bytes\n",
		res.PartyID, res.Duration.Round(time.Millisecond), res.Stats.BytesSent, res.Stats.BytesRecv)
	if res.Record != nil {
		fmt.Printf("proof verified=%v, %d commitments, %d proof bytes\n",
			res.Record.Verified, len(res.Statement.Commitments), len(res.Record.Proof))
	}
}
