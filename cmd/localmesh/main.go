// Command localmesh runs every party of a proving group inside one process,
// connected over loopback TCP. It is a smoke test of the whole stack.
//
// The host file is taken from --hosts (or hosts_file of --config). With
// --parties instead, free loopback ports are picked.
//
//	go run ./cmd/localmesh --parties=4
//	go run ./cmd/localmesh --hosts=hosts --cross-check
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/flashbots/dekzg/cmd/common"
	"github.com/flashbots/dekzg/network"
	"github.com/flashbots/dekzg/protocol"
	"github.com/flashbots/dekzg/services"
	"github.com/flashbots/dekzg/testutil"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to YAML config file")
		hostsFile  = flag.String("hosts", "", "Host file, one host:port per party")
		parties    = flag.Int("parties", 0, "Number of loopback parties, instead of a host file")
		xLogSize   = flag.Int("x-log-size", 0, "log2 of the coefficients per row")
		crossCheck = flag.Bool("cross-check", true, "Compare with the centralized prover")
	)
	flag.Parse()

	cfg := common.DefaultConfig()
	if *configPath != "" {
		var err error
		if cfg, err = common.LoadConfig(*configPath); err != nil {
			fmt.Printf("Error loading config: %v\n", err)
			os.Exit(1)
		}
	}
	if *xLogSize != 0 {
		cfg.SRS.XLogSize = *xLogSize
	}
	cfg.CrossCheck = *crossCheck

	var (
		hosts []string
		err   error
	)
	switch {
	case *parties > 0:
		hosts, err = testutil.LoopbackHosts(*parties)
	case *hostsFile != "":
		hosts, err = network.LoadHostFile(*hostsFile)
	default:
		hosts, err = network.LoadHostFile(cfg.HostsFile)
	}
	if err != nil {
		fmt.Printf("Error reading hosts: %v\n", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Printf("Configuration error: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx, cfg, hosts); err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *common.Config, hosts []string) error {
	log, err := common.NewLogger(cfg)
	if err != nil {
		return err
	}
	store, err := common.NewProofStore(cfg)
	if err != nil {
		return fmt.Errorf("proof store: %w", err)
	}
	defer store.Close()

	start := time.Now()
	chans, err := testutil.ConnectLoopback(ctx, hosts, cfg.Session)
	if err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	defer testutil.CloseAll(chans)
	fmt.Printf("%d parties connected in %s\n", len(hosts), time.Since(start).Round(time.Millisecond))

	results := make([]*services.SessionResult, len(chans))
	g, gctx := errgroup.WithContext(ctx)
	for i, ch := range chans {
		i, ch := i, ch
		g.Go(func() error {
			res, err := services.NewSubProver(ch, cfg.SessionConfig(store, log)).Run(gctx)
			if err != nil {
				return fmt.Errorf("party %d: %w", i, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	var total network.Stats
	for _, res := range results {
		fmt.Printf("party %d: %s, sent %d bytes, received %d bytes\n",
			res.PartyID, res.Duration.Round(time.Millisecond), res.Stats.BytesSent, res.Stats.BytesRecv)
		total.BytesSent += res.Stats.BytesSent
		total.BytesRecv += res.Stats.BytesRecv
	}
	master := results[network.MasterID]
	fmt.Printf("proof verified=%v over %d polynomials, %d bytes on the wire\n",
		master.Record.Verified, len(master.Statement.Commitments), total.BytesSent)

	rec, err := store.LatestProof(ctx)
	if err != nil {
		return err
	}
	sc := cfg.SessionConfig(store, log)
	srs, err := services.LoadOrSetup(sc.SRSCache, 1<<cfg.SRS.XLogSize, len(hosts), network.MasterID, protocol.TrapdoorFromSeed(sc.SRSSeed))
	if err != nil {
		return err
	}
	ok, err := services.VerifyRecord(&srs.Verifier, rec)
	if err != nil {
		return fmt.Errorf("re-verifying archived proof: %w", err)
	}
	fmt.Printf("archived proof re-verified: %v\n", ok)
	return nil
}
