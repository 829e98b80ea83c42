package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/flashbots/dekzg/crypto"
	"github.com/flashbots/dekzg/network"
	"github.com/flashbots/dekzg/protocol"
)

var (
	// ErrProofRejected is returned when the master cannot verify the proof it assembled.
	ErrProofRejected = errors.New("assembled proof does not verify")
	// ErrCrossCheckFailed is returned when the distributed proof differs from
	// the centralized one.
	ErrCrossCheckFailed = errors.New("distributed proof differs from centralized proof")
)

// SessionConfig configures one proving session. Every party must use the
// same sizes and seed.
type SessionConfig struct {
	// Session names the run in archived records.
	Session string
	// XLogSize sets the number of coefficients per row to 1<<XLogSize.
	XLogSize int
	// Polynomials is the number of bivariate polynomials proven together.
	Polynomials int
	// PointsPerPolynomial is the number of X points each polynomial is opened at.
	PointsPerPolynomial int
	// SRSSeed derives the reference string. All parties must agree on it.
	SRSSeed []byte
	// SRSCache is optional.
	SRSCache *SRSCache
	// Store archives the master's proofs. Optional.
	Store ProofStore
	// CrossCheck makes the master recompute the proof with the centralized
	// prover and compare.
	CrossCheck bool
	// Input replaces the master's random polynomials and points. Ignored on workers.
	Input *Input
	Log   *slog.Logger
}

func (c *SessionConfig) applyDefaults() {
	if c.XLogSize == 0 {
		c.XLogSize = 4
	}
	if c.Polynomials == 0 {
		c.Polynomials = 2
	}
	if c.PointsPerPolynomial == 0 {
		c.PointsPerPolynomial = 2
	}
	if c.Session == "" {
		c.Session = "dekzg"
	}
	if c.Log == nil {
		c.Log = slog.Default()
	}
}

// Input is the statement the master proves.
type Input struct {
	Polys   []protocol.BivariatePolynomial
	XPoints [][]fr.Element
	Y       fr.Element
}

// RandomInput samples polynomials with n rows of xSize coefficients and
// distinct opening points.
func RandomInput(n, xSize, count, pointsPer int) (*Input, error) {
	in := &Input{
		Polys:   make([]protocol.BivariatePolynomial, count),
		XPoints: make([][]fr.Element, count),
	}
	for j := range in.Polys {
		var err error
		if in.Polys[j], err = protocol.RandomBivariate(xSize, n); err != nil {
			return nil, err
		}
		pts, err := randomElements(pointsPer)
		if err != nil {
			return nil, err
		}
		in.XPoints[j] = pts
	}
	if _, err := in.Y.SetRandom(); err != nil {
		return nil, err
	}
	return in, nil
}

func randomElements(n int) ([]fr.Element, error) {
	res := make([]fr.Element, n)
	for i := range res {
		if _, err := res[i].SetRandom(); err != nil {
			return nil, err
		}
	}
	return res, nil
}

// SessionResult is what one party learns from a session. Only the master
// holds the statement and the proof.
type SessionResult struct {
	PartyID   int
	Statement *Statement
	Proof     *protocol.SameYProof
	Record    *ProofRecord
	Stats     network.Stats
	Duration  time.Duration
}

// SubProver runs proving sessions for one party over a connected channel.
type SubProver struct {
	ch  network.Channel
	cfg SessionConfig
	log *slog.Logger

	mu     sync.RWMutex
	latest *SessionResult
}

// NewSubProver creates a SubProver. cfg is copied.
func NewSubProver(ch network.Channel, cfg SessionConfig) *SubProver {
	cfg.applyDefaults()
	return &SubProver{
		ch:  ch,
		cfg: cfg,
		log: cfg.Log.With("party", ch.PartyID()),
	}
}

// Latest returns the result of the last completed session, or nil.
func (p *SubProver) Latest() *SessionResult {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.latest
}

// Stats returns the channel traffic counters.
func (p *SubProver) Stats() network.Stats {
	return p.ch.Stats()
}

// LatestProof returns the record of the last session. It only exists on the master.
func (p *SubProver) LatestProof(_ context.Context) (*ProofRecord, error) {
	res := p.Latest()
	if res == nil || res.Record == nil {
		return nil, ErrNoProof
	}
	return res.Record, nil
}

// Run executes one session: the master distributes the rows and points, every
// party commits and opens its share, and the master verifies and archives
// the proof. Every party of the channel must call Run.
func (p *SubProver) Run(ctx context.Context) (*SessionResult, error) {
	start := time.Now()
	n, id := p.ch.NParties(), p.ch.PartyID()
	xSize := 1 << p.cfg.XLogSize

	srs, err := LoadOrSetup(p.cfg.SRSCache, xSize, n, id, protocol.TrapdoorFromSeed(p.cfg.SRSSeed))
	if err != nil {
		return nil, fmt.Errorf("loading reference string: %w", err)
	}
	p.log.Debug("reference string ready", "x_size", xSize, "y_size", n)

	input, err := network.RoleResult(p.ch, func() (*Input, error) {
		if p.cfg.Input != nil {
			return p.cfg.Input, nil
		}
		return RandomInput(n, xSize, p.cfg.Polynomials, p.cfg.PointsPerPolynomial)
	})
	if err != nil {
		return nil, fmt.Errorf("preparing input: %w", err)
	}

	rows, xPoints, y, err := p.distribute(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("distributing input: %w", err)
	}
	p.ch.ResetStats()
	p.log.Info("input distributed", "polynomials", len(rows))

	coms, err := protocol.DeCommit(ctx, p.ch, srs, rows)
	if err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	evals, err := protocol.DeEvaluateAtSameY(ctx, p.ch, rows, xPoints, y)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	var tr *protocol.Transcript
	if p.ch.AmMaster() {
		tr = protocol.NewTranscript(protocol.SameYLabel)
	}
	proofRes, err := protocol.DeOpenLagrangeAtSameY(ctx, p.ch, srs, rows, xPoints, y, coms, evals, tr)
	if err != nil {
		return nil, fmt.Errorf("open: %w", err)
	}

	res := &SessionResult{PartyID: id, Stats: p.ch.Stats()}
	if proof, ok := proofRes.Get(); ok {
		st := &Statement{Points: xPoints, Y: y}
		st.Commitments, _ = coms.Get()
		st.Evals, _ = evals.Get()
		res.Statement, res.Proof = st, proof

		in, _ := input.Get()
		if res.Record, err = p.finish(ctx, srs, in, st, proof); err != nil {
			return nil, err
		}
	}
	res.Duration = time.Since(start)

	p.mu.Lock()
	p.latest = res
	p.mu.Unlock()

	p.log.Info("session complete", "duration", res.Duration, "bytes_sent", res.Stats.BytesSent, "bytes_recv", res.Stats.BytesRecv)
	return res, nil
}

// distribute scatters the rows and shares the opening points.
func (p *SubProver) distribute(ctx context.Context, input network.MasterResult[*Input]) ([]crypto.Polynomial, [][]fr.Element, fr.Element, error) {
	polys, err := network.MapMaster(input, func(in *Input) ([]protocol.BivariatePolynomial, error) {
		return in.Polys, nil
	})
	if err != nil {
		return nil, nil, fr.Element{}, err
	}
	rows, err := protocol.ScatterRows(ctx, p.ch, polys)
	if err != nil {
		return nil, nil, fr.Element{}, err
	}

	// the last entry carries y
	var shared [][]fr.Element
	if in, ok := input.Get(); ok {
		shared = append(append(shared, in.XPoints...), []fr.Element{in.Y})
	}
	shared, err = protocol.ShareElements(ctx, p.ch, shared)
	if err != nil {
		return nil, nil, fr.Element{}, err
	}
	if len(shared) != len(rows)+1 || len(shared[len(rows)]) != 1 {
		return nil, nil, fr.Element{}, fmt.Errorf("%w: %d point sets for %d polynomials", protocol.ErrShapeMismatch, len(shared)-1, len(rows))
	}
	return rows, shared[:len(rows)], shared[len(rows)][0], nil
}

// finish verifies, optionally cross-checks and archives the master's proof.
func (p *SubProver) finish(ctx context.Context, srs *protocol.PartySRS, in *Input, st *Statement, proof *protocol.SameYProof) (*ProofRecord, error) {
	ok, err := protocol.VerifyAtSameY(&srs.Verifier, st.Commitments, st.Points, st.Y, st.Evals, proof, protocol.NewTranscript(protocol.SameYLabel))
	if err != nil {
		return nil, fmt.Errorf("verify: %w", err)
	}
	if !ok {
		return nil, ErrProofRejected
	}
	p.log.Info("proof verified", "commitments", len(st.Commitments))

	if p.cfg.CrossCheck {
		if err := crossCheck(srs, p.cfg.SRSSeed, in, st.Commitments, proof); err != nil {
			return nil, err
		}
		p.log.Info("proof matches centralized prover")
	}

	rec, err := NewProofRecord(p.cfg.Session, srs.YSize, srs.XSize, st, proof, ok)
	if err != nil {
		return nil, err
	}
	if p.cfg.Store != nil {
		if err := p.cfg.Store.SaveProof(ctx, rec); err != nil {
			return nil, fmt.Errorf("archiving proof: %w", err)
		}
	}
	return rec, nil
}

func crossCheck(srs *protocol.PartySRS, seed []byte, in *Input, coms []bls12381.G1Affine, proof *protocol.SameYProof) error {
	full, _, err := protocol.SetupLagrange(srs.XSize, srs.YSize, protocol.TrapdoorFromSeed(seed))
	if err != nil {
		return err
	}
	wantComs, err := protocol.Commit(full, in.Polys)
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(wantComs, coms) {
		return fmt.Errorf("%w: commitments", ErrCrossCheckFailed)
	}
	want, err := protocol.OpenLagrangeAtSameY(full, in.Polys, in.XPoints, in.Y, protocol.NewTranscript(protocol.SameYLabel))
	if err != nil {
		return err
	}
	if !reflect.DeepEqual(want, proof) {
		return fmt.Errorf("%w: opening", ErrCrossCheckFailed)
	}
	return nil
}
