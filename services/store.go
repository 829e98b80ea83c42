package services

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	bls12381 "github.com/consensys/gnark-crypto/ecc/bls12-381"
	"github.com/consensys/gnark-crypto/ecc/bls12-381/fr"

	"github.com/flashbots/dekzg/protocol"
)

// ErrNoProof is returned by stores that have not archived any proof yet.
var ErrNoProof = errors.New("no proof archived")

// ProofStore archives the proofs produced by the master.
type ProofStore interface {
	SaveProof(ctx context.Context, rec *ProofRecord) error
	LatestProof(ctx context.Context) (*ProofRecord, error)
	Close() error
}

// ProofRecord is the serialized statement and proof of one session. Points
// use the uncompressed encoding of the protocol codec.
type ProofRecord struct {
	Session     string    `json:"session"`
	Parties     int       `json:"parties"`
	XSize       int       `json:"x_size"`
	Commitments []byte    `json:"commitments"`
	Points      []byte    `json:"points"`
	Y           []byte    `json:"y"`
	Evals       []byte    `json:"evals"`
	Proof       []byte    `json:"proof"`
	Verified    bool      `json:"verified"`
	CreatedAt   time.Time `json:"created_at"`
}

// Statement is what a proof is about.
type Statement struct {
	Commitments []bls12381.G1Affine
	Points      [][]fr.Element
	Y           fr.Element
	Evals       [][]fr.Element
}

// NewProofRecord serializes a statement and its proof.
func NewProofRecord(session string, parties, xSize int, st *Statement, proof *protocol.SameYProof, verified bool) (*ProofRecord, error) {
	coms, err := protocol.EncodeValue(st.Commitments)
	if err != nil {
		return nil, fmt.Errorf("encoding commitments: %w", err)
	}
	points, err := protocol.EncodeValue(st.Points)
	if err != nil {
		return nil, fmt.Errorf("encoding points: %w", err)
	}
	evals, err := protocol.EncodeValue(st.Evals)
	if err != nil {
		return nil, fmt.Errorf("encoding evaluations: %w", err)
	}
	var buf bytes.Buffer
	if _, err := proof.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encoding proof: %w", err)
	}
	y := st.Y.Bytes()
	return &ProofRecord{
		Session:     session,
		Parties:     parties,
		XSize:       xSize,
		Commitments: coms,
		Points:      points,
		Y:           y[:],
		Evals:       evals,
		Proof:       buf.Bytes(),
		Verified:    verified,
		CreatedAt:   time.Now().UTC().Truncate(time.Microsecond),
	}, nil
}

// Decode parses the statement and proof back.
func (r *ProofRecord) Decode() (*Statement, *protocol.SameYProof, error) {
	var (
		st  Statement
		err error
	)
	if st.Commitments, err = protocol.DecodeValue[[]bls12381.G1Affine](r.Commitments); err != nil {
		return nil, nil, fmt.Errorf("commitments: %w", err)
	}
	if st.Points, err = protocol.DecodeValue[[][]fr.Element](r.Points); err != nil {
		return nil, nil, fmt.Errorf("points: %w", err)
	}
	if st.Evals, err = protocol.DecodeValue[[][]fr.Element](r.Evals); err != nil {
		return nil, nil, fmt.Errorf("evaluations: %w", err)
	}
	if err := st.Y.SetBytesCanonical(r.Y); err != nil {
		return nil, nil, fmt.Errorf("y: %w", err)
	}
	proof := &protocol.SameYProof{}
	rd := bytes.NewReader(r.Proof)
	if _, err := proof.ReadFrom(rd); err != nil {
		return nil, nil, fmt.Errorf("proof: %w", err)
	}
	if rd.Len() != 0 {
		return nil, nil, fmt.Errorf("proof: %w: %d trailing bytes", protocol.ErrMalformedPayload, rd.Len())
	}
	return &st, proof, nil
}

// VerifyRecord checks an archived proof from scratch.
func VerifyRecord(vk *protocol.VerifierSRS, r *ProofRecord) (bool, error) {
	st, proof, err := r.Decode()
	if err != nil {
		return false, err
	}
	return protocol.VerifyAtSameY(vk, st.Commitments, st.Points, st.Y, st.Evals, proof, protocol.NewTranscript(protocol.SameYLabel))
}

// MemoryStore keeps proofs in memory.
type MemoryStore struct {
	mu      sync.RWMutex
	records []*ProofRecord
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// SaveProof appends rec.
func (s *MemoryStore) SaveProof(_ context.Context, rec *ProofRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// LatestProof returns the most recently saved record.
func (s *MemoryStore) LatestProof(_ context.Context) (*ProofRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.records) == 0 {
		return nil, ErrNoProof
	}
	return s.records[len(s.records)-1], nil
}

// Len returns the number of records.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func (s *MemoryStore) Close() error { return nil }
