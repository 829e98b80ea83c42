package network

import (
	"context"
	"errors"
)

// MasterID is the party that aggregates partial results and drives the transcript.
const MasterID = 0

var (
	// ErrRoleMismatch is returned when a party passes the MasterResult variant
	// that does not match its role, or the master passes a sequence whose
	// length is not the number of parties.
	ErrRoleMismatch = errors.New("network: master result variant does not match party role")

	// ErrChannelClosed is returned by collective calls after Close.
	ErrChannelClosed = errors.New("network: channel closed")

	// ErrChannelBroken is returned by every collective call after a previous
	// call failed. Round state is inconsistent across parties at that point
	// so the whole run has to be abandoned.
	ErrChannelBroken = errors.New("network: channel broken by an earlier failure")

	// ErrLengthMismatch is returned when broadcast payloads differ in length.
	ErrLengthMismatch = errors.New("network: broadcast payload length mismatch")
)

// Channel is the collective communication layer shared by a fixed group of
// parties. All operations block until the corresponding operation completes
// on the parties involved. A Channel is meant to be driven by one logical
// caller per party; concurrent calls are serialized, not coordinated.
type Channel interface {
	// PartyID returns the 0-based id of the local party.
	PartyID() int

	// NParties returns the size of the group.
	NParties() int

	// AmMaster reports whether the local party is the master.
	AmMaster() bool

	// IsInit reports whether every peer connection is established and the
	// channel has not been closed.
	IsInit() bool

	// Broadcast sends payload to every party and returns all n payloads
	// indexed by party id. Every party must pass a payload of the same length.
	Broadcast(ctx context.Context, payload []byte) ([][]byte, error)

	// SendToMaster gathers one payload per party at the master. The master
	// receives all n payloads indexed by party id, workers receive Worker.
	SendToMaster(ctx context.Context, payload []byte) (MasterResult[[][]byte], error)

	// RecvFromMaster scatters one payload per party from the master. The
	// master passes Master(seq) with len(seq) == n and gets seq[MasterID]
	// back; workers pass Worker and receive their entry.
	RecvFromMaster(ctx context.Context, payloads MasterResult[[][]byte]) ([]byte, error)

	// Stats returns a snapshot of the traffic counters.
	Stats() Stats

	// ResetStats zeroes the traffic counters.
	ResetStats()

	// Close tears down every peer connection.
	Close() error
}

// MasterResult carries a value that only exists on the master. Workers hold
// the empty variant and must not expect a value.
type MasterResult[T any] struct {
	value    T
	isMaster bool
}

// Master wraps a value produced on the master.
func Master[T any](v T) MasterResult[T] {
	return MasterResult[T]{value: v, isMaster: true}
}

// Worker returns the variant held by non-master parties.
func Worker[T any]() MasterResult[T] {
	return MasterResult[T]{}
}

// IsMaster reports whether the result carries a value.
func (r MasterResult[T]) IsMaster() bool {
	return r.isMaster
}

// Get returns the value and true on the master, the zero value and false on workers.
func (r MasterResult[T]) Get() (T, bool) {
	return r.value, r.isMaster
}

// MapMaster applies fn to the master's value. Workers pass through without
// calling fn.
func MapMaster[T, U any](r MasterResult[T], fn func(T) (U, error)) (MasterResult[U], error) {
	v, ok := r.Get()
	if !ok {
		return Worker[U](), nil
	}
	u, err := fn(v)
	if err != nil {
		return Worker[U](), err
	}
	return Master(u), nil
}

// RoleResult returns the variant a party with the given role is expected to
// pass to RecvFromMaster, building the master's payloads lazily.
func RoleResult[T any](ch Channel, build func() (T, error)) (MasterResult[T], error) {
	if !ch.AmMaster() {
		return Worker[T](), nil
	}
	v, err := build()
	if err != nil {
		return Worker[T](), err
	}
	return Master(v), nil
}

// ShareFromMaster sends the same payload to every party. Workers pass nil.
func ShareFromMaster(ctx context.Context, ch Channel, payload []byte) ([]byte, error) {
	seq, err := RoleResult(ch, func() ([][]byte, error) {
		seq := make([][]byte, ch.NParties())
		for i := range seq {
			seq[i] = payload
		}
		return seq, nil
	})
	if err != nil {
		return nil, err
	}
	return ch.RecvFromMaster(ctx, seq)
}

func checkScatter(ch Channel, payloads MasterResult[[][]byte]) ([][]byte, error) {
	seq, ok := payloads.Get()
	if ok != ch.AmMaster() {
		return nil, ErrRoleMismatch
	}
	if ok && len(seq) != ch.NParties() {
		return nil, ErrRoleMismatch
	}
	return seq, nil
}
