package network

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/sha3"
)

// ErrSessionMismatch is returned when a peer answers the handshake with a
// different session, host list or party assignment.
var ErrSessionMismatch = errors.New("network: peer belongs to a different session")

const (
	helloVersion = 1
	helloSize    = 4 + 2 + 4 + 4 + SessionTagSize

	// SessionTagSize is the length of the tag exchanged in every handshake.
	SessionTagSize = 32
)

var helloMagic = [4]byte{'D', 'K', 'Z', 'G'}

// SessionTag identifies one run of one group. Two processes only connect when
// they were started with the same session secret and the same host list.
type SessionTag [SessionTagSize]byte

// DeriveSessionTag binds the session secret to the ordered host list.
func DeriveSessionTag(session string, hosts []string) (SessionTag, error) {
	var tag SessionTag
	salt := sha3.Sum256([]byte(strings.Join(hosts, "\n")))
	kdf := hkdf.New(sha3.New256, []byte(session), salt[:], []byte("dekzg mesh session"))
	if _, err := io.ReadFull(kdf, tag[:]); err != nil {
		return tag, fmt.Errorf("deriving session tag: %w", err)
	}
	return tag, nil
}

// hello is the first frame on every connection, sent by the dialer and
// echoed back by the acceptor with from and to swapped.
type hello struct {
	From uint32
	To   uint32
	Tag  SessionTag
}

func (h hello) marshal() []byte {
	buf := make([]byte, helloSize)
	copy(buf[0:4], helloMagic[:])
	binary.LittleEndian.PutUint16(buf[4:6], helloVersion)
	binary.LittleEndian.PutUint32(buf[6:10], h.From)
	binary.LittleEndian.PutUint32(buf[10:14], h.To)
	copy(buf[14:], h.Tag[:])
	return buf
}

func readHello(r io.Reader) (hello, error) {
	var h hello
	buf := make([]byte, helloSize)
	if _, err := io.ReadFull(r, buf); err != nil {
		return h, err
	}
	if [4]byte(buf[0:4]) != helloMagic {
		return h, fmt.Errorf("%w: bad magic", ErrSessionMismatch)
	}
	if v := binary.LittleEndian.Uint16(buf[4:6]); v != helloVersion {
		return h, fmt.Errorf("%w: version %d", ErrSessionMismatch, v)
	}
	h.From = binary.LittleEndian.Uint32(buf[6:10])
	h.To = binary.LittleEndian.Uint32(buf[10:14])
	copy(h.Tag[:], buf[14:])
	return h, nil
}

// check validates a received hello against the expected endpoints.
func (h hello) check(tag SessionTag, from, to int) error {
	if h.Tag != tag {
		return fmt.Errorf("%w: tag differs", ErrSessionMismatch)
	}
	if int(h.From) != from || int(h.To) != to {
		return fmt.Errorf("%w: got %d->%d, want %d->%d", ErrSessionMismatch, h.From, h.To, from, to)
	}
	return nil
}
