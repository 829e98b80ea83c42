package network

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// lengthPrefixSize is the size of the little-endian length written before
// every gathered or scattered payload.
const lengthPrefixSize = 8

// maxFrameSize bounds the allocation made for an incoming frame.
const maxFrameSize = 1 << 36

func writeFrame(conn net.Conn, payload []byte) error {
	var prefix [lengthPrefixSize]byte
	binary.LittleEndian.PutUint64(prefix[:], uint64(len(payload)))
	bufs := net.Buffers{prefix[:], payload}
	_, err := bufs.WriteTo(conn)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var prefix [lengthPrefixSize]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err
	}
	size := binary.LittleEndian.Uint64(prefix[:])
	if size > maxFrameSize {
		return nil, fmt.Errorf("frame of %d bytes exceeds limit", size)
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
