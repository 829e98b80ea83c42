package network

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"strings"
)

// ErrInvalidHostFile is returned for host lists that cannot describe a group.
var ErrInvalidHostFile = errors.New("network: invalid host file")

// ParseHostFile reads one host:port per line. Lines are trimmed and blank
// lines are skipped; the position of a line among the non-blank ones is the
// party id of that address.
func ParseHostFile(r io.Reader) ([]string, error) {
	var hosts []string
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := validateAddress(line); err != nil {
			return nil, fmt.Errorf("%w: line %d: %v", ErrInvalidHostFile, lineNo, err)
		}
		hosts = append(hosts, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading host file: %w", err)
	}
	if len(hosts) == 0 {
		return nil, fmt.Errorf("%w: no hosts", ErrInvalidHostFile)
	}
	return hosts, nil
}

// LoadHostFile parses the host file at path.
func LoadHostFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening host file: %w", err)
	}
	defer f.Close()
	return ParseHostFile(f)
}

func validateAddress(addr string) error {
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return err
	}
	if host == "" {
		return fmt.Errorf("missing host in %q", addr)
	}
	if _, err := net.LookupPort("tcp", port); err != nil {
		return err
	}
	return nil
}
