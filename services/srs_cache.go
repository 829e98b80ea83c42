package services

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/flashbots/dekzg/protocol"
)

// SRSCache stores every party's slice of the reference string on disk, so
// later sessions with the same sizes skip the setup.
type SRSCache struct {
	Dir string
}

// Path returns the cache file of party id for the given sizes.
func (c *SRSCache) Path(xSize, ySize, id int) string {
	return filepath.Join(c.Dir, fmt.Sprintf("setup_%d.%d.%d.paras", xSize, ySize, id))
}

// Load reads a cached party SRS. A missing file yields an fs.ErrNotExist error.
func (c *SRSCache) Load(xSize, ySize, id int) (*protocol.PartySRS, error) {
	f, err := os.Open(c.Path(xSize, ySize, id))
	if err != nil {
		return nil, err
	}
	defer f.Close()

	srs := &protocol.PartySRS{}
	if _, err := srs.ReadFrom(bufio.NewReader(f)); err != nil {
		return nil, fmt.Errorf("reading %s: %w", f.Name(), err)
	}
	if srs.XSize != xSize || srs.YSize != ySize || srs.ID != id {
		return nil, fmt.Errorf("%w: %s holds %dx%d for party %d", protocol.ErrInvalidSRS, f.Name(), srs.XSize, srs.YSize, srs.ID)
	}
	return srs, nil
}

// Save writes srs atomically.
func (c *SRSCache) Save(srs *protocol.PartySRS) error {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(c.Dir, "setup-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := bufio.NewWriter(tmp)
	if _, err := srs.WriteTo(w); err != nil {
		tmp.Close()
		return err
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), c.Path(srs.XSize, srs.YSize, srs.ID))
}

// LoadOrSetup returns party id's slice of the reference string generated from
// td, reading it from the cache when present. A nil cache always runs the
// setup.
func LoadOrSetup(cache *SRSCache, xSize, ySize, id int, td protocol.Trapdoor) (*protocol.PartySRS, error) {
	if cache != nil {
		srs, err := cache.Load(xSize, ySize, id)
		if err == nil {
			return srs, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	full, vk, err := protocol.SetupLagrange(xSize, ySize, td)
	if err != nil {
		return nil, err
	}
	srs, err := full.ForParty(id, vk)
	if err != nil {
		return nil, err
	}
	if cache != nil {
		if err := cache.Save(srs); err != nil {
			return nil, fmt.Errorf("caching reference string: %w", err)
		}
	}
	return srs, nil
}
