package services

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/flashbots/dekzg/protocol"
)

func TestSRSCache(t *testing.T) {
	cache := &SRSCache{Dir: filepath.Join(t.TempDir(), "srs")}
	td := protocol.TrapdoorFromSeed([]byte("cache"))

	_, err := cache.Load(4, 2, 1)
	require.ErrorIs(t, err, os.ErrNotExist)

	first, err := LoadOrSetup(cache, 4, 2, 1, td)
	require.NoError(t, err)
	require.FileExists(t, filepath.Join(cache.Dir, "setup_4.2.1.paras"))

	cached, err := LoadOrSetup(cache, 4, 2, 1, protocol.TrapdoorFromSeed([]byte("ignored")))
	require.NoError(t, err)
	require.Equal(t, first, cached)

	uncached, err := LoadOrSetup(nil, 4, 2, 1, td)
	require.NoError(t, err)
	require.Equal(t, first, uncached)
}

func TestSRSCacheRejectsMismatchedFile(t *testing.T) {
	cache := &SRSCache{Dir: t.TempDir()}
	srs, err := LoadOrSetup(cache, 4, 2, 0, protocol.TrapdoorFromSeed([]byte("x")))
	require.NoError(t, err)

	// party 0's file placed where party 1's belongs
	require.NoError(t, os.Rename(cache.Path(4, 2, 0), cache.Path(4, 2, 1)))
	_, err = cache.Load(4, 2, 1)
	require.ErrorIs(t, err, protocol.ErrInvalidSRS)
	require.Equal(t, 0, srs.ID)

	require.NoError(t, os.WriteFile(cache.Path(4, 2, 0), []byte("garbage"), 0o644))
	_, err = cache.Load(4, 2, 0)
	require.ErrorIs(t, err, protocol.ErrInvalidSRS)
}
