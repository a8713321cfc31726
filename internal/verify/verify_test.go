package verify

import (
	"crypto/sha1"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorent/internal/metainfo"
)

func chdirTemp(t *testing.T) {
	t.Helper()

	dir := t.TempDir()
	old, err := os.Getwd()
	require.NoError(t, err)

	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(old) })
}

func torrentWithPieces(pieceLength int64, pieces ...[]byte) *metainfo.File {
	var length int64
	var hashes []byte

	for _, p := range pieces {
		length += int64(len(p))
		h := sha1.Sum(p)
		hashes = append(hashes, h[:]...)
	}

	return &metainfo.File{
		Info: metainfo.Info{
			Name:        []byte("data.bin"),
			PieceLength: pieceLength,
			Length:      length,
			Pieces:      hashes,
		},
	}
}

func TestFileCreatesMissingFileEmpty(t *testing.T) {
	chdirTemp(t)

	torrent := torrentWithPieces(4, []byte("abcd"), []byte("efgh"))

	res, err := File(torrent)
	require.NoError(t, err)
	assert.Equal(t, int64(0), res.Downloaded)
	assert.Equal(t, int64(8), res.Left)

	_, err = os.Stat("data.bin")
	assert.NoError(t, err)
}

func TestFileCountsValidPiecesOnly(t *testing.T) {
	chdirTemp(t)

	p0 := []byte("abcd")
	p1 := []byte("efgh")
	torrent := torrentWithPieces(4, p0, p1)

	// Piece 0 correct, piece 1 corrupted on disk.
	require.NoError(t, os.WriteFile("data.bin", []byte("abcdXXXX"), 0o644))

	res, err := File(torrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Downloaded)
	assert.Equal(t, int64(4), res.Left)
}

func TestFileSkipsTornTail(t *testing.T) {
	chdirTemp(t)

	p0 := []byte("abcd")
	p1 := []byte("efgh")
	torrent := torrentWithPieces(4, p0, p1)

	// Only the first piece is fully present; the second is torn.
	require.NoError(t, os.WriteFile("data.bin", []byte("abcdef"), 0o644))

	res, err := File(torrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Downloaded)
	assert.Equal(t, int64(4), res.Left)
}

func TestFileClampsToLengthWhenFileIsLonger(t *testing.T) {
	chdirTemp(t)

	p0 := []byte("abcd")
	torrent := torrentWithPieces(4, p0)

	// File on disk is longer than info.length; bytes past length are ignored.
	require.NoError(t, os.WriteFile("data.bin", []byte("abcdEXTRA"), 0o644))

	res, err := File(torrent)
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.Downloaded)
	assert.Equal(t, int64(0), res.Left)
	assert.LessOrEqual(t, res.Downloaded, torrent.Info.Length)
}
