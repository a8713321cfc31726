// Package verify validates a torrent's on-disk file against its piece
// hashes at startup, so the client knows how much is already downloaded
// before it ever talks to a tracker or a peer.
package verify

import (
	"crypto/sha1"
	"fmt"
	"os"

	"gorent/internal/metainfo"
)

// Result is the outcome of verifying a torrent's local file.
type Result struct {
	Downloaded int64
	Left       int64
}

// --------------------------------------------------------------------------------------------- //

/*
File opens the file named by torrent's info.name, relative to the current
working directory.

If it does not exist, File creates it empty and reports everything left
to download. If it exists, File hashes every piece that is fully present
on disk — skipping any piece beyond the last complete one, to avoid
hashing a torn tail — and sums the sizes of the pieces whose hash matches.
A mismatching piece counts as zero toward downloaded; it is neither an
error nor a warning. Anything on disk beyond info.length is ignored, so
downloaded never exceeds length.
*/
func File(torrent *metainfo.File) (Result, error) {
	name := string(torrent.Info.Name)

	f, err := os.OpenFile(name, os.O_RDWR, 0o644)
	if os.IsNotExist(err) {
		return createEmpty(torrent)
	}
	if err != nil {
		return Result{}, fmt.Errorf("verify: opening %q: %w", name, err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return Result{}, fmt.Errorf("verify: stat %q: %w", name, err)
	}

	size := stat.Size()

	var valid int64

	for i := 0; i < torrent.PieceCount(); i++ {
		offset := int64(i) * torrent.Info.PieceLength
		pieceSize := torrent.PieceSize(i)

		fullyPresent := offset+pieceSize <= size
		if !fullyPresent {
			break
		}

		buf := make([]byte, pieceSize)
		if _, err := f.ReadAt(buf, offset); err != nil {
			return Result{}, fmt.Errorf("verify: reading piece %d of %q: %w", i, name, err)
		}

		if sha1.Sum(buf) == torrent.PieceHash(i) {
			valid += pieceSize
		}
	}

	downloaded := valid
	if downloaded > torrent.Info.Length {
		downloaded = torrent.Info.Length
	}

	return Result{Downloaded: downloaded, Left: torrent.Info.Length - downloaded}, nil
}

// --------------------------------------------------------------------------------------------- //

func createEmpty(torrent *metainfo.File) (Result, error) {
	name := string(torrent.Info.Name)

	f, err := os.Create(name)
	if err != nil {
		return Result{}, fmt.Errorf("verify: creating %q: %w", name, err)
	}
	defer f.Close()

	return Result{Downloaded: 0, Left: torrent.Info.Length}, nil
}
