// Package metainfo loads and validates .torrent files, producing an
// immutable torrent descriptor keyed by its BitTorrent info_hash.
package metainfo

import (
	"crypto/sha1"
	"fmt"
	"os"

	"gorent/internal/bencode"
)

// Info is the subset of the torrent's info dictionary this client
// understands: a single-file torrent with a flat piece-hash list.
type Info struct {
	Name        []byte
	PieceLength int64
	Length      int64
	Pieces      []byte
}

// File is the immutable, fully-validated torrent descriptor produced by
// Load. Its info_hash is stable across independent Load calls on the same
// file, since it is the SHA-1 of the re-encoded info dictionary, whose
// entries keep the order the decoder read them in.
type File struct {
	Announce []byte
	Info     Info
	InfoHash [20]byte
}

// --------------------------------------------------------------------------------------------- //

/*
Load reads path, decodes it as a bencoded dictionary, and validates the
fields this client requires. On success it re-encodes the info
subdictionary with the bencode package and hashes it with SHA-1 to obtain
info_hash — the same re-encode+hash pair the tracker and peer handshake
rely on.
*/
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("metainfo: reading %q: %w", path, err)
	}

	root, n := bencode.Decode(data)
	if n == 0 || root.Kind != bencode.Dict {
		return nil, fmt.Errorf("metainfo: %q is not a bencoded dictionary", path)
	}

	announce, ok := bencode.Lookup(root, "announce")
	if !ok || announce.Kind != bencode.String {
		return nil, fmt.Errorf("metainfo: %q missing string \"announce\"", path)
	}

	infoValue, ok := bencode.Lookup(root, "info")
	if !ok || infoValue.Kind != bencode.Dict {
		return nil, fmt.Errorf("metainfo: %q missing dictionary \"info\"", path)
	}

	info, err := parseInfo(infoValue)
	if err != nil {
		return nil, fmt.Errorf("metainfo: %q: %w", path, err)
	}

	infoBytes := bencode.Marshal(infoValue)

	f := &File{
		Announce: append([]byte(nil), announce.Str...),
		Info:     info,
		InfoHash: sha1.Sum(infoBytes),
	}

	return f, nil
}

// --------------------------------------------------------------------------------------------- //

func parseInfo(infoValue bencode.Value) (Info, error) {
	name, ok := bencode.Lookup(infoValue, "name")
	if !ok || name.Kind != bencode.String {
		return Info{}, fmt.Errorf("\"info.name\" missing or not a string")
	}

	pieceLength, ok := bencode.Lookup(infoValue, "piece length")
	if !ok || pieceLength.Kind != bencode.Integer || pieceLength.Int <= 0 {
		return Info{}, fmt.Errorf("\"info.piece length\" missing or not a positive integer")
	}

	length, ok := bencode.Lookup(infoValue, "length")
	if !ok || length.Kind != bencode.Integer || length.Int <= 0 {
		return Info{}, fmt.Errorf("\"info.length\" missing or not a positive integer")
	}

	pieces, ok := bencode.Lookup(infoValue, "pieces")
	if !ok || pieces.Kind != bencode.String || len(pieces.Str)%20 != 0 {
		return Info{}, fmt.Errorf("\"info.pieces\" missing, not a string, or not a multiple of 20 bytes")
	}

	return Info{
		Name:        append([]byte(nil), name.Str...),
		PieceLength: pieceLength.Int,
		Length:      length.Int,
		Pieces:      append([]byte(nil), pieces.Str...),
	}, nil
}

// --------------------------------------------------------------------------------------------- //

// PieceCount returns ceil(length / piece_length).
func (f *File) PieceCount() int {
	return int((f.Info.Length + f.Info.PieceLength - 1) / f.Info.PieceLength)
}

// PieceHash returns the 20-byte SHA-1 hash recorded for piece i.
func (f *File) PieceHash(i int) [20]byte {
	var h [20]byte
	copy(h[:], f.Info.Pieces[i*20:i*20+20])

	return h
}

// PieceSize returns the size in bytes of piece i — PieceLength for every
// piece but the last, which may be shorter.
func (f *File) PieceSize(i int) int64 {
	start := int64(i) * f.Info.PieceLength
	if start+f.Info.PieceLength > f.Info.Length {
		return f.Info.Length - start
	}

	return f.Info.PieceLength
}
