package chunkcache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/hupe1980/chunkcache/internal/hash"
)

// Chunk blob layout (little-endian):
//
//	[0:4]   magic "CKC1"
//	[4]     version
//	[5]     compression
//	[6:8]   reserved
//	[8:16]  write sequence
//	[16:24] write time (unix nanoseconds)
//	[24:28] chunk index
//	[28:32] total chunks of the item
//	[32:40] item size in bytes
//	[40:44] plaintext size of this chunk
//	[44:48] CRC32C of the cache buster
//	[48:60] GCM nonce
//	[60:]   ciphertext
const (
	headerSize   = 60
	chunkVersion = 1
	chunkExt     = ".chk"
)

var chunkMagic = [4]byte{'C', 'K', 'C', '1'}

var (
	errShortHeader = errors.New("short chunk header")
	errBadMagic    = errors.New("bad chunk magic")
)

type chunkHeader struct {
	Compression Compression
	Seq         uint64
	Timestamp   int64
	Index       uint32
	Total       uint32
	ItemSize    uint64
	Size        uint32
	BusterTag   uint32
	Nonce       [nonceSize]byte
}

func (h *chunkHeader) marshal() []byte {
	b := make([]byte, headerSize)
	copy(b[0:4], chunkMagic[:])
	b[4] = chunkVersion
	b[5] = byte(h.Compression)
	binary.LittleEndian.PutUint64(b[8:], h.Seq)
	binary.LittleEndian.PutUint64(b[16:], uint64(h.Timestamp))
	binary.LittleEndian.PutUint32(b[24:], h.Index)
	binary.LittleEndian.PutUint32(b[28:], h.Total)
	binary.LittleEndian.PutUint64(b[32:], h.ItemSize)
	binary.LittleEndian.PutUint32(b[40:], h.Size)
	binary.LittleEndian.PutUint32(b[44:], h.BusterTag)
	copy(b[48:60], h.Nonce[:])
	return b
}

func parseHeader(b []byte) (*chunkHeader, error) {
	if len(b) < headerSize {
		return nil, errShortHeader
	}
	if [4]byte(b[0:4]) != chunkMagic {
		return nil, errBadMagic
	}
	if b[4] != chunkVersion {
		return nil, fmt.Errorf("unsupported chunk version %d", b[4])
	}

	h := &chunkHeader{
		Compression: Compression(b[5]),
		Seq:         binary.LittleEndian.Uint64(b[8:]),
		Timestamp:   int64(binary.LittleEndian.Uint64(b[16:])),
		Index:       binary.LittleEndian.Uint32(b[24:]),
		Total:       binary.LittleEndian.Uint32(b[28:]),
		ItemSize:    binary.LittleEndian.Uint64(b[32:]),
		Size:        binary.LittleEndian.Uint32(b[40:]),
		BusterTag:   binary.LittleEndian.Uint32(b[44:]),
	}
	copy(h.Nonce[:], b[48:60])

	if h.Total == 0 || h.Index >= h.Total {
		return nil, fmt.Errorf("chunk index %d out of range %d", h.Index, h.Total)
	}
	return h, nil
}

func (h *chunkHeader) writtenAt() time.Time {
	return time.Unix(0, h.Timestamp)
}

func busterTag(buster string) uint32 {
	return hash.CRC32C([]byte(buster))
}

// chunkName returns "<namespace>/<item>/<index>.chk".
func chunkName(ns, item string, index uint32) string {
	return ns + "/" + item + "/" + strconv.FormatUint(uint64(index), 10) + chunkExt
}

// parseChunkName splits a blob name produced by chunkName.
func parseChunkName(ns, name string) (item string, index uint32, ok bool) {
	rest, found := strings.CutPrefix(name, ns+"/")
	if !found {
		return "", 0, false
	}
	item, file, found := strings.Cut(rest, "/")
	if !found || item == "" || strings.Contains(file, "/") {
		return "", 0, false
	}
	num, found := strings.CutSuffix(file, chunkExt)
	if !found {
		return "", 0, false
	}
	n, err := strconv.ParseUint(num, 10, 32)
	if err != nil {
		return "", 0, false
	}
	return item, uint32(n), true
}
