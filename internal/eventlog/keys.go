package eventlog

import (
	"encoding/binary"
)

// Keyspace helpers for Pebble keys.
//
// Layout (byte-wise, lexicographically sortable):
// - ev/{stream}/m                  last assigned sequence
// - ev/{stream}/e/{seq_be8}        entries
// - ev/{stream}/c/{group}          durable group cursors

var (
	streamPrefix = []byte("ev/")
	metaSuffix   = []byte("/m")
	entrySeg     = []byte("/e/")
	cursorSeg    = []byte("/c/")
)

func appendBE8(dst []byte, v uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], v)
	return append(dst, b[:]...)
}

func streamKey(stream string, extra int) []byte {
	k := make([]byte, 0, len(streamPrefix)+len(stream)+extra)
	k = append(k, streamPrefix...)
	return append(k, stream...)
}

// KeyMeta builds the stream metadata key.
func KeyMeta(stream string) []byte {
	return append(streamKey(stream, len(metaSuffix)), metaSuffix...)
}

// KeyEntryPrefix is the common prefix of every entry key of stream.
func KeyEntryPrefix(stream string) []byte {
	return append(streamKey(stream, len(entrySeg)+8), entrySeg...)
}

// KeyEntry builds the entry key with a big-endian sequence for proper ordering.
func KeyEntry(stream string, seq uint64) []byte {
	return appendBE8(KeyEntryPrefix(stream), seq)
}

// KeyCursor builds the durable cursor key for a subscriber group.
func KeyCursor(stream, group string) []byte {
	k := append(streamKey(stream, len(cursorSeg)+len(group)), cursorSeg...)
	return append(k, group...)
}

// KeyCursorPrefix covers every group cursor of stream.
func KeyCursorPrefix(stream string) []byte {
	return append(streamKey(stream, len(cursorSeg)), cursorSeg...)
}

func seqFromEntryKey(key []byte) uint64 {
	return binary.BigEndian.Uint64(key[len(key)-8:])
}
