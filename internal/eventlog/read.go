package eventlog

import (
	"encoding/binary"

	"github.com/cockroachdb/pebble"

	pebblestore "github.com/rzbill/ldes/internal/storage/pebble"
)

// Token encodes a position in the stream as a big-endian sequence.
type Token [8]byte

// TokenFromSeq builds the token addressing seq.
func TokenFromSeq(seq uint64) Token {
	var t Token
	binary.BigEndian.PutUint64(t[:], seq)
	return t
}

func (t Token) Seq() uint64 { return binary.BigEndian.Uint64(t[:]) }

// After returns the token of the entry following t.
func (t Token) After() Token { return TokenFromSeq(t.Seq() + 1) }

type ReadOptions struct {
	Start   Token // zero begins at the first (or, reversed, the last) entry
	Limit   int
	Reverse bool
}

type Item struct {
	Seq     uint64
	Header  []byte
	Payload []byte
}

// Read returns up to Limit items starting at Start (inclusive) and the token
// of the next unread entry (zero when the scan reached the end). Entries that
// fail their checksum are skipped.
func (l *Log) Read(opts ReadOptions) ([]Item, Token, error) {
	prefix := KeyEntryPrefix(l.stream)
	iter, err := l.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: pebblestore.PrefixEnd(prefix)})
	if err != nil {
		return nil, Token{}, err
	}
	defer iter.Close()

	startSeq := opts.Start.Seq()
	var ok bool
	switch {
	case opts.Reverse && startSeq == 0:
		ok = iter.Last()
	case opts.Reverse:
		ok = iter.SeekLT(KeyEntry(l.stream, startSeq+1))
	case startSeq == 0:
		ok = iter.First()
	default:
		ok = iter.SeekGE(KeyEntry(l.stream, startSeq))
	}

	step := iter.Next
	if opts.Reverse {
		step = iter.Prev
	}
	items := make([]Item, 0, maxInt(1, opts.Limit))
	for ; ok && (opts.Limit == 0 || len(items) < opts.Limit); ok = step() {
		dec, valid := DecodeRecord(iter.Value())
		if !valid {
			continue
		}
		items = append(items, Item{Seq: seqFromEntryKey(iter.Key()), Header: dec.Header, Payload: dec.Payload})
	}

	var next Token
	if ok && iter.Valid() {
		next = TokenFromSeq(seqFromEntryKey(iter.Key()))
	}
	return items, next, iter.Error()
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
