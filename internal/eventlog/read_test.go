package eventlog

import (
	"context"
	"testing"
)

func seedLog(t *testing.T, n int) (*Log, []uint64) {
	t.Helper()
	l := newTestLog(t)
	recs := make([]AppendRecord, n)
	for i := 0; i < n; i++ {
		recs[i] = AppendRecord{Payload: []byte{byte(i)}}
	}
	seqs, err := l.Append(context.Background(), recs)
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	return l, seqs
}

func TestReadForward(t *testing.T) {
	l, seqs := seedLog(t, 5)
	items, next, err := l.Read(ReadOptions{Limit: 3})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("want 3 items, got %d", len(items))
	}
	if items[0].Seq != seqs[0] || items[2].Seq != seqs[2] {
		t.Fatalf("unexpected seqs")
	}
	if next.Seq() != seqs[3] {
		t.Fatalf("next token %d, want %d", next.Seq(), seqs[3])
	}
	rest, next, err := l.Read(ReadOptions{Start: next})
	if err != nil {
		t.Fatalf("read rest: %v", err)
	}
	if len(rest) != 2 || next.Seq() != 0 {
		t.Fatalf("unexpected tail: %d items, next %d", len(rest), next.Seq())
	}
}

func TestReadReverse(t *testing.T) {
	l, seqs := seedLog(t, 4)
	items, _, err := l.Read(ReadOptions{Reverse: true, Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) != 2 {
		t.Fatalf("want 2, got %d", len(items))
	}
	if !(items[0].Seq == seqs[3] && items[1].Seq == seqs[2]) {
		t.Fatalf("unexpected reverse order")
	}
}

func TestSeekByToken(t *testing.T) {
	l, seqs := seedLog(t, 4)
	items, _, err := l.Read(ReadOptions{Start: TokenFromSeq(seqs[2]), Limit: 2})
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if len(items) == 0 || items[0].Seq != seqs[2] {
		t.Fatalf("seek failed")
	}
	if TokenFromSeq(seqs[2]).After().Seq() != seqs[3] {
		t.Fatalf("After should address the following entry")
	}
}
