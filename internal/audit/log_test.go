package audit

import (
	"os"
	"path/filepath"
	"testing"
)

func TestAppendAndReadAll(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer l.Close()

	for i := 0; i < 3; i++ {
		if _, err := l.Append(Event{Tool: "write_file", Intent: "write"}); err != nil {
			t.Fatalf("append %d: %v", i, err)
		}
	}

	records, err := l.ReadAll()
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("want 3 records, got %d", len(records))
	}
	for i, r := range records {
		if r.Seq != uint64(i+1) {
			t.Errorf("record %d: want seq %d, got %d", i, i+1, r.Seq)
		}
	}
	if records[0].PrevHash != GenesisHash {
		t.Errorf("first record's prev_hash should be genesis, got %q", records[0].PrevHash)
	}
}

func TestVerifyChainAcceptsIntactChain(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer l.Close()

	for i := 0; i < 2; i++ {
		if _, err := l.Append(Event{Tool: "write_file"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	result, err := l.VerifyChain()
	if err != nil {
		t.Fatalf("verify chain: %v", err)
	}
	if !result.OK {
		t.Fatalf("expected an intact chain, got %+v", result)
	}
}

func TestReadRangeFiltersBySeq(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if _, err := l.Append(Event{Tool: "write_file"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	records, err := l.ReadRange(3, 4)
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 records in [3,4], got %d", len(records))
	}
	if records[0].Seq != 3 || records[1].Seq != 4 {
		t.Fatalf("want seqs 3,4, got %d,%d", records[0].Seq, records[1].Seq)
	}
}

func TestReadRangeUsesIndexedOffset(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer l.Close()

	for i := 0; i < 5; i++ {
		if _, err := l.Append(Event{Tool: "write_file"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	offset, ok, err := l.index.Lookup(4)
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok {
		t.Fatal("expected seq 4 to be indexed after append")
	}
	if offset <= 0 {
		t.Errorf("expected a positive byte offset for seq 4, got %d", offset)
	}

	records, err := l.ReadRange(4, 0)
	if err != nil {
		t.Fatalf("read range: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("want 2 records from seq 4 onward, got %d", len(records))
	}
}

func TestOpenRebuildsMissingIndex(t *testing.T) {
	root := t.TempDir()
	l, err := Open(root)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	for i := 0; i < 3; i++ {
		if _, err := l.Append(Event{Tool: "write_file"}); err != nil {
			t.Fatalf("append: %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("close log: %v", err)
	}

	// Drop the index file to simulate a missing accelerator; Open must
	// rebuild it from the JSONL log rather than leaving an empty index
	// that silently falls back to a full scan for every lookup.
	if err := os.Remove(filepath.Join(root, IndexFileName)); err != nil {
		t.Fatalf("remove index file: %v", err)
	}

	reopened, err := Open(root)
	if err != nil {
		t.Fatalf("reopen log: %v", err)
	}
	defer reopened.Close()

	maxSeq, err := reopened.index.MaxIndexedSeq()
	if err != nil {
		t.Fatalf("max indexed seq: %v", err)
	}
	if maxSeq != 3 {
		t.Fatalf("want rebuilt index tail at seq 3, got %d", maxSeq)
	}
}
