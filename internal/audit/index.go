package audit

import (
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"

	"go.etcd.io/bbolt"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

// IndexFileName is the bbolt database holding the seq -> byte-offset index.
// It is a pure acceleration structure: the JSONL audit log remains ground
// truth, and the index is rebuilt from scratch whenever it is missing or
// its tail no longer matches the log (spec §6 domain-stack wiring).
const IndexFileName = "audit-index.bolt"

var seqOffsetBucket = []byte("seq_offset")

// Index is an optional seq -> byte-offset accelerator for ReadRange over
// large logs. Callers that don't open one still get correct (if O(n))
// behavior from Log.ReadRange's full scan.
type Index struct {
	db   *bbolt.DB
	path string
}

// OpenIndex opens (creating if absent) the bbolt index file under root.
func OpenIndex(root string) (*Index, error) {
	path := filepath.Join(root, IndexFileName)
	db, err := bbolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to open audit index", err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(seqOffsetBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to initialize audit index bucket", err)
	}
	return &Index{db: db, path: path}, nil
}

// Close releases the underlying bbolt database handle.
func (idx *Index) Close() error {
	return idx.db.Close()
}

// Put records the byte offset at which the record with the given seq
// starts in the JSONL file.
func (idx *Index) Put(seq uint64, offset int64) error {
	return idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(seqOffsetBucket)
		return b.Put(seqKey(seq), offsetValue(offset))
	})
}

// Lookup returns the byte offset for seq, or ok=false if not indexed.
func (idx *Index) Lookup(seq uint64) (offset int64, ok bool, err error) {
	err = idx.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(seqOffsetBucket)
		v := b.Get(seqKey(seq))
		if v == nil {
			return nil
		}
		offset = int64(binary.BigEndian.Uint64(v))
		ok = true
		return nil
	})
	return offset, ok, err
}

// MaxIndexedSeq returns the highest seq recorded in the index, or 0 if
// empty.
func (idx *Index) MaxIndexedSeq() (uint64, error) {
	var max uint64
	err := idx.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(seqOffsetBucket)
		c := b.Cursor()
		k, _ := c.Last()
		if k == nil {
			return nil
		}
		max = binary.BigEndian.Uint64(k)
		return nil
	})
	return max, err
}

// Rebuild truncates the index and repopulates it by scanning the JSONL log
// from byte 0, recording each record's starting offset. This is the
// recovery path used whenever the index is missing, corrupt, or behind the
// log's current tail.
func Rebuild(log *Log, idx *Index) error {
	if err := idx.db.Update(func(tx *bbolt.Tx) error {
		if err := tx.DeleteBucket(seqOffsetBucket); err != nil && err != bbolt.ErrBucketNotFound {
			return err
		}
		_, err := tx.CreateBucket(seqOffsetBucket)
		return err
	}); err != nil {
		return gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to reset audit index for rebuild", err)
	}

	offsets, err := scanOffsets(log.Path())
	if err != nil {
		return err
	}
	return idx.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(seqOffsetBucket)
		for seq, off := range offsets {
			if err := b.Put(seqKey(seq), offsetValue(off)); err != nil {
				return err
			}
		}
		return nil
	})
}

// scanOffsets walks the JSONL file once, returning each record's seq and
// the byte offset at which its line begins.
func scanOffsets(path string) (map[uint64]int64, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return map[uint64]int64{}, nil
	}
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to open audit log for index rebuild", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to stat audit log for index rebuild", err)
	}
	buf := make([]byte, info.Size())
	if _, err := f.Read(buf); err != nil && info.Size() > 0 {
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to read audit log for index rebuild", err)
	}

	offsets := make(map[uint64]int64)
	lineStart := int64(0)
	start := 0
	for i, b := range buf {
		if b != '\n' {
			continue
		}
		line := buf[start:i]
		if len(line) > 0 {
			if rec, ok := parseSeqOnly(line); ok {
				offsets[rec] = lineStart
			}
		}
		start = i + 1
		lineStart = int64(start)
	}
	return offsets, nil
}

// parseSeqOnly extracts just the seq field from a JSONL line without
// paying for a full Record unmarshal.
func parseSeqOnly(line []byte) (uint64, bool) {
	var partial struct {
		Seq uint64 `json:"seq"`
	}
	if err := json.Unmarshal(line, &partial); err != nil {
		return 0, false
	}
	return partial.Seq, true
}

func seqKey(seq uint64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, seq)
	return b
}

func offsetValue(offset int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(offset))
	return b
}
