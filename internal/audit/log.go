// Package audit implements the append-only, hash-chained audit log: the
// ground truth the replay/integrity engine (internal/replay) operates
// against. The on-disk format is one JSON object per line
// (audit-log.jsonl, spec §6). Appends are serialized through an exclusive
// flock, the same pattern the teacher uses for its ratchet chain file
// (internal/ratchet/chain.go withLockedFile) adapted from a whole-file
// rewrite to a true append.
package audit

import (
	"bufio"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	"github.com/boshu2/gatekeeper/internal/gkerrors"
)

// FileName is the canonical audit log filename under the workspace root.
const FileName = "audit-log.jsonl"

// Event is the caller-facing shape passed to Append; Log fills in Seq,
// PrevHash and EntryHash itself.
type Event struct {
	SessionID     string
	Role          string
	WorkspaceRoot string
	Tool          string
	Intent        string
	PlanHash      string
	PhaseID       string
	ArgsHash      string
	ResultHash    string
	ErrorCode     string
	InvariantID   string
	Notes         string
	Extra         map[string]string
}

// Log is the single owner of the audit log file handle for a process. All
// appends go through an in-process mutex plus an OS-level exclusive flock,
// so the invariant holds even if a future host loop parallelizes request
// handling (spec §5). index is an optional seq -> byte-offset accelerator
// (internal/audit.Index); ReadRange falls back to a full scan when it is
// nil or misses a lookup.
type Log struct {
	mu       sync.Mutex
	path     string
	lastSeq  uint64
	lastHash string
	loaded   bool
	index    *Index
}

// Open binds a Log to the audit file under root, priming lastSeq/lastHash
// from the existing file tail if one exists. It does not hold the file
// open between calls; each Append/verify opens, locks, and closes. It also
// opens the bbolt seq -> offset index under root, rebuilding it whenever
// its highest indexed seq differs from the log's last seq (spec §6: "index is rebuilt from scratch
// whenever it is missing or its tail no longer matches the log").
func Open(root string) (*Log, error) {
	l := &Log{path: filepath.Join(root, FileName)}
	if err := l.prime(); err != nil {
		return nil, err
	}

	idx, err := OpenIndex(root)
	if err != nil {
		return nil, err
	}
	maxIndexed, err := idx.MaxIndexedSeq()
	if err != nil {
		idx.Close()
		return nil, err
	}
	if maxIndexed != l.lastSeq {
		if err := Rebuild(l, idx); err != nil {
			idx.Close()
			return nil, err
		}
	}
	l.index = idx

	return l, nil
}

// Close releases the index's underlying bbolt handle. The JSONL log itself
// is never held open between calls, so there is nothing else to release.
func (l *Log) Close() error {
	if l.index == nil {
		return nil
	}
	return l.index.Close()
}

// prime scans the existing file (if any) to recover the chain tip.
func (l *Log) prime() error {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		l.lastSeq = 0
		l.lastHash = GenesisHash
		l.loaded = true
		return nil
	}
	if err != nil {
		return gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to open audit log for priming", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	lastSeq := uint64(0)
	lastHash := GenesisHash
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			continue
		}
		lastSeq = r.Seq
		lastHash = r.EntryHash
	}
	if err := scanner.Err(); err != nil {
		return gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to scan audit log while priming", err)
	}
	l.lastSeq = lastSeq
	l.lastHash = lastHash
	l.loaded = true
	return nil
}

// Append assigns the next seq, computes hashes, and writes exactly one
// complete line, flushed to durable storage before returning. Appends are
// serialized within this process via mu, and across processes via an
// exclusive flock on the log file.
func (l *Log) Append(ev Event) (Record, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.loaded {
		if err := l.prime(); err != nil {
			return Record{}, err
		}
	}

	rec := Record{
		Seq:           l.lastSeq + 1,
		Timestamp:     time.Now().UTC(),
		SessionID:     ev.SessionID,
		Role:          ev.Role,
		WorkspaceRoot: ev.WorkspaceRoot,
		Tool:          ev.Tool,
		Intent:        ev.Intent,
		PlanHash:      ev.PlanHash,
		PhaseID:       ev.PhaseID,
		ArgsHash:      ev.ArgsHash,
		ResultHash:    ev.ResultHash,
		ErrorCode:     ev.ErrorCode,
		InvariantID:   ev.InvariantID,
		Notes:         ev.Notes,
		PrevHash:      l.lastHash,
		Extra:         ev.Extra,
	}

	entryHash, err := rec.ComputeEntryHash()
	if err != nil {
		return Record{}, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to compute entry hash", err)
	}
	rec.EntryHash = entryHash

	offset, err := l.writeLocked(rec)
	if err != nil {
		return Record{}, err
	}
	if l.index != nil {
		// Best effort: the index is a pure acceleration structure, and a
		// failed Put here just means the next ReadRange with this seq as
		// its lower bound falls back to a full scan, not that the append
		// itself is in doubt.
		_ = l.index.Put(rec.Seq, offset)
	}

	l.lastSeq = rec.Seq
	l.lastHash = rec.EntryHash
	return rec, nil
}

// writeLocked appends one JSON line under an exclusive file lock and fsyncs
// before returning, so a crash never leaves a partial record. Returns the
// byte offset the line was written at, for the caller to index.
func (l *Log) writeLocked(rec Record) (int64, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return 0, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to create audit log directory", err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_APPEND, 0o600)
	if err != nil {
		return 0, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to open audit log for append", err)
	}
	defer f.Close()

	if err := syscall.Flock(int(f.Fd()), syscall.LOCK_EX); err != nil {
		return 0, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to lock audit log", err)
	}
	defer syscall.Flock(int(f.Fd()), syscall.LOCK_UN) //nolint:errcheck

	info, err := f.Stat()
	if err != nil {
		return 0, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to stat audit log before append", err)
	}
	offset := info.Size()

	line, err := json.Marshal(rec)
	if err != nil {
		return 0, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to marshal audit record", err)
	}
	line = append(line, '\n')

	if _, err := f.Write(line); err != nil {
		return 0, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to write audit record", err)
	}
	if err := f.Sync(); err != nil {
		return 0, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to fsync audit log", err)
	}
	return offset, nil
}

// ReadAll returns every record in the log, in seq order.
func (l *Log) ReadAll() ([]Record, error) {
	return l.ReadRange(0, 0)
}

// ReadRange returns records with seq in [lo, hi] inclusive. hi == 0 means
// "no upper bound". The scan is a finite, restartable pass over the file;
// it tolerates concurrent growth because it reads only up to the length
// observed when the scan began. When an index is attached and has lo
// indexed, the scan seeks straight to lo's byte offset instead of reading
// the file from the start (spec §6: "seq -> byte offset for O(1)
// read_range"); otherwise it falls back to a full scan from byte 0.
func (l *Log) ReadRange(lo, hi uint64) ([]Record, error) {
	f, err := os.Open(l.path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to open audit log for read", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"failed to stat audit log", err)
	}

	var start int64
	if l.index != nil && lo > 0 {
		if offset, ok, lookupErr := l.index.Lookup(lo); lookupErr == nil && ok {
			if _, err := f.Seek(offset, io.SeekStart); err != nil {
				return nil, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
					"failed to seek audit log to indexed offset", err)
			}
			start = offset
		}
	}
	bounded := io.LimitReader(f, info.Size()-start)

	var records []Record
	scanner := bufio.NewScanner(bounded)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var r Record
		if err := json.Unmarshal(line, &r); err != nil {
			return records, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditChainBroken,
				"malformed JSON line in audit log", err)
		}
		if r.Seq < lo {
			continue
		}
		if hi != 0 && r.Seq > hi {
			break
		}
		records = append(records, r)
	}
	if err := scanner.Err(); err != nil {
		return records, gkerrors.Wrap(gkerrors.PhaseAudit, gkerrors.CodeAuditAppendFailed,
			"scanner error reading audit log", err)
	}
	return records, nil
}

// VerifyResult is the outcome of VerifyChain.
type VerifyResult struct {
	OK               bool
	FailingSeq       uint64
	FailingInvariant string
}

// VerifyChain walks the log, recomputing hashes and continuity, and returns
// the first failing invariant and offending sequence, or a successful
// result.
func (l *Log) VerifyChain() (VerifyResult, error) {
	records, err := l.ReadAll()
	if err != nil {
		return VerifyResult{}, err
	}

	prevHash := GenesisHash
	var expectedSeq uint64 = 1
	for _, r := range records {
		if r.Seq != expectedSeq {
			return VerifyResult{OK: false, FailingSeq: r.Seq, FailingInvariant: "SEQ_MONOTONE_NO_GAPS"}, nil
		}
		if r.PrevHash != prevHash {
			return VerifyResult{OK: false, FailingSeq: r.Seq, FailingInvariant: "HASH_CHAIN_INTACT"}, nil
		}
		recomputed, err := r.ComputeEntryHash()
		if err != nil {
			return VerifyResult{OK: false, FailingSeq: r.Seq, FailingInvariant: "HASH_CHAIN_INTACT"}, nil
		}
		if recomputed != r.EntryHash {
			return VerifyResult{OK: false, FailingSeq: r.Seq, FailingInvariant: "HASH_CHAIN_INTACT"}, nil
		}
		prevHash = r.EntryHash
		expectedSeq++
	}
	return VerifyResult{OK: true}, nil
}

// Path returns the on-disk path of the log file.
func (l *Log) Path() string {
	return l.path
}

// LastSeq returns the highest seq persisted so far (0 if empty).
func (l *Log) LastSeq() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastSeq
}
