// Package audit implements a hash-linked, append-only record of safety
// decisions and tool executions, flushed to durable storage after every
// append. Tampering with any entry's payload, or reordering entries,
// changes every downstream self_hash — verify_chain detects the first
// broken link.
package audit

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/zeebo/blake3"
)

// Kind discriminates the AuditEntry event kinds.
type Kind string

const (
	KindToolExec       Kind = "tool_exec"
	KindSafetyDecision Kind = "safety_decision"
	KindApproval       Kind = "approval"
)

// HashSize is the digest width in bytes (BLAKE3-256).
const HashSize = 32

// Hash is a 256-bit chain link.
type Hash [HashSize]byte

func (h Hash) IsZero() bool {
	return h == Hash{}
}

// Entry is one node of the hash chain.
type Entry struct {
	Seq      uint64
	Ts       int64 // unix nanoseconds
	Kind     Kind
	Payload  []byte
	PrevHash Hash
	SelfHash Hash
}

// ErrIoFailure wraps a failure writing to durable storage. Per the
// fail-closed-on-audit policy, any error from Append must abort the
// action that triggered it.
var ErrIoFailure = errors.New("audit: io failure")

// ErrChainCorrupt is returned when Append is called on a chain whose
// last verified state does not match its in-memory tail — the process
// must refuse to continue appending without operator acknowledgement.
var ErrChainCorrupt = errors.New("audit: chain corrupt")

// Sink persists entries durably. The file-backed implementation is
// Store; tests may substitute an in-memory sink.
type Sink interface {
	// Flush durably writes entry to storage. Implementations must make
	// a partial write detectable on the next Load (e.g. length-prefixed
	// records), so Chain can truncate to the last verifiable entry.
	Flush(entry Entry) error
}

// Chain is a hash-linked append-only log. All appends are serialized by
// an internal mutex, so sequence numbers are a total order across every
// caller in the process — concurrent agents sharing one Chain never race.
type Chain struct {
	mu      sync.Mutex
	entries []Entry
	sink    Sink
	corrupt bool
}

// New creates an empty chain backed by sink. Pass a nil sink to run
// in-memory only (tests).
func New(sink Sink) *Chain {
	return &Chain{sink: sink}
}

// Append computes self_hash = H(prev_hash || seq || ts || payload) and
// durably flushes the new entry before returning. Determinism: identical
// payload byte sequences across runs produce bit-identical chains.
func (c *Chain) Append(kind Kind, payload []byte) (seq uint64, self Hash, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.corrupt {
		return 0, Hash{}, ErrChainCorrupt
	}

	prev := Hash{}
	seq = 0
	if n := len(c.entries); n > 0 {
		prev = c.entries[n-1].SelfHash
		seq = c.entries[n-1].Seq + 1
	}

	ts := time.Now().UnixNano()
	entry := Entry{
		Seq:      seq,
		Ts:       ts,
		Kind:     kind,
		Payload:  append([]byte(nil), payload...),
		PrevHash: prev,
	}
	entry.SelfHash = computeHash(prev, seq, ts, payload)

	if c.sink != nil {
		if ferr := c.sink.Flush(entry); ferr != nil {
			return 0, Hash{}, fmt.Errorf("%w: %v", ErrIoFailure, ferr)
		}
	}

	c.entries = append(c.entries, entry)
	return entry.Seq, entry.SelfHash, nil
}

// Len returns the number of entries in the chain.
func (c *Chain) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// RootHash returns the self_hash of the last entry, or the zero hash if
// the chain is empty.
func (c *Chain) RootHash() Hash {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.entries) == 0 {
		return Hash{}
	}
	return c.entries[len(c.entries)-1].SelfHash
}

// Entries returns a defensive copy of the chain's current entries, in
// sequence order.
func (c *Chain) Entries() []Entry {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	return out
}

// VerifyReport is the result of recomputing every hash in the chain.
type VerifyReport struct {
	IsValid     bool
	CheckedNodes int
	FirstBreak  *uint64 // nil when IsValid
}

// VerifyChain recomputes hashes from the stored sequence and returns the
// first index where the recorded self_hash disagrees, if any. On the
// first break, Chain truncates its in-memory tail to the last verifiable
// entry and marks itself non-corrupt again so that future Appends resume
// from that point (recovery semantics for on-disk replay, §6).
func (c *Chain) VerifyChain() VerifyReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.verifyLocked()
}

func (c *Chain) verifyLocked() VerifyReport {
	prev := Hash{}
	for i, e := range c.entries {
		want := computeHash(prev, e.Seq, e.Ts, e.Payload)
		if want != e.SelfHash || e.PrevHash != prev {
			seq := e.Seq
			c.entries = c.entries[:i]
			c.corrupt = false
			return VerifyReport{IsValid: false, CheckedNodes: i, FirstBreak: &seq}
		}
		prev = e.SelfHash
	}
	return VerifyReport{IsValid: true, CheckedNodes: len(c.entries)}
}

// LoadEntries replaces the chain's tail with entries read from durable
// storage (e.g. at process start-up) and verifies it immediately,
// truncating to the last good entry on the first mismatch.
func (c *Chain) LoadEntries(entries []Entry) VerifyReport {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = entries
	return c.verifyLocked()
}

// Archive writes every entry currently in the chain to a fresh file at
// path, in the same length-prefixed on-disk format Store/Replay use, so
// the archive is itself a valid replayable log (e.g. for off-box cold
// storage) independent of the live chain's file, which keeps growing.
// Archive does not truncate or otherwise mutate the live chain.
func (c *Chain) Archive(path string) error {
	c.mu.Lock()
	entries := make([]Entry, len(c.entries))
	copy(entries, c.entries)
	c.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("audit: archive mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("audit: archive create: %w", err)
	}
	defer f.Close()

	for _, e := range entries {
		if _, err := f.Write(encodeRecord(e)); err != nil {
			return fmt.Errorf("audit: archive write: %w", err)
		}
	}
	return f.Sync()
}

func computeHash(prev Hash, seq uint64, ts int64, payload []byte) Hash {
	h := blake3.New()
	h.Write(prev[:])
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], seq)
	h.Write(buf[:])
	binary.BigEndian.PutUint64(buf[:], uint64(ts))
	h.Write(buf[:])
	h.Write(payload)
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}
