package audit

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
)

// recordHeaderSize is the fixed-size prefix of an on-disk record: seq(8)
// + ts(8) + kind(1) + len(4) + self_hash(32).
const recordHeaderSize = 8 + 8 + 1 + 4 + HashSize

// Store is a file-backed Sink. Each append is written as a
// length-prefixed record and fsynced before Flush returns, matching the
// "flushed to durable storage after each append" invariant. Writes go
// through a temp-file-then-rename helper is unnecessary here because
// the log is append-only, not replaced — but the individual record
// write+sync is atomic at the OS level for our purposes (single writer,
// serialized by Chain's mutex).
type Store struct {
	path string
	file *os.File
}

// OpenStore opens (creating if needed) the audit log at path. On open,
// existing entries are NOT replayed automatically — call LoadEntries
// with the result of Replay to recover chain state.
func OpenStore(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("audit: mkdir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o600)
	if err != nil {
		return nil, fmt.Errorf("audit: open: %w", err)
	}
	return &Store{path: path, file: f}, nil
}

// Flush implements Sink: appends one length-prefixed record and syncs.
func (s *Store) Flush(entry Entry) error {
	buf := encodeRecord(entry)
	if _, err := s.file.Write(buf); err != nil {
		return fmt.Errorf("audit: write: %w", err)
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("audit: sync: %w", err)
	}
	return nil
}

// Close closes the underlying file.
func (s *Store) Close() error {
	return s.file.Close()
}

func encodeRecord(e Entry) []byte {
	buf := make([]byte, recordHeaderSize+len(e.Payload))
	binary.BigEndian.PutUint64(buf[0:8], e.Seq)
	binary.BigEndian.PutUint64(buf[8:16], uint64(e.Ts))
	buf[16] = kindByte(e.Kind)
	binary.BigEndian.PutUint32(buf[17:21], uint32(len(e.Payload)))
	copy(buf[21:21+HashSize], e.SelfHash[:])
	copy(buf[recordHeaderSize:], e.Payload)
	return buf
}

func kindByte(k Kind) byte {
	switch k {
	case KindToolExec:
		return 1
	case KindSafetyDecision:
		return 2
	case KindApproval:
		return 3
	default:
		return 0
	}
}

func kindFromByte(b byte) Kind {
	switch b {
	case 1:
		return KindToolExec
	case 2:
		return KindSafetyDecision
	case 3:
		return KindApproval
	default:
		return Kind("")
	}
}

// Replay reads every complete record from path, reconstructing Entry
// values with PrevHash filled in by chaining (the on-disk format does
// not store prev_hash directly — it's derivable from the prior record's
// self_hash, seq 0's prev is the zero hash). On the first short/corrupt
// record, Replay stops and truncates the file to the last complete
// record, returning the recovery note describing what happened.
func Replay(path string) (entries []Entry, recovered bool, note string, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, "", nil
		}
		return nil, false, "", fmt.Errorf("audit: open for replay: %w", err)
	}
	defer f.Close()

	r := bufio.NewReader(f)
	var validBytes int64
	prev := Hash{}

	for {
		header := make([]byte, recordHeaderSize)
		n, rerr := io.ReadFull(r, header)
		if rerr == io.EOF {
			break
		}
		if rerr != nil || n < recordHeaderSize {
			recovered = true
			note = fmt.Sprintf("truncated incomplete record header at byte %d", validBytes)
			break
		}

		seq := binary.BigEndian.Uint64(header[0:8])
		ts := int64(binary.BigEndian.Uint64(header[8:16]))
		kind := kindFromByte(header[16])
		payloadLen := binary.BigEndian.Uint32(header[17:21])
		var selfHash Hash
		copy(selfHash[:], header[21:21+HashSize])

		payload := make([]byte, payloadLen)
		n, rerr = io.ReadFull(r, payload)
		if rerr != nil || uint32(n) < payloadLen {
			recovered = true
			note = fmt.Sprintf("truncated incomplete payload at byte %d", validBytes)
			break
		}

		entry := Entry{Seq: seq, Ts: ts, Kind: kind, Payload: payload, PrevHash: prev, SelfHash: selfHash}
		entries = append(entries, entry)
		prev = selfHash
		validBytes += int64(recordHeaderSize) + int64(payloadLen)
	}

	if recovered {
		slog.Warn("audit log truncated on recovery", "path", path, "valid_bytes", validBytes, "valid_entries", len(entries), "reason", note)
		if terr := os.Truncate(path, validBytes); terr != nil {
			return entries, recovered, note, fmt.Errorf("audit: truncate recovery file: %w", terr)
		}
	}

	return entries, recovered, note, nil
}

// Open replays path, verifies the resulting chain, and — on the first
// hash mismatch — truncates the on-disk file to the last verifiable
// entry before returning a ready-to-append Chain. This is the
// recommended entry point at process start-up (§6 "On open, entries are
// verified; on first mismatch, the file is truncated to the last valid
// entry and a recovery note is emitted").
func Open(path string) (chain *Chain, store *Store, note string, err error) {
	entries, structRecovered, structNote, err := Replay(path)
	if err != nil {
		return nil, nil, "", err
	}

	store, err = OpenStore(path)
	if err != nil {
		return nil, nil, "", err
	}

	chain = New(store)
	report := chain.LoadEntries(entries)
	note = structNote

	if !report.IsValid {
		validBytes := int64(0)
		for i := 0; i < report.CheckedNodes; i++ {
			validBytes += int64(recordHeaderSize) + int64(len(entries[i].Payload))
		}
		if terr := os.Truncate(path, validBytes); terr != nil {
			store.Close()
			return nil, nil, "", fmt.Errorf("audit: truncate on hash mismatch: %w", terr)
		}
		note = fmt.Sprintf("hash chain mismatch at seq=%d, truncated to %d valid entries", *report.FirstBreak, report.CheckedNodes)
		slog.Warn("audit chain hash mismatch on open, truncated", "path", path, "first_break", *report.FirstBreak, "valid_entries", report.CheckedNodes)

		// Reopen the store file handle so subsequent appends start at
		// the truncated EOF (O_APPEND tracks the current file size).
		store.Close()
		store, err = OpenStore(path)
		if err != nil {
			return nil, nil, "", err
		}
		chain = New(store)
		chain.LoadEntries(entries[:report.CheckedNodes])
	} else if structRecovered {
		slog.Warn("audit log recovered from structural truncation", "path", path, "reason", structNote)
	}

	return chain, store, note, nil
}
