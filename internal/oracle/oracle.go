// Package oracle is the append-only, single-writer event store. It
// persists every SystemEvent Titan and Sentinel produce, assigns each a
// strictly increasing sequence number, and can replay or hash the log.
//
// Storage is a single bbolt database (grounded on the pack's perp-dex and
// tradSys manifests, both of which carry go.etcd.io/bbolt as their
// embedded KV store) with one bucket, keyed by big-endian uint64 sequence.
// bbolt's own transaction commit already fsyncs before Update returns, so
// Append naturally satisfies the "flushed before returning" durability
// requirement without extra bookkeeping.
package oracle

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"citadel/internal/events"
	"github.com/rs/zerolog/log"
	"go.etcd.io/bbolt"
)

var bucketName = []byte("oracle_log")

const (
	// headerSequence is reserved for the store header record (spec.md §6).
	headerSequence uint64 = 0
	headerMagic           = "ORACLE01"
	schemaVersion  uint32 = 1
)

var (
	// ErrCorrupt is returned by ReplayAll/ReplayFrom when a stored record
	// fails to decode. It is fatal; callers must not silently skip it
	// (spec.md §4.2 Failure semantics).
	ErrCorrupt = errors.New("oracle: corrupt record")

	// ErrBadHeader is returned at open time when sequence 0 does not carry
	// the expected magic/version (spec.md §7 kind 6, fatal at startup).
	ErrBadHeader = errors.New("oracle: bad or missing header record")
)

// LogRecord is one immutable, sequenced entry in the log.
type LogRecord struct {
	Sequence    uint64
	WallTimeMs  uint64
	Event       events.SystemEvent
}

// Oracle is the single writer for its underlying store. Callers must not
// share an *Oracle across more than one append path; Titan and Sentinel
// hand events to it over a channel owned by the orchestrator.
type Oracle struct {
	db      *bbolt.DB
	path    string
	lastSeq uint64
}

// Open creates or opens the store at path, writing the header record on
// first creation and validating it otherwise.
func Open(path string) (*Oracle, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("oracle: open %s: %w", path, err)
	}

	o := &Oracle{db: db, path: path}
	if err := o.init(); err != nil {
		db.Close()
		return nil, err
	}
	return o, nil
}

func (o *Oracle) init() error {
	return o.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(bucketName)
		if err != nil {
			return err
		}

		headerKey := seqKey(headerSequence)
		existing := b.Get(headerKey)
		if existing == nil {
			header := encodeHeader()
			if err := b.Put(headerKey, header); err != nil {
				return err
			}
			o.lastSeq = headerSequence
			return nil
		}

		if err := validateHeader(existing); err != nil {
			return err
		}

		// Recover lastSeq by scanning for the highest key. bbolt's cursor
		// iterates in key order, so the last entry is the highest sequence.
		c := b.Cursor()
		k, _ := c.Last()
		if k != nil {
			o.lastSeq = binary.BigEndian.Uint64(k)
		}
		return nil
	})
}

func encodeHeader() []byte {
	buf := make([]byte, len(headerMagic)+4)
	copy(buf, headerMagic)
	binary.BigEndian.PutUint32(buf[len(headerMagic):], schemaVersion)
	return buf
}

func validateHeader(b []byte) error {
	if len(b) < len(headerMagic)+4 {
		return ErrBadHeader
	}
	if string(b[:len(headerMagic)]) != headerMagic {
		return ErrBadHeader
	}
	if binary.BigEndian.Uint32(b[len(headerMagic):]) != schemaVersion {
		return ErrBadHeader
	}
	return nil
}

func seqKey(seq uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, seq)
	return k
}

// Append assigns the next sequence to ev, serializes it canonically, and
// writes it durably before returning. At-most-one writer: callers must
// serialize their own Append calls (the orchestrator does this by routing
// every event through a single channel into one Oracle goroutine).
func (o *Oracle) Append(ev events.SystemEvent, wallTimeMs uint64) (uint64, error) {
	payload, err := events.Encode(ev)
	if err != nil {
		return 0, fmt.Errorf("oracle: encode: %w", err)
	}

	seq := o.lastSeq + 1
	record := make([]byte, 8+len(payload))
	binary.BigEndian.PutUint64(record[:8], wallTimeMs)
	copy(record[8:], payload)

	err = o.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		return b.Put(seqKey(seq), record)
	})
	if err != nil {
		return 0, fmt.Errorf("oracle: write failed at sequence %d: %w", seq, err)
	}

	o.lastSeq = seq
	return seq, nil
}

// ReplayAll yields every record from sequence 1 onward, in order.
func (o *Oracle) ReplayAll() ([]LogRecord, error) {
	return o.ReplayFrom(1)
}

// ReplayFrom yields records with sequence >= from, in order. Replay never
// performs I/O beyond reading the log (spec.md §4.2 Determinism).
func (o *Oracle) ReplayFrom(from uint64) ([]LogRecord, error) {
	var records []LogRecord
	err := o.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		start := seqKey(from)
		if from <= headerSequence {
			start = seqKey(headerSequence + 1)
		}
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			seq := binary.BigEndian.Uint64(k)
			if len(v) < 8 {
				return fmt.Errorf("%w: sequence %d truncated", ErrCorrupt, seq)
			}
			wallTimeMs := binary.BigEndian.Uint64(v[:8])
			ev, err := events.Decode(v[8:])
			if err != nil {
				return fmt.Errorf("%w: sequence %d: %v", ErrCorrupt, seq, err)
			}
			records = append(records, LogRecord{Sequence: seq, WallTimeMs: wallTimeMs, Event: ev})
		}
		return nil
	})
	if err != nil {
		log.Error().Err(err).Msg("oracle: replay failed")
		return nil, err
	}
	return records, nil
}

// ComputeStateHash is a SHA-256 digest over the canonical, stored bytes of
// every record in sequence order (excluding the header, which never
// changes and carries no domain content). Two hosts replaying the same
// log produce the same digest (spec.md §4.2 P5).
func (o *Oracle) ComputeStateHash() ([32]byte, error) {
	h := sha256.New()
	err := o.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		c := b.Cursor()
		start := seqKey(headerSequence + 1)
		for k, v := c.Seek(start); k != nil; k, v = c.Next() {
			if _, err := h.Write(k); err != nil {
				return err
			}
			if _, err := h.Write(v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return [32]byte{}, err
	}
	var digest [32]byte
	copy(digest[:], h.Sum(nil))
	return digest, nil
}

// LastSequence reports the highest sequence written so far.
func (o *Oracle) LastSequence() uint64 { return o.lastSeq }

// Close flushes and closes the underlying store. Oracle is the last
// component to exit during shutdown (spec.md §4.5).
func (o *Oracle) Close() error {
	return o.db.Close()
}
