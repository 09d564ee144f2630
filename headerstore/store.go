// Package headerstore persists submitted headers in a kvdb backend so that a
// validator can be rebuilt by replaying them in their original order.
package headerstore

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/lightninglabs/spvchain/blockheader"
	"github.com/lightninglabs/spvchain/validator"
	"github.com/lightningnetwork/lnd/clock"
	"github.com/lightningnetwork/lnd/kvdb"
)

const (
	// DBFilename is the file name of the store inside its directory.
	DBFilename = "headers.db"

	// recordSize is the size of a header record: the serialized header
	// followed by the unix time it was stored at.
	recordSize = blockheader.Size + 8
)

var (
	// headersBucket maps a big endian sequence number to a header
	// record. Cursor scans visit headers in the order they were stored.
	headersBucket = []byte("headers")

	// indexBucket maps a header hash to its sequence number.
	indexBucket = []byte("header-index")

	byteOrder = binary.BigEndian

	// ErrCorruptRecord is returned when a stored record cannot be
	// decoded.
	ErrCorruptRecord = errors.New("corrupt header record")
)

// Submitter consumes raw headers. *validator.Validator implements it.
type Submitter interface {
	SubmitHeader(raw []byte) validator.Outcome
}

// Record is a stored header.
type Record struct {
	// Seq is the position of the header in storage order, starting at
	// one.
	Seq uint64

	// Header is the stored header.
	Header blockheader.Header

	// Hash is the header's hash.
	Hash chainhash.Hash

	// Seen is the time the header was stored.
	Seen time.Time
}

// ReplayStats counts the outcomes of a replay.
type ReplayStats struct {
	Accepted int
	Orphaned int
	Rejected int
}

// Total returns the number of headers replayed.
func (s ReplayStats) Total() int {
	return s.Accepted + s.Orphaned + s.Rejected
}

// Store is a kvdb backed, append only log of headers.
type Store struct {
	db    kvdb.Backend
	clock clock.Clock
}

// New wraps an open backend, creating the buckets if needed.
func New(db kvdb.Backend, clk clock.Clock) (*Store, error) {
	err := kvdb.Update(db, func(tx kvdb.RwTx) error {
		if _, err := tx.CreateTopLevelBucket(headersBucket); err != nil {
			return err
		}
		_, err := tx.CreateTopLevelBucket(indexBucket)

		return err
	}, func() {})
	if err != nil {
		return nil, fmt.Errorf("unable to create buckets: %w", err)
	}

	return &Store{
		db:    db,
		clock: clk,
	}, nil
}

// Open opens or creates a bolt backed store at path.
func Open(path string, clk clock.Clock) (*Store, error) {
	db, err := kvdb.Create(
		kvdb.BoltBackendName, path, true, kvdb.DefaultDBTimeout, false,
	)
	if err != nil {
		return nil, fmt.Errorf("unable to open %v: %w", path, err)
	}

	s, err := New(db, clk)
	if err != nil {
		_ = db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the underlying backend.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put appends h unless a header with the same hash is already stored. It
// reports whether the header was added.
func (s *Store) Put(h *blockheader.Header) (bool, error) {
	hash := h.BlockHash()

	var added bool
	err := kvdb.Update(s.db, func(tx kvdb.RwTx) error {
		headers := tx.ReadWriteBucket(headersBucket)
		index := tx.ReadWriteBucket(indexBucket)
		if headers == nil || index == nil {
			return kvdb.ErrBucketNotFound
		}

		if index.Get(hash[:]) != nil {
			return nil
		}

		seq, err := headers.NextSequence()
		if err != nil {
			return err
		}

		var key [8]byte
		byteOrder.PutUint64(key[:], seq)

		if err := headers.Put(key[:], s.encodeRecord(h)); err != nil {
			return err
		}
		if err := index.Put(hash[:], key[:]); err != nil {
			return err
		}

		added = true

		return nil
	}, func() {
		added = false
	})
	if err != nil {
		return false, err
	}

	if added {
		log.Tracef("Stored header %v", hash)
	}

	return added, nil
}

// Has reports whether a header with the given hash is stored.
func (s *Store) Has(hash chainhash.Hash) (bool, error) {
	var found bool
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		index := tx.ReadBucket(indexBucket)
		if index == nil {
			return kvdb.ErrBucketNotFound
		}

		found = index.Get(hash[:]) != nil

		return nil
	}, func() {
		found = false
	})

	return found, err
}

// Len returns the number of stored headers.
func (s *Store) Len() (int, error) {
	var n int
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		index := tx.ReadBucket(indexBucket)
		if index == nil {
			return kvdb.ErrBucketNotFound
		}

		return index.ForEach(func(_, _ []byte) error {
			n++
			return nil
		})
	}, func() {
		n = 0
	})

	return n, err
}

// ForEach calls cb for every stored header in storage order. An error
// returned by cb stops the iteration and is returned.
func (s *Store) ForEach(cb func(Record) error) error {
	return kvdb.View(s.db, func(tx kvdb.RTx) error {
		headers := tx.ReadBucket(headersBucket)
		if headers == nil {
			return kvdb.ErrBucketNotFound
		}

		return headers.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(k, v)
			if err != nil {
				return err
			}

			return cb(rec)
		})
	}, func() {})
}

// Submit passes raw to sink and stores the header unless it was rejected.
func (s *Store) Submit(sink Submitter, raw []byte) (validator.Outcome,
	error) {

	outcome := sink.SubmitHeader(raw)
	if outcome.Kind == validator.Rejected {
		return outcome, nil
	}

	// The sink accepted the bytes, so they decode.
	h, err := blockheader.Decode(raw)
	if err != nil {
		return outcome, err
	}

	if _, err := s.Put(h); err != nil {
		return outcome, fmt.Errorf("unable to store header %v: %w",
			outcome.Hash, err)
	}

	return outcome, nil
}

// Replay submits every stored header to sink in storage order. The records
// are read before the first submission so no transaction is held while the
// sink works.
func (s *Store) Replay(sink Submitter) (ReplayStats, error) {
	var records []Record
	err := kvdb.View(s.db, func(tx kvdb.RTx) error {
		headers := tx.ReadBucket(headersBucket)
		if headers == nil {
			return kvdb.ErrBucketNotFound
		}

		return headers.ForEach(func(k, v []byte) error {
			rec, err := decodeRecord(k, v)
			if err != nil {
				return err
			}
			records = append(records, rec)

			return nil
		})
	}, func() {
		records = nil
	})
	if err != nil {
		return ReplayStats{}, err
	}

	var stats ReplayStats
	for _, rec := range records {
		enc := rec.Header.Encode()

		outcome := sink.SubmitHeader(enc[:])
		switch outcome.Kind {
		case validator.Accepted:
			stats.Accepted++

		case validator.Orphaned:
			stats.Orphaned++

		default:
			log.Warnf("Stored header %v rejected on replay: %v",
				rec.Hash, outcome.Err)
			stats.Rejected++
		}
	}

	log.Infof("Replayed %d headers: %d accepted, %d orphaned, "+
		"%d rejected", stats.Total(), stats.Accepted, stats.Orphaned,
		stats.Rejected)

	return stats, nil
}

func (s *Store) encodeRecord(h *blockheader.Header) []byte {
	var b bytes.Buffer
	b.Grow(recordSize)

	enc := h.Encode()
	b.Write(enc[:])

	var seen [8]byte
	byteOrder.PutUint64(seen[:], uint64(s.clock.Now().Unix()))
	b.Write(seen[:])

	return b.Bytes()
}

func decodeRecord(k, v []byte) (Record, error) {
	if len(k) != 8 || len(v) != recordSize {
		return Record{}, fmt.Errorf("%w: key %x", ErrCorruptRecord, k)
	}

	h, err := blockheader.Decode(v[:blockheader.Size])
	if err != nil {
		return Record{}, fmt.Errorf("%w: %v", ErrCorruptRecord, err)
	}

	seen := int64(byteOrder.Uint64(v[blockheader.Size:]))

	return Record{
		Seq:    byteOrder.Uint64(k),
		Header: *h,
		Hash:   h.BlockHash(),
		Seen:   time.Unix(seen, 0),
	}, nil
}
