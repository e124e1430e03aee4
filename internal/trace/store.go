// Package trace persists every routed envelope in an append-only log keyed
// by conversation id, backed by badger. The log is an operational record:
// append failures are reported to the caller, who logs and proceeds, because
// trace durability never gates routing.
package trace

import (
	"bytes"
	"fmt"
	"os"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"

	"github.com/lexgraph/lexgraph/internal/envelope"
)

// Key layout:
//
//	conv/<conversation_id>/<timestamp_nanos %020d>/<seq %012d> -> wire envelope
//	msg/<message_id>                                           -> conv key
//
// The conv prefix yields per-conversation range scans in timestamp order with
// an insertion-sequence tiebreak; the msg index makes appends idempotent.
const (
	convPrefix = "conv/"
	msgPrefix  = "msg/"
)

// Store is the append-only envelope log.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
	seq    atomic.Uint64
}

// Open opens (or creates) a trace store at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create trace directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{log: logrus.WithField("component", "trace")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open trace store: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the underlying database. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func (s *Store) isClosed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.closed
}

// Append stores the envelope. Idempotent on message id: re-appending an
// already-stored id is a no-op that succeeds, so the final byte image of the
// log is unchanged by duplicates.
func (s *Store) Append(env *envelope.Envelope) error {
	if s.isClosed() {
		return fmt.Errorf("trace store is closed")
	}

	encoded, err := envelope.Encode(env)
	if err != nil {
		return fmt.Errorf("failed to encode envelope: %w", err)
	}

	msgKey := []byte(msgPrefix + env.MessageID)
	convKey := []byte(fmt.Sprintf("%s%s/%020d/%012d",
		convPrefix, env.ConversationID, env.Timestamp.UnixNano(), s.seq.Add(1)))

	return s.db.Update(func(txn *badger.Txn) error {
		_, err := txn.Get(msgKey)
		if err == nil {
			return nil // already appended
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set(convKey, encoded); err != nil {
			return err
		}
		return txn.Set(msgKey, convKey)
	})
}

// ByConversation returns all envelopes of a conversation in non-decreasing
// timestamp order. Writers may interleave out of causal order; the result is
// a consistent snapshot at call time, sorted by timestamp.
func (s *Store) ByConversation(conversationID string) ([]*envelope.Envelope, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("trace store is closed")
	}

	prefix := []byte(convPrefix + conversationID + "/")
	var envelopes []*envelope.Envelope

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				env, err := envelope.Decode(val)
				if err != nil {
					return fmt.Errorf("corrupt trace entry %s: %w", item.Key(), err)
				}
				envelopes = append(envelopes, env)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(envelopes, func(i, j int) bool {
		return envelopes[i].Timestamp.Before(envelopes[j].Timestamp)
	})
	return envelopes, nil
}

// Cleanup deletes every trace entry older than the given instant and returns
// the number of envelopes removed.
func (s *Store) Cleanup(olderThan time.Time) (int, error) {
	if s.isClosed() {
		return 0, fmt.Errorf("trace store is closed")
	}

	cutoff := olderThan.UnixNano()
	deleted := 0

	// Collect first, delete in a second pass: badger forbids writes while
	// an iterator is open on the same transaction.
	var convKeys [][]byte
	var msgKeys [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(convPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				env, err := envelope.Decode(val)
				if err != nil || env.Timestamp.UnixNano() >= cutoff {
					return nil
				}
				convKeys = append(convKeys, item.KeyCopy(nil))
				msgKeys = append(msgKeys, []byte(msgPrefix+env.MessageID))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for i := range convKeys {
		if err := wb.Delete(convKeys[i]); err != nil {
			return deleted, err
		}
		if err := wb.Delete(msgKeys[i]); err != nil {
			return deleted, err
		}
		deleted++
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return deleted, nil
}

// Contains reports whether a message id has been appended. Used by tests and
// the janitor; not on the routing hot path.
func (s *Store) Contains(messageID string) (bool, error) {
	if s.isClosed() {
		return false, fmt.Errorf("trace store is closed")
	}

	var exists bool
	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(msgPrefix + messageID))
		if err == badger.ErrKeyNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		exists = true
		return nil
	})
	return exists, err
}

// Snapshot returns the raw byte image of a conversation's log entries in key
// order. Tests use it to compare final log images.
func (s *Store) Snapshot(conversationID string) ([][]byte, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("trace store is closed")
	}

	prefix := []byte(convPrefix + conversationID + "/")
	var image [][]byte

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			val, err := it.Item().ValueCopy(nil)
			if err != nil {
				return err
			}
			image = append(image, bytes.Clone(val))
		}
		return nil
	})
	return image, err
}

type badgerLogger struct {
	log *logrus.Entry
}

func (bl *badgerLogger) Errorf(format string, args ...any)   { bl.log.Errorf(format, args...) }
func (bl *badgerLogger) Warningf(format string, args ...any) { bl.log.Warnf(format, args...) }
func (bl *badgerLogger) Infof(format string, args ...any)    {}
func (bl *badgerLogger) Debugf(format string, args ...any)   {}
