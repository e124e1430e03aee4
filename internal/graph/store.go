package graph

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/sirupsen/logrus"
)

// Key layout:
//
//	v/<id>                       -> msgpack vertex
//	e/<type>/<source>/<target>   -> msgpack edge
//
// The edge prefix makes "all edges of one type" a single range scan, which
// is the access pattern of the contradiction query.
const (
	vertexPrefix = "v/"
	edgePrefix   = "e/"
)

// Store is the persistent graph.
type Store struct {
	db     *badger.DB
	mu     sync.RWMutex
	closed bool
}

// Open opens (or creates) a graph store at dir.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create graph directory: %w", err)
	}

	opts := badger.DefaultOptions(dir)
	opts.Logger = &badgerLogger{log: logrus.WithField("component", "graph")}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open graph store: %w", err)
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

// AddVertex stores one vertex, overwriting any previous version.
func (s *Store) AddVertex(v *Vertex) error {
	if s.isClosed() {
		return fmt.Errorf("graph store is closed")
	}
	if err := v.Validate(); err != nil {
		return err
	}
	data, err := v.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal vertex: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(vertexPrefix+v.ID), data)
	})
}

// GetVertex retrieves a vertex by id.
func (s *Store) GetVertex(id string) (*Vertex, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("graph store is closed")
	}
	var v Vertex
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(vertexPrefix + id))
		if err == badger.ErrKeyNotFound {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		return item.Value(v.UnmarshalBinary)
	})
	if err != nil {
		return nil, err
	}
	return &v, nil
}

// AddEdge stores one edge, overwriting any previous edge with the same
// (type, source, target).
func (s *Store) AddEdge(e *Edge) error {
	if s.isClosed() {
		return fmt.Errorf("graph store is closed")
	}
	if err := e.Validate(); err != nil {
		return err
	}
	data, err := e.MarshalBinary()
	if err != nil {
		return fmt.Errorf("failed to marshal edge: %w", err)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(edgeKey(e), data)
	})
}

// BatchAddVertices stores vertices in one transaction.
func (s *Store) BatchAddVertices(vertices []*Vertex) error {
	if s.isClosed() {
		return fmt.Errorf("graph store is closed")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, v := range vertices {
			if err := v.Validate(); err != nil {
				return err
			}
			data, err := v.MarshalBinary()
			if err != nil {
				return err
			}
			if err := txn.Set([]byte(vertexPrefix+v.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// BatchAddEdges stores edges in one transaction.
func (s *Store) BatchAddEdges(edges []*Edge) error {
	if s.isClosed() {
		return fmt.Errorf("graph store is closed")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for _, e := range edges {
			if err := e.Validate(); err != nil {
				return err
			}
			data, err := e.MarshalBinary()
			if err != nil {
				return err
			}
			if err := txn.Set(edgeKey(e), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// AllVertices returns up to limit vertices. limit <= 0 means no limit.
func (s *Store) AllVertices(ctx context.Context, limit int) ([]Vertex, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("graph store is closed")
	}

	prefix := []byte(vertexPrefix)
	var vertices []Vertex

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			if limit > 0 && len(vertices) >= limit {
				return nil
			}
			var v Vertex
			if err := it.Item().Value(v.UnmarshalBinary); err != nil {
				return fmt.Errorf("corrupt vertex %s: %w", it.Item().Key(), err)
			}
			vertices = append(vertices, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return vertices, nil
}

// EdgesAmong returns all edges of the given type whose source and target are
// both in nodeIDs. This is the contradiction-analysis access path.
func (s *Store) EdgesAmong(ctx context.Context, edgeType string, nodeIDs []string) ([]Edge, error) {
	if s.isClosed() {
		return nil, fmt.Errorf("graph store is closed")
	}

	wanted := make(map[string]bool, len(nodeIDs))
	for _, id := range nodeIDs {
		wanted[id] = true
	}

	prefix := []byte(edgePrefix + edgeType + "/")
	var edges []Edge

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = true
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var e Edge
			if err := it.Item().Value(e.UnmarshalBinary); err != nil {
				return fmt.Errorf("corrupt edge %s: %w", it.Item().Key(), err)
			}
			if wanted[e.Source] && wanted[e.Target] {
				edges = append(edges, e)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func edgeKey(e *Edge) []byte {
	return []byte(edgePrefix + e.Type + "/" + e.Source + "/" + e.Target)
}

type badgerLogger struct {
	log *logrus.Entry
}

func (bl *badgerLogger) Errorf(format string, args ...any)   { bl.log.Errorf(format, args...) }
func (bl *badgerLogger) Warningf(format string, args ...any) { bl.log.Warnf(format, args...) }
func (bl *badgerLogger) Infof(format string, args ...any)    {}
func (bl *badgerLogger) Debugf(format string, args ...any)   {}
