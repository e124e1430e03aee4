// Package graph is a badger-backed property graph holding the legal corpus
// nodes and relations the analysis workflow consults. The coordination core
// only queries it for typed edges between known node ids; corpus ingestion
// happens out of band through the batch helpers.
package graph

import (
	"errors"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

var (
	ErrInvalidVertex = errors.New("invalid vertex: id and type are required")
	ErrInvalidEdge   = errors.New("invalid edge: source, target and type are required")
	ErrNotFound      = errors.New("not found")
)

// RelatesTo is the edge type the analysis workflow traverses; the nature of
// the relation lives in the edge's "type" property (e.g. CONTRADICTS).
const RelatesTo = "RELATES_TO"

// Vertex is one corpus node.
type Vertex struct {
	ID         string         `json:"id" msgpack:"id"`
	Type       string         `json:"type" msgpack:"type"`
	Properties map[string]any `json:"properties" msgpack:"properties"`
	CreatedAt  time.Time      `json:"created_at" msgpack:"created_at"`
}

// NewVertex creates a vertex with an empty property set.
func NewVertex(id, vertexType string) *Vertex {
	return &Vertex{
		ID:         id,
		Type:       vertexType,
		Properties: make(map[string]any),
		CreatedAt:  time.Now().UTC(),
	}
}

func (v *Vertex) Validate() error {
	if v.ID == "" || v.Type == "" {
		return ErrInvalidVertex
	}
	return nil
}

// vertexAlias strips Vertex's methods so msgpack encodes the fields instead
// of recursing back into MarshalBinary/UnmarshalBinary.
type vertexAlias Vertex

func (v *Vertex) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal((*vertexAlias)(v))
}

func (v *Vertex) UnmarshalBinary(data []byte) error {
	return msgpack.Unmarshal(data, (*vertexAlias)(v))
}

// Edge is one directed relation between vertices.
type Edge struct {
	Source     string         `json:"source" msgpack:"source"`
	Target     string         `json:"target" msgpack:"target"`
	Type       string         `json:"type" msgpack:"type"`
	Weight     float64        `json:"weight" msgpack:"weight"`
	Properties map[string]any `json:"properties" msgpack:"properties"`
	CreatedAt  time.Time      `json:"created_at" msgpack:"created_at"`
}

// NewEdge creates an edge with an empty property set.
func NewEdge(source, target, edgeType string) *Edge {
	return &Edge{
		Source:     source,
		Target:     target,
		Type:       edgeType,
		Properties: make(map[string]any),
		CreatedAt:  time.Now().UTC(),
	}
}

func (e *Edge) Validate() error {
	if e.Source == "" || e.Target == "" || e.Type == "" {
		return ErrInvalidEdge
	}
	return nil
}

// Property returns a string-typed property, with "" for absent values.
func (e *Edge) Property(key string) string {
	if e.Properties == nil {
		return ""
	}
	if s, ok := e.Properties[key].(string); ok {
		return s
	}
	return ""
}

// edgeAlias strips Edge's methods so msgpack encodes the fields instead of
// recursing back into MarshalBinary/UnmarshalBinary.
type edgeAlias Edge

func (e *Edge) MarshalBinary() ([]byte, error) {
	return msgpack.Marshal((*edgeAlias)(e))
}

func (e *Edge) UnmarshalBinary(data []byte) error {
	return msgpack.Unmarshal(data, (*edgeAlias)(e))
}
