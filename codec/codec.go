// Package codec implements the Index Codec (C4): serialization of an
// index.Snapshot to/from the compact, versioned JSON form persisted by
// the store. Parent/child relations are never serialized directly —
// they are reconstructed on Decode from metadata.parent_index and
// metadata.chunk_index (the arena-plus-index pattern: only the child's
// parent index is stored).
package codec

import (
	"encoding/json"
	"fmt"

	"github.com/brimlabs/docreason/index"
)

// wireNode mirrors index.Node's serialized shape exactly: id_, kind,
// text, metadata, embedding? — relations are intentionally absent.
type wireNode struct {
	ID        string          `json:"id_"`
	Kind      index.Kind      `json:"kind"`
	Text      string          `json:"text"`
	Metadata  index.Metadata  `json:"metadata"`
	Embedding []float32       `json:"embedding,omitempty"`
}

type wireSnapshot struct {
	Version int                `json:"version"`
	Meta     index.SnapshotMeta `json:"metadata"`
	Nodes    []wireNode         `json:"nodes"`
}

// Encode serializes a snapshot to UTF-8 JSON, not pretty-printed, keys in
// struct-declaration (insertion) order. Embeddings are written as arrays
// of 32-bit floats in canonical order.
func Encode(snap index.Snapshot) ([]byte, error) {
	wire := wireSnapshot{
		Version: snap.Version,
		Meta:    snap.Meta,
		Nodes:   make([]wireNode, len(snap.Nodes)),
	}
	for i, n := range snap.Nodes {
		wire.Nodes[i] = wireNode{
			ID:        n.ID,
			Kind:      n.Kind,
			Text:      n.Text,
			Metadata:  n.Metadata,
			Embedding: n.Embedding,
		}
	}
	data, err := json.Marshal(wire)
	if err != nil {
		return nil, fmt.Errorf("codec: encode: %w", err)
	}
	return data, nil
}

// Decode parses snapshot JSON and reconstructs parent/child relations
// from metadata. It refuses snapshots whose version is newer than
// CurrentVersion and validates the §3 invariants (every child's
// parent_index points to an existing parent; embeddings share one
// dimension).
func Decode(data []byte) (*index.Snapshot, error) {
	var wire wireSnapshot
	if err := json.Unmarshal(data, &wire); err != nil {
		return nil, &CorruptError{msg: fmt.Sprintf("codec: malformed snapshot json: %v", err)}
	}

	if wire.Version > index.CurrentVersion {
		return nil, &VersionTooNewError{msg: fmt.Sprintf("codec: snapshot version %d exceeds supported version %d", wire.Version, index.CurrentVersion)}
	}

	nodes := make([]index.Node, len(wire.Nodes))
	byOrdinal := make(map[int]int, len(wire.Nodes)) // parent chunk_index -> node slice index, for parents only
	parentIdxByNodeIdx := make(map[int]int)

	for i, wn := range wire.Nodes {
		nodes[i] = index.Node{
			ID:        wn.ID,
			Kind:      wn.Kind,
			Text:      wn.Text,
			Metadata:  wn.Metadata,
			Embedding: wn.Embedding,
		}
		if wn.Kind == index.KindParent {
			byOrdinal[wn.Metadata.ChunkIndex] = i
		}
	}

	embedDim := -1
	for i, wn := range wire.Nodes {
		if wn.Kind != index.KindChild {
			continue
		}
		if wn.Metadata.ParentIndex == nil {
			return nil, &CorruptError{msg: fmt.Sprintf("codec: child node %s has no parent_index", wn.ID)}
		}
		parentNodeIdx, ok := byOrdinal[*wn.Metadata.ParentIndex]
		if !ok {
			return nil, &CorruptError{msg: fmt.Sprintf("codec: child node %s references missing parent_index %d", wn.ID, *wn.Metadata.ParentIndex)}
		}
		nodes[i].ParentID = nodes[parentNodeIdx].ID
		nodes[parentNodeIdx].ChildIDs = append(nodes[parentNodeIdx].ChildIDs, wn.ID)
		parentIdxByNodeIdx[i] = parentNodeIdx

		if len(wn.Embedding) > 0 {
			if embedDim == -1 {
				embedDim = len(wn.Embedding)
			} else if embedDim != len(wn.Embedding) {
				return nil, &CorruptError{msg: fmt.Sprintf("codec: child node %s embedding dimension %d does not match snapshot dimension %d", wn.ID, len(wn.Embedding), embedDim)}
			}
		}
	}

	return &index.Snapshot{Version: wire.Version, Meta: wire.Meta, Nodes: nodes}, nil
}

// CorruptError reports a snapshot that fails the §3 node/metadata
// invariants. The root package wraps it as docreason.ErrCorruptIndex.
type CorruptError struct{ msg string }

func (e *CorruptError) Error() string { return e.msg }

// NewCorruptError constructs a CorruptError with the given message, for
// callers outside this package (e.g. the store, when a stored "nodes"
// field is missing entirely).
func NewCorruptError(msg string) *CorruptError { return &CorruptError{msg: msg} }

// VersionTooNewError reports a snapshot version newer than this build
// understands. The root package wraps it as docreason.ErrVersionTooNew.
type VersionTooNewError struct{ msg string }

func (e *VersionTooNewError) Error() string { return e.msg }
