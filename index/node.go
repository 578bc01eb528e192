// Package index defines the node and snapshot types shared by the
// hierarchical node builder, the codec, the store, and the retriever.
package index

import (
	"fmt"
	"time"
)

// Kind distinguishes parent nodes (wide context) from child nodes (the
// unit that is actually searched).
type Kind string

const (
	KindParent Kind = "parent"
	KindChild  Kind = "child"
)

// Metadata is the attribute set carried on every node. ParentIndex is
// present iff Kind == KindChild.
type Metadata struct {
	ChunkIndex  int    `json:"chunk_index"`
	ParentIndex *int   `json:"parent_index,omitempty"`
	PageLabel   string `json:"page_label,omitempty"`
	Kind        string `json:"kind"`
}

// Node is a single unit of retrieval. Embedding is only populated for
// child nodes. Relations are reconstructed at load time from
// Metadata.ParentIndex / Metadata.ChunkIndex rather than stored directly
// (the arena-plus-index pattern avoids an ownership
// cycle between parents and children).
type Node struct {
	ID        string    `json:"id_"`
	Kind      Kind      `json:"kind"`
	Text      string    `json:"text"`
	Metadata  Metadata  `json:"metadata"`
	Embedding []float32 `json:"embedding,omitempty"`

	// ChildIDs is populated on parent nodes after load/build by
	// reconstructing the reverse map; it is never serialized directly
	// (the codec recomputes it, see codec.Decode).
	ChildIDs []string `json:"-"`
	// ParentID is populated on child nodes after load/build.
	ParentID string `json:"-"`
}

// ChunkConfig bounds the hierarchical node builder. Units are characters;
// defaults below match a sentence-splitter of parent 2048/100, child
// 512/50.
type ChunkConfig struct {
	ParentChunkSize    int `json:"parent_chunk_size"`
	ChildChunkSize     int `json:"child_chunk_size"`
	ParentChunkOverlap int `json:"parent_chunk_overlap"`
	ChildChunkOverlap  int `json:"child_chunk_overlap"`
}

// DefaultChunkConfig returns the sentence-splitter defaults: parent
// chunk_size=2048/chunk_overlap=100, child chunk_size=512/chunk_overlap=50.
func DefaultChunkConfig() ChunkConfig {
	return ChunkConfig{
		ParentChunkSize:    2048,
		ChildChunkSize:     512,
		ParentChunkOverlap: 100,
		ChildChunkOverlap:  50,
	}
}

// Validate checks the bounds fixed in §3 of the data model.
func (c ChunkConfig) Validate() error {
	switch {
	case c.ParentChunkSize < 256 || c.ParentChunkSize > 8192:
		return errValidationf("parent_chunk_size must be in [256, 8192], got %d", c.ParentChunkSize)
	case c.ChildChunkSize < 64 || c.ChildChunkSize > 2048:
		return errValidationf("child_chunk_size must be in [64, 2048], got %d", c.ChildChunkSize)
	case c.ParentChunkOverlap < 0 || c.ParentChunkOverlap > 500:
		return errValidationf("parent_chunk_overlap must be in [0, 500], got %d", c.ParentChunkOverlap)
	case c.ChildChunkOverlap < 0 || c.ChildChunkOverlap > 200:
		return errValidationf("child_chunk_overlap must be in [0, 200], got %d", c.ChildChunkOverlap)
	case c.ChildChunkSize >= c.ParentChunkSize:
		return errValidationf("child_chunk_size (%d) must be less than parent_chunk_size (%d)", c.ChildChunkSize, c.ParentChunkSize)
	}
	return nil
}

// SnapshotMeta is the metadata block attached to an index snapshot.
type SnapshotMeta struct {
	DocID       string    `json:"doc_id"`
	FileName    string    `json:"file_name"`
	NumPages    int       `json:"num_pages"`
	TotalNodes  int       `json:"total_nodes"`
	ChildNodes  int       `json:"child_nodes"`
	ParentNodes int       `json:"parent_nodes"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
	ChunkConfig ChunkConfig `json:"chunk_config"`
	AnalysisType string   `json:"analysis_type,omitempty"`
}

// Snapshot is a self-contained, versioned index: loading it reconstructs
// an index ready to serve retrieval without any external call.
type Snapshot struct {
	Version int          `json:"version"`
	Meta    SnapshotMeta `json:"metadata"`
	Nodes   []Node       `json:"nodes"`
}

// CurrentVersion is the snapshot format version this build writes and
// the newest version it will read.
const CurrentVersion = 1

// errValidationf is a tiny local helper so this package does not import
// the root package (which would create an import cycle); the root
// package wraps these into docreason.ErrValidation at the boundary.
func errValidationf(format string, args ...any) error {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}

// ValidationError carries a chunk-config validation message. The root
// package recognizes it and wraps it as docreason.ErrValidation.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }
