package codec

import (
	"testing"
	"time"

	"github.com/brimlabs/docreason/index"
)

func sampleSnapshot() index.Snapshot {
	parentIdx := 0
	return index.Snapshot{
		Version: index.CurrentVersion,
		Meta: index.SnapshotMeta{
			DocID:       "doc1",
			FileName:    "policy.pdf",
			NumPages:    3,
			TotalNodes:  2,
			ChildNodes:  1,
			ParentNodes: 1,
			CreatedAt:   time.Unix(0, 0).UTC(),
			UpdatedAt:   time.Unix(0, 0).UTC(),
			ChunkConfig: index.DefaultChunkConfig(),
		},
		Nodes: []index.Node{
			{
				ID:   "p0",
				Kind: index.KindParent,
				Text: "parent text",
				Metadata: index.Metadata{
					ChunkIndex: 0,
					Kind:       string(index.KindParent),
				},
			},
			{
				ID:        "p0-c0",
				Kind:      index.KindChild,
				Text:      "child text",
				Embedding: []float32{0.1, 0.2, 0.3},
				Metadata: index.Metadata{
					ChunkIndex:  0,
					ParentIndex: &parentIdx,
					Kind:        string(index.KindChild),
				},
			},
		},
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	snap := sampleSnapshot()

	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if len(decoded.Nodes) != len(snap.Nodes) {
		t.Fatalf("node count mismatch: got %d want %d", len(decoded.Nodes), len(snap.Nodes))
	}

	var parent, child *index.Node
	for i := range decoded.Nodes {
		n := &decoded.Nodes[i]
		switch n.Kind {
		case index.KindParent:
			parent = n
		case index.KindChild:
			child = n
		}
	}
	if parent == nil || child == nil {
		t.Fatal("expected one parent and one child after decode")
	}
	if child.ParentID != parent.ID {
		t.Errorf("child.ParentID = %q, want %q", child.ParentID, parent.ID)
	}
	if len(parent.ChildIDs) != 1 || parent.ChildIDs[0] != child.ID {
		t.Errorf("parent.ChildIDs = %v, want [%s]", parent.ChildIDs, child.ID)
	}
	for i, f := range child.Embedding {
		if f != snap.Nodes[1].Embedding[i] {
			t.Errorf("embedding[%d] = %v, want %v (bit-exact round trip required)", i, f, snap.Nodes[1].Embedding[i])
		}
	}
}

func TestDecode_RefusesNewerVersion(t *testing.T) {
	snap := sampleSnapshot()
	snap.Version = index.CurrentVersion + 1
	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Decode(data)
	if err == nil {
		t.Fatal("expected a VersionTooNewError, got nil")
	}
	if _, ok := err.(*VersionTooNewError); !ok {
		t.Fatalf("expected *VersionTooNewError, got %T: %v", err, err)
	}
}

func TestDecode_RejectsDanglingParentIndex(t *testing.T) {
	parentIdx := 99
	snap := index.Snapshot{
		Version: index.CurrentVersion,
		Nodes: []index.Node{
			{
				ID:   "p0-c0",
				Kind: index.KindChild,
				Text: "orphan child",
				Metadata: index.Metadata{
					ChunkIndex:  0,
					ParentIndex: &parentIdx,
					Kind:        string(index.KindChild),
				},
			},
		},
	}
	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Decode(data)
	if err == nil {
		t.Fatal("expected a CorruptError for a dangling parent_index, got nil")
	}
	if _, ok := err.(*CorruptError); !ok {
		t.Fatalf("expected *CorruptError, got %T: %v", err, err)
	}
}

func TestDecode_RejectsMismatchedEmbeddingDimensions(t *testing.T) {
	p0, p1 := 0, 0
	_ = p1
	snap := index.Snapshot{
		Version: index.CurrentVersion,
		Nodes: []index.Node{
			{ID: "p0", Kind: index.KindParent, Text: "p", Metadata: index.Metadata{ChunkIndex: 0, Kind: string(index.KindParent)}},
			{ID: "p0-c0", Kind: index.KindChild, Text: "c0", Embedding: []float32{1, 2}, Metadata: index.Metadata{ChunkIndex: 0, ParentIndex: &p0, Kind: string(index.KindChild)}},
			{ID: "p0-c1", Kind: index.KindChild, Text: "c1", Embedding: []float32{1, 2, 3}, Metadata: index.Metadata{ChunkIndex: 1, ParentIndex: &p0, Kind: string(index.KindChild)}},
		},
	}
	data, err := Encode(snap)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	_, err = Decode(data)
	if err == nil {
		t.Fatal("expected a CorruptError for mismatched embedding dimensions, got nil")
	}
}
