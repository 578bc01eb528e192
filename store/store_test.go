package store

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/brimlabs/docreason/index"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	return New(client, 5*time.Second)
}

func sampleSnapshot(docID string) index.Snapshot {
	parentIdx := 0
	now := time.Unix(1700000000, 0).UTC()
	return index.Snapshot{
		Version: index.CurrentVersion,
		Meta: index.SnapshotMeta{
			DocID:       docID,
			FileName:    "policy.pdf",
			NumPages:    1,
			TotalNodes:  2,
			ChildNodes:  1,
			ParentNodes: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
			ChunkConfig: index.DefaultChunkConfig(),
		},
		Nodes: []index.Node{
			{ID: "p0", Kind: index.KindParent, Text: "parent", Metadata: index.Metadata{ChunkIndex: 0, Kind: string(index.KindParent)}},
			{ID: "p0-c0", Kind: index.KindChild, Text: "child", Embedding: []float32{0.5, 0.5}, Metadata: index.Metadata{ChunkIndex: 0, ParentIndex: &parentIdx, Kind: string(index.KindChild)}},
		},
	}
}

func TestPutGet_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	snap := sampleSnapshot("doc1")

	if err := s.Put(ctx, "doc1", snap, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := s.Get(ctx, "doc1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Meta.DocID != "doc1" || got.Meta.FileName != "policy.pdf" {
		t.Errorf("unexpected metadata: %+v", got.Meta)
	}
	if len(got.Nodes) != 2 {
		t.Errorf("expected 2 nodes, got %d", len(got.Nodes))
	}
}

func TestGet_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get(context.Background(), "missing")
	if _, ok := err.(*NotFoundError); !ok {
		t.Fatalf("expected *NotFoundError, got %T: %v", err, err)
	}
}

func TestExistsAndDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	snap := sampleSnapshot("doc2")

	if err := s.Put(ctx, "doc2", snap, 0); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ok, err := s.Exists(ctx, "doc2")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}

	deleted, err := s.Delete(ctx, "doc2")
	if err != nil || !deleted {
		t.Fatalf("Delete: deleted=%v err=%v", deleted, err)
	}

	// delete(delete(doc_id)) is equivalent to delete(doc_id): idempotent,
	// no error, reports false the second time.
	deletedAgain, err := s.Delete(ctx, "doc2")
	if err != nil {
		t.Fatalf("Delete (again): %v", err)
	}
	if deletedAgain {
		t.Error("expected second delete to report false")
	}

	ok, err = s.Exists(ctx, "doc2")
	if err != nil || ok {
		t.Fatalf("Exists after delete: ok=%v err=%v", ok, err)
	}
}

func TestPut_WithTTL(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	snap := sampleSnapshot("doc3")

	if err := s.Put(ctx, "doc3", snap, time.Hour); err != nil {
		t.Fatalf("Put: %v", err)
	}
	ok, err := s.Exists(ctx, "doc3")
	if err != nil || !ok {
		t.Fatalf("Exists: ok=%v err=%v", ok, err)
	}
}

func TestList_ReflectsPutsAndDeletes(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "a", sampleSnapshot("a"), 0); err != nil {
		t.Fatalf("Put a: %v", err)
	}
	if err := s.Put(ctx, "b", sampleSnapshot("b"), 0); err != nil {
		t.Fatalf("Put b: %v", err)
	}
	if _, err := s.Delete(ctx, "a"); err != nil {
		t.Fatalf("Delete a: %v", err)
	}

	docs, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(docs) != 1 || docs[0].DocID != "b" {
		t.Fatalf("List after put/delete sequence = %+v, want exactly [b]", docs)
	}
}
