// Package store implements the Index Store (C5): persistence of codec
// output under a document id in Redis, keyed "doc:<doc_id>" with fields
// "nodes" and "metadata", with TTL, existence checks, enumeration, and
// deletion: HSET doc:<doc_id> nodes=<json> metadata=<json>.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/brimlabs/docreason/codec"
	"github.com/brimlabs/docreason/index"
)

const keyPrefix = "doc:"

// Store persists index snapshots in Redis.
type Store struct {
	rdb     *redis.Client
	timeout time.Duration
}

// New returns a Store backed by rdb. timeout bounds every individual
// operation (30s default per §4.5/§6).
func New(rdb *redis.Client, timeout time.Duration) *Store {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Store{rdb: rdb, timeout: timeout}
}

func docKey(docID string) string { return keyPrefix + docID }

// Put overwrites the snapshot stored under docID. If ttl > 0 it is
// applied after the HSET completes, matching the original
// save_index_to_redis two-step HSET-then-EXPIRE sequence.
func (s *Store) Put(ctx context.Context, docID string, snap index.Snapshot, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	nodesJSON, err := codec.Encode(snap)
	if err != nil {
		return fmt.Errorf("store: encoding snapshot for %s: %w", docID, err)
	}
	metaJSON, err := json.Marshal(snap.Meta)
	if err != nil {
		return fmt.Errorf("store: encoding metadata for %s: %w", docID, err)
	}

	key := docKey(docID)
	if err := s.rdb.HSet(ctx, key, map[string]any{
		"nodes":    nodesJSON,
		"metadata": metaJSON,
	}).Err(); err != nil {
		return s.classify(ctx, "put", err)
	}

	if ttl > 0 {
		if err := s.rdb.Expire(ctx, key, ttl).Err(); err != nil {
			return s.classify(ctx, "put (expire)", err)
		}
	}
	return nil
}

// Get returns the current snapshot for docID, or a NotFoundError if the
// key does not exist.
func (s *Store) Get(ctx context.Context, docID string) (*index.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	data, err := s.rdb.HGetAll(ctx, docKey(docID)).Result()
	if err != nil {
		return nil, s.classify(ctx, "get", err)
	}
	if len(data) == 0 {
		return nil, &NotFoundError{msg: fmt.Sprintf("store: document %q not found", docID)}
	}

	nodesJSON, ok := data["nodes"]
	if !ok || nodesJSON == "" {
		return nil, codec.NewCorruptError(fmt.Sprintf("store: document %q is missing its nodes field", docID))
	}

	snap, err := codec.Decode([]byte(nodesJSON))
	if err != nil {
		return nil, fmt.Errorf("store: decoding document %q: %w", docID, err)
	}
	return snap, nil
}

// Exists reports whether docID has a stored snapshot.
func (s *Store) Exists(ctx context.Context, docID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.rdb.Exists(ctx, docKey(docID)).Result()
	if err != nil {
		return false, s.classify(ctx, "exists", err)
	}
	return n > 0, nil
}

// Delete removes docID's snapshot if present. It is idempotent: deleting
// an absent document returns (false, nil), not an error.
func (s *Store) Delete(ctx context.Context, docID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	n, err := s.rdb.Del(ctx, docKey(docID)).Result()
	if err != nil {
		return false, s.classify(ctx, "delete", err)
	}
	return n > 0, nil
}

// DocumentInfo is one entry returned by List.
type DocumentInfo struct {
	DocID string             `json:"doc_id"`
	Meta  index.SnapshotMeta `json:"metadata"`
}

// List enumerates all stored documents via SCAN (at-most-once per key
// within a single call), returning each doc_id with its metadata block.
func (s *Store) List(ctx context.Context) ([]DocumentInfo, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	var (
		cursor uint64
		keys   []string
	)
	for {
		batch, next, err := s.rdb.Scan(ctx, cursor, keyPrefix+"*", 100).Result()
		if err != nil {
			return nil, s.classify(ctx, "list", err)
		}
		keys = append(keys, batch...)
		cursor = next
		if cursor == 0 {
			break
		}
	}

	docs := make([]DocumentInfo, 0, len(keys))
	for _, key := range keys {
		docID := key[len(keyPrefix):]
		metaJSON, err := s.rdb.HGet(ctx, key, "metadata").Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			return nil, s.classify(ctx, "list", err)
		}
		var meta index.SnapshotMeta
		if err := json.Unmarshal([]byte(metaJSON), &meta); err != nil {
			continue // skip unparseable entries rather than fail the whole listing
		}
		docs = append(docs, DocumentInfo{DocID: docID, Meta: meta})
	}
	return docs, nil
}

// classify maps a redis-client error to the store's error taxonomy:
// context deadline exceeded becomes TimeoutError, everything else
// becomes StoreUnavailableError.
func (s *Store) classify(ctx context.Context, op string, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return &TimeoutError{msg: fmt.Sprintf("store: %s: timed out after %s", op, s.timeout)}
	}
	return &StoreUnavailableError{msg: fmt.Sprintf("store: %s: %v", op, err)}
}

// NotFoundError reports that a doc_id has no stored snapshot. The root
// package wraps it as docreason.ErrNotFound.
type NotFoundError struct{ msg string }

func (e *NotFoundError) Error() string { return e.msg }

// StoreUnavailableError reports that Redis could not be reached. The
// root package wraps it as docreason.ErrStoreUnavailable.
type StoreUnavailableError struct{ msg string }

func (e *StoreUnavailableError) Error() string { return e.msg }

// TimeoutError reports that an operation exceeded its deadline. The root
// package wraps it as docreason.ErrTimeout.
type TimeoutError struct{ msg string }

func (e *TimeoutError) Error() string { return e.msg }
