package docreason

import (
	"errors"

	"github.com/brimlabs/docreason/codec"
	"github.com/brimlabs/docreason/index"
	"github.com/brimlabs/docreason/parser"
	"github.com/brimlabs/docreason/plan"
	"github.com/brimlabs/docreason/retrieve"
	"github.com/brimlabs/docreason/store"
)

// Sentinel errors for the error taxonomy. Call sites wrap these with
// fmt.Errorf("...: %w", ErrX) and callers classify with errors.Is.
var (
	// ErrNotFound: doc_id absent, or a PDF path does not resolve.
	ErrNotFound = errors.New("docreason: not found")
	// ErrValidation: input fails a bound or enum check.
	ErrValidation = errors.New("docreason: validation failed")
	// ErrEmbeddingFailure: the embedding service returned an error.
	ErrEmbeddingFailure = errors.New("docreason: embedding failure")
	// ErrGenerationFailure: the generator service returned an error.
	ErrGenerationFailure = errors.New("docreason: generation failure")
	// ErrStoreUnavailable: the key-value store is unreachable.
	ErrStoreUnavailable = errors.New("docreason: store unavailable")
	// ErrTimeout: an upstream operation exceeded its deadline.
	ErrTimeout = errors.New("docreason: timeout")
	// ErrCorruptIndex: a snapshot fails the node/metadata invariants.
	ErrCorruptIndex = errors.New("docreason: corrupt index")
	// ErrVersionTooNew: a snapshot's version exceeds what this build understands.
	ErrVersionTooNew = errors.New("docreason: snapshot version too new")
	// ErrParseFailure: a PDF could not be decoded.
	ErrParseFailure = errors.New("docreason: parse failure")
)

// StatusCode maps an error to the HTTP status code it should surface as,
// per §7 of the system design. Unrecognized errors map to 500.
func StatusCode(err error) int {
	switch Kind(err) {
	case "NotFound":
		return 404
	case "Validation":
		return 400
	default:
		return 500
	}
}

// Kind returns the taxonomy name for an error: the wrapped sentinel it
// matches, or the taxonomy a leaf package's local error type maps to.
// Leaf packages (parser, index, codec, store, retrieve, plan) define
// their own small error types rather than importing this package, so
// classification happens here, at the boundary, by type assertion.
// Returns "" for an error this taxonomy does not recognize.
func Kind(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "NotFound"
	case errors.Is(err, ErrValidation):
		return "Validation"
	case errors.Is(err, ErrEmbeddingFailure):
		return "EmbeddingFailure"
	case errors.Is(err, ErrGenerationFailure):
		return "GenerationFailure"
	case errors.Is(err, ErrStoreUnavailable):
		return "StoreUnavailable"
	case errors.Is(err, ErrTimeout):
		return "Timeout"
	case errors.Is(err, ErrCorruptIndex):
		return "CorruptIndex"
	case errors.Is(err, ErrVersionTooNew):
		return "VersionTooNew"
	case errors.Is(err, ErrParseFailure):
		return "ParseFailure"
	}

	switch {
	case matchesAny(err, func(e error) bool {
		_, okP := e.(*parser.NotFoundError)
		_, okS := e.(*store.NotFoundError)
		_, okR := e.(*retrieve.NotFoundError)
		return okP || okS || okR
	}):
		return "NotFound"
	case matchesAny(err, func(e error) bool {
		_, okI := e.(*index.ValidationError)
		_, okR := e.(*retrieve.ValidationError)
		_, okP := e.(*plan.ValidationError)
		return okI || okR || okP
	}):
		return "Validation"
	case matchesAny(err, func(e error) bool {
		_, ok := e.(*codec.CorruptError)
		return ok
	}):
		return "CorruptIndex"
	case matchesAny(err, func(e error) bool {
		_, ok := e.(*codec.VersionTooNewError)
		return ok
	}):
		return "VersionTooNew"
	case matchesAny(err, func(e error) bool {
		_, ok := e.(*store.StoreUnavailableError)
		return ok
	}):
		return "StoreUnavailable"
	case matchesAny(err, func(e error) bool {
		_, ok := e.(*store.TimeoutError)
		return ok
	}):
		return "Timeout"
	case matchesAny(err, func(e error) bool {
		_, ok := e.(*parser.ParseFailureError)
		return ok
	}):
		return "ParseFailure"
	}
	return ""
}

// matchesAny walks err's unwrap chain looking for a match against pred.
// Leaf packages' error types are plain structs with no shared
// interface, so classification is done by type assertion per type
// rather than via errors.As against a single target.
func matchesAny(err error, pred func(error) bool) bool {
	for e := err; e != nil; e = errors.Unwrap(e) {
		if pred(e) {
			return true
		}
	}
	return false
}
