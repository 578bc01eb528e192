package plan

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/brimlabs/docreason/index"
)

func runner(name string, delay time.Duration, fail error) ChannelRunner {
	return func(ctx context.Context, docID, query string, topK int) (string, []index.SourceReference, error) {
		if delay > 0 {
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return "", nil, ctx.Err()
			}
		}
		if fail != nil {
			return "", nil, fail
		}
		return name + " answer for " + query, nil, nil
	}
}

func noopFusion(ctx context.Context, originalQuery string, channelAnswers map[string]*string) (string, error) {
	return "fused:" + originalQuery, nil
}

func TestMultiRetrieval_DisabledChannelAbsentFromMap(t *testing.T) {
	p := New(map[string]ChannelRunner{
		"table": runner("table", 0, nil),
		"text":  runner("text", 0, nil),
		"json":  runner("json", 0, nil),
	}, noopFusion, nil, nil)

	result, err := p.MultiRetrieval(context.Background(), "doc1", "q", ChannelFlags{UseTable: true, UseJSON: true}, 5)
	if err != nil {
		t.Fatalf("MultiRetrieval: %v", err)
	}
	if _, ok := result.Channels["text"]; ok {
		t.Error("expected disabled channel \"text\" to be absent from the map, not present as a null entry")
	}
	if _, ok := result.Channels["table"]; !ok {
		t.Error("expected enabled channel \"table\" present")
	}
	if _, ok := result.Channels["json"]; !ok {
		t.Error("expected enabled channel \"json\" present")
	}
}

func TestMultiRetrieval_NoChannelsEnabledIsValidationError(t *testing.T) {
	p := New(map[string]ChannelRunner{"table": runner("table", 0, nil)}, noopFusion, nil, nil)
	_, err := p.MultiRetrieval(context.Background(), "doc1", "q", ChannelFlags{}, 5)
	if _, ok := err.(*ValidationError); !ok {
		t.Fatalf("expected *ValidationError, got %T: %v", err, err)
	}
}

func TestMultiRetrieval_ChannelFailurePropagates(t *testing.T) {
	boom := errors.New("generation failed")
	p := New(map[string]ChannelRunner{
		"table": runner("table", 0, boom),
		"text":  runner("text", 10*time.Millisecond, nil),
	}, noopFusion, nil, nil)

	_, err := p.MultiRetrieval(context.Background(), "doc1", "q", ChannelFlags{UseTable: true, UseText: true}, 5)
	if err == nil {
		t.Fatal("expected an error when a channel fails")
	}
}

func TestAdvanced_PreservesInputOrderDespiteOutOfOrderCompletion(t *testing.T) {
	// Earlier subqueries take longer, so they complete last.
	delays := map[string]time.Duration{
		"first subquery":  40 * time.Millisecond,
		"second subquery": 20 * time.Millisecond,
	}
	channels := map[string]ChannelRunner{
		"table": func(ctx context.Context, docID, query string, topK int) (string, []index.SourceReference, error) {
			return runner("table", delays[query], nil)(ctx, docID, query, topK)
		},
	}
	decompose := func(ctx context.Context, query string) ([]string, error) {
		return []string{"first subquery", "second subquery", "third subquery"}, nil
	}
	integrate := func(ctx context.Context, originalQuery string, results []SubQueryResult) (string, error) {
		return "integrated", nil
	}

	p := New(channels, noopFusion, decompose, integrate)

	result, err := p.Advanced(context.Background(), "doc1", "original", ChannelFlags{UseTable: true}, 5)
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	want := []string{"first subquery", "second subquery", "third subquery"}
	if len(result.SubQueryResults) != len(want) {
		t.Fatalf("expected %d sub-query results, got %d", len(want), len(result.SubQueryResults))
	}
	for i, w := range want {
		if result.SubQueryResults[i].Subquery != w {
			t.Errorf("SubQueryResults[%d].Subquery = %q, want %q", i, result.SubQueryResults[i].Subquery, w)
		}
	}
}

func TestAdvanced_EmptyDecompositionFallsBackToOriginalQuery(t *testing.T) {
	channels := map[string]ChannelRunner{"table": runner("table", 0, nil)}
	decompose := func(ctx context.Context, query string) ([]string, error) { return nil, nil }
	integrate := func(ctx context.Context, originalQuery string, results []SubQueryResult) (string, error) {
		return "integrated", nil
	}

	p := New(channels, noopFusion, decompose, integrate)
	result, err := p.Advanced(context.Background(), "doc1", "original query", ChannelFlags{UseTable: true}, 5)
	if err != nil {
		t.Fatalf("Advanced: %v", err)
	}
	if len(result.SubQueryResults) != 1 || result.SubQueryResults[0].Subquery != "original query" {
		t.Fatalf("expected the original query as the sole subquery, got %+v", result.SubQueryResults)
	}
}
