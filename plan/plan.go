// Package plan implements the Query Planner (C9): the Multi-retrieval
// plan (concurrent channel operations joined, then fused) and the
// Advanced plan (decompose, run Multi-retrieval per subquery, then
// integrate), both preserving caller-visible ordering per §4.9/§5.
package plan

import (
	"context"
	"fmt"
	"sync"

	"github.com/brimlabs/docreason/index"
)

// ChannelFlags selects which retrieval channels a Multi-retrieval plan
// runs.
type ChannelFlags struct {
	UseTable bool
	UseText  bool
	UseJSON  bool
}

// ChannelResult is one channel's answer and the source references it
// was grounded on.
type ChannelResult struct {
	Channel          string                  `json:"channel"`
	Answer           string                  `json:"answer"`
	SourceReferences []index.SourceReference `json:"source_references"`
}

// MultiRetrievalResult maps each enabled channel's name to its result.
// A disabled channel's name is simply absent from the map — per the
// resolved open question, callers key off presence rather than reading
// positional nulls.
type MultiRetrievalResult struct {
	Channels    map[string]*ChannelResult `json:"channels"`
	FusedAnswer string                    `json:"fused_answer"`
}

// ChannelRunner executes one channel's retrieval+prompt+generation
// pipeline and returns its answer text and the source references it
// cites.
type ChannelRunner func(ctx context.Context, docID, query string, topK int) (string, []index.SourceReference, error)

// FusionRunner integrates whichever channels produced answers (channels
// the caller didn't enable are absent from the map) into one final answer.
type FusionRunner func(ctx context.Context, originalQuery string, channelAnswers map[string]*string) (string, error)

// DecomposeRunner splits a query into independently-answerable
// subqueries. An empty result means "do not decompose."
type DecomposeRunner func(ctx context.Context, query string) ([]string, error)

// SubQueryResult is one subquery's Multi-retrieval outcome.
type SubQueryResult struct {
	Subquery string                `json:"subquery"`
	Result   *MultiRetrievalResult `json:"result"`
}

// IntegrateRunner takes the original query and the ordered subquery
// results and produces a single consolidated answer.
type IntegrateRunner func(ctx context.Context, originalQuery string, subQueryResults []SubQueryResult) (string, error)

// AdvancedResult is the output of the Advanced (decompose + multi) plan.
type AdvancedResult struct {
	OriginalQuery   string           `json:"original_query"`
	SubQueryResults []SubQueryResult `json:"sub_query_results"`
	FinalAnswer     string           `json:"final_answer"`
}

// ValidationError reports an invalid plan request (e.g. no channel
// enabled). The root package wraps it as docreason.ErrValidation.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

// Planner runs the Multi-retrieval and Advanced plans against
// caller-supplied channel/fusion/decompose/integrate runners, keeping
// this package free of any dependency on the concrete retriever,
// prompt, or LLM types.
type Planner struct {
	channels  map[string]ChannelRunner
	fusion    FusionRunner
	decompose DecomposeRunner
	integrate IntegrateRunner
}

// New returns a Planner. channels should have entries for "table",
// "text", and "json"; a channel flag with no matching entry is treated
// as not runnable and causes MultiRetrieval to fail if enabled.
func New(channels map[string]ChannelRunner, fusion FusionRunner, decompose DecomposeRunner, integrate IntegrateRunner) *Planner {
	return &Planner{channels: channels, fusion: fusion, decompose: decompose, integrate: integrate}
}

// MultiRetrieval launches every enabled channel concurrently against
// the same document, awaits all of them, and invokes fusion with
// whichever channels produced answers.
func (p *Planner) MultiRetrieval(ctx context.Context, docID, query string, flags ChannelFlags, topK int) (*MultiRetrievalResult, error) {
	type job struct {
		name   string
		runner ChannelRunner
	}
	var jobs []job
	if flags.UseTable {
		jobs = append(jobs, job{"table", p.channels["table"]})
	}
	if flags.UseText {
		jobs = append(jobs, job{"text", p.channels["text"]})
	}
	if flags.UseJSON {
		jobs = append(jobs, job{"json", p.channels["json"]})
	}
	if len(jobs) == 0 {
		return nil, &ValidationError{msg: "multi-retrieval: at least one channel must be enabled"}
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	type outcome struct {
		name   string
		result *ChannelResult
		err    error
	}
	outcomes := make(chan outcome, len(jobs))
	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(j job) {
			defer wg.Done()
			if j.runner == nil {
				outcomes <- outcome{name: j.name, err: fmt.Errorf("multi-retrieval: no runner registered for channel %q", j.name)}
				return
			}
			answer, refs, err := j.runner(ctx, docID, query, topK)
			if err != nil {
				outcomes <- outcome{name: j.name, err: err}
				cancel() // cancel sibling channel calls cooperatively (§5)
				return
			}
			outcomes <- outcome{name: j.name, result: &ChannelResult{Channel: j.name, Answer: answer, SourceReferences: refs}}
		}(j)
	}
	go func() {
		wg.Wait()
		close(outcomes)
	}()

	results := make(map[string]*ChannelResult, len(jobs))
	var firstErr error
	for o := range outcomes {
		if o.err != nil {
			if firstErr == nil {
				firstErr = o.err
			}
			continue
		}
		results[o.name] = o.result
	}
	if firstErr != nil {
		return nil, firstErr
	}

	channelAnswers := make(map[string]*string, len(results))
	for name, r := range results {
		answer := r.Answer
		channelAnswers[name] = &answer
	}

	fused, err := p.fusion(ctx, query, channelAnswers)
	if err != nil {
		return nil, fmt.Errorf("multi-retrieval: fusion: %w", err)
	}

	return &MultiRetrievalResult{Channels: results, FusedAnswer: fused}, nil
}

// Advanced decomposes query, runs the Multi-retrieval plan once per
// subquery (concurrently, but indexed so the returned slice preserves
// input order regardless of completion order), and integrates the
// ordered results into one final answer.
func (p *Planner) Advanced(ctx context.Context, docID, query string, flags ChannelFlags, topK int) (*AdvancedResult, error) {
	subqueries, err := p.decompose(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("advanced: decompose: %w", err)
	}
	if len(subqueries) == 0 {
		subqueries = []string{query}
	}

	results := make([]SubQueryResult, len(subqueries))
	errs := make([]error, len(subqueries))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for i, sq := range subqueries {
		wg.Add(1)
		go func(i int, sq string) {
			defer wg.Done()
			r, err := p.MultiRetrieval(ctx, docID, sq, flags, topK)
			if err != nil {
				errs[i] = err
				cancel()
				return
			}
			results[i] = SubQueryResult{Subquery: sq, Result: r}
		}(i, sq)
	}
	wg.Wait()

	for _, e := range errs {
		if e != nil {
			return nil, e
		}
	}

	final, err := p.integrate(ctx, query, results)
	if err != nil {
		return nil, fmt.Errorf("advanced: integrate: %w", err)
	}

	return &AdvancedResult{OriginalQuery: query, SubQueryResults: results, FinalAnswer: final}, nil
}
