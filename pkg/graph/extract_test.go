package graph

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/OFFIS-RIT/storygraph/pkg/common"
)

func TestChunkExtractor_Status(t *testing.T) {
	schema := []common.Schema{MinimalSchema()}
	tests := []struct {
		name         string
		text         string
		wantStatus   int
		wantPartials int
		wantNonEmpty int
		wantFailures int
	}{
		{"all succeed", paragraphs("a", "b", "c", "d"), StatusOK, 4, 4, 0},
		{"one failure", paragraphs("a", "FAIL", "c", "d"), StatusPartial, 4, 3, 1},
		{"all fail", paragraphs("FAIL", "FAIL"), StatusFailed, 2, 0, 2},
		{"empty text", "", StatusOK, 0, 0, 0},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			e := NewChunkExtractor(NewChunkExtractorParams{Oracle: &fakeOracle{}})
			partials, stats := e.Extract(context.Background(), tc.text, schema, 100, 0)

			if stats.Status != tc.wantStatus {
				t.Errorf("status = %d, want %d", stats.Status, tc.wantStatus)
			}
			if len(partials) != tc.wantPartials {
				t.Fatalf("partials = %d, want %d", len(partials), tc.wantPartials)
			}
			nonEmpty := 0
			for _, p := range partials {
				if !p.Empty() {
					nonEmpty++
				}
			}
			if nonEmpty != tc.wantNonEmpty {
				t.Errorf("non-empty partials = %d, want %d", nonEmpty, tc.wantNonEmpty)
			}
			if stats.Failures != tc.wantFailures || len(stats.Errors) != tc.wantFailures {
				t.Errorf("failures = %d (%d errors), want %d", stats.Failures, len(stats.Errors), tc.wantFailures)
			}
		})
	}
}

func TestChunkExtractor_FailureDetails(t *testing.T) {
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: &fakeOracle{}})
	_, stats := e.Extract(context.Background(), paragraphs("a", "FAIL"), []common.Schema{MinimalSchema()}, 100, 0)

	if len(stats.Errors) != 1 {
		t.Fatalf("errors = %v", stats.Errors)
	}
	f := stats.Errors[0]
	if f.Window != 1 || f.SubSchema != SchemaMinimal {
		t.Errorf("failure = %+v", f)
	}
	if !errors.Is(f, errFakeOracle) {
		t.Errorf("failure does not wrap oracle error: %v", f)
	}
}

func TestChunkExtractor_CallOrder(t *testing.T) {
	oracle := &fakeOracle{}
	subs := PlanSchema(common.NewSchema("s", "", []string{"Character"}, []string{"r1", "r2", "r3"}), 2)
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: oracle})

	partials, stats := e.Extract(context.Background(), paragraphs("a", "b"), subs, 100, 0)

	if stats.Calls != 4 || len(partials) != 4 {
		t.Fatalf("calls = %d, partials = %d, want 4", stats.Calls, len(partials))
	}
	wantRels := [][]string{{"r1", "r2"}, {"r3"}, {"r1", "r2"}, {"r3"}}
	wantFirst := []string{"a", "a", "b", "b"}
	for i, c := range oracle.calls {
		if !reflect.DeepEqual(c.rels, wantRels[i]) {
			t.Errorf("call %d rels = %v, want %v", i, c.rels, wantRels[i])
		}
		if partials[i].Nodes[0].ID != wantFirst[i] {
			t.Errorf("partial %d first node = %s, want %s", i, partials[i].Nodes[0].ID, wantFirst[i])
		}
	}
}

func TestChunkExtractor_UnconstrainedPassesNilVocabulary(t *testing.T) {
	oracle := &fakeOracle{}
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: oracle})
	e.Extract(context.Background(), "some text", []common.Schema{common.UnconstrainedSchema("free", "")}, 100, 0)

	if len(oracle.calls) != 1 || oracle.calls[0].nodes != nil || oracle.calls[0].rels != nil {
		t.Fatalf("calls = %+v", oracle.calls)
	}
}

type flakyOracle struct {
	fakeOracle
	failures int
}

func (f *flakyOracle) Extract(ctx context.Context, text string, nodes, rels []string) (common.GraphDocument, error) {
	if f.failures > 0 {
		f.failures--
		return common.GraphDocument{}, errFakeOracle
	}
	return f.fakeOracle.Extract(ctx, text, nodes, rels)
}

func TestChunkExtractor_Retries(t *testing.T) {
	oracle := &flakyOracle{failures: 2}
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: oracle, MaxRetries: 3})

	_, stats := e.Extract(context.Background(), "hello world", []common.Schema{MinimalSchema()}, 100, 0)

	if stats.Status != StatusOK || stats.Calls != 1 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestChunkExtractor_Cancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oracle := &fakeOracle{onCall: func(n int) {
		if n == 2 {
			cancel()
		}
	}}
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: oracle})

	partials, stats := e.Extract(ctx, paragraphs("a", "b", "c", "d"), []common.Schema{MinimalSchema()}, 100, 0)

	if !stats.Cancelled {
		t.Fatal("expected cancelled")
	}
	if stats.Calls != 2 || len(partials) != 2 {
		t.Fatalf("calls = %d, partials = %d, want 2", stats.Calls, len(partials))
	}
	if partials[1].Empty() {
		t.Error("in-flight call was not allowed to finish")
	}
	if stats.Status != StatusPartial {
		t.Errorf("status = %d, want %d", stats.Status, StatusPartial)
	}
}

func TestChunkExtractor_CancelledBeforeStart(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	oracle := &fakeOracle{}
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: oracle})
	_, stats := e.Extract(ctx, paragraphs("a", "b"), []common.Schema{MinimalSchema()}, 100, 0)

	if oracle.callCount() != 0 {
		t.Fatalf("oracle called %d times", oracle.callCount())
	}
	if !stats.Cancelled || stats.Status != StatusFailed {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestChunkExtractor_NoRetryAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	oracle := &fakeOracle{onCall: func(int) { cancel() }}
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: oracle, MaxRetries: 3, RetryDelay: time.Hour})

	start := time.Now()
	partials, stats := e.Extract(ctx, paragraphs("FAIL", "b"), []common.Schema{MinimalSchema()}, 100, 0)

	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("extract took %v after cancel", elapsed)
	}
	if oracle.callCount() != 1 {
		t.Fatalf("oracle called %d times, want 1", oracle.callCount())
	}
	if !stats.Cancelled || stats.Failures != 1 || len(partials) != 1 {
		t.Fatalf("stats = %+v, partials = %d", stats, len(partials))
	}
}

// blockingOracle never answers before its context ends.
type blockingOracle struct {
	fakeOracle
}

func (b *blockingOracle) Extract(ctx context.Context, text string, nodes, rels []string) (common.GraphDocument, error) {
	b.mu.Lock()
	b.calls = append(b.calls, oracleCall{text: text, nodes: nodes, rels: rels})
	b.mu.Unlock()
	<-ctx.Done()
	return common.GraphDocument{}, ctx.Err()
}

func TestChunkExtractor_DeadlineInterruptsCall(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	oracle := &blockingOracle{}
	e := NewChunkExtractor(NewChunkExtractorParams{Oracle: oracle, MaxRetries: 3})

	done := make(chan ExtractStats, 1)
	go func() {
		_, stats := e.Extract(ctx, paragraphs("a", "b"), []common.Schema{MinimalSchema()}, 100, 0)
		done <- stats
	}()

	select {
	case stats := <-done:
		if oracle.callCount() != 1 {
			t.Errorf("oracle called %d times, want 1", oracle.callCount())
		}
		if !stats.Cancelled || stats.Status != StatusFailed {
			t.Errorf("stats = %+v", stats)
		}
		if !errors.Is(stats.Errors[0].Err, context.DeadlineExceeded) {
			t.Errorf("err = %v", stats.Errors[0].Err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("deadline did not interrupt the oracle call")
	}
}
