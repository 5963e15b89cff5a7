package queue

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/OFFIS-RIT/storygraph/internal/timing"
	"github.com/OFFIS-RIT/storygraph/pkg/common"
	"github.com/OFFIS-RIT/storygraph/pkg/graph"
	sourcefs "github.com/OFFIS-RIT/storygraph/pkg/source/fs"

	"github.com/rabbitmq/amqp091-go"
)

type published struct {
	exchange, key string
	msg           amqp091.Publishing
}

type fakePublisher struct {
	mu   sync.Mutex
	sent []published
	err  error
}

func (f *fakePublisher) Publish(exchange, key string, _, _ bool, msg amqp091.Publishing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, published{exchange, key, msg})
	return nil
}

type fakeAck struct {
	acked, nacked, requeued bool
}

func (f *fakeAck) Ack(bool) error {
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(_, requeue bool) error {
	f.nacked, f.requeued = true, requeue
	return nil
}

// wordOracle returns one Character per window, named by its first word.
type wordOracle struct{}

func (wordOracle) Extract(_ context.Context, text string, _, _ []string) (common.GraphDocument, error) {
	if strings.Contains(text, "FAIL") {
		return common.GraphDocument{}, errors.New("oracle down")
	}
	w := strings.Fields(text)[0]
	return common.GraphDocument{Nodes: []common.Node{{ID: w, Type: "Character", Properties: map[string]any{}}}}, nil
}

func (wordOracle) Identity() common.OracleIdentity {
	return common.OracleIdentity{Local: true, Model: "word"}
}

type recordingExporter struct {
	mu       sync.Mutex
	chapters []string
}

func (r *recordingExporter) Export(_ context.Context, _, chapterID string, _ common.GraphDocument) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.chapters = append(r.chapters, chapterID)
	return nil
}

type recordingTiming struct {
	mu      sync.Mutex
	samples []timing.Sample
}

func (r *recordingTiming) AddExtractionTime(_ context.Context, s timing.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func newProcessor(t *testing.T, chapters map[string]string) (*Processor, *fakePublisher, *recordingExporter, *recordingTiming) {
	t.Helper()
	root := t.TempDir()
	dir := filepath.Join(root, "moby")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	for name, text := range chapters {
		if err := os.WriteFile(filepath.Join(dir, name+".txt"), []byte(text), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	client, err := graph.NewGraphClient(graph.NewGraphClientParams{Oracle: wordOracle{}})
	if err != nil {
		t.Fatal(err)
	}
	pub := &fakePublisher{}
	exp := &recordingExporter{}
	tim := &recordingTiming{}
	return &Processor{
		Client:        client,
		Source:        sourcefs.NewSource(root, nil),
		Catalog:       graph.NewSchemaCatalog(),
		Scheduler:     graph.NewBatchScheduler(graph.NewBatchSchedulerParams{Client: client, Workers: 2}),
		DefaultSchema: graph.SchemaMinimal,
		ChunkSize:     200,
		ChunkOverlap:  20,
		Exporter:      exp,
		Timing:        tim,
		Publisher:     pub,
	}, pub, exp, tim
}

func TestProcessor_Process(t *testing.T) {
	p, pub, exp, tim := newProcessor(t, map[string]string{
		"Chapter 1": "Ishmael goes to sea.",
		"Chapter 2": "Queequeg arrives.",
	})
	body, _ := json.Marshal(ExtractMessage{BatchID: "b1", NovelID: "moby", Export: true})

	if err := p.ProcessExtractMessage(context.Background(), body); err != nil {
		t.Fatal(err)
	}

	if len(pub.sent) != 2 {
		t.Fatalf("events = %d", len(pub.sent))
	}
	for _, s := range pub.sent {
		if s.exchange != EventsExchange || s.key != "chapter.0" {
			t.Fatalf("event routed to %s/%s", s.exchange, s.key)
		}
		var ev ChapterEvent
		if err := json.Unmarshal(s.msg.Body, &ev); err != nil {
			t.Fatal(err)
		}
		if ev.BatchID != "b1" || ev.NovelID != "moby" || ev.Nodes != 1 {
			t.Fatalf("event = %+v", ev)
		}
	}
	if len(exp.chapters) != 2 || len(tim.samples) != 2 {
		t.Fatalf("exports = %v, samples = %d", exp.chapters, len(tim.samples))
	}
	if tim.samples[0].Model != "word" || tim.samples[0].Runes == 0 {
		t.Fatalf("sample = %+v", tim.samples[0])
	}
}

func TestProcessor_FailedChapter(t *testing.T) {
	p, pub, exp, _ := newProcessor(t, map[string]string{
		"Chapter 1": "Ishmael goes to sea.",
		"Chapter 2": "FAIL here.",
	})
	report, err := p.Process(context.Background(), &ExtractMessage{NovelID: "moby", Export: true})
	if !errors.Is(err, ErrChaptersFailed) {
		t.Fatalf("err = %v", err)
	}
	if report.Results[1].Result.Status != graph.StatusFailed {
		t.Fatalf("status = %d", report.Results[1].Result.Status)
	}
	if len(exp.chapters) != 1 || exp.chapters[0] != "Chapter 1" {
		t.Fatalf("exports = %v", exp.chapters)
	}
	topics := []string{pub.sent[0].key, pub.sent[1].key}
	if !strings.Contains(strings.Join(topics, ","), "chapter.2") {
		t.Fatalf("topics = %v", topics)
	}
}

func TestProcessor_UnknownSchema(t *testing.T) {
	p, _, _, _ := newProcessor(t, map[string]string{"Chapter 1": "text"})
	_, err := p.Process(context.Background(), &ExtractMessage{NovelID: "moby", Schema: "nope"})
	if !errors.Is(err, graph.ErrConfiguration) {
		t.Fatalf("err = %v", err)
	}
}

func TestParseExtractMessage(t *testing.T) {
	if _, err := ParseExtractMessage([]byte(`{`)); err == nil {
		t.Fatal("invalid json accepted")
	}
	if _, err := ParseExtractMessage([]byte(`{"chapters":["a"]}`)); err == nil {
		t.Fatal("message without novel accepted")
	}
	msg, err := ParseExtractMessage([]byte(`{"novel_id":"moby","chapters":["Chapter 1"],"optimize":{"min_hub_degree":5}}`))
	if err != nil {
		t.Fatal(err)
	}
	if msg.Optimize == nil || msg.Optimize.MinHubDegree != 5 || msg.Chapters[0] != "Chapter 1" {
		t.Fatalf("msg = %+v", msg)
	}
}

func TestHandleProcessingError(t *testing.T) {
	tests := []struct {
		name       string
		headers    amqp091.Table
		wantQueue  string
		wantRetry  int32
		publishErr error
	}{
		{"first failure", nil, ExtractQueue + "_retry", 1, nil},
		{"later failure", amqp091.Table{"x-retries": int32(4)}, ExtractQueue + "_retry", 5, nil},
		{"exhausted", amqp091.Table{"x-retries": int32(DefaultMaxRetries)}, ExtractQueue + "_dlq", int32(DefaultMaxRetries), nil},
		{"publish fails", nil, "", 0, errors.New("channel closed")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			pub := &fakePublisher{err: tc.publishErr}
			ack := &fakeAck{}
			msg := amqp091.Delivery{Body: []byte(`{}`), Headers: tc.headers}

			HandleProcessingError(pub, ack, msg, ExtractQueue, DefaultMaxRetries)

			if tc.publishErr != nil {
				if !ack.nacked || !ack.requeued || ack.acked {
					t.Fatalf("ack = %+v", ack)
				}
				return
			}
			if !ack.acked || len(pub.sent) != 1 {
				t.Fatalf("ack = %+v, sent = %d", ack, len(pub.sent))
			}
			sent := pub.sent[0]
			if sent.key != tc.wantQueue {
				t.Fatalf("queue = %s", sent.key)
			}
			if got := Retries(sent.msg.Headers); got != int(tc.wantRetry) {
				t.Fatalf("retries = %d", got)
			}
		})
	}
}

func TestChapterEventTopic(t *testing.T) {
	tests := []struct {
		event ChapterEvent
		want  string
	}{
		{ChapterEvent{Status: 1}, "chapter.1"},
		{ChapterEvent{Skipped: true}, "chapter.skipped"},
		{ChapterEvent{Error: "boom"}, "chapter.error"},
	}
	for _, tc := range tests {
		if got := tc.event.Topic(); got != tc.want {
			t.Errorf("Topic() = %s, want %s", got, tc.want)
		}
	}
}
