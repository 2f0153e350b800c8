package chat

import (
	"context"
	"errors"
	"testing"

	"github.com/studybuddy/backend/internal/conversation"
	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/vectorstore"
)

type fakeGenerator struct {
	answer string
	err    error
	calls  int
	prompt string
}

func (f *fakeGenerator) Generate(_ context.Context, prompt string, _ int) (string, error) {
	f.calls++
	f.prompt = prompt
	return f.answer, f.err
}

type fakeQueue struct {
	jobs []conversation.Exchange
	err  error
}

func (f *fakeQueue) Enqueue(_ context.Context, job conversation.Exchange) error {
	if f.err != nil {
		return f.err
	}
	f.jobs = append(f.jobs, job)
	return nil
}

type fakeProcessor struct {
	jobs []conversation.Exchange
	err  error
}

func (f *fakeProcessor) ProcessExchange(_ context.Context, job conversation.Exchange) error {
	f.jobs = append(f.jobs, job)
	return f.err
}

func newTestService(matches []vectorstore.Match, gen *fakeGenerator, queue *fakeQueue) *Service {
	assembler := NewAssembler(&fakeEmbedder{}, &fakeVectorStore{matches: matches}, &fakeSessionReader{err: store.ErrNotFound}, 3, 0.6, 6, testLogger())
	return NewService(assembler, gen, queue, nil, 500, testLogger())
}

func TestHandleRejectsEmptyQuery(t *testing.T) {
	gen := &fakeGenerator{}
	embedder := &fakeEmbedder{}
	assembler := NewAssembler(embedder, &fakeVectorStore{}, &fakeSessionReader{err: store.ErrNotFound}, 3, 0.6, 6, testLogger())
	svc := NewService(assembler, gen, &fakeQueue{}, nil, 500, testLogger())

	if _, err := svc.Handle(context.Background(), "user-1", "", "   "); !errors.Is(err, ErrEmptyQuery) {
		t.Fatalf("expected ErrEmptyQuery, got %v", err)
	}
	if embedder.calls != 0 || gen.calls != 0 {
		t.Fatal("no provider calls may happen for an empty query")
	}
}

func TestHandleStartsNewSession(t *testing.T) {
	gen := &fakeGenerator{answer: "Gravity pulls masses together."}
	queue := &fakeQueue{}
	svc := newTestService(nil, gen, queue)

	res, err := svc.Handle(context.Background(), "user-1", "", "what is gravity")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.SessionID == "" {
		t.Fatal("expected a generated session id")
	}
	if res.Response != "Gravity pulls masses together." {
		t.Fatalf("unexpected response: %q", res.Response)
	}
	if len(queue.jobs) != 1 {
		t.Fatalf("expected 1 queued job, got %d", len(queue.jobs))
	}
	if queue.jobs[0].SessionID != res.SessionID {
		t.Fatal("queued job must carry the resolved session id")
	}
	if queue.jobs[0].RelatedDocuments != nil {
		t.Fatal("ungrounded answers must not carry related documents")
	}
}

func TestHandleGroundedAnswerCarriesRelatedDocuments(t *testing.T) {
	matches := []vectorstore.Match{
		{Text: "a", Page: 3, SourceFile: "doc-1", Score: 0.9},
		{Text: "b", Page: 5, SourceFile: "doc-1", Score: 0.8},
		{Text: "c", Page: 1, SourceFile: "doc-2", Score: 0.7},
	}
	gen := &fakeGenerator{answer: "answer"}
	queue := &fakeQueue{}
	svc := newTestService(matches, gen, queue)

	res, err := svc.Handle(context.Background(), "user-1", "sess-1", "question")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if !res.HasRelevantContext {
		t.Fatal("expected grounded answer")
	}
	docs := queue.jobs[0].RelatedDocuments
	want := []store.RelatedDocument{
		{DocumentID: "doc-1", Pages: []int{3, 5}},
		{DocumentID: "doc-2", Pages: []int{1}},
	}
	if len(docs) != len(want) {
		t.Fatalf("expected %d related documents, got %d", len(want), len(docs))
	}
	for i := range want {
		if docs[i].DocumentID != want[i].DocumentID || len(docs[i].Pages) != len(want[i].Pages) {
			t.Fatalf("unexpected related documents: %+v", docs)
		}
	}
}

func TestHandleGeneratorFailure(t *testing.T) {
	gen := &fakeGenerator{err: errors.New("rate limited")}
	queue := &fakeQueue{}
	svc := newTestService(nil, gen, queue)

	if _, err := svc.Handle(context.Background(), "user-1", "", "question"); err == nil {
		t.Fatal("expected error from generator failure")
	}
	if len(queue.jobs) != 0 {
		t.Fatal("failed turns must not be queued")
	}
}

func TestHandleEnqueueFailureProcessesInline(t *testing.T) {
	gen := &fakeGenerator{answer: "answer"}
	fallback := &fakeProcessor{}
	assembler := NewAssembler(&fakeEmbedder{}, &fakeVectorStore{}, &fakeSessionReader{err: store.ErrNotFound}, 3, 0.6, 6, testLogger())
	svc := NewService(assembler, gen, &fakeQueue{err: errors.New("redis down")}, fallback, 500, testLogger())

	res, err := svc.Handle(context.Background(), "user-1", "sess-1", "question")
	if err != nil {
		t.Fatalf("the student already has an answer, the turn must succeed: %v", err)
	}
	if res.Response != "answer" {
		t.Fatalf("unexpected response: %q", res.Response)
	}
	if len(fallback.jobs) != 1 {
		t.Fatalf("expected the exchange to be processed inline, got %d jobs", len(fallback.jobs))
	}
	if fallback.jobs[0].SessionID != "sess-1" || fallback.jobs[0].Response != "answer" {
		t.Fatalf("unexpected inline job: %+v", fallback.jobs[0])
	}
}

func TestHandleInlineFallbackFailureDoesNotFailTurn(t *testing.T) {
	gen := &fakeGenerator{answer: "answer"}
	fallback := &fakeProcessor{err: errors.New("postgres down")}
	assembler := NewAssembler(&fakeEmbedder{}, &fakeVectorStore{}, &fakeSessionReader{err: store.ErrNotFound}, 3, 0.6, 6, testLogger())
	svc := NewService(assembler, gen, &fakeQueue{err: errors.New("redis down")}, fallback, 500, testLogger())

	res, err := svc.Handle(context.Background(), "user-1", "", "question")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.Response != "answer" {
		t.Fatalf("unexpected response: %q", res.Response)
	}
}

func TestHandleKeepsProvidedSessionID(t *testing.T) {
	gen := &fakeGenerator{answer: "answer"}
	queue := &fakeQueue{}
	svc := newTestService(nil, gen, queue)

	res, err := svc.Handle(context.Background(), "user-1", "sess-7", "question")
	if err != nil {
		t.Fatalf("Handle: %v", err)
	}
	if res.SessionID != "sess-7" {
		t.Fatalf("expected provided session id, got %q", res.SessionID)
	}
}
