package chat

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/studybuddy/backend/internal/conversation"
	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/telemetry"
	"github.com/studybuddy/backend/internal/vectorstore"
	"github.com/studybuddy/backend/provider"
)

var ErrEmptyQuery = errors.New("query is required")

type generator interface {
	Generate(ctx context.Context, prompt string, maxOutputTokens int) (string, error)
}

type exchangeProcessor interface {
	ProcessExchange(ctx context.Context, job conversation.Exchange) error
}

// Result is what a single query turn hands back to the caller.
type Result struct {
	Response           string              `json:"response"`
	SessionID          string              `json:"sessionId"`
	HasRelevantContext bool                `json:"hasRelevantContext"`
	SimilarChunks      []vectorstore.Match `json:"similarChunks"`
}

// Service runs the synchronous half of a query turn: assemble context,
// generate the answer, hand the exchange off for deferred processing.
type Service struct {
	assembler       *Assembler
	generator       generator
	queue           conversation.Queue
	fallback        exchangeProcessor
	maxOutputTokens int
	logger          *log.Logger
}

// NewService wires the turn pipeline. fallback, when non-nil, processes the
// exchange inline if the queue rejects it, so a broken queue degrades latency
// instead of dropping history.
func NewService(assembler *Assembler, generator generator, queue conversation.Queue, fallback exchangeProcessor, maxOutputTokens int, logger *log.Logger) *Service {
	if logger == nil {
		logger = log.New(log.Writer(), "[CHAT] ", log.LstdFlags)
	}
	return &Service{
		assembler:       assembler,
		generator:       generator,
		queue:           queue,
		fallback:        fallback,
		maxOutputTokens: maxOutputTokens,
		logger:          logger,
	}
}

// Handle answers one question. An empty session id starts a new session. The
// response is returned as soon as the model answers; persistence and
// summarization happen behind the queue.
func (s *Service) Handle(ctx context.Context, userID, sessionID, query string) (Result, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return Result{}, ErrEmptyQuery
	}
	if sessionID == "" {
		sessionID = uuid.NewString()
	}

	asked := time.Now().UTC()
	assembled, err := s.assembler.Assemble(ctx, userID, sessionID, query)
	if err != nil {
		return Result{}, err
	}

	answer, err := s.generator.Generate(ctx, assembled.Prompt, s.maxOutputTokens)
	if err != nil {
		return Result{}, fmt.Errorf("%w: generating answer: %v", provider.ErrProvider, err)
	}

	job := conversation.Exchange{
		UserID:           userID,
		SessionID:        sessionID,
		Query:            query,
		Response:         answer,
		RelatedDocuments: relatedDocuments(assembled),
		AskedAt:          asked,
	}
	if err := s.queue.Enqueue(ctx, job); err != nil {
		// the student already has their answer; a slow turn beats a lost one
		s.logger.Printf("enqueueing exchange for session %s, processing inline: %v", sessionID, err)
		if s.fallback != nil {
			if perr := s.fallback.ProcessExchange(ctx, job); perr != nil {
				s.logger.Printf("inline exchange for session %s: %v", sessionID, perr)
			}
		}
	}

	telemetry.QueriesServed.WithLabelValues(strconv.FormatBool(assembled.HasRelevantContext)).Inc()

	return Result{
		Response:           answer,
		SessionID:          sessionID,
		HasRelevantContext: assembled.HasRelevantContext,
		SimilarChunks:      assembled.SimilarChunks,
	}, nil
}

// relatedDocuments records which chunks actually grounded the answer, one
// entry per document with its page numbers. Empty when the answer came from
// general knowledge.
func relatedDocuments(assembled AssembledContext) []store.RelatedDocument {
	if !assembled.HasRelevantContext {
		return nil
	}
	byDoc := make(map[string][]int)
	order := make([]string, 0, len(assembled.SimilarChunks))
	for _, chunk := range assembled.SimilarChunks {
		if _, seen := byDoc[chunk.SourceFile]; !seen {
			order = append(order, chunk.SourceFile)
		}
		byDoc[chunk.SourceFile] = append(byDoc[chunk.SourceFile], chunk.Page)
	}
	docs := make([]store.RelatedDocument, 0, len(order))
	for _, id := range order {
		docs = append(docs, store.RelatedDocument{DocumentID: id, Pages: byDoc[id]})
	}
	return docs
}
