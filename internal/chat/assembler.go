package chat

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/vectorstore"
	"github.com/studybuddy/backend/provider"
)

// sessionReader is the slice of the session store the assembler needs.
type sessionReader interface {
	GetChatSession(ctx context.Context, userID, sessionID string) (store.ChatSession, error)
}

type embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// AssembledContext is the prompt plus the retrieval evidence that produced it.
type AssembledContext struct {
	Prompt             string
	SimilarChunks      []vectorstore.Match
	HasRelevantContext bool
}

// Assembler builds hybrid prompts from vector search results and per-session
// conversation state.
type Assembler struct {
	embedder  embedder
	vectors   vectorstore.Store
	sessions  sessionReader
	topK      int
	threshold float64
	window    int
	logger    *log.Logger
}

func NewAssembler(embedder embedder, vectors vectorstore.Store, sessions sessionReader, topK int, threshold float64, window int, logger *log.Logger) *Assembler {
	if logger == nil {
		logger = log.New(log.Writer(), "[CHAT] ", log.LstdFlags)
	}
	return &Assembler{
		embedder:  embedder,
		vectors:   vectors,
		sessions:  sessions,
		topK:      topK,
		threshold: threshold,
		window:    window,
		logger:    logger,
	}
}

// Assemble embeds the query, retrieves the owner's top matching chunks and
// folds in session summary and recent history. A session id that doesn't
// resolve is treated as no history, not an error.
func (a *Assembler) Assemble(ctx context.Context, ownerID, sessionID, query string) (AssembledContext, error) {
	vectors, err := a.embedder.Embed(ctx, []string{query})
	if err != nil {
		return AssembledContext{}, fmt.Errorf("%w: embedding query: %v", provider.ErrProvider, err)
	}
	if len(vectors) == 0 {
		return AssembledContext{}, fmt.Errorf("%w: embedding query: empty response", provider.ErrProvider)
	}

	matches, err := a.vectors.Search(ctx, ownerID, vectors[0], a.topK)
	if err != nil {
		return AssembledContext{}, fmt.Errorf("searching chunks: %w", err)
	}

	relevant := len(matches) > 0 && matches[0].Score > a.threshold

	var summary string
	var history []store.Message
	if sessionID != "" {
		session, err := a.sessions.GetChatSession(ctx, ownerID, sessionID)
		switch {
		case errors.Is(err, store.ErrNotFound):
			// stale or foreign session id: answer without history
		case err != nil:
			return AssembledContext{}, fmt.Errorf("loading session: %w", err)
		default:
			summary = session.Summary
			history = session.Messages
			if len(history) > a.window {
				history = history[len(history)-a.window:]
			}
		}
	}

	grounding := matches
	if !relevant {
		grounding = nil
	}

	return AssembledContext{
		Prompt:             buildPrompt(query, summary, history, grounding),
		SimilarChunks:      matches,
		HasRelevantContext: relevant,
	}, nil
}
