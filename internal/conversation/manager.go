package conversation

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/studybuddy/backend/internal/store"
	"github.com/studybuddy/backend/internal/telemetry"
)

// sessionStore is the slice of the persistence layer the manager needs.
type sessionStore interface {
	GetChatSession(ctx context.Context, userID, sessionID string) (store.ChatSession, error)
	CreateChatSession(ctx context.Context, sess store.ChatSession) error
	UpdateChatSession(ctx context.Context, sess store.ChatSession) error
}

const (
	maxSaveAttempts  = 3
	titleFallbackLen = 50
)

// Manager runs the deferred half of a query: persist the exchange, then
// classify it and update summary and title when it matters. Persistence
// failures are reported; everything after the first save is best effort.
type Manager struct {
	sessions    sessionStore
	classifier  Classifier
	summarizer  Summarizer
	titler      Titler
	maxMessages int
	tokenBudget int
	minSummary  int
	logger      *log.Logger
}

func NewManager(sessions sessionStore, classifier Classifier, summarizer Summarizer, titler Titler, maxMessages, tokenBudget, minSummary int, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(log.Writer(), "[CONVO] ", log.LstdFlags)
	}
	return &Manager{
		sessions:    sessions,
		classifier:  classifier,
		summarizer:  summarizer,
		titler:      titler,
		maxMessages: maxMessages,
		tokenBudget: tokenBudget,
		minSummary:  minSummary,
		logger:      logger,
	}
}

// FallbackTitle names a brand-new session after its first question.
func FallbackTitle(query string) string {
	runes := []rune(query)
	if len(runes) <= titleFallbackLen {
		return query
	}
	return string(runes[:titleFallbackLen]) + "..."
}

func (m *Manager) ProcessExchange(ctx context.Context, job Exchange) error {
	pair := []store.Message{
		{Role: store.RoleUser, Content: job.Query, Timestamp: job.AskedAt},
		{Role: store.RoleAssistant, Content: job.Response, Timestamp: time.Now().UTC(), RelatedDocuments: job.RelatedDocuments},
	}

	sess, err := m.appendMessages(ctx, job, pair)
	if err != nil {
		return fmt.Errorf("persisting exchange: %w", err)
	}

	important, err := m.classifier.Classify(ctx, job.Query, job.Response)
	if err != nil {
		// fail open: losing a summary update is worse than an extra one
		m.logger.Printf("classify failed for session %s, treating as important: %v", sess.ID, err)
		important = true
	}
	if !important {
		return nil
	}

	changed := false
	merged, err := m.summarizer.Merge(ctx, sess.Summary, job.Query, job.Response, m.tokenBudget)
	if err != nil {
		m.logger.Printf("summary merge failed for session %s: %v", sess.ID, err)
	} else if merged != "" && merged != sess.Summary {
		if len(merged) > 4*m.tokenBudget {
			compressed, err := m.summarizer.Compress(ctx, merged, m.tokenBudget)
			if err != nil {
				m.logger.Printf("summary compression failed for session %s: %v", sess.ID, err)
			} else if compressed != "" {
				merged = compressed
			}
		}
		now := time.Now().UTC()
		sess.Summary = merged
		sess.SummaryUpdatedAt = &now
		changed = true
		telemetry.SummaryUpdates.Inc()
	}

	if len(sess.Summary) >= m.minSummary {
		title, err := m.titler.Title(ctx, sess.Summary)
		if err != nil {
			m.logger.Printf("title generation failed for session %s: %v", sess.ID, err)
		} else if title != "" && title != sess.Title && !strings.HasSuffix(title, "...") {
			sess.Title = title
			changed = true
		}
	}

	if !changed {
		return nil
	}
	if err := m.saveMeta(ctx, sess); err != nil {
		m.logger.Printf("saving summary for session %s: %v", sess.ID, err)
	}
	return nil
}

// appendMessages loads or creates the session, appends the pair, trims the
// tail window and saves. On a version conflict it re-reads and retries so a
// concurrent writer's messages are never clobbered.
func (m *Manager) appendMessages(ctx context.Context, job Exchange, pair []store.Message) (store.ChatSession, error) {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		sess, err := m.sessions.GetChatSession(ctx, job.UserID, job.SessionID)
		if errors.Is(err, store.ErrNotFound) {
			sess = store.ChatSession{
				ID:       job.SessionID,
				UserID:   job.UserID,
				Title:    FallbackTitle(job.Query),
				Messages: pair,
				Version:  1,
			}
			sess.Messages = trimMessages(sess.Messages, m.maxMessages)
			if err := m.sessions.CreateChatSession(ctx, sess); err != nil {
				return store.ChatSession{}, err
			}
			return sess, nil
		}
		if err != nil {
			return store.ChatSession{}, err
		}

		sess.Messages = trimMessages(append(sess.Messages, pair...), m.maxMessages)
		err = m.sessions.UpdateChatSession(ctx, sess)
		if errors.Is(err, store.ErrVersionConflict) {
			continue
		}
		if err != nil {
			return store.ChatSession{}, err
		}
		sess.Version++
		return sess, nil
	}
	return store.ChatSession{}, fmt.Errorf("session %s: %w", job.SessionID, store.ErrVersionConflict)
}

// saveMeta writes updated summary and title, merging with whatever messages
// are current if another writer got there first.
func (m *Manager) saveMeta(ctx context.Context, sess store.ChatSession) error {
	for attempt := 0; attempt < maxSaveAttempts; attempt++ {
		err := m.sessions.UpdateChatSession(ctx, sess)
		if !errors.Is(err, store.ErrVersionConflict) {
			return err
		}
		fresh, err := m.sessions.GetChatSession(ctx, sess.UserID, sess.ID)
		if err != nil {
			return err
		}
		fresh.Title = sess.Title
		fresh.Summary = sess.Summary
		fresh.SummaryUpdatedAt = sess.SummaryUpdatedAt
		sess = fresh
	}
	return fmt.Errorf("session %s: %w", sess.ID, store.ErrVersionConflict)
}

func trimMessages(msgs []store.Message, max int) []store.Message {
	if max <= 0 || len(msgs) <= max {
		return msgs
	}
	return msgs[len(msgs)-max:]
}
