package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq"

	"github.com/studybuddy/backend/config"
)

// Store wraps the primary Postgres database.
type Store struct {
	DB *sql.DB
}

// ErrNotFound is returned when a row does not exist or does not belong to the
// requesting user.
var ErrNotFound = errors.New("not found")

// ErrVersionConflict is returned when an optimistic session update lost the
// race against a concurrent writer.
var ErrVersionConflict = errors.New("session version conflict")

// Document statuses persisted during ingestion.
const (
	DocumentStatusProcessing = "processing"
	DocumentStatusCompleted  = "completed"
	DocumentStatusFailed     = "failed"
)

// Message roles within a chat session.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Document is a per-upload metadata record, independent of the vector store.
type Document struct {
	ID         string    `json:"document_id"`
	UserID     string    `json:"-"`
	Filename   string    `json:"filename"`
	PageCount  int       `json:"page_count"`
	Status     string    `json:"status"`
	UploadedAt time.Time `json:"uploaded_at"`
}

// RelatedDocument links an assistant message to the chunks used for grounding.
type RelatedDocument struct {
	DocumentID string `json:"document_id"`
	Pages      []int  `json:"pages"`
}

// Message is one turn within a chat session. Append-only.
type Message struct {
	Role             string            `json:"role"`
	Content          string            `json:"content"`
	Timestamp        time.Time         `json:"timestamp"`
	RelatedDocuments []RelatedDocument `json:"related_documents,omitempty"`
}

// ChatSession is one conversation thread. Messages hold only the trimmed
// recent window; the summary is the durable long-term memory substitute.
type ChatSession struct {
	ID               string     `json:"session_id"`
	UserID           string     `json:"-"`
	Title            string     `json:"title"`
	Summary          string     `json:"summary"`
	SummaryUpdatedAt *time.Time `json:"summary_updated_at,omitempty"`
	Messages         []Message  `json:"messages"`
	Version          int64      `json:"-"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

// ChatSessionInfo is the list view of a session, without its messages.
type ChatSessionInfo struct {
	ID           string    `json:"session_id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// New constructs the Store from config.
func New(ctx context.Context, cfg config.PostgresConfig) (*Store, error) {
	dsn, err := cfg.DSN()
	if err != nil {
		return nil, err
	}
	return NewWithDSN(ctx, dsn)
}

// NewWithDSN constructs the Store using an explicit Postgres DSN.
func NewWithDSN(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.PingContext(ctx); err != nil {
		return nil, err
	}
	return &Store{DB: db}, nil
}

// User operations

func (s *Store) CreateUser(ctx context.Context, email, hash string) error {
	_, err := s.DB.ExecContext(ctx, `INSERT INTO users (email, password_hash) VALUES ($1,$2)`, email, hash)
	return err
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (id string, hash string, err error) {
	err = s.DB.QueryRowContext(ctx, `SELECT id, password_hash FROM users WHERE email=$1`, email).Scan(&id, &hash)
	return
}

// Document operations

// UpsertDocument records an upload. The id is derived from owner and
// filename, so re-uploading a file resets its existing row instead of
// creating a second one.
func (s *Store) UpsertDocument(ctx context.Context, doc Document) error {
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO documents (id, user_id, filename, page_count, status, uploaded_at)
VALUES ($1,$2,$3,$4,$5,NOW())
ON CONFLICT (id) DO UPDATE SET status=EXCLUDED.status, page_count=EXCLUDED.page_count, uploaded_at=NOW()
`, doc.ID, doc.UserID, doc.Filename, doc.PageCount, doc.Status)
	return err
}

func (s *Store) UpdateDocumentStatus(ctx context.Context, userID, documentID, status string, pageCount int) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE documents SET status=$1, page_count=$2 WHERE id=$3 AND user_id=$4
`, status, pageCount, documentID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) ListDocuments(ctx context.Context, userID string) ([]Document, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, filename, page_count, status, uploaded_at FROM documents
WHERE user_id=$1 ORDER BY uploaded_at DESC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Document
	for rows.Next() {
		d := Document{UserID: userID}
		if err := rows.Scan(&d.ID, &d.Filename, &d.PageCount, &d.Status, &d.UploadedAt); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Store) DeleteDocument(ctx context.Context, userID, documentID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM documents WHERE id=$1 AND user_id=$2`, documentID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// Chat session operations

func (s *Store) GetChatSession(ctx context.Context, userID, sessionID string) (ChatSession, error) {
	var (
		sess      ChatSession
		msgBytes  []byte
		updatedAt sql.NullTime
	)
	sess.ID = sessionID
	sess.UserID = userID
	err := s.DB.QueryRowContext(ctx, `
SELECT title, summary, summary_updated_at, messages, version, created_at, updated_at
FROM chat_sessions WHERE id=$1 AND user_id=$2
`, sessionID, userID).Scan(&sess.Title, &sess.Summary, &updatedAt, &msgBytes, &sess.Version, &sess.CreatedAt, &sess.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return ChatSession{}, ErrNotFound
	}
	if err != nil {
		return ChatSession{}, err
	}
	if updatedAt.Valid {
		t := updatedAt.Time
		sess.SummaryUpdatedAt = &t
	}
	if len(msgBytes) > 0 {
		if err := json.Unmarshal(msgBytes, &sess.Messages); err != nil {
			return ChatSession{}, fmt.Errorf("decode messages: %w", err)
		}
	}
	return sess, nil
}

func (s *Store) ListChatSessions(ctx context.Context, userID string) ([]ChatSessionInfo, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, title, jsonb_array_length(messages), created_at, updated_at
FROM chat_sessions WHERE user_id=$1 ORDER BY updated_at DESC
`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []ChatSessionInfo
	for rows.Next() {
		var info ChatSessionInfo
		if err := rows.Scan(&info.ID, &info.Title, &info.MessageCount, &info.CreatedAt, &info.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, info)
	}
	return out, rows.Err()
}

// CreateChatSession inserts a brand-new session at version 1.
func (s *Store) CreateChatSession(ctx context.Context, sess ChatSession) error {
	msgBytes, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	_, err = s.DB.ExecContext(ctx, `
INSERT INTO chat_sessions (id, user_id, title, summary, summary_updated_at, messages, version, created_at, updated_at)
VALUES ($1,$2,$3,$4,$5,$6,1,NOW(),NOW())
`, sess.ID, sess.UserID, sess.Title, sess.Summary, sess.SummaryUpdatedAt, msgBytes)
	return err
}

// UpdateChatSession writes the session back, guarded by its version counter.
// Returns ErrVersionConflict when a concurrent writer got there first; the
// caller is expected to re-read and retry.
func (s *Store) UpdateChatSession(ctx context.Context, sess ChatSession) error {
	msgBytes, err := json.Marshal(sess.Messages)
	if err != nil {
		return fmt.Errorf("encode messages: %w", err)
	}
	res, err := s.DB.ExecContext(ctx, `
UPDATE chat_sessions
SET title=$1, summary=$2, summary_updated_at=$3, messages=$4, version=version+1, updated_at=NOW()
WHERE id=$5 AND user_id=$6 AND version=$7
`, sess.Title, sess.Summary, sess.SummaryUpdatedAt, msgBytes, sess.ID, sess.UserID, sess.Version)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrVersionConflict
	}
	return nil
}

func (s *Store) DeleteChatSession(ctx context.Context, userID, sessionID string) error {
	res, err := s.DB.ExecContext(ctx, `DELETE FROM chat_sessions WHERE id=$1 AND user_id=$2`, sessionID, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
