package server

import (
	"time"

	"github.com/studybuddy/backend/internal/ingest"
	"github.com/studybuddy/backend/internal/store"
)

// HTTPError is the uniform error envelope produced by the error handler.
type HTTPError struct {
	Error string `json:"error"`
}

type AuthSignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AuthLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type TokenResponse struct {
	Token string `json:"token"`
}

type QueryRequest struct {
	Query     string `json:"query"`
	SessionID string `json:"sessionId"`
}

type UploadResponse struct {
	Documents []ingest.Result `json:"documents"`
}

type SessionListResponse struct {
	Sessions []store.ChatSessionInfo `json:"sessions"`
}

type SessionResponse struct {
	ID        string          `json:"id"`
	Title     string          `json:"title"`
	Summary   string          `json:"summary,omitempty"`
	Messages  []store.Message `json:"messages"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

type DocumentListResponse struct {
	Documents []store.Document `json:"documents"`
}
