package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/labstack/echo/v4"

	"github.com/studybuddy/backend/internal/store"
)

func TestListSessions(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &SessionsHandler{Store: &store.Store{DB: db}}
	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`
SELECT id, title, jsonb_array_length(messages), created_at, updated_at
FROM chat_sessions WHERE user_id=$1 ORDER BY updated_at DESC
`)).WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "title", "count", "created_at", "updated_at"}).
			AddRow("sess-1", "Cell biology", 4, now, now))

	req := httptest.NewRequest(http.MethodGet, "/api/chat-sessions", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := handler.list(ctx); err != nil {
		t.Fatalf("list: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp SessionListResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Sessions) != 1 || resp.Sessions[0].MessageCount != 4 {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}

func TestGetSessionNotFound(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &SessionsHandler{Store: &store.Store{DB: db}}
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT title, summary`)).
		WithArgs("missing", "user-1").
		WillReturnRows(sqlmock.NewRows([]string{"title"}))

	req := httptest.NewRequest(http.MethodGet, "/api/chat-sessions/missing", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("missing")

	err = handler.get(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %v", err)
	}
}

func TestDeleteSession(t *testing.T) {
	e := echo.New()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	handler := &SessionsHandler{Store: &store.Store{DB: db}}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM chat_sessions WHERE id=$1 AND user_id=$2`)).
		WithArgs("sess-1", "user-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	req := httptest.NewRequest(http.MethodDelete, "/api/chat-sessions/sess-1", nil)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")
	ctx.SetParamNames("id")
	ctx.SetParamValues("sess-1")

	if err := handler.remove(ctx); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("expectations: %v", err)
	}
}
