package server

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"

	"github.com/studybuddy/backend/internal/ingest"
	"github.com/studybuddy/backend/internal/store"
)

type stubRecorder struct{}

func (stubRecorder) UpsertDocument(context.Context, store.Document) error { return nil }

func (stubRecorder) UpdateDocumentStatus(context.Context, string, string, string, int) error {
	return nil
}

func multipartBody(t *testing.T, names ...string) (*bytes.Buffer, string) {
	t.Helper()
	body := &bytes.Buffer{}
	w := multipart.NewWriter(body)
	for _, name := range names {
		part, err := w.CreateFormFile("files", name)
		if err != nil {
			t.Fatalf("CreateFormFile: %v", err)
		}
		if _, err := part.Write([]byte("some page content")); err != nil {
			t.Fatalf("write part: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return body, w.FormDataContentType()
}

func newUploadHandler(maxFiles int) *UploadHandler {
	logger := log.New(io.Discard, "", 0)
	pipeline := ingest.NewPipeline(ingest.TextExtractor{}, stubEmbedder{}, &recordingVectorStore{}, stubRecorder{}, logger)
	return &UploadHandler{Pipeline: pipeline, MaxFiles: maxFiles}
}

func TestUpload(t *testing.T) {
	e := echo.New()
	body, contentType := multipartBody(t, "notes.txt")

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	rec := httptest.NewRecorder()
	ctx := e.NewContext(req, rec)
	ctx.Set("user_id", "user-1")

	if err := newUploadHandler(8).upload(ctx); err != nil {
		t.Fatalf("upload: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var resp UploadResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Documents) != 1 || resp.Documents[0].Filename != "notes.txt" {
		t.Fatalf("unexpected response: %+v", resp)
	}
	if resp.Documents[0].DocumentID == "" {
		t.Fatal("expected document id")
	}
}

func TestUploadTooManyFiles(t *testing.T) {
	e := echo.New()
	body, contentType := multipartBody(t, "a.txt", "b.txt", "c.txt")

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.Set("user_id", "user-1")

	err := newUploadHandler(2).upload(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}

func TestUploadNoFiles(t *testing.T) {
	e := echo.New()
	body, contentType := multipartBody(t)

	req := httptest.NewRequest(http.MethodPost, "/api/upload", body)
	req.Header.Set(echo.HeaderContentType, contentType)
	ctx := e.NewContext(req, httptest.NewRecorder())
	ctx.Set("user_id", "user-1")

	err := newUploadHandler(8).upload(ctx)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %v", err)
	}
}
